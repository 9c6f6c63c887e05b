package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/logger"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/notify"
	"binance-futures-bot-go/internal/stream"
	"binance-futures-bot-go/internal/trader"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env before viper so secrets can live outside the config file.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("symbol", cfg.Trading.Symbol))

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	journal := database.NewJournal(db, log)
	log.Info("Trade journal ready", zap.String("dsn", cfg.Database.DSN))

	client := binance.NewFuturesClient(&cfg.Binance, log)
	if _, err := client.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to Binance Futures API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance Futures API.")

	notifier := notify.NewTelegramNotifier(&cfg.Telegram, log)
	provider := market.NewBinanceProvider(client, cfg.Trading.Symbol, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	var quotes trader.QuoteSource
	if cfg.Stream.Enabled {
		cache := stream.NewBookTickerCache(cfg.Trading.Symbol, cfg.Binance.Testnet,
			time.Duration(cfg.Stream.StaleAfterSecs)*time.Second, log)
		go cache.Run(ctx)
		quotes = cache
	}

	engine := trader.NewEngine(log, &cfg, client, provider, quotes, notifier, journal)

	api := trader.NewAPIServer(engine, cfg.Server.Port, log)
	api.Start()

	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Warn("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
