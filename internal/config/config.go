package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Telegram Telegram `mapstructure:"telegram"`
	Trading  Trading  `mapstructure:"trading"`
	Stream   Stream   `mapstructure:"stream"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance futures API.
type Binance struct {
	ApiKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Telegram holds the notification sink credentials. An empty token disables
// notifications entirely.
type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// Server holds the configuration for the status/health HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the trade journal database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Stream holds the configuration for the bookTicker websocket cache.
type Stream struct {
	Enabled        bool `mapstructure:"enabled"`
	StaleAfterSecs int  `mapstructure:"stale_after"`
}

// Trading holds every knob of the decision state machine.
type Trading struct {
	Symbol   string  `mapstructure:"symbol"`
	Quantity float64 `mapstructure:"quantity"`
	Leverage int     `mapstructure:"leverage"`
	DryRun   bool    `mapstructure:"dry_run"`

	// TickInterval is the decision cadence in seconds.
	TickInterval int `mapstructure:"tick_interval"`

	// Entry filters.
	SpreadThreshold   float64 `mapstructure:"spread_threshold"`
	EntryBuffer       float64 `mapstructure:"entry_buffer"`
	RSIBandLow        float64 `mapstructure:"rsi_band_low"`
	RSIBandHigh       float64 `mapstructure:"rsi_band_high"`
	CloseGuardMinutes int     `mapstructure:"close_guard_minutes"`
	TPCooldownMinutes int     `mapstructure:"tp_cooldown_minutes"`

	// Exit targets. When ATRTargets is enabled, SL/TP are scaled from the
	// current ATR instead of candle opens and band offsets.
	TakeProfitOffset float64 `mapstructure:"take_profit_offset"`
	ATRTargets       bool    `mapstructure:"atr_targets"`
	ATRSLFactor      float64 `mapstructure:"atr_sl_factor"`
	ATRTPFactor      float64 `mapstructure:"atr_tp_factor"`

	// Daily risk limits.
	DailyTarget          float64 `mapstructure:"daily_target"`
	DailyLossLimit       float64 `mapstructure:"daily_loss_limit"`
	PendingExpiryMinutes int     `mapstructure:"pending_expiry_minutes"`
	LossStreakLength     int     `mapstructure:"loss_streak_length"`
	LossPauseMinutes     int     `mapstructure:"loss_pause_minutes"`

	// RolloverUTCOffsetHours shifts the midnight used for the daily reset.
	RolloverUTCOffsetHours int `mapstructure:"rollover_utc_offset_hours"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

func setDefaults() {
	viper.SetDefault("binance.rate_limit", 20) // requests per second
	viper.SetDefault("binance.rate_limit_burst", 5)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.dsn", "journal.db")

	viper.SetDefault("stream.enabled", true)
	viper.SetDefault("stream.stale_after", 10)

	// Defaults mirror the strategy's original tuning for BTCUSDT.
	viper.SetDefault("trading.symbol", "BTCUSDT")
	viper.SetDefault("trading.quantity", 0.001)
	viper.SetDefault("trading.leverage", 10)
	viper.SetDefault("trading.tick_interval", 120)
	viper.SetDefault("trading.spread_threshold", 0.5)
	viper.SetDefault("trading.entry_buffer", 0.8)
	viper.SetDefault("trading.rsi_band_low", 47)
	viper.SetDefault("trading.rsi_band_high", 53)
	viper.SetDefault("trading.close_guard_minutes", 10)
	viper.SetDefault("trading.tp_cooldown_minutes", 30)
	viper.SetDefault("trading.take_profit_offset", 100)
	viper.SetDefault("trading.atr_targets", false)
	viper.SetDefault("trading.atr_sl_factor", 0.8)
	viper.SetDefault("trading.atr_tp_factor", 2.4)
	viper.SetDefault("trading.daily_target", 1200)
	viper.SetDefault("trading.daily_loss_limit", -700)
	viper.SetDefault("trading.pending_expiry_minutes", 10)
	viper.SetDefault("trading.loss_streak_length", 4)
	viper.SetDefault("trading.loss_pause_minutes", 60)
	viper.SetDefault("trading.rollover_utc_offset_hours", 0)
}

// Validate checks the options that have no sane fallback. A failure here is
// fatal at startup; nothing downstream re-validates configuration.
func (c *Config) Validate() error {
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be positive, got %v", c.Trading.Quantity)
	}
	if c.Trading.TickInterval <= 0 {
		return fmt.Errorf("trading.tick_interval must be positive, got %v", c.Trading.TickInterval)
	}
	if c.Trading.RSIBandLow > c.Trading.RSIBandHigh {
		return fmt.Errorf("trading.rsi_band_low %v exceeds trading.rsi_band_high %v",
			c.Trading.RSIBandLow, c.Trading.RSIBandHigh)
	}
	if c.Trading.DailyLossLimit > 0 {
		return fmt.Errorf("trading.daily_loss_limit must be zero or negative, got %v", c.Trading.DailyLossLimit)
	}
	if c.Trading.LossStreakLength <= 0 {
		return fmt.Errorf("trading.loss_streak_length must be positive, got %v", c.Trading.LossStreakLength)
	}
	if !c.Trading.DryRun && (c.Binance.ApiKey == "" || c.Binance.SecretKey == "") {
		return fmt.Errorf("binance.api_key and binance.secret_key are required unless trading.dry_run is set")
	}
	return nil
}
