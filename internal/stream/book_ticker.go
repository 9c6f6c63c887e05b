package stream

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	futuresWSBase        = "wss://fstream.binance.com/ws"
	futuresTestnetWSBase = "wss://stream.binancefuture.com/ws"

	readTimeout    = 60 * time.Second
	pingInterval   = 20 * time.Second
	reconnectDelay = 5 * time.Second
)

// Quote is the latest best bid/ask seen on the stream.
type Quote struct {
	Bid       float64
	Ask       float64
	UpdatedAt time.Time
}

// BookTickerCache keeps the most recent best bid/ask for one symbol from the
// <symbol>@bookTicker futures stream. The trading loop reads the cache
// instead of hitting the REST order book on every entry attempt; when the
// cache is stale the caller falls back to REST.
type BookTickerCache struct {
	url        string
	symbol     string
	staleAfter time.Duration
	logger     *zap.Logger

	mu    sync.RWMutex
	quote Quote
}

// NewBookTickerCache creates a cache for the given symbol. staleAfter bounds
// how old a quote may be before Quote reports it unusable.
func NewBookTickerCache(symbol string, testnet bool, staleAfter time.Duration, logger *zap.Logger) *BookTickerCache {
	base := futuresWSBase
	if testnet {
		base = futuresTestnetWSBase
	}
	return &BookTickerCache{
		url:        base + "/" + strings.ToLower(symbol) + "@bookTicker",
		symbol:     symbol,
		staleAfter: staleAfter,
		logger:     logger.Named("stream"),
	}
}

// Run connects and keeps the stream alive until the context is canceled,
// reconnecting with a fixed delay on any failure.
func (c *BookTickerCache) Run(ctx context.Context) {
	for {
		if err := c.readLoop(ctx); err != nil {
			c.logger.Warn("Book ticker stream dropped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *BookTickerCache) readLoop(ctx context.Context) error {
	c.logger.Info("Connecting book ticker stream", zap.String("url", c.url))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// The futures stream pings us; answering pongs is handled by the
	// library. We additionally ping on an interval to detect dead peers.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(raw)
	}
}

type bookTickerEvent struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

func (c *BookTickerCache) handle(raw []byte) {
	var ev bookTickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Debug("Unparseable stream message", zap.Error(err))
		return
	}
	bid, err1 := strconv.ParseFloat(ev.Bid, 64)
	ask, err2 := strconv.ParseFloat(ev.Ask, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return
	}

	c.mu.Lock()
	c.quote = Quote{Bid: bid, Ask: ask, UpdatedAt: time.Now()}
	c.mu.Unlock()
}

// Quote returns the cached best bid/ask. ok is false when no quote has
// arrived yet or the last one is older than the staleness bound.
func (c *BookTickerCache) Quote() (Quote, bool) {
	c.mu.RLock()
	q := c.quote
	c.mu.RUnlock()

	if q.UpdatedAt.IsZero() || time.Since(q.UpdatedAt) > c.staleAfter {
		return Quote{}, false
	}
	return q, true
}
