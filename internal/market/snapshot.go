package market

import (
	"errors"
	"fmt"

	"binance-futures-bot-go/internal/binance"
	"go.uber.org/zap"
)

// ErrDataUnavailable is returned when the upstream source is unreachable or
// the series is too short to compute indicators. Callers treat it as "skip
// this cycle", never as fatal.
var ErrDataUnavailable = errors.New("market data unavailable")

const (
	IntervalFast = "5m"
	IntervalSlow = "1h"

	klineLimit      = 100
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	atrPeriod       = 14
)

// Snapshot is the most recent candle for one timeframe together with its
// indicator values. Immutable once produced; a fresh pair is fetched every
// decision cycle.
type Snapshot struct {
	Interval string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	RSI      float64
	BBMid    float64
	BBHigh   float64
	BBLow    float64
	ATR      float64
}

// Bullish reports whether the candle body closed above its open.
func (s *Snapshot) Bullish() bool { return s.Close > s.Open }

// Bearish reports whether the candle body closed below its open.
func (s *Snapshot) Bearish() bool { return s.Close < s.Open }

// Provider produces indicator snapshots for the engine. The engine depends on
// this interface so tests can feed hand-built snapshots.
type Provider interface {
	Snapshot(interval string) (*Snapshot, error)
}

// BinanceProvider derives snapshots from the futures klines endpoint.
type BinanceProvider struct {
	client binance.FuturesClientInterface
	symbol string
	logger *zap.Logger
}

var _ Provider = (*BinanceProvider)(nil)

// NewBinanceProvider creates a snapshot provider for one symbol.
func NewBinanceProvider(client binance.FuturesClientInterface, symbol string, logger *zap.Logger) *BinanceProvider {
	return &BinanceProvider{
		client: client,
		symbol: symbol,
		logger: logger.Named("market"),
	}
}

// Snapshot fetches recent candles for the interval and computes RSI,
// Bollinger bands and ATR over them. The last (still forming) candle is the
// one described by the snapshot, matching the decision cadence of the
// strategy rather than waiting for candle close.
func (p *BinanceProvider) Snapshot(interval string) (*Snapshot, error) {
	klines, err := p.client.GetKlines(p.symbol, interval, klineLimit)
	if err != nil {
		p.logger.Warn("Kline fetch failed", zap.String("interval", interval), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(klines) < bollingerPeriod+1 {
		return nil, fmt.Errorf("%w: only %d candles for %s", ErrDataUnavailable, len(klines), interval)
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}

	mid, high, low := bollinger(closes, bollingerPeriod, bollingerWidth)
	last := klines[len(klines)-1]

	return &Snapshot{
		Interval: interval,
		Open:     last.Open,
		High:     last.High,
		Low:      last.Low,
		Close:    last.Close,
		Volume:   last.Volume,
		RSI:      rsi(closes, rsiPeriod),
		BBMid:    mid,
		BBHigh:   high,
		BBLow:    low,
		ATR:      atr(highs, lows, closes, atrPeriod),
	}, nil
}
