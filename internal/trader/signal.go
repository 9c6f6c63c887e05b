package trader

import (
	"time"

	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/market"
)

// Classifier maps a pair of candle snapshots to a trade signal. It has no
// side effects and is deterministic for identical inputs; the clock is
// injected so the candle-close guard is testable.
type Classifier struct {
	cfg *config.Trading
	now func() time.Time
}

// NewClassifier creates a classifier. A nil now defaults to time.Now.
func NewClassifier(cfg *config.Trading, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{cfg: cfg, now: now}
}

// Classify evaluates the guards and classification rules in order; the first
// match wins and no match means SignalNone.
func (c *Classifier) Classify(fast, slow *market.Snapshot, gate Gate) Signal {
	// Suppression guards: daily target reached, cooldown after a take
	// profit, or trading into the slow candle's close.
	if gate.TargetHit || gate.CooldownActive {
		return SignalNone
	}
	if c.now().UTC().Minute() >= 60-c.cfg.CloseGuardMinutes {
		return SignalNone
	}

	// RSI neutral zone: either timeframe inside the band means the market
	// is judged directionless. Entries only; exits never consult RSI.
	if c.inNeutralBand(fast.RSI) || c.inNeutralBand(slow.RSI) {
		return SignalNone
	}

	// Extremes guard: slow close at or beyond its outer band is an
	// already-extended move not worth chasing.
	if slow.Close >= slow.BBHigh || slow.Close <= slow.BBLow {
		return SignalNone
	}

	switch {
	case fast.Close > fast.BBMid && fast.Close < fast.BBHigh && fast.Bullish() && slow.Bullish():
		return SignalTrendBuy
	case fast.Close < fast.BBMid && fast.Close > fast.BBLow && fast.Bearish() && slow.Bearish():
		return SignalTrendSell
	case fast.Close < fast.BBMid && fast.Bullish() && slow.Bullish():
		return SignalReversalBuy
	case fast.Close > fast.BBMid && fast.Bearish() && slow.Bearish():
		return SignalReversalSell
	}
	return SignalNone
}

func (c *Classifier) inNeutralBand(rsi float64) bool {
	return rsi >= c.cfg.RSIBandLow && rsi <= c.cfg.RSIBandHigh
}
