package trader

import (
	"time"

	"binance-futures-bot-go/internal/binance"
)

// Signal is the classification of one candle-snapshot pair.
type Signal int

const (
	SignalNone Signal = iota
	SignalTrendBuy
	SignalTrendSell
	SignalReversalBuy
	SignalReversalSell
)

func (s Signal) String() string {
	switch s {
	case SignalTrendBuy:
		return "trend_buy"
	case SignalTrendSell:
		return "trend_sell"
	case SignalReversalBuy:
		return "reversal_buy"
	case SignalReversalSell:
		return "reversal_sell"
	}
	return "none"
}

// IsBuy reports whether the signal opens a long.
func (s Signal) IsBuy() bool { return s == SignalTrendBuy || s == SignalReversalBuy }

// IsTrend reports whether the signal follows both timeframes' direction.
func (s Signal) IsTrend() bool { return s == SignalTrendBuy || s == SignalTrendSell }

// Side maps the signal to the exchange order side.
func (s Signal) Side() string {
	if s.IsBuy() {
		return binance.OrderSideBuy
	}
	return binance.OrderSideSell
}

// Direction maps the signal to the position direction it would open.
func (s Signal) Direction() Direction {
	if s.IsBuy() {
		return Long
	}
	return Short
}

// Direction of an open or prospective position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Side returns the exchange order side that opens this direction.
func (d Direction) Side() string {
	if d == Long {
		return binance.OrderSideBuy
	}
	return binance.OrderSideSell
}

// CloseSide returns the exchange order side that closes this direction.
func (d Direction) CloseSide() string {
	if d == Long {
		return binance.OrderSideSell
	}
	return binance.OrderSideBuy
}

// simulatedOrderID marks dry-run pending orders that never reached the
// exchange; the tracker fills them at their stop price.
const simulatedOrderID int64 = -1

// PendingOrder is a placed stop entry waiting to fill, expire or be
// superseded. The stop-loss and take-profit computed at placement travel
// with it so the position created on fill inherits them.
type PendingOrder struct {
	ID         int64
	Side       string
	Direction  Direction
	StopPrice  float64
	StopLoss   float64
	TakeProfit float64
	PlacedAt   time.Time
}

// Simulated reports whether this order exists only locally (dry run).
func (p *PendingOrder) Simulated() bool { return p.ID == simulatedOrderID }

// Position is the single open position. Owned exclusively by the position
// manager until it closes.
type Position struct {
	Direction    Direction
	EntryPrice   float64
	StopLoss     float64
	TakeProfit   float64
	TrailingPeak float64
	TrailingStop float64
	TrailPercent float64
}

// ClosedTrade is one realized result in the daily ledger.
type ClosedTrade struct {
	PnL      float64
	IsWin    bool
	Reason   string
	ClosedAt time.Time
}

// State is the order-lifecycle state owned exclusively by the decision loop.
// Invariant: Pending and Position are never simultaneously non-nil.
type State struct {
	Pending  *PendingOrder
	Position *Position
}

// Gate carries the risk-controller flags the classifier consults before
// looking at the market at all.
type Gate struct {
	TargetHit      bool
	CooldownActive bool
}
