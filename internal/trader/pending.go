package trader

import (
	"fmt"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/models"
	"binance-futures-bot-go/internal/notify"
	"go.uber.org/zap"
)

// PendingTracker watches a placed entry order until it fills, expires or is
// resolved by the exchange, and transitions the state machine into an open
// position on fill.
type PendingTracker struct {
	cfg      *config.Trading
	client   binance.FuturesClientInterface
	notifier notify.Notifier
	journal  *database.Journal
	logger   *zap.Logger
	now      func() time.Time
}

// NewPendingTracker creates the tracker.
func NewPendingTracker(cfg *config.Trading, client binance.FuturesClientInterface,
	notifier notify.Notifier, journal *database.Journal, logger *zap.Logger, now func() time.Time) *PendingTracker {
	if now == nil {
		now = time.Now
	}
	return &PendingTracker{
		cfg:      cfg,
		client:   client,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("pending"),
		now:      now,
	}
}

// Track advances the pending order one cycle. No pending order is a no-op;
// a transient status-query failure leaves the state untouched for retry on
// the next cycle.
func (t *PendingTracker) Track(state *State) error {
	p := state.Pending
	if p == nil {
		return nil
	}
	if state.Position != nil {
		return invariantf("pending order %d coexists with an open %s position", p.ID, state.Position.Direction)
	}

	if p.Simulated() {
		// Dry run: pretend the stop triggered immediately at its price so
		// the rest of the state machine gets exercised.
		t.fill(state, p, p.StopPrice)
		return nil
	}

	order, err := t.client.GetOrder(t.cfg.Symbol, p.ID)
	if err != nil {
		return fmt.Errorf("could not query pending order %d: %w", p.ID, err)
	}

	switch order.Status {
	case binance.OrderStatusFilled:
		entry := parsePrice(order.AvgPrice)
		if entry <= 0 {
			// Some fills report no average price; the stop price is the
			// closest substitute.
			entry = p.StopPrice
		}
		t.fill(state, p, entry)
		return nil

	case binance.OrderStatusCanceled, binance.OrderStatusExpired:
		// The exchange resolved the order behind our back; drop the local
		// record so the loop does not wait on it forever.
		t.logger.Warn("Pending order resolved externally",
			zap.Int64("order_id", p.ID), zap.String("status", order.Status))
		state.Pending = nil
		return nil
	}

	expiry := time.Duration(t.cfg.PendingExpiryMinutes) * time.Minute
	if t.now().Sub(p.PlacedAt) > expiry {
		if err := t.client.CancelOrder(t.cfg.Symbol, p.ID); err != nil {
			// Non-fatal: the exchange may have already resolved the order.
			// The local record is cleared regardless so we never get stuck.
			t.logger.Warn("Failed to cancel expired pending order",
				zap.Int64("order_id", p.ID), zap.Error(err))
		}
		state.Pending = nil
		t.notifier.Notify(fmt.Sprintf("⌛ *Pending stop order canceled after %d minutes*", t.cfg.PendingExpiryMinutes))
		t.logger.Info("Pending order expired", zap.Int64("order_id", p.ID))
	}
	return nil
}

func (t *PendingTracker) fill(state *State, p *PendingOrder, entry float64) {
	state.Position = &Position{
		Direction:    p.Direction,
		EntryPrice:   entry,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		TrailingPeak: entry,
		TrailingStop: 0,
		TrailPercent: 0,
	}
	state.Pending = nil

	t.notifier.Notify(fmt.Sprintf(
		"✅ *STOP order triggered*\n*Entry Price:* `%.2f`\n*Direction:* `%s`", entry, p.Direction))
	t.journal.Append(models.TradeEvent{
		Symbol:     t.cfg.Symbol,
		Event:      fmt.Sprintf("Triggered(%s)", p.Direction),
		Price:      entry,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Note:       "Opened",
	})
	t.logger.Info("Position opened",
		zap.String("direction", string(p.Direction)),
		zap.Float64("entry", entry),
		zap.Float64("sl", p.StopLoss),
		zap.Float64("tp", p.TakeProfit))
}
