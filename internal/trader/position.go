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

// Trailing ladder: the trail percent steps up with the profit tier and never
// comes back down within one position's life.
var trailLadder = []struct {
	profit float64
	trail  float64
}{
	{0.03, 0.015},
	{0.02, 0.010},
	{0.01, 0.005},
}

// PositionManager evaluates an open position once per cycle: trailing stop
// activation and ratchet, then the exit conditions in priority order.
type PositionManager struct {
	cfg      *config.Trading
	client   binance.FuturesClientInterface
	notifier notify.Notifier
	journal  *database.Journal
	logger   *zap.Logger
	now      func() time.Time
}

// NewPositionManager creates the position risk manager.
func NewPositionManager(cfg *config.Trading, client binance.FuturesClientInterface,
	notifier notify.Notifier, journal *database.Journal, logger *zap.Logger, now func() time.Time) *PositionManager {
	if now == nil {
		now = time.Now
	}
	return &PositionManager{
		cfg:      cfg,
		client:   client,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("position"),
		now:      now,
	}
}

// Manage advances the open position one cycle against the latest price.
func (m *PositionManager) Manage(state *State, risk *RiskController) error {
	pos := state.Position
	if pos == nil {
		return nil
	}

	price, err := m.client.GetPrice(m.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("could not get price to manage position: %w", err)
	}

	m.update(pos, price)

	if reason, hit := m.exitReason(pos, price); hit {
		return m.closePosition(state, risk, price, reason)
	}
	return nil
}

// update applies the trailing ladder and peak ratchet for the given price.
func (m *PositionManager) update(pos *Position, price float64) {
	profit := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Direction == Short {
		profit = -profit
	}

	for _, tier := range trailLadder {
		if profit >= tier.profit {
			if tier.trail > pos.TrailPercent {
				pos.TrailPercent = tier.trail
				m.logger.Info("Trailing stop tightened",
					zap.Float64("profit", profit),
					zap.Float64("trail_percent", pos.TrailPercent))
			}
			break
		}
	}

	if pos.Direction == Long {
		if price > pos.TrailingPeak {
			pos.TrailingPeak = price
			if pos.TrailPercent > 0 {
				pos.TrailingStop = pos.TrailingPeak * (1 - pos.TrailPercent)
			}
		}
	} else {
		if price < pos.TrailingPeak {
			pos.TrailingPeak = price
			if pos.TrailPercent > 0 {
				pos.TrailingStop = pos.TrailingPeak * (1 + pos.TrailPercent)
			}
		}
	}
}

// exitReason evaluates the exit conditions in priority order: trailing stop,
// take profit, stop loss. First true wins.
func (m *PositionManager) exitReason(pos *Position, price float64) (string, bool) {
	trailingActive := pos.TrailPercent > 0 && pos.TrailingStop > 0

	if pos.Direction == Long {
		if trailingActive && price <= pos.TrailingStop {
			return fmt.Sprintf("Trailing Stop Hit (%.1f%%)", pos.TrailPercent*100), true
		}
		if price >= pos.TakeProfit {
			return "Take Profit Hit", true
		}
		if price <= pos.StopLoss {
			return "Stop Loss Hit", true
		}
		return "", false
	}

	if trailingActive && price >= pos.TrailingStop {
		return fmt.Sprintf("Trailing Stop Hit (%.1f%%)", pos.TrailPercent*100), true
	}
	if price <= pos.TakeProfit {
		return "Take Profit Hit", true
	}
	if price >= pos.StopLoss {
		return "Stop Loss Hit", true
	}
	return "", false
}

// closePosition submits the closing market order, realizes the PnL into the
// daily ledger and destroys the position. A submission failure leaves the
// position in place for the next cycle.
func (m *PositionManager) closePosition(state *State, risk *RiskController, exitPrice float64, reason string) error {
	pos := state.Position

	if m.cfg.DryRun {
		m.logger.Warn("Dry run enabled, close simulated", zap.String("reason", reason))
	} else {
		if _, err := m.client.PlaceMarketOrder(m.cfg.Symbol, pos.Direction.CloseSide(), m.cfg.Quantity); err != nil {
			return fmt.Errorf("close order submission failed: %w", err)
		}
	}

	// One PnL formula everywhere: direction-adjusted price delta scaled by
	// the trade quantity.
	delta := exitPrice - pos.EntryPrice
	if pos.Direction == Short {
		delta = -delta
	}
	pnl := delta * m.cfg.Quantity

	trade := ClosedTrade{
		PnL:      pnl,
		IsWin:    pnl > 0,
		Reason:   reason,
		ClosedAt: m.now(),
	}
	risk.OnClose(trade)

	// Sanity check on the exit plumbing: a stop loss should not realize a
	// profit, nor a take profit a loss.
	if (reason == "Stop Loss Hit" && pnl > 0) || (reason == "Take Profit Hit" && pnl < 0) {
		m.notifier.Notify(fmt.Sprintf(
			"⚠️ *Reason mismatch detected*\nReason: `%s`\nEntry: `%.2f` | Exit: `%.2f`\nComputed PnL: `%.4f` (direction=%s)",
			reason, pos.EntryPrice, exitPrice, pnl, pos.Direction))
	}

	m.notifier.Notify(fmt.Sprintf("❌ *Closed at:* `%.2f`\n*Reason:* %s\n*PnL:* `%.4f`", exitPrice, reason, pnl))
	m.journal.Append(models.TradeEvent{
		Symbol:     m.cfg.Symbol,
		Event:      fmt.Sprintf("close(%s)", pos.Direction),
		Price:      pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		Note:       fmt.Sprintf("%s,PnL:%.4f", reason, pnl),
	})
	m.logger.Info("Position closed",
		zap.String("direction", string(pos.Direction)),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("exit", exitPrice),
		zap.Float64("pnl", pnl),
		zap.String("reason", reason))

	state.Position = nil
	return nil
}
