package trader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/models"
	"binance-futures-bot-go/internal/notify"
	"go.uber.org/zap"
)

// RiskController accumulates realized PnL per calendar day, latches the
// daily target / loss floor, and pauses trading after a streak of stop-loss
// exits. The daily ledger is shared between the decision loop and the
// rollover timer, so every access goes through the mutex.
type RiskController struct {
	cfg      *config.Trading
	notifier notify.Notifier
	journal  *database.Journal
	logger   *zap.Logger

	mu                sync.Mutex
	trades            []ClosedTrade
	targetHit         bool
	consecutiveLosses int
	pausedUntil       time.Time
	lastTPAt          time.Time
}

// NewRiskController creates the daily risk controller.
func NewRiskController(cfg *config.Trading, notifier notify.Notifier, journal *database.Journal, logger *zap.Logger) *RiskController {
	return &RiskController{
		cfg:      cfg,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("risk"),
	}
}

// OnClose records one closed trade and updates every daily limit. Called by
// the position manager after the ledger-relevant close succeeded.
func (r *RiskController) OnClose(trade ClosedTrade) {
	r.mu.Lock()

	r.trades = append(r.trades, trade)

	var pauseTriggered bool
	if strings.Contains(trade.Reason, "Stop Loss") {
		r.consecutiveLosses++
		if r.consecutiveLosses >= r.cfg.LossStreakLength {
			r.pausedUntil = trade.ClosedAt.Add(time.Duration(r.cfg.LossPauseMinutes) * time.Minute)
			r.consecutiveLosses = 0
			pauseTriggered = true
		}
	} else {
		r.consecutiveLosses = 0
	}

	if strings.Contains(trade.Reason, "Take Profit") {
		r.lastTPAt = trade.ClosedAt
	}

	total := r.totalLocked()
	if total >= r.cfg.DailyTarget || total <= r.cfg.DailyLossLimit {
		r.targetHit = true
	}
	targetHit := r.targetHit
	r.mu.Unlock()

	r.logger.Info("Trade recorded",
		zap.Float64("pnl", trade.PnL),
		zap.Float64("daily_pnl", total),
		zap.Bool("target_hit", targetHit))

	if pauseTriggered {
		r.notifier.Notify(fmt.Sprintf("⏸ Bot pausing for %d minutes due to consecutive Stop Losses.",
			r.cfg.LossPauseMinutes))
	}
}

// Gate returns the suppression flags the classifier consults.
func (r *RiskController) Gate(now time.Time) Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	cooldown := time.Duration(r.cfg.TPCooldownMinutes) * time.Minute
	return Gate{
		TargetHit:      r.targetHit,
		CooldownActive: !r.lastTPAt.IsZero() && now.Sub(r.lastTPAt) < cooldown,
	}
}

// TargetHit reports whether the daily target or loss floor has been reached.
func (r *RiskController) TargetHit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetHit
}

// Paused reports whether the loss-streak pause is still active. The pause
// expires on its own timer; it is deliberately not reset by the rollover.
func (r *RiskController) Paused(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Before(r.pausedUntil)
}

// PausedUntil returns the pause deadline, zero when never paused.
func (r *RiskController) PausedUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pausedUntil
}

// DailyPnL returns the cumulative realized PnL of the current day.
func (r *RiskController) DailyPnL() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalLocked()
}

func (r *RiskController) totalLocked() float64 {
	var total float64
	for _, t := range r.trades {
		total += t.PnL
	}
	return total
}

// Rollover emits the day's summary, persists it, clears the ledger and
// resets the target latch. pausedUntil is left alone.
func (r *RiskController) Rollover(now time.Time) {
	r.mu.Lock()
	trades := r.trades
	targetHit := r.targetHit
	r.trades = nil
	r.targetHit = false
	r.mu.Unlock()

	var totalPnL, bestTrade, worstTrade float64
	var wins int
	for _, t := range trades {
		totalPnL += t.PnL
		if t.IsWin {
			wins++
		}
		if t.PnL > bestTrade {
			bestTrade = t.PnL
		}
		if t.PnL < worstTrade {
			worstTrade = t.PnL
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades)) * 100
	}

	targetLine := "🎯 Target not reached ❌"
	if targetHit {
		targetLine = "🎯 Target hit ✅"
	}
	r.notifier.Notify(fmt.Sprintf(
		"📊 *Yesterday's Summary*\nTotal Trades: %d\nWin Rate: %.1f%%\nTotal PnL: %.2f\nBiggest Win: %.2f\nBiggest Loss: %.2f\n%s",
		len(trades), winRate, totalPnL, bestTrade, worstTrade, targetLine))

	day := r.shiftedClock(now).AddDate(0, 0, -1).Format("2006-01-02")
	r.journal.SaveSummary(models.DailySummary{
		Day:        day,
		Trades:     len(trades),
		Wins:       wins,
		TotalPnL:   totalPnL,
		BestTrade:  bestTrade,
		WorstTrade: worstTrade,
		TargetHit:  targetHit,
	})

	r.logger.Info("Daily rollover complete",
		zap.String("day", day),
		zap.Int("trades", len(trades)),
		zap.Float64("total_pnl", totalPnL))
}

// NextRollover returns the next shifted-midnight boundary after now.
func (r *RiskController) NextRollover(now time.Time) time.Time {
	shifted := r.shiftedClock(now)
	nextMidnight := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return now.Add(nextMidnight.Sub(shifted))
}

func (r *RiskController) shiftedClock(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(r.cfg.RolloverUTCOffsetHours) * time.Hour)
}
