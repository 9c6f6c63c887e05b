package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRisk(t *testing.T) *RiskController {
	return NewRiskController(testTradingConfig(), nopNotifier, testJournal(t), zap.NewNop())
}

func stopLossTrade(at time.Time) ClosedTrade {
	return ClosedTrade{PnL: -0.5, Reason: "Stop Loss Hit", ClosedAt: at}
}

// Scenario: four consecutive stop-loss closes trip the pause. Half an hour
// later the bot is still paused; after the full hour it trades again.
func TestRisk_LossStreakPause(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	for i := 0; i < 3; i++ {
		r.OnClose(stopLossTrade(at))
		assert.False(t, r.Paused(at), "pause must not trip before the streak completes")
	}
	r.OnClose(stopLossTrade(at))

	assert.True(t, r.Paused(at.Add(30*time.Minute)))
	assert.False(t, r.Paused(at.Add(61*time.Minute)))
	assert.Equal(t, at.Add(60*time.Minute), r.PausedUntil())
}

func TestRisk_WinResetsLossStreak(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	r.OnClose(stopLossTrade(at))
	r.OnClose(stopLossTrade(at))
	r.OnClose(stopLossTrade(at))
	r.OnClose(ClosedTrade{PnL: 1.0, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})
	r.OnClose(stopLossTrade(at))

	assert.False(t, r.Paused(at))
}

// A trailing-stop exit carries "Stop Loss" in neither form and must not feed
// the streak counter.
func TestRisk_TrailingStopDoesNotFeedStreak(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	for i := 0; i < 5; i++ {
		r.OnClose(ClosedTrade{PnL: 0.2, IsWin: true, Reason: "Trailing Stop Hit (1.5%)", ClosedAt: at})
	}
	assert.False(t, r.Paused(at))
}

// Scenario: one oversized loss pushes the daily total through the floor and
// latches the halt immediately, before any further cycle runs.
func TestRisk_LossFloorLatchesImmediately(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	assert.False(t, r.TargetHit())
	r.OnClose(ClosedTrade{PnL: -800, Reason: "Stop Loss Hit", ClosedAt: at})

	assert.True(t, r.TargetHit())
	assert.True(t, r.Gate(at).TargetHit)
	assert.Equal(t, -800.0, r.DailyPnL())
}

func TestRisk_DailyTargetLatch(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	r.OnClose(ClosedTrade{PnL: 700, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})
	assert.False(t, r.TargetHit())

	r.OnClose(ClosedTrade{PnL: 500, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})
	assert.True(t, r.TargetHit())

	// The latch holds even if a later loss drops the total below the target.
	r.OnClose(stopLossTrade(at))
	assert.True(t, r.TargetHit())
}

func TestRisk_TakeProfitCooldown(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	r.OnClose(ClosedTrade{PnL: 1.0, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})

	assert.True(t, r.Gate(at.Add(10*time.Minute)).CooldownActive)
	assert.False(t, r.Gate(at.Add(31*time.Minute)).CooldownActive)
}

// The rollover clears the ledger and the target latch but leaves a running
// loss-streak pause untouched.
func TestRisk_RolloverResetsLedgerNotPause(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	r.OnClose(ClosedTrade{PnL: 1500, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})
	for i := 0; i < 4; i++ {
		r.OnClose(stopLossTrade(at))
	}
	assert.True(t, r.TargetHit())
	assert.True(t, r.Paused(at.Add(30*time.Minute)))

	r.Rollover(at.Add(12 * time.Hour))

	assert.False(t, r.TargetHit())
	assert.Equal(t, 0.0, r.DailyPnL())
	assert.True(t, r.Paused(at.Add(30*time.Minute)),
		"rollover must not cut a loss-streak pause short")
}

func TestRisk_NextRollover(t *testing.T) {
	r := newTestRisk(t)
	at := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)

	next := r.NextRollover(at)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestRisk_NextRolloverWithOffset(t *testing.T) {
	cfg := testTradingConfig()
	cfg.RolloverUTCOffsetHours = 3
	r := NewRiskController(cfg, nopNotifier, testJournal(t), zap.NewNop())

	// 22:30 UTC is 01:30 in the shifted day, so the next boundary lands at
	// 21:00 UTC the following day.
	at := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)
	next := r.NextRollover(at)
	assert.Equal(t, time.Date(2024, 5, 2, 21, 0, 0, 0, time.UTC), next)
}

func TestRisk_DailyPnLAccumulates(t *testing.T) {
	r := newTestRisk(t)
	at := midHourClock()

	r.OnClose(ClosedTrade{PnL: 2.5, IsWin: true, Reason: "Take Profit Hit", ClosedAt: at})
	r.OnClose(ClosedTrade{PnL: -1.0, Reason: "Stop Loss Hit", ClosedAt: at})
	r.OnClose(ClosedTrade{PnL: 0.75, IsWin: true, Reason: "Trailing Stop Hit (0.5%)", ClosedAt: at})

	assert.InDelta(t, 2.25, r.DailyPnL(), 1e-9)
}
