package trader

import (
	"errors"
	"testing"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/market"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setupEntry(t *testing.T, cfg *config.Trading) (*EntryController, *MockFuturesClient, *RiskController, *State) {
	mockClient := new(MockFuturesClient)
	journal := testJournal(t)
	risk := NewRiskController(cfg, nopNotifier, journal, zap.NewNop())
	ec := NewEntryController(cfg, mockClient, nil, nopNotifier, journal, zap.NewNop(), midHourClock)
	return ec, mockClient, risk, &State{}
}

func tightBook() *binance.BookTicker {
	return &binance.BookTicker{Symbol: "BTCUSDT", BidPrice: "100.0", AskPrice: "100.2"}
}

func TestEntry_SpreadVeto(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()

	// Spread 0.8 exceeds the 0.5 threshold: abort silently, no order.
	mockClient.On("GetBookTicker", "BTCUSDT").Return(
		&binance.BookTicker{Symbol: "BTCUSDT", BidPrice: "100.0", AskPrice: "100.8"}, nil)

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.NoError(t, err)
	assert.Nil(t, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_TrendBuyPlacesStopOrder(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()

	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	// stop = ask 100.2 + buffer 0.8
	mockClient.On("PlaceStopEntry", "BTCUSDT", "BUY", 101.0, 0.001).
		Return(&binance.Order{OrderID: 42, Status: binance.OrderStatusNew}, nil)

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.NoError(t, err)
	if assert.NotNil(t, state.Pending) {
		assert.Equal(t, int64(42), state.Pending.ID)
		assert.Equal(t, "BUY", state.Pending.Side)
		assert.Equal(t, Long, state.Pending.Direction)
		assert.Equal(t, 101.0, state.Pending.StopPrice)
		// Trend signal: SL at the slow candle's open, TP offset above the
		// fast high band.
		assert.Equal(t, slow.Open, state.Pending.StopLoss)
		assert.Equal(t, fast.BBHigh+100, state.Pending.TakeProfit)
	}
	assert.Nil(t, state.Position)
	mockClient.AssertExpectations(t)
}

func TestEntry_ReversalSellTargets(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast := snapshot(market.IntervalFast, 105, 103, 38, 102, 110, 94)
	slow := snapshot(market.IntervalSlow, 104, 99, 36, 103, 115, 90)

	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	// stop = bid 100.0 - buffer 0.8
	mockClient.On("PlaceStopEntry", "BTCUSDT", "SELL", 99.2, 0.001).
		Return(&binance.Order{OrderID: 43, Status: binance.OrderStatusNew}, nil)

	err := ec.TryEnter(state, risk, SignalReversalSell, fast, slow)

	assert.NoError(t, err)
	if assert.NotNil(t, state.Pending) {
		assert.Equal(t, Short, state.Pending.Direction)
		// Reversal signal: SL at the fast candle's open, TP offset below
		// the fast mid band.
		assert.Equal(t, fast.Open, state.Pending.StopLoss)
		assert.Equal(t, fast.BBMid-100, state.Pending.TakeProfit)
	}
	mockClient.AssertExpectations(t)
}

func TestEntry_ATRScaledTargets(t *testing.T) {
	cfg := testTradingConfig()
	cfg.ATRTargets = true
	ec, mockClient, risk, state := setupEntry(t, cfg)
	fast, slow := bullishTrendPair()
	fast.ATR = 10

	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	mockClient.On("PlaceStopEntry", "BTCUSDT", "BUY", 101.0, 0.001).
		Return(&binance.Order{OrderID: 44, Status: binance.OrderStatusNew}, nil)

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.NoError(t, err)
	if assert.NotNil(t, state.Pending) {
		assert.InDelta(t, 93.0, state.Pending.StopLoss, 1e-9)
		assert.InDelta(t, 125.0, state.Pending.TakeProfit, 1e-9)
	}
	mockClient.AssertExpectations(t)
}

func TestEntry_SubmissionFailureLeavesStateUnchanged(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()

	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	mockClient.On("PlaceStopEntry", "BTCUSDT", "BUY", 101.0, 0.001).
		Return(&binance.Order{}, errors.New("exchange rejected"))

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exchange rejected")
	assert.Nil(t, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_TargetHitIdempotence(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()

	risk.mu.Lock()
	risk.targetHit = true
	risk.mu.Unlock()

	// Repeated attempts produce no pending order and no exchange calls,
	// regardless of the signal.
	for i := 0; i < 3; i++ {
		assert.NoError(t, ec.TryEnter(state, risk, SignalTrendBuy, fast, slow))
		assert.NoError(t, ec.TryEnter(state, risk, SignalReversalSell, fast, slow))
	}
	assert.Nil(t, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_PausedProducesNoOrder(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()

	risk.mu.Lock()
	risk.pausedUntil = midHourClock().Add(30 * time.Minute)
	risk.mu.Unlock()

	assert.NoError(t, ec.TryEnter(state, risk, SignalTrendBuy, fast, slow))
	assert.Nil(t, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_OppositePendingCanceled(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()
	state.Pending = &PendingOrder{ID: 7, Side: "SELL", Direction: Short, PlacedAt: midHourClock()}

	mockClient.On("CancelOrder", "BTCUSDT", int64(7)).Return(nil)
	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	mockClient.On("PlaceStopEntry", "BTCUSDT", "BUY", 101.0, 0.001).
		Return(&binance.Order{OrderID: 45, Status: binance.OrderStatusNew}, nil)

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.NoError(t, err)
	if assert.NotNil(t, state.Pending) {
		assert.Equal(t, int64(45), state.Pending.ID)
		assert.Equal(t, "BUY", state.Pending.Side)
	}
	mockClient.AssertExpectations(t)
}

func TestEntry_OppositeCancelFailureIsNonFatal(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()
	state.Pending = &PendingOrder{ID: 7, Side: "SELL", Direction: Short, PlacedAt: midHourClock()}

	mockClient.On("CancelOrder", "BTCUSDT", int64(7)).Return(errors.New("unknown order"))
	mockClient.On("GetBookTicker", "BTCUSDT").Return(tightBook(), nil)
	mockClient.On("PlaceStopEntry", "BTCUSDT", "BUY", 101.0, 0.001).
		Return(&binance.Order{OrderID: 46, Status: binance.OrderStatusNew}, nil)

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	assert.NoError(t, err)
	assert.NotNil(t, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_SameSidePendingKept(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()
	existing := &PendingOrder{ID: 9, Side: "BUY", Direction: Long, PlacedAt: midHourClock()}
	state.Pending = existing

	err := ec.TryEnter(state, risk, SignalReversalBuy, fast, slow)

	assert.NoError(t, err)
	assert.Same(t, existing, state.Pending)
	mockClient.AssertExpectations(t)
}

func TestEntry_OpenPositionIsInvariantViolation(t *testing.T) {
	ec, mockClient, risk, state := setupEntry(t, testTradingConfig())
	fast, slow := bullishTrendPair()
	state.Position = &Position{Direction: Long, EntryPrice: 100}

	err := ec.TryEnter(state, risk, SignalTrendBuy, fast, slow)

	var iv *InvariantViolationError
	assert.ErrorAs(t, err, &iv)
	mockClient.AssertExpectations(t)
}
