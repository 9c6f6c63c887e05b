package trader

import (
	"testing"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockFuturesClient is a mock implementation of the FuturesClientInterface.
type MockFuturesClient struct {
	mock.Mock
}

func (m *MockFuturesClient) GetServerTime() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFuturesClient) GetKlines(symbol, interval string, limit int) ([]binance.Kline, error) {
	args := m.Called(symbol, interval, limit)
	return args.Get(0).([]binance.Kline), args.Error(1)
}

func (m *MockFuturesClient) GetBookTicker(symbol string) (*binance.BookTicker, error) {
	args := m.Called(symbol)
	return args.Get(0).(*binance.BookTicker), args.Error(1)
}

func (m *MockFuturesClient) GetPrice(symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockFuturesClient) PlaceStopEntry(symbol, side string, stopPrice, quantity float64) (*binance.Order, error) {
	args := m.Called(symbol, side, stopPrice, quantity)
	return args.Get(0).(*binance.Order), args.Error(1)
}

func (m *MockFuturesClient) PlaceMarketOrder(symbol, side string, quantity float64) (*binance.Order, error) {
	args := m.Called(symbol, side, quantity)
	return args.Get(0).(*binance.Order), args.Error(1)
}

func (m *MockFuturesClient) GetOrder(symbol string, orderID int64) (*binance.Order, error) {
	args := m.Called(symbol, orderID)
	return args.Get(0).(*binance.Order), args.Error(1)
}

func (m *MockFuturesClient) CancelOrder(symbol string, orderID int64) error {
	args := m.Called(symbol, orderID)
	return args.Error(0)
}

func (m *MockFuturesClient) ChangeLeverage(symbol string, leverage int) error {
	args := m.Called(symbol, leverage)
	return args.Error(0)
}

var _ binance.FuturesClientInterface = (*MockFuturesClient)(nil)

// testTradingConfig mirrors the production defaults for BTCUSDT.
func testTradingConfig() *config.Trading {
	return &config.Trading{
		Symbol:                 "BTCUSDT",
		Quantity:               0.001,
		Leverage:               10,
		TickInterval:           120,
		SpreadThreshold:        0.5,
		EntryBuffer:            0.8,
		RSIBandLow:             47,
		RSIBandHigh:            53,
		CloseGuardMinutes:      10,
		TPCooldownMinutes:      30,
		TakeProfitOffset:       100,
		ATRSLFactor:            0.8,
		ATRTPFactor:            2.4,
		DailyTarget:            1200,
		DailyLossLimit:         -700,
		PendingExpiryMinutes:   10,
		LossStreakLength:       4,
		LossPauseMinutes:       60,
		RolloverUTCOffsetHours: 0,
	}
}

// testJournal creates a journal over a fresh in-memory database.
// Each test gets a non-shared database for isolation.
func testJournal(t *testing.T) *database.Journal {
	db, err := database.NewDatabase("file::memory:")
	assert.NoError(t, err)
	return database.NewJournal(db, zap.NewNop())
}

// fixedClock returns a clock pinned at the given time.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// snapshot builds a minimal candle snapshot for classifier and entry tests.
func snapshot(interval string, open, close, rsi, bbMid, bbHigh, bbLow float64) *market.Snapshot {
	return &market.Snapshot{
		Interval: interval,
		Open:     open,
		High:     close + 1,
		Low:      open - 1,
		Close:    close,
		RSI:      rsi,
		BBMid:    bbMid,
		BBHigh:   bbHigh,
		BBLow:    bbLow,
	}
}

var nopNotifier = notify.NopNotifier{}
