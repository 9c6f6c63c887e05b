package trader

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/models"
	"binance-futures-bot-go/internal/notify"
	"binance-futures-bot-go/internal/stream"
	"go.uber.org/zap"
)

// QuoteSource supplies a cached best bid/ask. ok is false when the cache is
// stale or disabled, in which case the controller falls back to REST.
type QuoteSource interface {
	Quote() (stream.Quote, bool)
}

// EntryController turns a classified signal into a live stop entry order:
// spread veto, opposite-pending cancellation, stop/SL/TP computation and
// order placement.
type EntryController struct {
	cfg      *config.Trading
	client   binance.FuturesClientInterface
	quotes   QuoteSource
	notifier notify.Notifier
	journal  *database.Journal
	logger   *zap.Logger
	now      func() time.Time
}

// NewEntryController creates the entry controller. quotes may be nil when
// the websocket cache is disabled.
func NewEntryController(cfg *config.Trading, client binance.FuturesClientInterface, quotes QuoteSource,
	notifier notify.Notifier, journal *database.Journal, logger *zap.Logger, now func() time.Time) *EntryController {
	if now == nil {
		now = time.Now
	}
	return &EntryController{
		cfg:      cfg,
		client:   client,
		quotes:   quotes,
		notifier: notifier,
		journal:  journal,
		logger:   logger.Named("entry"),
		now:      now,
	}
}

// TryEnter attempts to place a stop entry for the signal. A nil return with
// no new pending order means a filter vetoed the entry; submission failures
// propagate so the engine logs them, with no state change either way.
func (ec *EntryController) TryEnter(state *State, risk *RiskController, sig Signal, fast, slow *market.Snapshot) error {
	if sig == SignalNone {
		return nil
	}
	if state.Position != nil {
		return invariantf("entry attempted while position is open (direction=%s)", state.Position.Direction)
	}
	if risk.TargetHit() || risk.Paused(ec.now()) {
		return nil
	}

	side := sig.Side()
	if p := state.Pending; p != nil {
		if p.Side == side {
			// Same-side signal keeps the existing order.
			return nil
		}
		// Opposite signal supersedes the pending order. Cancellation is
		// idempotent: the exchange may already have resolved it.
		if !p.Simulated() {
			if err := ec.client.CancelOrder(ec.cfg.Symbol, p.ID); err != nil {
				ec.logger.Warn("Failed to cancel superseded pending order",
					zap.Int64("order_id", p.ID), zap.Error(err))
			}
		}
		state.Pending = nil
		ec.notifier.Notify("⚠ *Canceled previous pending order* (opposite signal)")
	}

	bid, ask, err := ec.bestBidAsk()
	if err != nil {
		return fmt.Errorf("could not get order book for entry: %w", err)
	}
	if spread := ask - bid; spread > ec.cfg.SpreadThreshold {
		ec.logger.Debug("Spread too wide, entry vetoed",
			zap.Float64("spread", spread),
			zap.Float64("threshold", ec.cfg.SpreadThreshold))
		return nil
	}

	var stop float64
	if sig.IsBuy() {
		stop = round2(ask + ec.cfg.EntryBuffer)
	} else {
		stop = round2(bid - ec.cfg.EntryBuffer)
	}

	slPrice, tpPrice, atrUsed := ec.targets(sig, stop, fast, slow)
	direction := sig.Direction()

	placedAt := ec.now()
	orderID := simulatedOrderID
	if ec.cfg.DryRun {
		ec.logger.Warn("Dry run enabled, stop entry simulated",
			zap.String("signal", sig.String()), zap.Float64("stop", stop))
	} else {
		order, err := ec.client.PlaceStopEntry(ec.cfg.Symbol, side, stop, ec.cfg.Quantity)
		if err != nil {
			// No pending order is created; the next cycle starts clean.
			return fmt.Errorf("entry order submission failed: %w", err)
		}
		orderID = order.OrderID
	}

	state.Pending = &PendingOrder{
		ID:         orderID,
		Side:       side,
		Direction:  direction,
		StopPrice:  stop,
		StopLoss:   slPrice,
		TakeProfit: tpPrice,
		PlacedAt:   placedAt,
	}

	note := fmt.Sprintf("Pending(%s)", direction)
	atrText := ""
	if atrUsed > 0 {
		note = fmt.Sprintf("Pending(%s),ATR:%.2f", direction, atrUsed)
		atrText = fmt.Sprintf("\n📊 ATR: `%.2f`", atrUsed)
	}
	ec.notifier.Notify(fmt.Sprintf(
		"🟩 *STOP ORDER PLACED*\n*Type:* `%s`\n*Price:* `%.2f`\n*SL:* `%.2f` | *TP:* `%.2f`%s\n📍 Pending *(%s)*",
		sig.String(), stop, slPrice, tpPrice, atrText, direction))
	ec.journal.Append(models.TradeEvent{
		Symbol:     ec.cfg.Symbol,
		Event:      sig.String(),
		Price:      stop,
		StopLoss:   slPrice,
		TakeProfit: tpPrice,
		Note:       note,
	})

	ec.logger.Info("Stop entry placed",
		zap.String("signal", sig.String()),
		zap.Int64("order_id", orderID),
		zap.Float64("stop", stop),
		zap.Float64("sl", slPrice),
		zap.Float64("tp", tpPrice))
	return nil
}

// targets computes the initial stop-loss and take-profit for the entry.
// Default mode anchors the SL at the opening price of the slow candle for
// trend signals and the fast candle for reversals, and offsets the TP from
// the relevant Bollinger band. ATR mode scales both from the current range,
// preferring the fast-timeframe ATR.
func (ec *EntryController) targets(sig Signal, stop float64, fast, slow *market.Snapshot) (sl, tp, atrUsed float64) {
	if ec.cfg.ATRTargets {
		atr := fast.ATR
		if atr <= 0 {
			atr = slow.ATR
		}
		if atr > 0 {
			slOffset := atr * ec.cfg.ATRSLFactor
			tpOffset := atr * ec.cfg.ATRTPFactor
			if sig.IsBuy() {
				return round2(stop - slOffset), round2(stop + tpOffset), atr
			}
			return round2(stop + slOffset), round2(stop - tpOffset), atr
		}
		// ATR unavailable this early in the series; fall through.
	}

	if sig.IsTrend() {
		sl = slow.Open
		if sig.IsBuy() {
			tp = round2(fast.BBHigh + ec.cfg.TakeProfitOffset)
		} else {
			tp = round2(fast.BBLow - ec.cfg.TakeProfitOffset)
		}
	} else {
		sl = fast.Open
		if sig.IsBuy() {
			tp = round2(fast.BBMid + ec.cfg.TakeProfitOffset)
		} else {
			tp = round2(fast.BBMid - ec.cfg.TakeProfitOffset)
		}
	}
	return sl, tp, 0
}

// bestBidAsk reads the websocket cache when it is fresh, otherwise falls
// back to the REST book ticker.
func (ec *EntryController) bestBidAsk() (bid, ask float64, err error) {
	if ec.quotes != nil {
		if q, ok := ec.quotes.Quote(); ok {
			return q.Bid, q.Ask, nil
		}
	}

	ticker, err := ec.client.GetBookTicker(ec.cfg.Symbol)
	if err != nil {
		return 0, 0, err
	}
	bid = parsePrice(ticker.BidPrice)
	ask = parsePrice(ticker.AskPrice)
	if bid <= 0 || ask <= 0 {
		return 0, 0, fmt.Errorf("book ticker returned empty quote for %s", ec.cfg.Symbol)
	}
	return bid, ask, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parsePrice(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
