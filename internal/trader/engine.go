package trader

import (
	"context"
	"errors"
	"sync"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/notify"
	"go.uber.org/zap"
)

// Engine is the single control loop: every tick it advances whichever stage
// of the order lifecycle is active (pending order, open position, or signal
// hunting). A second goroutine fires the once-daily rollover; the two meet
// only inside the risk controller's mutex and the engine's state mutex.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	client   binance.FuturesClientInterface
	provider market.Provider

	classifier *Classifier
	entry      *EntryController
	pending    *PendingTracker
	positions  *PositionManager
	risk       *RiskController

	mu    sync.Mutex
	state *State

	now       func() time.Time
	StartTime time.Time
}

// NewEngine wires the decision components together. quotes may be nil when
// the websocket cache is disabled.
func NewEngine(logger *zap.Logger, cfg *config.Config, client binance.FuturesClientInterface,
	provider market.Provider, quotes QuoteSource, notifier notify.Notifier, journal *database.Journal) *Engine {
	now := time.Now
	trading := &cfg.Trading

	risk := NewRiskController(trading, notifier, journal, logger)
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		client:     client,
		provider:   provider,
		classifier: NewClassifier(trading, now),
		entry:      NewEntryController(trading, client, quotes, notifier, journal, logger, now),
		pending:    NewPendingTracker(trading, client, notifier, journal, logger, now),
		positions:  NewPositionManager(trading, client, notifier, journal, logger, now),
		risk:       risk,
		state:      &State{},
		now:        now,
	}
}

// Run starts the engine's main loop and the rollover timer, returning when
// the context is canceled. A failing cycle is logged and retried on the next
// tick; the loop itself never terminates on error.
func (e *Engine) Run(ctx context.Context) {
	e.StartTime = e.now()
	e.initialize()

	go e.rolloverLoop(ctx)

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting decision loop",
		zap.String("symbol", e.cfg.Trading.Symbol),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			if err := e.Cycle(); err != nil {
				var iv *InvariantViolationError
				if errors.As(err, &iv) {
					e.logger.Error("STATE MACHINE CORRUPTED, cycle aborted with state preserved", zap.Error(err))
				} else {
					e.logger.Error("Cycle failed", zap.Error(err))
				}
			}
		}
	}
}

// initialize performs the best-effort startup calls against the exchange.
func (e *Engine) initialize() {
	if e.cfg.Trading.DryRun {
		e.logger.Warn("Dry run enabled: no real orders will be placed")
		return
	}
	if err := e.client.ChangeLeverage(e.cfg.Trading.Symbol, e.cfg.Trading.Leverage); err != nil {
		e.logger.Warn("Failed to set leverage", zap.Error(err))
	} else {
		e.logger.Info("Leverage set",
			zap.String("symbol", e.cfg.Trading.Symbol),
			zap.Int("leverage", e.cfg.Trading.Leverage))
	}
}

// Cycle performs one decision pass. Exported so tests can drive the engine
// without the ticker.
func (e *Engine) Cycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.risk.Paused(now) {
		e.logger.Debug("Loss-streak pause active, cycle skipped",
			zap.Time("paused_until", e.risk.PausedUntil()))
		return nil
	}

	if e.state.Position != nil {
		return e.positions.Manage(e.state, e.risk)
	}

	if e.state.Pending != nil {
		if err := e.pending.Track(e.state); err != nil {
			return err
		}
		if e.state.Position != nil {
			// Filled this cycle; management starts next tick.
			return nil
		}
		// An order still pending may yet be superseded by an opposite
		// signal below.
	}

	fast, err := e.provider.Snapshot(market.IntervalFast)
	if err != nil {
		return e.skipOnDataGap(err)
	}
	slow, err := e.provider.Snapshot(market.IntervalSlow)
	if err != nil {
		return e.skipOnDataGap(err)
	}

	sig := e.classifier.Classify(fast, slow, e.risk.Gate(now))
	if sig == SignalNone {
		return nil
	}

	e.logger.Info("Signal detected", zap.String("signal", sig.String()))
	return e.entry.TryEnter(e.state, e.risk, sig, fast, slow)
}

// skipOnDataGap treats unavailable market data as a skipped cycle, anything
// else as a reportable error.
func (e *Engine) skipOnDataGap(err error) error {
	if errors.Is(err, market.ErrDataUnavailable) {
		e.logger.Warn("Market data unavailable, skipping cycle", zap.Error(err))
		return nil
	}
	return err
}

// rolloverLoop sleeps until each shifted-midnight boundary and runs the
// daily reset.
func (e *Engine) rolloverLoop(ctx context.Context) {
	for {
		next := e.risk.NextRollover(e.now())
		e.logger.Info("Next daily rollover scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(e.now())):
			e.risk.Rollover(e.now())
		}
	}
}

// Status is a point-in-time view of the engine for the HTTP API.
type Status struct {
	Symbol      string     `json:"symbol"`
	StartTime   string     `json:"start_time"`
	Uptime      string     `json:"uptime"`
	DryRun      bool       `json:"dry_run"`
	InPosition  bool       `json:"in_position"`
	Direction   string     `json:"direction,omitempty"`
	EntryPrice  float64    `json:"entry_price,omitempty"`
	HasPending  bool       `json:"has_pending"`
	DailyPnL    float64    `json:"daily_pnl"`
	TargetHit   bool       `json:"target_hit"`
	PausedUntil *time.Time `json:"paused_until,omitempty"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		Symbol:     e.cfg.Trading.Symbol,
		StartTime:  e.StartTime.Format(time.RFC3339),
		Uptime:     e.now().Sub(e.StartTime).String(),
		DryRun:     e.cfg.Trading.DryRun,
		InPosition: e.state.Position != nil,
		HasPending: e.state.Pending != nil,
		DailyPnL:   e.risk.DailyPnL(),
		TargetHit:  e.risk.TargetHit(),
	}
	if pos := e.state.Position; pos != nil {
		s.Direction = string(pos.Direction)
		s.EntryPrice = pos.EntryPrice
	}
	if until := e.risk.PausedUntil(); !until.IsZero() {
		s.PausedUntil = &until
	}
	return s
}
