package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"kimp/internal/arbitrage"
	"kimp/internal/hub"
	"kimp/internal/indicator"
	"kimp/internal/logger"
	"kimp/internal/store"
	"kimp/internal/strategy/auto"
)

// Journal is the slice of the persistence layer the loop writes to. All
// writes are fire-and-forget: a journal failure is logged, never fatal.
type Journal interface {
	SaveTrade(ctx context.Context, row *store.TradeRow) error
	SaveSignal(ctx context.Context, venue, symbol, signal string, score, price float64, indicators any) error
	SaveArbitrage(ctx context.Context, row *store.ArbitrageRow) error
}

// Broadcaster delivers cycle events to subscribers.
type Broadcaster interface {
	Broadcast(hub.Event)
}

// Config tunes the loop cadence and trading mode.
type Config struct {
	IntervalSec int     `mapstructure:"interval_sec" json:"interval_sec"`
	BackoffSec  int     `mapstructure:"backoff_sec" json:"backoff_sec"`
	SeedKRW     float64 `mapstructure:"seed_krw" json:"seed_krw"`
	DryRun      bool    `mapstructure:"dry_run" json:"dry_run"`
}

func DefaultConfig() Config {
	return Config{IntervalSec: 30, BackoffSec: 10, SeedKRW: 1000000, DryRun: true}
}

// Engine drives the trading loop: analyze, execute, check arbitrage,
// broadcast and journal, each cycle strictly sequential. A cycle error is
// broadcast and followed by a backoff sleep; the loop itself never dies.
type Engine struct {
	strategy *auto.Strategy
	monitor  *arbitrage.Monitor
	journal  Journal
	events   Broadcaster
	cfg      Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(strategy *auto.Strategy, monitor *arbitrage.Monitor, journal Journal, events Broadcaster, cfg Config) *Engine {
	return &Engine{
		strategy: strategy,
		monitor:  monitor,
		journal:  journal,
		events:   events,
		cfg:      cfg,
	}
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start launches the loop in a goroutine. Starting a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			e.running = false
			e.cancel = nil
			e.mu.Unlock()
		}()
		e.Run(runCtx)
	}()
}

// Stop signals the loop to exit after the in-flight cycle completes.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Run executes cycles until the context is cancelled. The stop signal is
// checked at the top of every iteration; an in-flight cycle finishes
// before the loop exits.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.IntervalSec) * time.Second
	backoff := time.Duration(e.cfg.BackoffSec) * time.Second
	logger.Infof("trading loop started: interval=%s dry_run=%v seed=%.0fKRW",
		interval, e.cfg.DryRun, e.cfg.SeedKRW)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("trading loop stopped")
			return
		default:
		}

		sleep := interval
		if err := e.runCycle(ctx); err != nil {
			logger.Errorf("cycle failed: %v", err)
			e.events.Broadcast(hub.Event{Type: "error", Data: map[string]any{"error": err.Error()}})
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			logger.Infof("trading loop stopped")
			return
		case <-time.After(sleep):
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) error {
	if err := e.runStrategy(ctx); err != nil {
		return err
	}
	return e.runArbitrage(ctx)
}

// runStrategy analyzes, journals the signal, then executes. Fewer than 60
// candles means no signal this cycle, not a failure.
func (e *Engine) runStrategy(ctx context.Context) error {
	analysis, err := e.strategy.Analyze(ctx)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			logger.Warnf("skipping cycle: %v", err)
			return nil
		}
		return err
	}

	if err := e.journal.SaveSignal(ctx, "upbit", analysis.Symbol, analysis.Indicators.Signal,
		analysis.Indicators.Score, analysis.Price, analysis.Indicators); err != nil {
		logger.Warnf("journaling signal failed: %v", err)
	}
	e.events.Broadcast(hub.Event{Type: "analysis", Data: analysis})

	record, err := e.strategy.ExecuteSignal(ctx, e.cfg.SeedKRW, e.cfg.DryRun)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	if err := e.journal.SaveTrade(ctx, &store.TradeRow{
		Venue:     "upbit",
		Symbol:    record.Symbol,
		Side:      string(record.Side),
		Price:     record.Price,
		Qty:       record.Qty,
		AmountKRW: record.AmountKRW,
		Fee:       record.Fee,
		PnL:       record.PnL,
		OrderID:   record.OrderID,
		Note:      record.Note,
		DryRun:    record.DryRun,
	}); err != nil {
		logger.Warnf("journaling trade failed: %v", err)
	}
	e.events.Broadcast(hub.Event{Type: "trade", Data: record})
	return nil
}

func (e *Engine) runArbitrage(ctx context.Context) error {
	opp, result, err := e.monitor.Check(ctx)
	if err != nil {
		return err
	}
	e.events.Broadcast(hub.Event{Type: "kimchi", Data: opp})

	status := ""
	if result != nil {
		status = result.Status
		e.events.Broadcast(hub.Event{Type: "arbitrage", Data: result})
	}
	if !opp.Profitable && result == nil {
		return nil
	}
	if err := e.journal.SaveArbitrage(ctx, &store.ArbitrageRow{
		DomesticPrice: opp.DomesticPrice,
		ForeignPrice:  opp.ForeignPrice,
		FXRate:        opp.FXRate,
		PremiumPct:    opp.PremiumPct,
		NetProfitPct:  opp.NetProfitPct,
		Profitable:    opp.Profitable,
		Direction:     opp.Direction,
		Status:        status,
		Note:          opp.Note,
	}); err != nil {
		logger.Warnf("journaling arbitrage failed: %v", err)
	}
	return nil
}
