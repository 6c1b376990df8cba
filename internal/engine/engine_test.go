package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimp/internal/arbitrage"
	"kimp/internal/hub"
	"kimp/internal/market"
	"kimp/internal/store"
	"kimp/internal/strategy/auto"
	"kimp/internal/venue"
)

type fakeExchange struct {
	candles    []market.Candle
	candlesErr error
	price      float64
}

func (f *fakeExchange) Name() string      { return "fake" }
func (f *fakeExchange) TakerFee() float64 { return 0.0005 }
func (f *fakeExchange) MakerFee() float64 { return 0.0005 }

func (f *fakeExchange) Ticker(context.Context, string) (market.Ticker, error) {
	return market.Ticker{Price: f.price}, nil
}

func (f *fakeExchange) OrderBook(context.Context, string, int) (market.OrderBook, error) {
	return market.OrderBook{}, nil
}

func (f *fakeExchange) Candles(context.Context, string, string, int) ([]market.Candle, error) {
	return f.candles, f.candlesErr
}

func (f *fakeExchange) Balances(context.Context) ([]market.Balance, error) { return nil, nil }

func (f *fakeExchange) PlaceOrder(context.Context, venue.OrderRequest) (market.Order, error) {
	return market.Order{ID: "live-1"}, nil
}

func (f *fakeExchange) CancelOrder(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeExchange) Order(context.Context, string, string) (market.Order, error) {
	return market.Order{}, nil
}

func (f *fakeExchange) FundingRate(context.Context, string) (*market.FundingRate, error) {
	return nil, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	trades  int
	signals int
	arbs    int
	err     error
}

func (f *fakeJournal) SaveTrade(context.Context, *store.TradeRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades++
	return f.err
}

func (f *fakeJournal) SaveSignal(context.Context, string, string, string, float64, float64, any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals++
	return f.err
}

func (f *fakeJournal) SaveArbitrage(context.Context, *store.ArbitrageRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arbs++
	return f.err
}

type fakeEvents struct {
	mu     sync.Mutex
	events []hub.Event
}

func (f *fakeEvents) Broadcast(evt hub.Event) {
	f.mu.Lock()
	f.events = append(f.events, evt)
	f.mu.Unlock()
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fixedFX struct{}

func (fixedFX) USDKRW(context.Context) (float64, error) { return 1400, nil }

func flatCandles(n int, price float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price, High: price, Low: price, Close: price, Volume: 100,
		}
	}
	return candles
}

func newTestEngine(domestic *fakeExchange, journal *fakeJournal, events *fakeEvents, cfg Config) *Engine {
	strat := auto.New(domestic, auto.DefaultConfig())
	foreign := &fakeExchange{price: 70000}
	acfg := arbitrage.DefaultConfig()
	acfg.AutoTrade = false
	mon := arbitrage.NewMonitor(domestic, foreign, fixedFX{}, acfg)
	return New(strat, mon, journal, events, cfg)
}

func TestRunCycleHappyPath(t *testing.T) {
	domestic := &fakeExchange{candles: flatCandles(80, 100_000_000), price: 100_000_000}
	journal := &fakeJournal{}
	events := &fakeEvents{}
	e := newTestEngine(domestic, journal, events, DefaultConfig())

	require.NoError(t, e.runCycle(context.Background()))

	types := events.types()
	assert.Contains(t, types, "analysis")
	assert.Contains(t, types, "kimchi")
	assert.Equal(t, 1, journal.signals)
	assert.Equal(t, 0, journal.trades, "flat market means hold")
}

func TestRunCycleSkipsOnInsufficientData(t *testing.T) {
	domestic := &fakeExchange{candles: flatCandles(10, 100_000_000), price: 100_000_000}
	journal := &fakeJournal{}
	events := &fakeEvents{}
	e := newTestEngine(domestic, journal, events, DefaultConfig())

	require.NoError(t, e.runCycle(context.Background()), "too few candles is no signal, not an error")
	assert.Equal(t, 0, journal.signals)
	assert.Contains(t, events.types(), "kimchi", "arbitrage still runs")
}

func TestRunCycleJournalFailureIsNotFatal(t *testing.T) {
	domestic := &fakeExchange{candles: flatCandles(80, 100_000_000), price: 100_000_000}
	journal := &fakeJournal{err: errors.New("disk full")}
	events := &fakeEvents{}
	e := newTestEngine(domestic, journal, events, DefaultConfig())

	assert.NoError(t, e.runCycle(context.Background()))
	assert.Contains(t, events.types(), "analysis")
}

func TestRunSurvivesCycleErrors(t *testing.T) {
	domestic := &fakeExchange{candlesErr: errors.New("venue down"), price: 100_000_000}
	journal := &fakeJournal{}
	events := &fakeEvents{}
	cfg := Config{IntervalSec: 1, BackoffSec: 1, SeedKRW: 1_000_000, DryRun: true}
	e := newTestEngine(domestic, journal, events, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// The first cycle fails immediately; give the loop a moment, then stop.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}

	types := events.types()
	require.NotEmpty(t, types)
	assert.Contains(t, types, "error", "cycle failure is broadcast, not fatal")
}

func TestStartStop(t *testing.T) {
	domestic := &fakeExchange{candles: flatCandles(80, 100_000_000), price: 100_000_000}
	cfg := Config{IntervalSec: 60, BackoffSec: 10, SeedKRW: 1_000_000, DryRun: true}
	e := newTestEngine(domestic, &fakeJournal{}, &fakeEvents{}, cfg)

	e.Start(context.Background())
	require.Eventually(t, e.Running, time.Second, 10*time.Millisecond)

	// Starting again while running is a no-op.
	e.Start(context.Background())

	e.Stop()
	require.Eventually(t, func() bool { return !e.Running() }, 3*time.Second, 10*time.Millisecond)
}
