package auto

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimp/internal/indicator"
	"kimp/internal/market"
	"kimp/internal/venue"
)

// fakeExchange satisfies venue.Exchange with canned data.
type fakeExchange struct {
	candles  []market.Candle
	ticker   market.Ticker
	orders   []venue.OrderRequest
	orderErr error
}

func (f *fakeExchange) Name() string      { return "fake" }
func (f *fakeExchange) TakerFee() float64 { return 0.0005 }
func (f *fakeExchange) MakerFee() float64 { return 0.0005 }

func (f *fakeExchange) Ticker(context.Context, string) (market.Ticker, error) {
	return f.ticker, nil
}

func (f *fakeExchange) OrderBook(context.Context, string, int) (market.OrderBook, error) {
	return market.OrderBook{}, nil
}

func (f *fakeExchange) Candles(context.Context, string, string, int) ([]market.Candle, error) {
	return f.candles, nil
}

func (f *fakeExchange) Balances(context.Context) ([]market.Balance, error) {
	return nil, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req venue.OrderRequest) (market.Order, error) {
	if f.orderErr != nil {
		return market.Order{}, f.orderErr
	}
	f.orders = append(f.orders, req)
	return market.Order{ID: "live-1", Symbol: req.Symbol, Side: req.Side, Status: market.StatusOpen}, nil
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

func newTestStrategy(cfg Config) *Strategy {
	return New(&fakeExchange{}, cfg)
}

func TestRecommendStopLossBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPct = 3
	cfg.TakeProfitPct = 50
	cfg.TrailingStopPct = 0

	s := newTestStrategy(cfg)
	s.pos = &Position{EntryPrice: 100000, Qty: 0.01, HighWater: 100000}

	rec := s.recommend(96999, indicator.Bundle{})
	assert.Equal(t, ActionSell, rec.Action)
	assert.Equal(t, []string{ReasonStopLoss}, rec.Reasons)

	s.pos = &Position{EntryPrice: 100000, Qty: 0.01, HighWater: 100000}
	rec = s.recommend(97001, indicator.Bundle{})
	assert.Equal(t, ActionHold, rec.Action)
}

func TestRecommendStopLossBeatsTrailingStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPct = 3
	cfg.TakeProfitPct = 50
	cfg.TrailingStopPct = 2

	s := newTestStrategy(cfg)
	s.pos = &Position{EntryPrice: 100000, Qty: 0.01, HighWater: 100000}

	// 96999 breaches both thresholds; the stop-loss reason wins.
	rec := s.recommend(96999, indicator.Bundle{})
	assert.Equal(t, []string{ReasonStopLoss}, rec.Reasons)
}

func TestRecommendTrailingStopRatchet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPct = 50
	cfg.TakeProfitPct = 50
	cfg.TrailingStopPct = 5

	s := newTestStrategy(cfg)
	s.pos = &Position{EntryPrice: 100, Qty: 1, HighWater: 100}

	rec := s.recommend(110, indicator.Bundle{})
	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, 110.0, s.pos.HighWater)

	// 105 is only 4.5% below the high-water mark.
	rec = s.recommend(105, indicator.Bundle{})
	assert.Equal(t, ActionHold, rec.Action)
	assert.Equal(t, 110.0, s.pos.HighWater, "high-water never decreases")

	// 104 is more than 5% below 110.
	rec = s.recommend(104, indicator.Bundle{})
	assert.Equal(t, ActionSell, rec.Action)
	assert.Equal(t, []string{ReasonTrailingStop}, rec.Reasons)
}

func TestRecommendTakeProfit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPct = 3
	cfg.TakeProfitPct = 5
	cfg.TrailingStopPct = 0

	s := newTestStrategy(cfg)
	s.pos = &Position{EntryPrice: 100000, Qty: 0.01, HighWater: 100000}

	rec := s.recommend(105000, indicator.Bundle{})
	assert.Equal(t, ActionSell, rec.Action)
	assert.Equal(t, []string{ReasonTakeProfit}, rec.Reasons)
}

func TestInvestRatioTiers(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestStrategy(cfg)

	assert.InDelta(t, 0.10, s.investRatio(50), 1e-9)
	assert.InDelta(t, 0.15, s.investRatio(35), 1e-9)
	assert.InDelta(t, 0.25, s.investRatio(25), 1e-9)
	assert.InDelta(t, 0.40, s.investRatio(15), 1e-9)
}

func TestInvestRatioCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseInvestRatio = 0.40
	cfg.MaxInvestRatio = 0.50
	s := newTestStrategy(cfg)

	assert.InDelta(t, 0.50, s.investRatio(15), 1e-9)
}

func TestExecuteSignalCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownSec = 300
	fake := &fakeExchange{}
	s := New(fake, cfg)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.lastTrade = base.Add(-time.Minute)

	record, err := s.ExecuteSignal(context.Background(), 1_000_000, false)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, fake.orders, "no venue call inside the cooldown window")
}

func TestOpenPositionDryRun(t *testing.T) {
	cfg := DefaultConfig()
	fake := &fakeExchange{}
	s := New(fake, cfg)

	analysis := Analysis{
		Symbol:         cfg.Symbol,
		Price:          50_000_000,
		Indicators:     indicator.Bundle{RSI: 50, Score: 45},
		Recommendation: Recommendation{Action: ActionBuy, Reasons: []string{"score"}},
	}
	record, err := s.openPosition(context.Background(), 1_000_000, 50_000_000, analysis, true)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.True(t, record.DryRun)
	assert.True(t, strings.HasPrefix(record.OrderID, "dry-"))
	assert.Empty(t, fake.orders, "dry run must not reach the venue")

	// invest = 1,000,000 * 0.10, fee = invest * 0.0005
	assert.InDelta(t, 100_000, record.AmountKRW, 1e-6)
	assert.InDelta(t, 50, record.Fee, 1e-6)
	assert.InDelta(t, (100_000.0-50.0)/50_000_000.0, record.Qty, 1e-12)

	require.NotNil(t, s.pos)
	assert.Equal(t, 50_000_000.0, s.pos.EntryPrice)
	assert.Equal(t, s.pos.EntryPrice, s.pos.HighWater)
}

func TestClosePositionPnL(t *testing.T) {
	cfg := DefaultConfig()
	fake := &fakeExchange{}
	s := New(fake, cfg)
	s.pos = &Position{EntryPrice: 50_000_000, Qty: 0.002, HighWater: 50_000_000}

	record, err := s.closePosition(context.Background(), 52_000_000,
		Recommendation{Action: ActionSell, Reasons: []string{ReasonTakeProfit}}, false)
	require.NoError(t, err)
	require.NotNil(t, record)

	// proceeds = 104,000; fee = 52; pnl = 104,000 - 52 - 100,000
	assert.InDelta(t, 104_000, record.AmountKRW, 1e-6)
	assert.InDelta(t, 52, record.Fee, 1e-6)
	assert.InDelta(t, 3948, record.PnL, 1e-6)
	assert.Equal(t, "live-1", record.OrderID)

	assert.Nil(t, s.pos, "position closes on sell")
	require.Len(t, fake.orders, 1)
	assert.Equal(t, market.SideSell, fake.orders[0].Side)
	assert.InDelta(t, 0.002, fake.orders[0].Qty, 1e-12)
}

func TestStats(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	s.history = []TradeRecord{
		{Side: market.SideBuy, Fee: 50},
		{Side: market.SideSell, Fee: 52, PnL: 3948},
		{Side: market.SideBuy, Fee: 50},
		{Side: market.SideSell, Fee: 48, PnL: -1000},
	}
	st := s.Stats()
	assert.Equal(t, 4, st.Trades)
	assert.Equal(t, 2, st.Buys)
	assert.Equal(t, 2, st.Sells)
	assert.Equal(t, 1, st.Wins)
	assert.InDelta(t, 50.0, st.WinRate, 1e-9)
	assert.InDelta(t, 2948.0, st.TotalPnL, 1e-9)
	assert.InDelta(t, 200.0, st.TotalFees, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.BaseInvestRatio = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxScoreSell = 50
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Symbol = ""
	assert.Error(t, bad.Validate())
}
