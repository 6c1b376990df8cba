package arbitrage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kimp/internal/fx"
	"kimp/internal/logger"
	"kimp/internal/market"
	"kimp/internal/venue"
)

// Monitor watches the premium between a KRW-quoted domestic market and a
// USDT-quoted foreign market. Check appends to a bounded rolling history;
// with auto-trade enabled a profitable check executes immediately.
type Monitor struct {
	domestic venue.Exchange
	foreign  venue.Exchange
	fxRate   fx.Source
	cfg      Config

	mu      sync.Mutex
	history []Opportunity
	results []Result

	now func() time.Time
}

func NewMonitor(domestic, foreign venue.Exchange, fxRate fx.Source, cfg Config) *Monitor {
	return &Monitor{
		domestic: domestic,
		foreign:  foreign,
		fxRate:   fxRate,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (m *Monitor) Config() Config { return m.cfg }

// Check fetches the FX rate and both tickers concurrently, evaluates the
// premium and records the opportunity. When profitable and auto-trade is
// on, it also executes and returns the result.
func (m *Monitor) Check(ctx context.Context) (Opportunity, *Result, error) {
	var (
		rate             float64
		domTick, forTick market.Ticker
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rate, err = m.fxRate.USDKRW(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		domTick, err = m.domestic.Ticker(gctx, m.cfg.DomesticSymbol)
		return err
	})
	g.Go(func() error {
		var err error
		forTick, err = m.foreign.Ticker(gctx, m.cfg.ForeignSymbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return Opportunity{}, nil, fmt.Errorf("premium check failed: %w", err)
	}

	opp := m.evaluate(domTick.Price, forTick.Price, rate)
	m.append(opp)

	if opp.Profitable && m.cfg.AutoTrade {
		res := m.Execute(ctx, opp)
		return opp, &res, nil
	}
	return opp, nil, nil
}

// evaluate applies the premium formula: the foreign price converted at the
// FX rate is the fair domestic value, and the premium is the domestic
// quote's deviation from it.
func (m *Monitor) evaluate(domesticPrice, foreignPrice, rate float64) Opportunity {
	equiv := foreignPrice * rate
	premium := (domesticPrice - equiv) / equiv * 100
	feePct := (m.domestic.TakerFee() + m.foreign.TakerFee()) * 2 * 100
	net := math.Abs(premium) - feePct

	direction := DirBuyDomesticHedgeForeign
	if premium > 0 {
		direction = DirBuyForeignSellDomestic
	}
	return Opportunity{
		DomesticPrice: domesticPrice,
		ForeignPrice:  foreignPrice,
		FXRate:        rate,
		PremiumPct:    round4(premium),
		FeePct:        round4(feePct),
		NetProfitPct:  round4(net),
		Profitable:    net >= m.cfg.MinProfitPct,
		Direction:     direction,
		Note: fmt.Sprintf("premium %.4f%%, fees %.4f%%, net %.4f%%",
			premium, feePct, net),
		Time: m.now(),
	}
}

// Execute places one order per venue for the opportunity's direction. A
// second-leg failure after a successful first leg yields a partial result,
// surfaced distinctly; no automatic unwind is attempted.
func (m *Monitor) Execute(ctx context.Context, opp Opportunity) Result {
	qty := decimal.NewFromFloat(m.cfg.TradeAmountKRW).
		Div(decimal.NewFromFloat(opp.DomesticPrice)).
		Round(8)
	qtyF, _ := qty.Float64()
	foreignQty, _ := qty.Round(3).Float64()

	res := Result{
		Opportunity:    opp,
		AmountKRW:      m.cfg.TradeAmountKRW,
		Qty:            qtyF,
		ExpectedProfit: m.cfg.TradeAmountKRW * opp.NetProfitPct / 100,
		Status:         StatusPending,
		Time:           m.now(),
	}

	firstVenue, firstReq, secondVenue, secondReq := m.legs(opp, qtyF, foreignQty)

	firstID, err := m.submit(ctx, firstVenue, firstReq)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		logger.Errorf("arbitrage first leg on %s failed: %v", firstVenue.Name(), err)
		m.record(res)
		return res
	}
	m.setLegID(&res, firstVenue, firstID)

	secondID, err := m.submit(ctx, secondVenue, secondReq)
	if err != nil {
		res.Status = StatusPartial
		res.Error = err.Error()
		logger.Errorf("arbitrage second leg on %s failed after %s filled, position is one-sided: %v",
			secondVenue.Name(), firstVenue.Name(), err)
		m.record(res)
		return res
	}
	m.setLegID(&res, secondVenue, secondID)

	res.Status = StatusExecuted
	logger.Infof("arbitrage executed: %s qty=%.8f expected=%.0fKRW",
		opp.Direction, qtyF, res.ExpectedProfit)
	m.record(res)
	return res
}

// legs orders the two venue calls for the opportunity's direction: buy the
// cheap side first, then sell or short the expensive side.
func (m *Monitor) legs(opp Opportunity, domesticQty, foreignQty float64) (venue.Exchange, venue.OrderRequest, venue.Exchange, venue.OrderRequest) {
	if opp.Direction == DirBuyForeignSellDomestic {
		buyForeign := venue.OrderRequest{
			Symbol: m.cfg.ForeignSymbol,
			Side:   market.SideBuy,
			Type:   market.OrderMarket,
			Qty:    foreignQty,
		}
		sellDomestic := venue.OrderRequest{
			Symbol: m.cfg.DomesticSymbol,
			Side:   market.SideSell,
			Type:   market.OrderMarket,
			Qty:    domesticQty,
		}
		return m.foreign, buyForeign, m.domestic, sellDomestic
	}
	buyDomestic := venue.OrderRequest{
		Symbol:      m.cfg.DomesticSymbol,
		Side:        market.SideBuy,
		Type:        market.OrderMarket,
		QuoteAmount: m.cfg.TradeAmountKRW,
	}
	hedgeForeign := venue.OrderRequest{
		Symbol: m.cfg.ForeignSymbol,
		Side:   market.SideSell,
		Type:   market.OrderMarket,
		Qty:    foreignQty,
	}
	return m.domestic, buyDomestic, m.foreign, hedgeForeign
}

func (m *Monitor) submit(ctx context.Context, ex venue.Exchange, req venue.OrderRequest) (string, error) {
	if m.cfg.DryRun {
		return "dry-" + uuid.NewString(), nil
	}
	order, err := ex.PlaceOrder(ctx, req)
	if err != nil {
		return "", err
	}
	return order.ID, nil
}

func (m *Monitor) setLegID(res *Result, ex venue.Exchange, id string) {
	if ex == m.domestic {
		res.DomesticOrderID = id
		return
	}
	res.ForeignOrderID = id
}

func (m *Monitor) append(opp Opportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, opp)
	if len(m.history) > historyCap {
		m.history = append([]Opportunity(nil), m.history[len(m.history)-historyKeep:]...)
	}
}

func (m *Monitor) record(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
}

// History returns a copy of the rolling opportunity history.
func (m *Monitor) History() []Opportunity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Opportunity(nil), m.history...)
}

// Results returns a copy of all execution results.
func (m *Monitor) Results() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.results...)
}

// Stats summarizes the history: the average premium is over the most
// recent 20 checks.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Checks: len(m.history)}
	for _, opp := range m.history {
		if opp.Profitable {
			s.Profitable++
		}
	}
	recent := m.history
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	if len(recent) > 0 {
		var sum float64
		for _, opp := range recent {
			sum += opp.PremiumPct
		}
		s.AvgPremium = round4(sum / float64(len(recent)))
		s.LastPremium = m.history[len(m.history)-1].PremiumPct
	}
	for _, res := range m.results {
		switch res.Status {
		case StatusExecuted:
			s.Executions++
		case StatusPartial:
			s.Partials++
		case StatusFailed:
			s.Failures++
		}
	}
	return s
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
