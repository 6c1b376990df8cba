package auto

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kimp/internal/indicator"
	"kimp/internal/logger"
	"kimp/internal/market"
	"kimp/internal/venue"
)

// Actions a recommendation can carry.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// Forced-sell reason codes used when an open position overrides the score.
const (
	ReasonStopLoss     = "stop_loss"
	ReasonTakeProfit   = "take_profit"
	ReasonTrailingStop = "trailing_stop"
)

const maxReasons = 4

// Position is the single open holding of a strategy instance. Entry price
// and quantity are set once at open and read-only until close; only the
// high-water mark moves, and only upward.
type Position struct {
	EntryPrice float64   `json:"entry_price"`
	Qty        float64   `json:"qty"`
	HighWater  float64   `json:"high_water"`
	OpenedAt   time.Time `json:"opened_at"`
}

// TradeRecord is one executed (or dry-run) trade. Append-only.
type TradeRecord struct {
	Symbol    string      `json:"symbol"`
	Side      market.Side `json:"side"`
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	AmountKRW float64     `json:"amount_krw"`
	Fee       float64     `json:"fee"`
	PnL       float64     `json:"pnl"`
	OrderID   string      `json:"order_id"`
	Note      string      `json:"note"`
	DryRun    bool        `json:"dry_run"`
	Time      time.Time   `json:"time"`
}

// Recommendation is the per-cycle decision with its supporting reasons.
type Recommendation struct {
	Action     string   `json:"action"`
	Reasons    []string `json:"reasons"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
}

// Analysis bundles everything one cycle observed and decided.
type Analysis struct {
	Symbol         string           `json:"symbol"`
	Price          float64          `json:"price"`
	Indicators     indicator.Bundle `json:"indicators"`
	Recommendation Recommendation   `json:"recommendation"`
	Time           time.Time        `json:"time"`
}

// Strategy trades one symbol on one venue with at most one open position.
// Cycles are strictly sequential, so no internal locking is needed beyond
// the owning loop's discipline.
type Strategy struct {
	ex  venue.Exchange
	cfg Config

	pos       *Position
	lastTrade time.Time
	history   []TradeRecord

	now func() time.Time
}

func New(ex venue.Exchange, cfg Config) *Strategy {
	tiers := append([]RSITier(nil), cfg.RSITiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Below < tiers[j].Below })
	cfg.RSITiers = tiers
	return &Strategy{ex: ex, cfg: cfg, now: time.Now}
}

// Config returns the immutable per-cycle configuration.
func (s *Strategy) Config() Config { return s.cfg }

// Position returns a copy of the open position, or nil when flat.
func (s *Strategy) Position() *Position {
	if s.pos == nil {
		return nil
	}
	cp := *s.pos
	return &cp
}

// History returns the append-only trade journal of this instance.
func (s *Strategy) History() []TradeRecord {
	return append([]TradeRecord(nil), s.history...)
}

// Analyze pulls fresh candles and the ticker, computes the indicator
// bundle and derives a recommendation. indicator.ErrInsufficientData
// passes through untouched so callers can treat it as "no signal".
func (s *Strategy) Analyze(ctx context.Context) (Analysis, error) {
	candles, err := s.ex.Candles(ctx, s.cfg.Symbol, s.cfg.Interval, 200)
	if err != nil {
		return Analysis{}, fmt.Errorf("fetching candles failed: %w", err)
	}
	ticker, err := s.ex.Ticker(ctx, s.cfg.Symbol)
	if err != nil {
		return Analysis{}, fmt.Errorf("fetching ticker failed: %w", err)
	}
	bundle, err := indicator.Compute(candles)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Symbol:         s.cfg.Symbol,
		Price:          ticker.Price,
		Indicators:     bundle,
		Recommendation: s.recommend(ticker.Price, bundle),
		Time:           s.now(),
	}, nil
}

// recommend derives the action from the composite score, then lets an open
// position override it: stop-loss first, then take-profit, then trailing
// stop. The high-water mark ratchets upward on every observation.
func (s *Strategy) recommend(price float64, b indicator.Bundle) Recommendation {
	action := ActionHold
	var reasons []string

	switch {
	case b.Score >= s.cfg.MinScoreBuy:
		action = ActionBuy
		if b.RSI < 30 {
			reasons = append(reasons, fmt.Sprintf("rsi oversold (%.1f)", b.RSI))
		}
		if b.MACDHist > 0 {
			reasons = append(reasons, "macd golden cross")
		}
		if price < b.BBLower {
			reasons = append(reasons, "below lower bollinger band")
		}
		if b.EMA5 > b.EMA20 {
			reasons = append(reasons, "short ema rising")
		}
		if b.VolumeRatio > 1.5 {
			reasons = append(reasons, fmt.Sprintf("volume spike (%.1fx)", b.VolumeRatio))
		}
	case b.Score <= s.cfg.MaxScoreSell:
		action = ActionSell
		if b.RSI > 70 {
			reasons = append(reasons, fmt.Sprintf("rsi overbought (%.1f)", b.RSI))
		}
		if b.MACDHist < 0 {
			reasons = append(reasons, "macd dead cross")
		}
		if price > b.BBUpper {
			reasons = append(reasons, "above upper bollinger band")
		}
		if b.EMA5 < b.EMA20 {
			reasons = append(reasons, "short ema falling")
		}
	}

	if s.pos != nil {
		if price > s.pos.HighWater {
			s.pos.HighWater = price
		}
		entry := s.pos.EntryPrice
		switch {
		case s.cfg.StopLossPct > 0 && price <= entry*(1-s.cfg.StopLossPct/100):
			action = ActionSell
			reasons = []string{ReasonStopLoss}
		case s.cfg.TakeProfitPct > 0 && price >= entry*(1+s.cfg.TakeProfitPct/100):
			action = ActionSell
			reasons = []string{ReasonTakeProfit}
		case s.cfg.TrailingStopPct > 0 && (s.pos.HighWater-price)/s.pos.HighWater*100 >= s.cfg.TrailingStopPct:
			action = ActionSell
			reasons = []string{ReasonTrailingStop}
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "no clear signal")
	}
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return Recommendation{
		Action:     action,
		Reasons:    reasons,
		Score:      b.Score,
		Confidence: min(abs(b.Score), 100),
	}
}

// investRatio adds each RSI tier whose threshold the current RSI is below,
// capped at the configured maximum.
func (s *Strategy) investRatio(rsi float64) float64 {
	ratio := decimal.NewFromFloat(s.cfg.BaseInvestRatio)
	for _, tier := range s.cfg.RSITiers {
		if rsi < tier.Below {
			ratio = ratio.Add(decimal.NewFromFloat(tier.ExtraRatio))
		}
	}
	ceiling := decimal.NewFromFloat(s.cfg.MaxInvestRatio)
	if ratio.GreaterThan(ceiling) {
		ratio = ceiling
	}
	f, _ := ratio.Float64()
	return f
}

// ExecuteSignal runs one analyze-then-act step against the seed capital.
// Within the cooldown window it is a no-op. Dry runs substitute a
// synthetic order id and skip the venue call, but follow the identical
// state and journaling path otherwise.
func (s *Strategy) ExecuteSignal(ctx context.Context, seedKRW float64, dryRun bool) (*TradeRecord, error) {
	if wait := s.lastTrade.Add(time.Duration(s.cfg.CooldownSec) * time.Second).Sub(s.now()); wait > 0 {
		logger.Debugf("trade cooldown: %.0fs remaining", wait.Seconds())
		return nil, nil
	}

	analysis, err := s.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	rec := analysis.Recommendation
	price := analysis.Price

	switch {
	case rec.Action == ActionBuy && s.pos == nil:
		return s.openPosition(ctx, seedKRW, price, analysis, dryRun)
	case rec.Action == ActionSell && s.pos != nil:
		return s.closePosition(ctx, price, rec, dryRun)
	}
	return nil, nil
}

func (s *Strategy) openPosition(ctx context.Context, seedKRW, price float64, analysis Analysis, dryRun bool) (*TradeRecord, error) {
	invest := decimal.NewFromFloat(seedKRW).Mul(decimal.NewFromFloat(s.investRatio(analysis.Indicators.RSI)))
	fee := invest.Mul(decimal.NewFromFloat(s.ex.TakerFee()))
	qty := invest.Sub(fee).Div(decimal.NewFromFloat(price))

	investF, _ := invest.Float64()
	feeF, _ := fee.Float64()
	qtyF, _ := qty.Float64()

	orderID, err := s.submit(ctx, venue.OrderRequest{
		Symbol:      s.cfg.Symbol,
		Side:        market.SideBuy,
		Type:        market.OrderMarket,
		QuoteAmount: investF,
	}, dryRun)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.pos = &Position{EntryPrice: price, Qty: qtyF, HighWater: price, OpenedAt: now}
	s.lastTrade = now

	record := TradeRecord{
		Symbol:    s.cfg.Symbol,
		Side:      market.SideBuy,
		Price:     price,
		Qty:       qtyF,
		AmountKRW: investF,
		Fee:       feeF,
		OrderID:   orderID,
		Note:      tradeNote(fmt.Sprintf("score:%.1f", analysis.Indicators.Score), analysis.Recommendation.Reasons),
		DryRun:    dryRun,
		Time:      now,
	}
	s.history = append(s.history, record)
	logger.Infof("%sBUY %s qty=%.6f price=%.0f invest=%.0fKRW",
		dryPrefix(dryRun), s.cfg.Symbol, qtyF, price, investF)
	return &record, nil
}

func (s *Strategy) closePosition(ctx context.Context, price float64, rec Recommendation, dryRun bool) (*TradeRecord, error) {
	qty := decimal.NewFromFloat(s.pos.Qty)
	proceeds := qty.Mul(decimal.NewFromFloat(price))
	fee := proceeds.Mul(decimal.NewFromFloat(s.ex.TakerFee()))
	cost := decimal.NewFromFloat(s.pos.EntryPrice).Mul(qty)
	pnl := proceeds.Sub(fee).Sub(cost)

	proceedsF, _ := proceeds.Float64()
	feeF, _ := fee.Float64()
	pnlF, _ := pnl.Float64()
	qtyF := s.pos.Qty

	orderID, err := s.submit(ctx, venue.OrderRequest{
		Symbol: s.cfg.Symbol,
		Side:   market.SideSell,
		Type:   market.OrderMarket,
		Qty:    qtyF,
	}, dryRun)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.lastTrade = now
	s.pos = nil

	record := TradeRecord{
		Symbol:    s.cfg.Symbol,
		Side:      market.SideSell,
		Price:     price,
		Qty:       qtyF,
		AmountKRW: proceedsF,
		Fee:       feeF,
		PnL:       pnlF,
		OrderID:   orderID,
		Note:      tradeNote(fmt.Sprintf("pnl:%+.0fKRW", pnlF), rec.Reasons),
		DryRun:    dryRun,
		Time:      now,
	}
	s.history = append(s.history, record)
	logger.Infof("%sSELL %s qty=%.6f price=%.0f pnl=%+.0fKRW",
		dryPrefix(dryRun), s.cfg.Symbol, qtyF, price, pnlF)
	return &record, nil
}

func (s *Strategy) submit(ctx context.Context, req venue.OrderRequest, dryRun bool) (string, error) {
	if dryRun {
		return "dry-" + uuid.NewString(), nil
	}
	order, err := s.ex.PlaceOrder(ctx, req)
	if err != nil {
		return "", fmt.Errorf("placing order failed: %w", err)
	}
	return order.ID, nil
}

// Stats summarizes the instance's trade history.
type Stats struct {
	Trades     int     `json:"trades"`
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
	TotalPnL   float64 `json:"total_pnl"`
	TotalFees  float64 `json:"total_fees"`
	InPosition bool    `json:"in_position"`
}

func (s *Strategy) Stats() Stats {
	st := Stats{Trades: len(s.history), InPosition: s.pos != nil}
	for _, tr := range s.history {
		st.TotalFees += tr.Fee
		if tr.Side == market.SideBuy {
			st.Buys++
			continue
		}
		st.Sells++
		st.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			st.Wins++
		}
	}
	if st.Sells > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Sells) * 100
	}
	return st
}

func tradeNote(head string, reasons []string) string {
	if len(reasons) > 2 {
		reasons = reasons[:2]
	}
	return head + " | " + strings.Join(reasons, " | ")
}

func dryPrefix(dryRun bool) string {
	if dryRun {
		return "[DRY] "
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
