package user

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"kimp/internal/indicator"
)

// Decision is the outcome of one buy or sell evaluation, with the matched
// conditions spelled out for observability.
type Decision struct {
	Triggered bool     `json:"triggered"`
	Matched   int      `json:"matched"`
	Total     int      `json:"total"`
	Reasons   []string `json:"reasons"`
}

// Strategy evaluates the user-declared rule set against indicator output.
// It holds no venue connection; condition checks are pure, while the DCA
// tracker (consumed levels, cumulative invested ratio, high-water price)
// carries state for the single open position.
type Strategy struct {
	cfg Config

	levels        []DropLevel
	consumed      map[float64]bool
	investedRatio float64
	highWater     float64
}

func New(cfg Config) *Strategy {
	levels := append([]DropLevel(nil), cfg.DCALevels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].DropPct > levels[j].DropPct })
	return &Strategy{
		cfg:      cfg,
		levels:   levels,
		consumed: make(map[float64]bool),
	}
}

func (s *Strategy) Config() Config { return s.cfg }

// InvestedRatio is the cumulative share of seed capital committed to the
// current position, base entry plus fired DCA levels.
func (s *Strategy) InvestedRatio() float64 { return s.investedRatio }

// EvaluateBuy counts matched enabled conditions and triggers on a majority:
// matched >= max(1, enabled/2) with integer division, so a tie triggers.
func (s *Strategy) EvaluateBuy(ind indicator.Bundle, price float64) Decision {
	var matched, total int
	var reasons []string

	if s.cfg.UseRSI {
		total++
		if ind.RSI < s.cfg.BuyRSIBelow {
			matched++
			reasons = append(reasons, fmt.Sprintf("rsi %.1f < %.1f", ind.RSI, s.cfg.BuyRSIBelow))
		}
	}
	if s.cfg.UseMACD {
		total++
		if ind.MACDHist > 0 {
			matched++
			reasons = append(reasons, "macd histogram positive")
		}
	}
	if s.cfg.UseBollinger {
		total++
		if price < ind.BBLower {
			matched++
			reasons = append(reasons, "price below lower band")
		}
	}
	total++
	if ind.Score >= s.cfg.BuyScoreMin {
		matched++
		reasons = append(reasons, fmt.Sprintf("score %.1f >= %.1f", ind.Score, s.cfg.BuyScoreMin))
	}
	if s.cfg.UseVolume {
		total++
		if ind.VolumeRatio >= 2 {
			matched++
			reasons = append(reasons, fmt.Sprintf("volume spike %.1fx", ind.VolumeRatio))
		}
	}

	return Decision{
		Triggered: matched >= majority(total),
		Matched:   matched,
		Total:     total,
		Reasons:   reasons,
	}
}

// EvaluateSell checks risk overrides first: stop-loss, then take-profit,
// then trailing stop against the ratcheting high-water price. Only when
// none trigger does the majority vote over enabled sell conditions run.
func (s *Strategy) EvaluateSell(ind indicator.Bundle, price, entryPrice float64) Decision {
	if entryPrice > 0 {
		if price > s.highWater {
			s.highWater = price
		}
		switch {
		case s.cfg.StopLossPct > 0 && price <= entryPrice*(1-s.cfg.StopLossPct/100):
			return Decision{Triggered: true, Matched: 1, Total: 1, Reasons: []string{"stop_loss"}}
		case s.cfg.TakeProfitPct > 0 && price >= entryPrice*(1+s.cfg.TakeProfitPct/100):
			return Decision{Triggered: true, Matched: 1, Total: 1, Reasons: []string{"take_profit"}}
		case s.cfg.TrailingStopPct > 0 && s.highWater > 0 &&
			(s.highWater-price)/s.highWater*100 >= s.cfg.TrailingStopPct:
			return Decision{Triggered: true, Matched: 1, Total: 1, Reasons: []string{"trailing_stop"}}
		}
	}

	var matched, total int
	var reasons []string

	if s.cfg.UseRSI {
		total++
		if ind.RSI > s.cfg.SellRSIAbove {
			matched++
			reasons = append(reasons, fmt.Sprintf("rsi %.1f > %.1f", ind.RSI, s.cfg.SellRSIAbove))
		}
	}
	if s.cfg.UseMACD {
		total++
		if ind.MACDHist < 0 {
			matched++
			reasons = append(reasons, "macd histogram negative")
		}
	}
	if s.cfg.UseBollinger {
		total++
		if price > ind.BBUpper {
			matched++
			reasons = append(reasons, "price above upper band")
		}
	}
	total++
	if ind.Score <= s.cfg.SellScoreMax {
		matched++
		reasons = append(reasons, fmt.Sprintf("score %.1f <= %.1f", ind.Score, s.cfg.SellScoreMax))
	}

	return Decision{
		Triggered: matched >= majority(total),
		Matched:   matched,
		Total:     total,
		Reasons:   reasons,
	}
}

// CalcDCAAmount walks the ladder from the largest drop downward and fires
// the first unconsumed level whose drop threshold the current drawdown has
// reached, provided the cumulative invested ratio stays under the ceiling.
// A level fires at most once per position lifetime.
func (s *Strategy) CalcDCAAmount(seedKRW, entryPrice, currentPrice float64) float64 {
	if entryPrice <= 0 || currentPrice <= 0 {
		return 0
	}
	dropPct := (entryPrice - currentPrice) / entryPrice * 100
	for _, lvl := range s.levels {
		if dropPct < lvl.DropPct || s.consumed[lvl.DropPct] {
			continue
		}
		next := decimal.NewFromFloat(s.investedRatio).Add(decimal.NewFromFloat(lvl.InvestRatio))
		if next.GreaterThan(decimal.NewFromFloat(s.cfg.MaxTotalRatio)) {
			continue
		}
		s.consumed[lvl.DropPct] = true
		s.investedRatio, _ = next.Float64()
		amount, _ := decimal.NewFromFloat(seedKRW).Mul(decimal.NewFromFloat(lvl.InvestRatio)).Float64()
		return amount
	}
	return 0
}

// MarkEntry records the base entry commitment so DCA additions respect the
// total ceiling from the first fill onward.
func (s *Strategy) MarkEntry() {
	s.investedRatio = s.cfg.BaseInvestRatio
}

// ResetPosition clears consumed DCA levels, the invested ratio and the
// high-water price when the position closes.
func (s *Strategy) ResetPosition() {
	s.consumed = make(map[float64]bool)
	s.investedRatio = 0
	s.highWater = 0
}

func majority(total int) int {
	if total <= 1 {
		return 1
	}
	return total / 2
}
