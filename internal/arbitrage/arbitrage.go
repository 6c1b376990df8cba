package arbitrage

import (
	"fmt"
	"time"
)

// Trade directions, determined entirely by the premium sign.
const (
	DirBuyForeignSellDomestic  = "buy_foreign_sell_domestic"
	DirBuyDomesticHedgeForeign = "buy_domestic_hedge_foreign"
)

// Execution statuses. StatusPartial marks a second-leg failure after a
// successful first leg, which must never be conflated with a clean failure.
const (
	StatusPending  = "pending"
	StatusExecuted = "executed"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

const (
	historyCap  = 1000
	historyKeep = 500
)

// Opportunity is one premium evaluation.
type Opportunity struct {
	DomesticPrice float64   `json:"domestic_price"`
	ForeignPrice  float64   `json:"foreign_price"`
	FXRate        float64   `json:"fx_rate"`
	PremiumPct    float64   `json:"premium_pct"`
	FeePct        float64   `json:"fee_pct"`
	NetProfitPct  float64   `json:"net_profit_pct"`
	Profitable    bool      `json:"profitable"`
	Direction     string    `json:"direction"`
	Note          string    `json:"note"`
	Time          time.Time `json:"time"`
}

// Result is the outcome of acting on an opportunity.
type Result struct {
	Opportunity     Opportunity `json:"opportunity"`
	AmountKRW       float64     `json:"amount_krw"`
	Qty             float64     `json:"qty"`
	ExpectedProfit  float64     `json:"expected_profit"`
	DomesticOrderID string      `json:"domestic_order_id"`
	ForeignOrderID  string      `json:"foreign_order_id"`
	Status          string      `json:"status"`
	Error           string      `json:"error,omitempty"`
	Time            time.Time   `json:"time"`
}

// Stats summarizes the rolling history.
type Stats struct {
	Checks      int     `json:"checks"`
	Profitable  int     `json:"profitable"`
	AvgPremium  float64 `json:"avg_premium"`
	LastPremium float64 `json:"last_premium"`
	Executions  int     `json:"executions"`
	Partials    int     `json:"partials"`
	Failures    int     `json:"failures"`
}

// Config tunes the monitor.
type Config struct {
	DomesticSymbol string  `mapstructure:"domestic_symbol" json:"domestic_symbol"`
	ForeignSymbol  string  `mapstructure:"foreign_symbol" json:"foreign_symbol"`
	MinProfitPct   float64 `mapstructure:"min_profit_pct" json:"min_profit_pct"`
	TradeAmountKRW float64 `mapstructure:"trade_amount_krw" json:"trade_amount_krw"`
	AutoTrade      bool    `mapstructure:"auto_trade" json:"auto_trade"`
	DryRun         bool    `mapstructure:"dry_run" json:"dry_run"`
}

func DefaultConfig() Config {
	return Config{
		DomesticSymbol: "KRW-BTC",
		ForeignSymbol:  "BTCUSDT",
		MinProfitPct:   0.5,
		TradeAmountKRW: 100000,
		AutoTrade:      false,
		DryRun:         true,
	}
}

func (c *Config) Validate() error {
	if c.DomesticSymbol == "" || c.ForeignSymbol == "" {
		return fmt.Errorf("arbitrage symbols are required")
	}
	if c.MinProfitPct < 0 {
		return fmt.Errorf("arbitrage.min_profit_pct must be >= 0")
	}
	if c.TradeAmountKRW <= 0 {
		return fmt.Errorf("arbitrage.trade_amount_krw must be > 0")
	}
	return nil
}
