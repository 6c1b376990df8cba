package user

import "fmt"

// DropLevel is one rung of the DCA ladder: when the drawdown from entry
// reaches DropPct, an extra InvestRatio of seed capital may be added.
type DropLevel struct {
	DropPct     float64 `mapstructure:"drop_pct" json:"drop_pct"`
	InvestRatio float64 `mapstructure:"invest_ratio" json:"invest_ratio"`
}

// Config is the user-declared rule set. Each buy/sell condition can be
// toggled independently; the composite-score condition is always counted.
// All *Pct fields are whole percentages (3 means 3%).
type Config struct {
	UseRSI       bool    `mapstructure:"use_rsi" json:"use_rsi"`
	BuyRSIBelow  float64 `mapstructure:"buy_rsi_below" json:"buy_rsi_below"`
	SellRSIAbove float64 `mapstructure:"sell_rsi_above" json:"sell_rsi_above"`

	UseMACD      bool `mapstructure:"use_macd" json:"use_macd"`
	UseBollinger bool `mapstructure:"use_bollinger" json:"use_bollinger"`
	UseVolume    bool `mapstructure:"use_volume" json:"use_volume"`

	BuyScoreMin  float64 `mapstructure:"buy_score_min" json:"buy_score_min"`
	SellScoreMax float64 `mapstructure:"sell_score_max" json:"sell_score_max"`

	StopLossPct     float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct" json:"take_profit_pct"`
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct" json:"trailing_stop_pct"`

	BaseInvestRatio float64     `mapstructure:"base_invest_ratio" json:"base_invest_ratio"`
	MaxTotalRatio   float64     `mapstructure:"max_total_ratio" json:"max_total_ratio"`
	DCALevels       []DropLevel `mapstructure:"dca_levels" json:"dca_levels"`
}

// DefaultConfig enables every condition with moderate thresholds and a
// three-rung DCA ladder.
func DefaultConfig() Config {
	return Config{
		UseRSI:          true,
		BuyRSIBelow:     30,
		SellRSIAbove:    70,
		UseMACD:         true,
		UseBollinger:    true,
		UseVolume:       true,
		BuyScoreMin:     40,
		SellScoreMax:    -40,
		StopLossPct:     5,
		TakeProfitPct:   10,
		TrailingStopPct: 3,
		BaseInvestRatio: 0.20,
		MaxTotalRatio:   0.80,
		DCALevels: []DropLevel{
			{DropPct: 3, InvestRatio: 0.10},
			{DropPct: 5, InvestRatio: 0.15},
			{DropPct: 10, InvestRatio: 0.20},
		},
	}
}

func (c *Config) Validate() error {
	if c.UseRSI {
		if c.BuyRSIBelow <= 0 || c.BuyRSIBelow >= 100 {
			return fmt.Errorf("user.buy_rsi_below must be in (0, 100)")
		}
		if c.SellRSIAbove <= 0 || c.SellRSIAbove >= 100 {
			return fmt.Errorf("user.sell_rsi_above must be in (0, 100)")
		}
	}
	if c.SellScoreMax >= c.BuyScoreMin {
		return fmt.Errorf("user.sell_score_max must be below buy_score_min")
	}
	if c.StopLossPct < 0 || c.TakeProfitPct < 0 || c.TrailingStopPct < 0 {
		return fmt.Errorf("user risk percentages must be >= 0")
	}
	if c.BaseInvestRatio <= 0 || c.BaseInvestRatio > 1 {
		return fmt.Errorf("user.base_invest_ratio must be in (0, 1]")
	}
	if c.MaxTotalRatio < c.BaseInvestRatio || c.MaxTotalRatio > 1 {
		return fmt.Errorf("user.max_total_ratio must be in [base_invest_ratio, 1]")
	}
	for _, lvl := range c.DCALevels {
		if lvl.DropPct <= 0 {
			return fmt.Errorf("user.dca_levels.drop_pct must be > 0")
		}
		if lvl.InvestRatio <= 0 {
			return fmt.Errorf("user.dca_levels.invest_ratio must be > 0")
		}
	}
	return nil
}
