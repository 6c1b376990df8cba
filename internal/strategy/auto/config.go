package auto

import "fmt"

// RSITier adds extra invest ratio when RSI sits below a threshold at entry.
type RSITier struct {
	Below      float64 `mapstructure:"below" json:"below"`
	ExtraRatio float64 `mapstructure:"extra_ratio" json:"extra_ratio"`
}

// Config enumerates every tunable of the rule-based strategy. A config is
// immutable per cycle; replacing it never mutates an in-flight position.
// All *Pct fields are whole percentages (3 means 3%).
type Config struct {
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Interval string `mapstructure:"interval" json:"interval"`

	BaseInvestRatio float64 `mapstructure:"base_invest_ratio" json:"base_invest_ratio"`
	MaxInvestRatio  float64 `mapstructure:"max_invest_ratio" json:"max_invest_ratio"`

	MinScoreBuy  float64 `mapstructure:"min_score_buy" json:"min_score_buy"`
	MaxScoreSell float64 `mapstructure:"max_score_sell" json:"max_score_sell"`

	StopLossPct     float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct" json:"take_profit_pct"`
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct" json:"trailing_stop_pct"`

	RSITiers []RSITier `mapstructure:"rsi_dca_tiers" json:"rsi_dca_tiers"`

	CooldownSec int `mapstructure:"cooldown_sec" json:"cooldown_sec"`
}

// DefaultConfig mirrors the conservative KRW-BTC defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:          "KRW-BTC",
		Interval:        "15m",
		BaseInvestRatio: 0.10,
		MaxInvestRatio:  0.50,
		MinScoreBuy:     40,
		MaxScoreSell:    -40,
		StopLossPct:     3,
		TakeProfitPct:   5,
		TrailingStopPct: 2,
		RSITiers: []RSITier{
			{Below: 40, ExtraRatio: 0.05},
			{Below: 30, ExtraRatio: 0.10},
			{Below: 20, ExtraRatio: 0.15},
		},
		CooldownSec: 300,
	}
}

func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("auto.symbol is required")
	}
	if c.BaseInvestRatio <= 0 || c.BaseInvestRatio > 1 {
		return fmt.Errorf("auto.base_invest_ratio must be in (0, 1]")
	}
	if c.MaxInvestRatio < c.BaseInvestRatio || c.MaxInvestRatio > 1 {
		return fmt.Errorf("auto.max_invest_ratio must be in [base_invest_ratio, 1]")
	}
	if c.MaxScoreSell >= c.MinScoreBuy {
		return fmt.Errorf("auto.max_score_sell must be below min_score_buy")
	}
	if c.StopLossPct < 0 || c.TakeProfitPct < 0 || c.TrailingStopPct < 0 {
		return fmt.Errorf("auto risk percentages must be >= 0")
	}
	for _, tier := range c.RSITiers {
		if tier.Below <= 0 || tier.Below >= 100 {
			return fmt.Errorf("auto.rsi_dca_tiers.below must be in (0, 100)")
		}
		if tier.ExtraRatio < 0 {
			return fmt.Errorf("auto.rsi_dca_tiers.extra_ratio must be >= 0")
		}
	}
	if c.CooldownSec < 0 {
		return fmt.Errorf("auto.cooldown_sec must be >= 0")
	}
	return nil
}
