package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.App.Listen, "unset fields keep defaults")
	assert.Equal(t, 30, cfg.Engine.IntervalSec)
	assert.Equal(t, "KRW-BTC", cfg.Auto.Symbol)
	assert.True(t, cfg.Engine.DryRun)
}

func TestLoadOverridesSections(t *testing.T) {
	path := writeConfig(t, `
engine:
  interval_sec: 15
  seed_krw: 2000000
auto:
  symbol: KRW-ETH
  min_score_buy: 50
  rsi_dca_tiers:
    - below: 35
      extra_ratio: 0.07
arbitrage:
  min_profit_pct: 1.5
  auto_trade: true
upbit:
  access_key: ak
  secret_key: sk
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Engine.IntervalSec)
	assert.Equal(t, 2000000.0, cfg.Engine.SeedKRW)
	assert.Equal(t, "KRW-ETH", cfg.Auto.Symbol)
	assert.Equal(t, 50.0, cfg.Auto.MinScoreBuy)
	require.Len(t, cfg.Auto.RSITiers, 1)
	assert.Equal(t, 35.0, cfg.Auto.RSITiers[0].Below)
	assert.True(t, cfg.Arbitrage.AutoTrade)
	assert.Equal(t, "ak", cfg.Upbit.AccessKey)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"zero interval": `
engine:
  interval_sec: 0
`,
		"buy below sell": `
auto:
  min_score_buy: -50
  max_score_sell: 40
`,
		"bad dca level": `
user:
  dca_levels:
    - drop_pct: -3
      invest_ratio: 0.1
`,
		"bad trade amount": `
arbitrage:
  trade_amount_krw: 0
`,
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
