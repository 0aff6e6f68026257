package dolpha

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "106W09", cfg.Symbol)
	require.Equal(t, 10, cfg.ATRPeriod)
	require.Equal(t, 5, cfg.RollingMove)
	require.Equal(t, 1.0, cfg.BandMultiplier)
	require.Equal(t, 5, cfg.ObserveInterval)
	require.Equal(t, 30, cfg.LookbackDays)
	require.Equal(t, 3, cfg.MinPeriods) // max(5/2, 3)
	require.True(t, cfg.UseVWAP)
	require.True(t, cfg.Backfill)
	require.True(t, cfg.BackfillHistory)
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(`
symbol: "101W09"
atr_period: 14
rolling_move: 10
band_multiplier: 1.5
use_vwap: true
observe_interval: 3
min_periods: 4
backfill: false
backfill_history: false
`))
	require.NoError(t, err)
	require.Equal(t, "101W09", cfg.Symbol)
	require.Equal(t, 14, cfg.ATRPeriod)
	require.Equal(t, 10, cfg.RollingMove)
	require.Equal(t, 1.5, cfg.BandMultiplier)
	require.True(t, cfg.UseVWAP)
	require.Equal(t, 3, cfg.ObserveInterval)
	require.Equal(t, 4, cfg.MinPeriods)
	require.False(t, cfg.Backfill)
	require.False(t, cfg.BackfillHistory)
}

func TestLoadConfig_BoolTogglesAreIndependent(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("backfill: false"))
	require.NoError(t, err)
	require.False(t, cfg.Backfill)
	require.True(t, cfg.BackfillHistory)
	require.True(t, cfg.UseVWAP)

	cfg, err = LoadConfigFromReader(strings.NewReader("backfill_history: false"))
	require.NoError(t, err)
	require.True(t, cfg.Backfill)
	require.False(t, cfg.BackfillHistory)

	cfg, err = LoadConfigFromReader(strings.NewReader("use_vwap: false"))
	require.NoError(t, err)
	require.False(t, cfg.UseVWAP)
	require.True(t, cfg.Backfill)
}

func TestLoadConfig_DerivedMinPeriods(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("rolling_move: 12"))
	require.NoError(t, err)
	require.Equal(t, 6, cfg.MinPeriods)
}

func TestLoadConfig_RejectsNegativeMultiplier(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("band_multiplier: -0.5"))
	require.Error(t, err)
}

func TestLoadConfig_ExpandsEnvSymbol(t *testing.T) {
	t.Setenv("DOLPHA_SYMBOL", "105W09")
	cfg, err := LoadConfigFromReader(strings.NewReader(`symbol: "${DOLPHA_SYMBOL}"`))
	require.NoError(t, err)
	require.Equal(t, "105W09", cfg.Symbol)
}
