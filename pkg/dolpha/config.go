package dolpha

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"kisfeed/pkg/confkit"
)

// Config tunes the volatility-band strategy.
type Config struct {
	Symbol          string  `yaml:"symbol"`
	ATRPeriod       int     `yaml:"atr_period"`
	RollingMove     int     `yaml:"rolling_move"`
	BandMultiplier  float64 `yaml:"band_multiplier"`
	ObserveInterval int     `yaml:"observe_interval"`
	LookbackDays    int     `yaml:"lookback_days"`

	// MinPeriods is the smallest day count a sigma bucket needs before it
	// produces a value; zero derives max(rolling_move/2, 3).
	MinPeriods int `yaml:"min_periods"`

	// UseVWAPRaw gates band crosses on the VWAP side as well; unset means
	// enabled.
	UseVWAPRaw *bool `yaml:"use_vwap"`
	UseVWAP    bool  `yaml:"-"`

	// BackfillRaw toggles back-filling sigma gaps at the start of a day;
	// unset means enabled.
	BackfillRaw *bool `yaml:"backfill"`
	Backfill    bool  `yaml:"-"`

	// BackfillHistoryRaw toggles the daemon's startup fetch of today's
	// session from the vendor; unset means enabled.
	BackfillHistoryRaw *bool `yaml:"backfill_history"`
	BackfillHistory    bool  `yaml:"-"`
}

// LoadConfig reads strategy configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dolpha config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dolpha config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal dolpha config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() {
	c.Symbol = strings.TrimSpace(os.ExpandEnv(c.Symbol))
	if c.Symbol == "" {
		c.Symbol = "106W09"
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = 10
	}
	if c.RollingMove == 0 {
		c.RollingMove = 5
	}
	if c.BandMultiplier == 0 {
		c.BandMultiplier = 1.0
	}
	if c.ObserveInterval == 0 {
		c.ObserveInterval = 5
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 30
	}
	if c.MinPeriods == 0 {
		c.MinPeriods = c.RollingMove / 2
		if c.MinPeriods < 3 {
			c.MinPeriods = 3
		}
	}
	c.UseVWAP = c.UseVWAPRaw == nil || *c.UseVWAPRaw
	c.Backfill = c.BackfillRaw == nil || *c.BackfillRaw
	c.BackfillHistory = c.BackfillHistoryRaw == nil || *c.BackfillHistoryRaw
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.ATRPeriod < 1 {
		return fmt.Errorf("dolpha config: atr_period must be positive")
	}
	if c.RollingMove < 1 {
		return fmt.Errorf("dolpha config: rolling_move must be positive")
	}
	if c.BandMultiplier < 0 {
		return fmt.Errorf("dolpha config: band_multiplier must not be negative")
	}
	if c.ObserveInterval < 1 {
		return fmt.Errorf("dolpha config: observe_interval must be positive")
	}
	if c.MinPeriods < 1 {
		return fmt.Errorf("dolpha config: min_periods must be positive")
	}
	return nil
}

// DefaultConfig returns a Config with every knob at its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.normalise()
	return cfg
}
