package kis

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kisfeed/pkg/confkit"
)

// Default transaction IDs for the domestic REST endpoints. Overridable per
// deployment because paper-trading accounts use a different ID set.
const (
	defaultStockMinuteTRID  = "FHKST03010200"
	defaultDerivMinuteTRID  = "FHKIF03020200"
	defaultOptionChainTRID  = "FHlkPIF05030100"
	defaultDerivOrderTRID   = "TTTO1101U"
	defaultDerivBalanceTRID = "CTFO6118R"
)

// TRIDs carries the per-endpoint transaction IDs.
type TRIDs struct {
	StockMinute  string `yaml:"stock_minute"`
	DerivMinute  string `yaml:"deriv_minute"`
	OptionChain  string `yaml:"option_chain"`
	DerivOrder   string `yaml:"deriv_order"`
	DerivBalance string `yaml:"deriv_balance"`
}

// Config describes credentials and endpoint settings for the brokerage API.
type Config struct {
	BaseURL      string `yaml:"base_url"`
	AppKey       string `yaml:"app_key"`
	AppSecret    string `yaml:"app_secret"`
	AccountNo    string `yaml:"account_no"`
	AccountNoSub string `yaml:"account_no_sub"`
	TokenFile    string `yaml:"token_file"`

	TRID TRIDs `yaml:"tr_id"`

	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	MaxRetries     int           `yaml:"max_retries"`
}

// AccountNumber joins the account number and its product suffix.
func (c *Config) AccountNumber() string {
	if c.AccountNoSub == "" {
		return c.AccountNo
	}
	return fmt.Sprintf("%s-%s", c.AccountNo, c.AccountNoSub)
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kis config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read kis config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal kis config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	c.BaseURL = strings.TrimSpace(os.ExpandEnv(c.BaseURL))
	c.AppKey = strings.TrimSpace(os.ExpandEnv(c.AppKey))
	c.AppSecret = strings.TrimSpace(os.ExpandEnv(c.AppSecret))
	c.AccountNo = strings.TrimSpace(os.ExpandEnv(c.AccountNo))
	c.AccountNoSub = strings.TrimSpace(os.ExpandEnv(c.AccountNoSub))
	c.TokenFile = strings.TrimSpace(os.ExpandEnv(c.TokenFile))
	c.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.HTTPTimeoutRaw))

	if c.TRID.StockMinute == "" {
		c.TRID.StockMinute = defaultStockMinuteTRID
	}
	if c.TRID.DerivMinute == "" {
		c.TRID.DerivMinute = defaultDerivMinuteTRID
	}
	if c.TRID.OptionChain == "" {
		c.TRID.OptionChain = defaultOptionChainTRID
	}
	if c.TRID.DerivOrder == "" {
		c.TRID.DerivOrder = defaultDerivOrderTRID
	}
	if c.TRID.DerivBalance == "" {
		c.TRID.DerivBalance = defaultDerivBalanceTRID
	}

	if c.HTTPTimeoutRaw != "" {
		d, err := time.ParseDuration(c.HTTPTimeoutRaw)
		if err != nil {
			return fmt.Errorf("kis config: invalid http_timeout %q: %w", c.HTTPTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("kis config: http_timeout must be positive, got %s", d)
		}
		c.HTTPTimeout = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("kis config: base_url is required")
	}
	if c.AppKey == "" || c.AppSecret == "" {
		return fmt.Errorf("kis config: app_key and app_secret are required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("kis config: max_retries must not be negative")
	}
	return nil
}
