package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"kisfeed/pkg/confkit"
	"kisfeed/pkg/kis"
)

// FetchResult is one adapter invocation's outcome. Skipped marks fast no-ops
// (closed market, per-minute dedup, cursor priming) that must not enter the
// retry ladder; an empty non-skipped result is a failure.
type FetchResult struct {
	Records []Record
	Skipped bool
}

// Fetcher pulls one cycle's worth of data for a single subscription.
type Fetcher interface {
	Label() string
	Fetch(ctx context.Context) (FetchResult, error)
}

// BuildDeps carries the collaborators adapters need.
type BuildDeps struct {
	Client *kis.Client
	Clock  *Clock
}

// FetcherBuilder constructs a Fetcher from a subscription.
type FetcherBuilder func(deps BuildDeps, sub Subscription) (Fetcher, error)

var (
	fetcherRegistry   = make(map[DataKind]FetcherBuilder)
	fetcherRegistryMu sync.RWMutex
)

// RegisterFetcher registers an adapter constructor for a data kind.
func RegisterFetcher(kind DataKind, builder FetcherBuilder) {
	fetcherRegistryMu.Lock()
	defer fetcherRegistryMu.Unlock()
	fetcherRegistry[kind] = builder
}

func lookupFetcherBuilder(kind DataKind) (FetcherBuilder, bool) {
	fetcherRegistryMu.RLock()
	defer fetcherRegistryMu.RUnlock()
	builder, ok := fetcherRegistry[kind]
	return builder, ok
}

// PollConfig tunes the orchestrator loop.
type PollConfig struct {
	OffsetRaw string        `yaml:"offset"`
	Offset    time.Duration `yaml:"-"`
	PauseRaw  string        `yaml:"pause"`
	Pause     time.Duration `yaml:"-"`

	RetryAttempts int `yaml:"retry_attempts"`
}

// Config describes the subscription list and polling cadence.
type Config struct {
	Subscriptions []Subscription `yaml:"subscriptions"`
	Poll          PollConfig     `yaml:"poll"`
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read feed config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal feed config: %w", err)
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
	if c.Poll.OffsetRaw != "" {
		d, err := time.ParseDuration(c.Poll.OffsetRaw)
		if err != nil {
			return fmt.Errorf("feed config: invalid poll offset %q: %w", c.Poll.OffsetRaw, err)
		}
		c.Poll.Offset = d
	} else {
		c.Poll.Offset = 2 * time.Second
	}
	if c.Poll.PauseRaw != "" {
		d, err := time.ParseDuration(c.Poll.PauseRaw)
		if err != nil {
			return fmt.Errorf("feed config: invalid poll pause %q: %w", c.Poll.PauseRaw, err)
		}
		c.Poll.Pause = d
	} else {
		c.Poll.Pause = 500 * time.Millisecond
	}
	if c.Poll.RetryAttempts == 0 {
		c.Poll.RetryAttempts = 10
	}
	for i := range c.Subscriptions {
		sub := &c.Subscriptions[i]
		sub.Symbol = strings.TrimSpace(os.ExpandEnv(sub.Symbol))
		sub.Maturity = strings.TrimSpace(os.ExpandEnv(sub.Maturity))
		if sub.Timeframe == 0 {
			sub.Timeframe = 1
		}
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Subscriptions) == 0 {
		return fmt.Errorf("feed config: subscriptions cannot be empty")
	}
	if c.Poll.RetryAttempts < 0 {
		return fmt.Errorf("feed config: retry_attempts must not be negative")
	}
	for i, sub := range c.Subscriptions {
		if _, ok := lookupFetcherBuilder(sub.DataKind); !ok {
			return fmt.Errorf("feed config: subscription %d has unsupported kind %q", i, sub.DataKind)
		}
		switch sub.DataKind {
		case KindStockCandle, KindDerivCandle:
			if sub.Symbol == "" {
				return fmt.Errorf("feed config: subscription %d (%s) requires symbol", i, sub.DataKind)
			}
		case KindOptionChain:
			if sub.Maturity == "" {
				return fmt.Errorf("feed config: subscription %d (option_chain) requires maturity", i)
			}
		}
	}
	return nil
}

// BuildFetchers instantiates adapters for every subscription.
func (c *Config) BuildFetchers(deps BuildDeps) ([]Fetcher, error) {
	fetchers := make([]Fetcher, 0, len(c.Subscriptions))
	for i, sub := range c.Subscriptions {
		builder, ok := lookupFetcherBuilder(sub.DataKind)
		if !ok {
			return nil, fmt.Errorf("feed: subscription %d has unsupported kind %q", i, sub.DataKind)
		}
		fetcher, err := builder(deps, sub)
		if err != nil {
			return nil, fmt.Errorf("feed: subscription %s: %w", sub.Label(), err)
		}
		fetchers = append(fetchers, fetcher)
	}
	return fetchers, nil
}
