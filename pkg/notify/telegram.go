package notify

import (
	"fmt"
	"io"
	"os"
	"strings"

	tele "gopkg.in/telebot.v3"
	"gopkg.in/yaml.v3"

	"kisfeed/pkg/confkit"
	"kisfeed/pkg/dolpha"
)

// Config identifies the Telegram bot and target chat.
type Config struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// LoadConfig reads notifier configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notify config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notify config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal notify config: %w", err)
	}
	cfg.Token = strings.TrimSpace(os.ExpandEnv(cfg.Token))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the notifier can authenticate and address a chat.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("notify config: token is required")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("notify config: chat_id is required")
	}
	return nil
}

// Notifier pushes alert messages to a single Telegram chat.
type Notifier struct {
	bot  *tele.Bot
	chat tele.ChatID
}

// Option adjusts bot construction.
type Option func(*tele.Settings)

// WithAPIURL points the bot at a different API host.
func WithAPIURL(url string) Option {
	return func(s *tele.Settings) { s.URL = url }
}

// New builds a send-only Telegram notifier.
func New(cfg *Config, opts ...Option) (*Notifier, error) {
	settings := tele.Settings{Token: cfg.Token}
	for _, opt := range opts {
		opt(&settings)
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("notify: create bot: %w", err)
	}
	return &Notifier{bot: bot, chat: tele.ChatID(cfg.ChatID)}, nil
}

// Send delivers a plain text message to the configured chat.
func (n *Notifier) Send(text string) error {
	if _, err := n.bot.Send(n.chat, text); err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}

// Signal formats and delivers a strategy signal alert.
func (n *Notifier) Signal(sig dolpha.Signal) error {
	return n.Send(FormatSignal(sig))
}

// FormatSignal renders a signal into the alert message body.
func FormatSignal(sig dolpha.Signal) string {
	direction := "flat"
	switch {
	case sig.Trade > 0:
		direction = "LONG"
	case sig.Trade < 0:
		direction = "SHORT"
	}
	return fmt.Sprintf(
		"[dolpha1] %s %s\n%s KST\nclose=%.2f ub=%.2f lb=%.2f vwap=%.2f\nreason=%s",
		sig.Symbol, direction,
		sig.Timestamp.Format("2006-01-02 15:04"),
		sig.Close, sig.UpperBand, sig.LowerBand, sig.VWAP,
		sig.Reason,
	)
}
