package feed

import "time"

// DataKind identifies what a subscription collects.
type DataKind string

const (
	KindStockCandle DataKind = "stock_candle"
	KindDerivCandle DataKind = "deriv_candle"
	KindOptionChain DataKind = "option_chain"
)

// Record is anything the pipeline moves from adapters to consumers.
type Record interface {
	Kind() DataKind
}

// Bar is one completed OHLCV candle. Immutable once emitted.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Timeframe int
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Market    MarketKind
}

// Kind implements Record.
func (b Bar) Kind() DataKind {
	if b.Market == MarketStock {
		return KindStockCandle
	}
	return KindDerivCandle
}

// OptionQuote is one strike entry from a chain snapshot. Ephemeral; consumed
// into a matrix row and discarded.
type OptionQuote struct {
	Symbol       string
	ATMClass     string // "ITM", "ATM" or "OTM"
	Strike       float64
	Price        float64
	IV           float64
	Delta        float64
	Gamma        float64
	Vega         float64
	Theta        float64
	Rho          float64
	Volume       int64
	OpenInterest int64
}

// ChainSnapshot is one point-in-time view of a full option board.
type ChainSnapshot struct {
	Timestamp        time.Time
	UnderlyingSymbol string
	UnderlyingPrice  float64
	Calls            []OptionQuote
	Puts             []OptionQuote
}

// Kind implements Record.
func (s ChainSnapshot) Kind() DataKind { return KindOptionChain }

// Subscription configures one adapter. Immutable after startup.
type Subscription struct {
	DataKind    DataKind `yaml:"kind"`
	Symbol      string   `yaml:"symbol"`
	Timeframe   int      `yaml:"timeframe"`
	DisplayName string   `yaml:"name"`

	// Option chain parameters.
	Maturity    string `yaml:"maturity"`
	MarketClass string `yaml:"market_class"`
}

// Label returns a human readable identifier for logging.
func (s Subscription) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.Symbol != "" {
		return s.Symbol
	}
	return s.Maturity
}
