package feedstore

import (
	"fmt"
	"strings"

	"kisfeed/pkg/feed"
)

const (
	stockBarTable  = "stocks_1m"
	signalTable    = "dolpha1_signal"
	statusTable    = "system_status"
	futuresPrefix  = "futures_"
	matrixPrefix   = "option_matrices_"
	futuresRootLen = 3
)

// TableFor routes a symbol to its bar table. Derivative bars share one table
// per product root (the first three characters of the series code), stock
// bars all land in stocks_1m.
func TableFor(symbol string, market feed.MarketKind) string {
	if market == feed.MarketDeriv {
		root := symbol
		if len(root) > futuresRootLen {
			root = root[:futuresRootLen]
		}
		return futuresPrefix + sanitizeIdent(root)
	}
	return stockBarTable
}

// TableForBar routes a completed bar to its destination table.
func TableForBar(bar feed.Bar) string {
	return TableFor(bar.Symbol, bar.Market)
}

// MatrixTable returns the per-underlying matrix table name.
func MatrixTable(underlying string) string {
	return matrixPrefix + sanitizeIdent(underlying)
}

// sanitizeIdent lowercases and strips anything unsafe for a SQL identifier.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func barTableDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    timestamp TIMESTAMPTZ NOT NULL,
    symbol TEXT NOT NULL,
    timeframe INT NOT NULL DEFAULT 1,
    open DOUBLE PRECISION NOT NULL,
    high DOUBLE PRECISION NOT NULL,
    low DOUBLE PRECISION NOT NULL,
    close DOUBLE PRECISION NOT NULL,
    volume BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (timestamp, symbol, timeframe)
)`, table)
}

func matrixTableDDL(table string) string {
	cols := make([]string, 0, len(feed.MatrixColumns()))
	for _, col := range feed.MatrixColumns() {
		cols = append(cols, fmt.Sprintf("    %s DOUBLE PRECISION", strings.ToLower(col)))
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    timestamp TIMESTAMPTZ NOT NULL,
    underlying_symbol TEXT NOT NULL,
    underlying_price DOUBLE PRECISION,
    metric_type TEXT NOT NULL,
%s,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (timestamp, underlying_symbol, metric_type)
)`, table, strings.Join(cols, ",\n"))
}

func signalTableDDL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    timestamp TIMESTAMPTZ NOT NULL,
    symbol TEXT NOT NULL,
    close DOUBLE PRECISION,
    vwap DOUBLE PRECISION,
    atr DOUBLE PRECISION,
    move_open DOUBLE PRECISION,
    sigma_open DOUBLE PRECISION,
    upper_band DOUBLE PRECISION,
    lower_band DOUBLE PRECISION,
    min_from_open INT,
    monitor INT NOT NULL DEFAULT 0,
    trade INT NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT 'none',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (timestamp, symbol)
)`, signalTable)
}

func statusTableDDL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    component TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    detail TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, statusTable)
}
