package feed

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// matrixDepth is how many strikes either side of ATM a matrix row carries.
const matrixDepth = 10

// MatrixMetrics lists the per-strike measures extracted from a chain
// snapshot, in persistence order.
var MatrixMetrics = []string{
	"iv", "delta", "gamma", "vega", "theta", "rho",
	"price", "volume", "open_interest",
}

// Matrix is a chain snapshot pivoted into metric rows over a fixed strike
// grid. Columns run C_ITM10..C_ITM1, C_ATM, C_OTM1..C_OTM10 and the same for
// puts; strikes beyond the board's depth hold NaN.
type Matrix struct {
	Timestamp        time.Time
	UnderlyingSymbol string
	UnderlyingPrice  float64

	// Values maps metric -> column -> value.
	Values map[string]map[string]float64
}

// MatrixRow is one metric of a matrix flattened for persistence, with values
// in MatrixColumns order.
type MatrixRow struct {
	Timestamp        time.Time
	UnderlyingSymbol string
	UnderlyingPrice  float64
	MetricType       string
	Values           []float64
}

var matrixColumns = buildColumnNames()

// MatrixColumns returns the 42 column names in grid order.
func MatrixColumns() []string {
	cols := make([]string, len(matrixColumns))
	copy(cols, matrixColumns)
	return cols
}

func buildColumnNames() []string {
	cols := make([]string, 0, 2*(2*matrixDepth+1))
	for _, side := range []string{"C", "P"} {
		for i := matrixDepth; i >= 1; i-- {
			cols = append(cols, fmt.Sprintf("%s_ITM%d", side, i))
		}
		cols = append(cols, side+"_ATM")
		for i := 1; i <= matrixDepth; i++ {
			cols = append(cols, fmt.Sprintf("%s_OTM%d", side, i))
		}
	}
	return cols
}

// BuildMatrix pivots a chain snapshot into the fixed strike grid. An empty
// board, or a populated side without exactly one ATM strike, cannot be
// anchored; such snapshots are skipped rather than treated as errors.
func BuildMatrix(snap ChainSnapshot) (*Matrix, bool) {
	if len(snap.Calls) == 0 && len(snap.Puts) == 0 {
		return nil, false
	}
	callCols, ok := sideColumns(snap.Calls, "C")
	if !ok {
		return nil, false
	}
	putCols, ok := sideColumns(snap.Puts, "P")
	if !ok {
		return nil, false
	}

	m := &Matrix{
		Timestamp:        snap.Timestamp,
		UnderlyingSymbol: snap.UnderlyingSymbol,
		UnderlyingPrice:  snap.UnderlyingPrice,
		Values:           make(map[string]map[string]float64, len(MatrixMetrics)),
	}
	for _, metric := range MatrixMetrics {
		row := make(map[string]float64, len(matrixColumns))
		for _, col := range matrixColumns {
			quote, ok := callCols[col]
			if !ok {
				quote, ok = putCols[col]
			}
			if !ok {
				row[col] = math.NaN()
				continue
			}
			row[col] = metricValue(quote, metric)
		}
		m.Values[metric] = row
	}
	return m, true
}

// sideColumns anchors one side of the board on its ATM strike and lays the
// ITM and OTM quotes outward by distance from it. Calls are in the money
// below the underlying, puts above, so the nearest-first ordering flips
// between sides. An empty side yields no columns; a populated side must
// carry exactly one ATM strike.
func sideColumns(quotes []OptionQuote, side string) (map[string]OptionQuote, bool) {
	if len(quotes) == 0 {
		return nil, true
	}
	var (
		atm      *OptionQuote
		itm, otm []OptionQuote
	)
	for i := range quotes {
		switch quotes[i].ATMClass {
		case "ATM":
			if atm != nil {
				return nil, false
			}
			atm = &quotes[i]
		case "ITM":
			itm = append(itm, quotes[i])
		case "OTM":
			otm = append(otm, quotes[i])
		}
	}
	if atm == nil {
		return nil, false
	}
	callSide := side == "C"
	sort.Slice(itm, func(i, j int) bool {
		if callSide {
			return itm[i].Strike > itm[j].Strike
		}
		return itm[i].Strike < itm[j].Strike
	})
	sort.Slice(otm, func(i, j int) bool {
		if callSide {
			return otm[i].Strike < otm[j].Strike
		}
		return otm[i].Strike > otm[j].Strike
	})

	cols := make(map[string]OptionQuote, 2*matrixDepth+1)
	cols[side+"_ATM"] = *atm
	for i := 0; i < matrixDepth && i < len(itm); i++ {
		cols[fmt.Sprintf("%s_ITM%d", side, i+1)] = itm[i]
	}
	for i := 0; i < matrixDepth && i < len(otm); i++ {
		cols[fmt.Sprintf("%s_OTM%d", side, i+1)] = otm[i]
	}
	return cols, true
}

// Builder keeps the latest matrix per underlying, fed from chain snapshots.
type Builder struct {
	mu      sync.RWMutex
	current map[string]*Matrix
}

// NewBuilder constructs an empty matrix builder.
func NewBuilder() *Builder {
	return &Builder{current: make(map[string]*Matrix)}
}

// Apply pivots a snapshot and replaces the underlying's current matrix.
// Unanchorable snapshots are logged and dropped.
func (b *Builder) Apply(snap ChainSnapshot) (*Matrix, bool) {
	m, ok := BuildMatrix(snap)
	if !ok {
		logx.Infof("matrix %s: snapshot at %s not anchorable, skipped",
			snap.UnderlyingSymbol, snap.Timestamp.Format("15:04"))
		return nil, false
	}
	b.mu.Lock()
	b.current[snap.UnderlyingSymbol] = m
	b.mu.Unlock()
	return m, true
}

// Current returns the latest matrix for an underlying, if any.
func (b *Builder) Current(underlying string) (*Matrix, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.current[underlying]
	return m, ok
}

func metricValue(q OptionQuote, metric string) float64 {
	switch metric {
	case "iv":
		return q.IV
	case "delta":
		return q.Delta
	case "gamma":
		return q.Gamma
	case "vega":
		return q.Vega
	case "theta":
		return q.Theta
	case "rho":
		return q.Rho
	case "price":
		return q.Price
	case "volume":
		return float64(q.Volume)
	case "open_interest":
		return float64(q.OpenInterest)
	}
	return math.NaN()
}

// Rows flattens the matrix into one persistence row per metric.
func (m *Matrix) Rows() []MatrixRow {
	rows := make([]MatrixRow, 0, len(MatrixMetrics))
	for _, metric := range MatrixMetrics {
		values := make([]float64, len(matrixColumns))
		for i, col := range matrixColumns {
			values[i] = m.Values[metric][col]
		}
		rows = append(rows, MatrixRow{
			Timestamp:        m.Timestamp,
			UnderlyingSymbol: m.UnderlyingSymbol,
			UnderlyingPrice:  m.UnderlyingPrice,
			MetricType:       metric,
			Values:           values,
		})
	}
	return rows
}
