package feed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quote(class string, strike, delta float64) OptionQuote {
	return OptionQuote{ATMClass: class, Strike: strike, Delta: delta, IV: strike / 1000, Price: strike / 100}
}

func testSnapshot() ChainSnapshot {
	return ChainSnapshot{
		Timestamp:        time.Date(2025, 9, 2, 9, 5, 0, 0, KST),
		UnderlyingSymbol: "106W09",
		UnderlyingPrice:  342.61,
		Calls: []OptionQuote{
			quote("OTM", 345.0, 0.41),
			quote("ITM", 340.0, 0.61),
			quote("ATM", 342.5, 0.52),
			quote("ITM", 337.5, 0.70),
			quote("OTM", 347.5, 0.33),
		},
		Puts: []OptionQuote{
			quote("ITM", 345.0, -0.59),
			quote("ATM", 342.5, -0.48),
			quote("OTM", 340.0, -0.39),
			quote("ITM", 347.5, -0.67),
			quote("OTM", 337.5, -0.30),
		},
	}
}

func TestBuildMatrix_StrikeOrdering(t *testing.T) {
	m, ok := BuildMatrix(testSnapshot())
	require.True(t, ok)

	deltas := m.Values["delta"]
	require.Equal(t, 0.52, deltas["C_ATM"])
	// Call ITM depth counts down in strike away from ATM.
	require.Equal(t, 0.61, deltas["C_ITM1"])
	require.Equal(t, 0.70, deltas["C_ITM2"])
	// Call OTM depth counts up in strike away from ATM.
	require.Equal(t, 0.41, deltas["C_OTM1"])
	require.Equal(t, 0.33, deltas["C_OTM2"])
	// Puts mirror: ITM above ATM, OTM below.
	require.Equal(t, -0.48, deltas["P_ATM"])
	require.Equal(t, -0.59, deltas["P_ITM1"])
	require.Equal(t, -0.67, deltas["P_ITM2"])
	require.Equal(t, -0.39, deltas["P_OTM1"])
	require.Equal(t, -0.30, deltas["P_OTM2"])
}

func TestBuildMatrix_PadsMissingDepthWithNaN(t *testing.T) {
	m, ok := BuildMatrix(testSnapshot())
	require.True(t, ok)
	require.True(t, math.IsNaN(m.Values["delta"]["C_ITM3"]))
	require.True(t, math.IsNaN(m.Values["iv"]["P_OTM10"]))
}

func TestBuildMatrix_SkipsWithoutATMAnchor(t *testing.T) {
	snap := testSnapshot()
	for i := range snap.Puts {
		if snap.Puts[i].ATMClass == "ATM" {
			snap.Puts[i].ATMClass = "ITM"
		}
	}
	_, ok := BuildMatrix(snap)
	require.False(t, ok)
}

func TestBuildMatrix_SkipsDuplicateATM(t *testing.T) {
	snap := testSnapshot()
	snap.Calls = append(snap.Calls, quote("ATM", 342.5, 0.51))
	_, ok := BuildMatrix(snap)
	require.False(t, ok)
}

func TestBuildMatrix_SkipsEmptyBoard(t *testing.T) {
	_, ok := BuildMatrix(ChainSnapshot{UnderlyingSymbol: "106W09"})
	require.False(t, ok)
}

func TestBuildMatrix_OneSidedBoard(t *testing.T) {
	snap := testSnapshot()
	snap.Puts = nil
	m, ok := BuildMatrix(snap)
	require.True(t, ok)
	require.Equal(t, 0.52, m.Values["delta"]["C_ATM"])
	require.True(t, math.IsNaN(m.Values["delta"]["P_ATM"]))
}

func TestBuilder_TracksLatestPerUnderlying(t *testing.T) {
	b := NewBuilder()
	_, ok := b.Current("106W09")
	require.False(t, ok)

	snap := testSnapshot()
	_, applied := b.Apply(snap)
	require.True(t, applied)

	later := testSnapshot()
	later.Timestamp = snap.Timestamp.Add(time.Minute)
	_, applied = b.Apply(later)
	require.True(t, applied)

	m, ok := b.Current("106W09")
	require.True(t, ok)
	require.Equal(t, later.Timestamp, m.Timestamp)

	// An unanchorable snapshot leaves the previous matrix in place.
	bad := testSnapshot()
	bad.Timestamp = later.Timestamp.Add(time.Minute)
	bad.Calls, bad.Puts = nil, nil
	_, applied = b.Apply(bad)
	require.False(t, applied)
	m, _ = b.Current("106W09")
	require.Equal(t, later.Timestamp, m.Timestamp)
}

func TestMatrixColumns_Layout(t *testing.T) {
	cols := MatrixColumns()
	require.Len(t, cols, 42)
	require.Equal(t, "C_ITM10", cols[0])
	require.Equal(t, "C_ATM", cols[10])
	require.Equal(t, "C_OTM10", cols[20])
	require.Equal(t, "P_ITM10", cols[21])
	require.Equal(t, "P_OTM10", cols[41])
}

func TestMatrixRows_FollowColumnOrder(t *testing.T) {
	m, ok := BuildMatrix(testSnapshot())
	require.True(t, ok)
	rows := m.Rows()
	require.Len(t, rows, len(MatrixMetrics))

	byMetric := make(map[string]MatrixRow, len(rows))
	for _, row := range rows {
		require.Len(t, row.Values, 42)
		require.Equal(t, "106W09", row.UnderlyingSymbol)
		byMetric[row.MetricType] = row
	}
	cols := MatrixColumns()
	deltaRow := byMetric["delta"]
	for i, col := range cols {
		want := m.Values["delta"][col]
		if math.IsNaN(want) {
			require.True(t, math.IsNaN(deltaRow.Values[i]))
			continue
		}
		require.Equal(t, want, deltaRow.Values[i])
	}
}
