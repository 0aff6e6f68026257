package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"kisfeed/pkg/dolpha"
	"kisfeed/pkg/feed"
)

// Redis payloads are msgpack-encoded with flat, tagged structs so that
// non-Go consumers can decode them. Timestamps travel as unix seconds.

type barPayload struct {
	Symbol    string  `msgpack:"symbol"`
	Timestamp int64   `msgpack:"ts"`
	Timeframe int     `msgpack:"tf"`
	Open      float64 `msgpack:"o"`
	High      float64 `msgpack:"h"`
	Low       float64 `msgpack:"l"`
	Close     float64 `msgpack:"c"`
	Volume    int64   `msgpack:"v"`
	Market    string  `msgpack:"market"`
}

// EncodeBar serialises a completed bar for the latest-bar key.
func EncodeBar(bar feed.Bar) ([]byte, error) {
	return msgpack.Marshal(barPayload{
		Symbol:    bar.Symbol,
		Timestamp: bar.Timestamp.Unix(),
		Timeframe: bar.Timeframe,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		Market:    string(bar.Market),
	})
}

// DecodeBar deserialises a latest-bar payload.
func DecodeBar(data []byte) (feed.Bar, error) {
	var p barPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return feed.Bar{}, fmt.Errorf("cache: decode bar: %w", err)
	}
	return feed.Bar{
		Symbol:    p.Symbol,
		Timestamp: time.Unix(p.Timestamp, 0).In(feed.KST),
		Timeframe: p.Timeframe,
		Open:      p.Open,
		High:      p.High,
		Low:       p.Low,
		Close:     p.Close,
		Volume:    p.Volume,
		Market:    feed.MarketKind(p.Market),
	}, nil
}

type matrixPayload struct {
	Timestamp  int64     `msgpack:"ts"`
	Underlying string    `msgpack:"underlying"`
	Price      float64   `msgpack:"price"`
	Metric     string    `msgpack:"metric"`
	Columns    []string  `msgpack:"columns"`
	Values     []float64 `msgpack:"values"`
}

// EncodeMatrixRow serialises one metric row of an option matrix.
func EncodeMatrixRow(row feed.MatrixRow) ([]byte, error) {
	return msgpack.Marshal(matrixPayload{
		Timestamp:  row.Timestamp.Unix(),
		Underlying: row.UnderlyingSymbol,
		Price:      row.UnderlyingPrice,
		Metric:     row.MetricType,
		Columns:    feed.MatrixColumns(),
		Values:     row.Values,
	})
}

// DecodeMatrixRow deserialises a matrix row payload.
func DecodeMatrixRow(data []byte) (feed.MatrixRow, error) {
	var p matrixPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return feed.MatrixRow{}, fmt.Errorf("cache: decode matrix row: %w", err)
	}
	return feed.MatrixRow{
		Timestamp:        time.Unix(p.Timestamp, 0).In(feed.KST),
		UnderlyingSymbol: p.Underlying,
		UnderlyingPrice:  p.Price,
		MetricType:       p.Metric,
		Values:           p.Values,
	}, nil
}

type signalPayload struct {
	Timestamp   int64   `msgpack:"ts"`
	Symbol      string  `msgpack:"symbol"`
	Close       float64 `msgpack:"close"`
	VWAP        float64 `msgpack:"vwap"`
	ATR         float64 `msgpack:"atr"`
	MoveOpen    float64 `msgpack:"move_open"`
	SigmaOpen   float64 `msgpack:"sigma_open"`
	UpperBand   float64 `msgpack:"ub"`
	LowerBand   float64 `msgpack:"lb"`
	MinFromOpen int     `msgpack:"min_from_open"`
	Monitor     int     `msgpack:"monitor"`
	Trade       int     `msgpack:"trade"`
	Reason      string  `msgpack:"reason"`
}

// EncodeSignal serialises a strategy evaluation for the latest-signal key.
func EncodeSignal(sig dolpha.Signal) ([]byte, error) {
	return msgpack.Marshal(signalPayload{
		Timestamp:   sig.Timestamp.Unix(),
		Symbol:      sig.Symbol,
		Close:       sig.Close,
		VWAP:        sig.VWAP,
		ATR:         sig.ATR,
		MoveOpen:    sig.MoveOpen,
		SigmaOpen:   sig.SigmaOpen,
		UpperBand:   sig.UpperBand,
		LowerBand:   sig.LowerBand,
		MinFromOpen: sig.MinFromOpen,
		Monitor:     sig.Monitor,
		Trade:       sig.Trade,
		Reason:      sig.Reason,
	})
}

// DecodeSignal deserialises a latest-signal payload.
func DecodeSignal(data []byte) (dolpha.Signal, error) {
	var p signalPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return dolpha.Signal{}, fmt.Errorf("cache: decode signal: %w", err)
	}
	return dolpha.Signal{
		Timestamp:   time.Unix(p.Timestamp, 0).In(feed.KST),
		Symbol:      p.Symbol,
		Close:       p.Close,
		VWAP:        p.VWAP,
		ATR:         p.ATR,
		MoveOpen:    p.MoveOpen,
		SigmaOpen:   p.SigmaOpen,
		UpperBand:   p.UpperBand,
		LowerBand:   p.LowerBand,
		MinFromOpen: p.MinFromOpen,
		Monitor:     p.Monitor,
		Trade:       p.Trade,
		Reason:      p.Reason,
	}, nil
}
