package kis

import "strconv"

// Envelope is the common response wrapper. rt_cd "0" means success.
type Envelope struct {
	RtCd string `json:"rt_cd"`
	Msg1 string `json:"msg1"`
}

// OK reports whether the response carries a success code.
func (e Envelope) OK() bool {
	return e.RtCd == "0"
}

// StockCandleRow is one minute bar from the stock chart endpoint.
type StockCandleRow struct {
	Date   string `json:"stck_bsop_date"`
	Hour   string `json:"stck_cntg_hour"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Close  string `json:"stck_prpr"`
	Volume string `json:"cntg_vol"`
}

// DerivCandleRow is one minute bar from the futures/options chart endpoint.
type DerivCandleRow struct {
	Date   string `json:"stck_bsop_date"`
	Hour   string `json:"stck_cntg_hour"`
	Open   string `json:"futs_oprc"`
	High   string `json:"futs_hgpr"`
	Low    string `json:"futs_lwpr"`
	Close  string `json:"futs_prpr"`
	Volume string `json:"cntg_vol"`
}

// Key returns the bar's sort key (date + time of day).
func (r StockCandleRow) Key() string { return r.Date + r.Hour }

// OHLCV converts the row's numeric strings.
func (r StockCandleRow) OHLCV() (open, high, low, close float64, volume int64) {
	return parseFloat(r.Open), parseFloat(r.High), parseFloat(r.Low), parseFloat(r.Close), parseInt(r.Volume)
}

// Key returns the bar's sort key (date + time of day).
func (r DerivCandleRow) Key() string { return r.Date + r.Hour }

// OHLCV converts the row's numeric strings.
func (r DerivCandleRow) OHLCV() (open, high, low, close float64, volume int64) {
	return parseFloat(r.Open), parseFloat(r.High), parseFloat(r.Low), parseFloat(r.Close), parseInt(r.Volume)
}

// StockChartResponse wraps the stock minute-chart payload.
type StockChartResponse struct {
	Envelope
	Output2 []StockCandleRow `json:"output2"`
}

// DerivChartResponse wraps the derivatives minute-chart payload.
type DerivChartResponse struct {
	Envelope
	Output2 []DerivCandleRow `json:"output2"`
}

// OptionRow is one strike entry on the call/put display board.
// output1 carries calls, output2 carries puts.
type OptionRow struct {
	Symbol          string `json:"optn_shrn_iscd"`
	ATMClass        string `json:"atm_cls_name"`
	Strike          string `json:"acpr"`
	Price           string `json:"optn_prpr"`
	IV              string `json:"hts_ints_vltl"`
	Delta           string `json:"delta_val"`
	Gamma           string `json:"gama"`
	Vega            string `json:"vega"`
	Theta           string `json:"theta"`
	Rho             string `json:"rho"`
	Volume          string `json:"acml_vol"`
	OpenInterest    string `json:"hts_otst_stpl_qty"`
	UnderlyingPrice string `json:"unch_prpr"`
}

// Floats converts the row's numeric strings in declaration order.
func (r OptionRow) Floats() (strike, price, iv, delta, gamma, vega, theta, rho float64) {
	return parseFloat(r.Strike), parseFloat(r.Price), parseFloat(r.IV), parseFloat(r.Delta),
		parseFloat(r.Gamma), parseFloat(r.Vega), parseFloat(r.Theta), parseFloat(r.Rho)
}

// Counts converts the row's volume and open interest strings.
func (r OptionRow) Counts() (volume, openInterest int64) {
	return parseInt(r.Volume), parseInt(r.OpenInterest)
}

// Underlying converts the underlying price string.
func (r OptionRow) Underlying() float64 { return parseFloat(r.UnderlyingPrice) }

// OptionChainResponse wraps the call/put display board payload.
type OptionChainResponse struct {
	Envelope
	Calls []OptionRow `json:"output1"`
	Puts  []OptionRow `json:"output2"`
}

// OrderResponse wraps an order placement acknowledgement.
type OrderResponse struct {
	Envelope
	Output struct {
		OrderNo   string `json:"odno"`
		OrderTime string `json:"ord_tmd"`
	} `json:"output"`
}

// BalanceResponse wraps the derivatives balance inquiry payload. Positions and
// totals are passed through untouched; callers pick the fields they need.
type BalanceResponse struct {
	Envelope
	Positions []map[string]string `json:"output1"`
	Summary   map[string]string   `json:"output2"`
}

// parseFloat converts the API's numeric strings, treating blanks as zero.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseInt converts the API's integer strings, treating blanks as zero.
func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some volume fields arrive with a decimal point.
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int64(f)
		}
		return 0
	}
	return n
}
