package kis

import (
	"context"
	"fmt"
	"net/url"
)

const (
	stockChartPath  = "/uapi/domestic-stock/v1/quotations/inquire-time-itemchartprice"
	derivChartPath  = "/uapi/domestic-futureoption/v1/quotations/inquire-time-fuopchartprice"
	optionBoardPath = "/uapi/domestic-futureoption/v1/quotations/display-board-callput"
)

// StockMinuteChart fetches the intraday minute bars for a stock, newest first.
// queryTime is HHMMSS local time.
func (c *Client) StockMinuteChart(ctx context.Context, symbol, queryTime string) (*StockChartResponse, error) {
	params := url.Values{}
	params.Set("fid_etc_cls_code", "")
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", symbol)
	params.Set("fid_input_hour_1", queryTime)
	params.Set("fid_pw_data_incu_yn", "Y")

	var resp StockChartResponse
	if err := c.get(ctx, stockChartPath, c.cfg.TRID.StockMinute, params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("kis: stock chart %s: rt_cd=%s msg=%s", symbol, resp.RtCd, resp.Msg1)
	}
	return &resp, nil
}

// DerivMinuteChart fetches intraday minute bars for a future or option, newest
// first. date is YYYYMMDD and may be empty for today; queryTime is HHMMSS.
func (c *Client) DerivMinuteChart(ctx context.Context, symbol, date, queryTime string) (*DerivChartResponse, error) {
	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "F")
	params.Set("fid_input_iscd", symbol)
	params.Set("fid_hour_cls_code", "60")
	params.Set("fid_pw_data_incu_yn", "Y")
	params.Set("fid_fake_tick_incu_yn", "N")
	params.Set("fid_input_date_1", date)
	params.Set("fid_input_hour_1", queryTime)

	var resp DerivChartResponse
	if err := c.get(ctx, derivChartPath, c.cfg.TRID.DerivMinute, params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("kis: deriv chart %s: rt_cd=%s msg=%s", symbol, resp.RtCd, resp.Msg1)
	}
	return &resp, nil
}

// OptionChain fetches the full call/put display board for one maturity.
// maturity is the contract month count code, marketClass selects the
// underlying board (e.g. the KOSPI200 weeklys vs monthlies).
func (c *Client) OptionChain(ctx context.Context, maturity, marketClass string) (*OptionChainResponse, error) {
	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "O")
	params.Set("fid_cond_scr_div_code", "20503")
	params.Set("fid_mrkt_cls_code", "CO")
	params.Set("fid_mtrt_cnt", maturity)
	params.Set("fid_cond_mrkt_cls_code", marketClass)
	params.Set("fid_mrkt_cls_code1", "PO")

	var resp OptionChainResponse
	if err := c.get(ctx, optionBoardPath, c.cfg.TRID.OptionChain, params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("kis: option chain maturity=%s: rt_cd=%s msg=%s", maturity, resp.RtCd, resp.Msg1)
	}
	return &resp, nil
}
