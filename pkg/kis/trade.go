package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	derivOrderPath   = "/uapi/domestic-futureoption/v1/trading/order"
	derivBalancePath = "/uapi/domestic-futureoption/v1/trading/inquire-balance"
	hashkeyPath      = "/uapi/hashkey"
)

// OrderRequest is a derivatives order. Side is "01" (sell) or "02" (buy),
// OrderKind "01" for limit, "02" for market.
type OrderRequest struct {
	Symbol    string
	Side      string
	OrderKind string
	Quantity  int64
	Price     float64
}

// PlaceDerivOrder submits a futures/options order on the configured account.
func (c *Client) PlaceDerivOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	body := map[string]string{
		"CANO":          c.cfg.AccountNo,
		"ACNT_PRDT_CD":  c.cfg.AccountNoSub,
		"SLL_BUY_DVSN_CD": req.Side,
		"SHTN_PDNO":     req.Symbol,
		"ORD_QTY":       fmt.Sprintf("%d", req.Quantity),
		"UNIT_PRICE":    fmt.Sprintf("%.2f", req.Price),
		"ORD_DVSN_CD":   req.OrderKind,
		"NMPR_TYPE_CD":  "",
		"KRX_NMPR_CNDT_CD": "",
	}

	hashkey, err := c.createHashkey(ctx, body)
	if err != nil {
		return nil, err
	}
	headers, err := c.headers(ctx, c.cfg.TRID.DerivOrder)
	if err != nil {
		return nil, err
	}
	headers.Set("hashkey", hashkey)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kis: encode order: %w", err)
	}
	var resp OrderResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+derivOrderPath, headers, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("kis: order %s: rt_cd=%s msg=%s", req.Symbol, resp.RtCd, resp.Msg1)
	}
	return &resp, nil
}

// DerivBalance queries the derivatives account balance and open positions.
func (c *Client) DerivBalance(ctx context.Context) (*BalanceResponse, error) {
	params := url.Values{}
	params.Set("CANO", c.cfg.AccountNo)
	params.Set("ACNT_PRDT_CD", c.cfg.AccountNoSub)
	params.Set("MGNA_DVSN", "01")
	params.Set("EXCC_STAT_CD", "2")
	params.Set("CTX_AREA_FK200", "")
	params.Set("CTX_AREA_NK200", "")

	var resp BalanceResponse
	if err := c.get(ctx, derivBalancePath, c.cfg.TRID.DerivBalance, params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("kis: balance: rt_cd=%s msg=%s", resp.RtCd, resp.Msg1)
	}
	return &resp, nil
}

// createHashkey signs an order body through the hashkey endpoint, as required
// for transactional POSTs.
func (c *Client) createHashkey(ctx context.Context, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("kis: encode hashkey body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+hashkeyPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("kis: build hashkey request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kis: hashkey request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("kis: read hashkey response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("kis: hashkey http status %d: %s", resp.StatusCode, string(respBody))
	}
	var out struct {
		Hash    string `json:"HASH"`
		Hashkey string `json:"hashkey"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("kis: decode hashkey response: %w", err)
	}
	if out.Hash != "" {
		return out.Hash, nil
	}
	return out.Hashkey, nil
}
