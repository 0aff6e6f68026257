package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	return &Config{
		BaseURL:      baseURL,
		AppKey:       "test-key",
		AppSecret:    "test-secret",
		AccountNo:    "12345678",
		AccountNoSub: "03",
		TokenFile:    filepath.Join(t.TempDir(), "access_token.json"),
		TRID: TRIDs{
			StockMinute:  defaultStockMinuteTRID,
			DerivMinute:  defaultDerivMinuteTRID,
			OptionChain:  defaultOptionChainTRID,
			DerivOrder:   defaultDerivOrderTRID,
			DerivBalance: defaultDerivBalanceTRID,
		},
	}
}

func tokenHandler(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "tok-1",
		"expires_in":   86400,
	})
}

func TestClient_DerivMinuteChart(t *testing.T) {
	var sawTRID atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenHandler(w)
			return
		}
		require.Equal(t, derivChartPath, r.URL.Path)
		require.Equal(t, "106W09", r.URL.Query().Get("fid_input_iscd"))
		require.Equal(t, "F", r.URL.Query().Get("fid_cond_mrkt_div_code"))
		sawTRID.Store(r.Header.Get("tr_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output2": []map[string]string{
				{"stck_bsop_date": "20250902", "stck_cntg_hour": "090300", "futs_oprc": "345.10", "futs_hgpr": "345.60", "futs_lwpr": "344.95", "futs_prpr": "345.40", "cntg_vol": "1234"},
				{"stck_bsop_date": "20250902", "stck_cntg_hour": "090200", "futs_oprc": "344.80", "futs_hgpr": "345.20", "futs_lwpr": "344.70", "futs_prpr": "345.10", "cntg_vol": "987"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(t, srv.URL))
	resp, err := client.DerivMinuteChart(context.Background(), "106W09", "", "090330")
	require.NoError(t, err)
	require.Len(t, resp.Output2, 2)
	require.Equal(t, "090300", resp.Output2[0].Hour)
	require.Equal(t, 345.4, parseFloat(resp.Output2[0].Close))
	require.Equal(t, int64(1234), parseInt(resp.Output2[0].Volume))
	require.Equal(t, defaultDerivMinuteTRID, sawTRID.Load())
}

func TestClient_StockMinuteChart_FailureCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenHandler(w)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rt_cd": "1", "msg1": "rate limited"})
	}))
	defer srv.Close()

	client := NewClient(testConfig(t, srv.URL))
	_, err := client.StockMinuteChart(context.Background(), "005930", "100000")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")
}

func TestClient_OptionChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenHandler(w)
			return
		}
		require.Equal(t, optionBoardPath, r.URL.Path)
		require.Equal(t, "202509", r.URL.Query().Get("fid_mtrt_cnt"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output1": []map[string]string{
				{"optn_shrn_iscd": "201W09342", "atm_cls_name": "ATM", "acpr": "342.50", "optn_prpr": "2.31", "hts_ints_vltl": "0.1402", "delta_val": "0.52", "unch_prpr": "342.61", "acml_vol": "10523", "hts_otst_stpl_qty": "4410"},
			},
			"output2": []map[string]string{
				{"optn_shrn_iscd": "301W09342", "atm_cls_name": "ATM", "acpr": "342.50", "optn_prpr": "2.18", "hts_ints_vltl": "0.1388", "delta_val": "-0.48", "unch_prpr": "342.61", "acml_vol": "9987", "hts_otst_stpl_qty": "5120"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(t, srv.URL))
	resp, err := client.OptionChain(context.Background(), "202509", "")
	require.NoError(t, err)
	require.Len(t, resp.Calls, 1)
	require.Len(t, resp.Puts, 1)
	require.Equal(t, "ATM", resp.Calls[0].ATMClass)
	require.Equal(t, 342.61, parseFloat(resp.Calls[0].UnderlyingPrice))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenHandler(w)
			return
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rt_cd": "0", "output2": []map[string]string{}})
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.MaxRetries = 3
	client := NewClient(cfg)
	_, err := client.DerivMinuteChart(context.Background(), "106W09", "", "090330")
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestClient_PlaceDerivOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/tokenP":
			tokenHandler(w)
		case hashkeyPath:
			_ = json.NewEncoder(w).Encode(map[string]string{"HASH": "hashed"})
		case derivOrderPath:
			require.Equal(t, "hashed", r.Header.Get("hashkey"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "12345678", body["CANO"])
			require.Equal(t, "106W09", body["SHTN_PDNO"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"rt_cd":  "0",
				"output": map[string]string{"odno": "0000117057", "ord_tmd": "090312"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(testConfig(t, srv.URL))
	resp, err := client.PlaceDerivOrder(context.Background(), OrderRequest{
		Symbol: "106W09", Side: "02", OrderKind: "01", Quantity: 1, Price: 345.1,
	})
	require.NoError(t, err)
	require.Equal(t, "0000117057", resp.Output.OrderNo)
}
