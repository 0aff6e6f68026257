package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kisfeed/pkg/dolpha"
	"kisfeed/pkg/feed"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := LoadConfigFromReader(strings.NewReader(`
token: "${TELEGRAM_BOT_TOKEN}"
chat_id: -1009876
`))
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.Token)
	require.Equal(t, int64(-1009876), cfg.ChatID)
}

func TestLoadConfig_RequiresToken(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("chat_id: 1"))
	require.Error(t, err)
}

func TestLoadConfig_RequiresChatID(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader(`token: "123:abc"`))
	require.Error(t, err)
}

func TestNotifier_SendsToConfiguredChat(t *testing.T) {
	var sentText string
	var sentChat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"id": 1, "is_bot": true, "first_name": "kisfeed", "username": "kisfeed_bot"},
			})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			sentChat = r.FormValue("chat_id")
			sentText = r.FormValue("text")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"message_id": 7, "chat": map[string]any{"id": -1009876}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	n, err := New(&Config{Token: "123:abc", ChatID: -1009876}, WithAPIURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, n.Send("hello"))
	require.Equal(t, "-1009876", sentChat)
	require.Equal(t, "hello", sentText)
}

func TestFormatSignal(t *testing.T) {
	msg := FormatSignal(dolpha.Signal{
		Timestamp: time.Date(2025, 9, 2, 9, 45, 0, 0, feed.KST),
		Symbol:    "106W09",
		Close:     345.4,
		UpperBand: 344.9,
		LowerBand: 343.1,
		VWAP:      344.2,
		Monitor:   1,
		Trade:     1,
		Reason:    dolpha.ReasonBandCrossUp,
	})
	require.Contains(t, msg, "106W09 LONG")
	require.Contains(t, msg, "2025-09-02 09:45")
	require.Contains(t, msg, "band_cross_up")
}
