package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	// Tokens are refreshed early so a token never expires mid-session.
	tokenRefreshWindow = 12 * time.Hour
	// The issuer's expires_in is trimmed by this margin before persisting.
	tokenExpiryMargin = 600 * time.Second
)

// Auth manages the OAuth access token, caching it on disk between runs.
type Auth struct {
	cfg        *Config
	httpClient *http.Client
	tokenFile  string
	nowFn      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenFilePayload struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewAuth constructs the token manager and loads any cached token from disk.
func NewAuth(cfg *Config, httpClient *http.Client) *Auth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		tokenFile = "access_token.json"
	}
	a := &Auth{
		cfg:        cfg,
		httpClient: httpClient,
		tokenFile:  tokenFile,
		nowFn:      time.Now,
	}
	a.loadToken()
	return a
}

func (a *Auth) loadToken() {
	data, err := os.ReadFile(a.tokenFile)
	if err != nil {
		return
	}
	var payload tokenFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logx.Errorf("kis: parse cached token %s: %v", a.tokenFile, err)
		return
	}
	a.token = payload.AccessToken
	a.expiresAt = payload.ExpiresAt
	if a.shouldRefresh() {
		a.clearToken()
		logx.Infof("kis: cached token expires within %s, discarded for refresh", tokenRefreshWindow)
	}
}

func (a *Auth) shouldRefresh() bool {
	if a.expiresAt.IsZero() {
		return true
	}
	return a.expiresAt.Sub(a.nowFn()) <= tokenRefreshWindow
}

func (a *Auth) clearToken() {
	if err := os.Remove(a.tokenFile); err != nil && !os.IsNotExist(err) {
		logx.Errorf("kis: remove token file %s: %v", a.tokenFile, err)
	}
	a.token = ""
	a.expiresAt = time.Time{}
}

func (a *Auth) saveToken() {
	payload := tokenFilePayload{AccessToken: a.token, ExpiresAt: a.expiresAt}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(a.tokenFile, data, 0o600); err != nil {
		logx.Errorf("kis: save token file %s: %v", a.tokenFile, err)
	}
}

// Token returns a valid access token, requesting a fresh one when the cached
// token is missing or close to expiry.
func (a *Auth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shouldRefresh() {
		a.clearToken()
	}
	if a.token != "" && a.nowFn().Before(a.expiresAt) {
		return a.token, nil
	}

	logx.WithContext(ctx).Info("kis: requesting new access token")
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     a.cfg.AppKey,
		"appsecret":  a.cfg.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("kis: encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("kis: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("kis: token request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("kis: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("kis: token http status %d: %s", resp.StatusCode, string(respBody))
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", fmt.Errorf("kis: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("kis: token response missing access_token")
	}

	a.token = tok.AccessToken
	a.expiresAt = a.nowFn().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	a.saveToken()
	logx.WithContext(ctx).Info("kis: access token renewed")
	return a.token, nil
}
