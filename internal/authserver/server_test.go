package authserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"larkvault/internal/feishu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExchangeBackend(t *testing.T, fail bool) *feishu.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/authen/v2/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code":              20050,
				"error_description": "code already used",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":          0,
			"access_token":  "a1",
			"refresh_token": "r1",
			"expires_in":    7200,
			"token_type":    "Bearer",
		})
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	store := feishu.NewTokenStore(filepath.Join(t.TempDir(), "token.json"), nil)
	return feishu.NewClient(backend.URL, backend.Client(), store, "cli_app", "secret", testLogger())
}

func TestCallbackExchangesCode(t *testing.T) {
	var gotLogin *feishu.TokenInfo
	s := NewServer(testLogger(), newExchangeBackend(t, false),
		func(info feishu.TokenInfo) { gotLogin = &info },
		func(err error) { t.Errorf("unexpected error callback: %v", err) })

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/callback?code=abc123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "close this window")

	require.NotNil(t, gotLogin)
	assert.Equal(t, "a1", gotLogin.AccessToken)
}

func TestCallbackMissingCode(t *testing.T) {
	s := NewServer(testLogger(), newExchangeBackend(t, false), nil, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/callback")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackExchangeFailure(t *testing.T) {
	var gotErr error
	s := NewServer(testLogger(), newExchangeBackend(t, true),
		func(feishu.TokenInfo) { t.Error("login callback should not fire") },
		func(err error) { gotErr = err })

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/callback?code=stale")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "code already used")
}
