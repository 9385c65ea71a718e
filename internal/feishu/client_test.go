package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a client against the given handler with a token
// store preloaded with a valid pair.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *TokenStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), nil)
	require.NoError(t, store.Set(TokenInfo{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    7200,
		TokenType:    "Bearer",
	}))

	c := NewClient(srv.URL, srv.Client(), store, "cli_app", "secret", testLogger())
	c.pollInterval = time.Millisecond
	return c, store, srv
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": 0,
		"msg":  "success",
		"data": data,
	})
}

func TestListFolderAllDrainsPages(t *testing.T) {
	var gotPageSizes []string
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/files", func(w http.ResponseWriter, r *http.Request) {
		gotPageSizes = append(gotPageSizes, r.URL.Query().Get("page_size"))
		assert.Equal(t, "fld-1", r.URL.Query().Get("folder_token"))

		if r.URL.Query().Get("page_token") == "" {
			writeEnvelope(w, FilePage{
				Files:         []File{{Token: "f1", Name: "a.pdf", FileType: "file"}, {Token: "f2", Name: "b.pdf", FileType: "file"}},
				NextPageToken: "page-2",
				HasMore:       true,
			})
			return
		}
		assert.Equal(t, "page-2", r.URL.Query().Get("page_token"))
		writeEnvelope(w, FilePage{
			Files:   []File{{Token: "f3", Name: "c.pdf", FileType: "file"}},
			HasMore: false,
		})
	})

	c, _, _ := newTestClient(t, mux)

	files, err := c.ListFolderAll(context.Background(), "fld-1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "f1", files[0].Token)
	assert.Equal(t, "f3", files[2].Token)
	assert.Equal(t, []string{"50", "50"}, gotPageSizes)
}

func TestEnvelopeBusinessErrorSurfacesCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 99991663,
			"msg":  "app access token invalid",
		})
	})

	c, _, _ := newTestClient(t, mux)

	_, err := c.ListFolder(context.Background(), "", "", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 99991663, apiErr.Code)
	assert.Contains(t, apiErr.Msg, "access token invalid")
}

func TestSendRecoversFrom401WithOneRefresh(t *testing.T) {
	refreshes := 0
	attempts := 0

	mux := http.NewServeMux()
	mux.HandleFunc(oauthTokenPath, func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		var form map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "refresh-1", form["refresh_token"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":          0,
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    7200,
			"token_type":    "Bearer",
		})
	})
	mux.HandleFunc("/open-apis/authen/v1/user_info", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeEnvelope(w, UserInfo{Name: "Alice"})
	})

	c, store, _ := newTestClient(t, mux)

	info, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.Name)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 2, attempts)

	access, refresh := store.Tokens()
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "refresh-2", refresh)
}

func TestSendRefreshesFirstWhenNoAccessToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(oauthTokenPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":          0,
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    7200,
			"token_type":    "Bearer",
		})
	})
	mux.HandleFunc("/open-apis/authen/v1/user_info", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		writeEnvelope(w, UserInfo{Name: "Alice"})
	})

	c, store, _ := newTestClient(t, mux)
	require.NoError(t, store.Set(TokenInfo{RefreshToken: "refresh-1"}))

	_, err := c.UserInfo(context.Background())
	require.NoError(t, err)
}

func TestRefreshExhaustionFiresListenerOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(oauthTokenPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":              20037,
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})
	})
	mux.HandleFunc("/open-apis/authen/v1/user_info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	expired := make(chan string, 4)
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), func(msg string) {
		expired <- msg
	})
	require.NoError(t, store.Set(TokenInfo{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	c := NewClient(srv.URL, srv.Client(), store, "cli_app", "secret", testLogger())

	_, err := c.UserInfo(context.Background())
	require.ErrorIs(t, err, ErrAuthExpired)

	select {
	case msg := <-expired:
		assert.Contains(t, msg, "revoked")
	case <-time.After(time.Second):
		t.Fatal("expire listener was not invoked")
	}
	select {
	case <-expired:
		t.Fatal("expire listener fired more than once for one refresh failure")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRefreshWithoutTokenMaterial(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), nil)
	c := NewClient("http://127.0.0.1:0", nil, store, "cli_app", "secret", testLogger())

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestExchangeCodePersistsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(oauthTokenPath, func(w http.ResponseWriter, r *http.Request) {
		var form map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&form))
		assert.Equal(t, "authorization_code", form["grant_type"])
		assert.Equal(t, "the-code", form["code"])
		assert.Equal(t, "cli_app", form["client_id"])
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":          0,
			"access_token":  "access-x",
			"refresh_token": "refresh-x",
			"expires_in":    7200,
			"token_type":    "Bearer",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "token.json")
	store := NewTokenStore(path, nil)
	c := NewClient(srv.URL, srv.Client(), store, "cli_app", "secret", testLogger())

	info, err := c.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access-x", info.AccessToken)

	// A fresh store sees the persisted pair
	reloaded := NewTokenStore(path, nil)
	access, refresh := reloaded.Tokens()
	assert.Equal(t, "access-x", access)
	assert.Equal(t, "refresh-x", refresh)
}

func TestRootFolderMetaGetsLocalName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/explorer/v2/root_folder/meta", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]string{"token": "root-1", "id": "1", "user_id": "u1"})
	})

	c, _, _ := newTestClient(t, mux)

	meta, err := c.RootFolderMeta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RootFolderName, meta.Name)
	assert.Equal(t, "root-1", meta.Token)
}

func TestWikiListingPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/wiki/v2/spaces", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_token") == "" {
			writeEnvelope(w, WikiSpacePage{Items: []WikiSpace{{SpaceID: "s1", Name: "One"}}, PageToken: "p2", HasMore: true})
			return
		}
		writeEnvelope(w, WikiSpacePage{Items: []WikiSpace{{SpaceID: "s2", Name: "Two"}}})
	})
	mux.HandleFunc("/open-apis/wiki/v2/spaces/s1/nodes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "n-parent", r.URL.Query().Get("parent_node_token"))
		writeEnvelope(w, WikiNodePage{Items: []WikiNode{{SpaceID: "s1", NodeToken: "n1", ObjType: "docx", Title: "Doc"}}})
	})

	c, _, _ := newTestClient(t, mux)

	spaces, err := c.ListWikiSpacesAll(context.Background())
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, "s2", spaces[1].SpaceID)

	nodes, err := c.ListWikiSpaceNodesAll(context.Background(), "s1", "n-parent")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].NodeToken)
}

func TestDecodeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/drive/v1/files", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway error</html>")
	})

	c, _, _ := newTestClient(t, mux)

	_, err := c.ListFolder(context.Background(), "", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
