package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const oauthTokenPath = "/open-apis/authen/v2/oauth/token"

// oauthTokenResponse is the flat shape of the v2 oauth token endpoint:
// the business code sits next to the token fields, not in an envelope.
type oauthTokenResponse struct {
	Code             int    `json:"code"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	TokenInfo
}

// ExchangeCode trades an OAuth authorization code for a token pair and
// persists it in the store.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenInfo, error) {
	info, err := c.requestToken(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.appID,
		"client_secret": c.appSecret,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Set(*info); err != nil {
		return nil, fmt.Errorf("feishu: persisting tokens: %w", err)
	}
	return info, nil
}

// Refresh obtains a fresh token pair with the stored refresh token. When
// the server rejects the refresh token the expire listener fires and the
// call fails with ErrAuthExpired; transport failures pass through as-is so
// a flaky network does not log the user out.
func (c *Client) Refresh(ctx context.Context) (*TokenInfo, error) {
	_, refresh := c.tokens.Tokens()
	if refresh == "" {
		return nil, ErrNotLoggedIn
	}

	info, err := c.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.appID,
		"client_secret": c.appSecret,
		"refresh_token": refresh,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("refresh token rejected", "code", apiErr.Code, "msg", apiErr.Msg)
			c.tokens.NotifyExpired(apiErr.Msg)
			return nil, fmt.Errorf("%w: %s", ErrAuthExpired, apiErr.Msg)
		}
		return nil, err
	}

	if err := c.tokens.Set(*info); err != nil {
		return nil, fmt.Errorf("feishu: persisting tokens: %w", err)
	}
	return info, nil
}

// requestToken posts to the oauth token endpoint. This path is
// unauthenticated and deliberately bypasses the send wrapper.
func (c *Client) requestToken(ctx context.Context, form map[string]string) (*TokenInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+oauthTokenPath, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feishu: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("feishu: reading token response: %w", err)
	}

	var tr oauthTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("feishu: decoding token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || tr.Code != 0 {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, &APIError{Code: tr.Code, Msg: msg}
	}
	if tr.AccessToken == "" {
		return nil, upstreamErr(-1, "token response has no access_token")
	}

	return &tr.TokenInfo, nil
}

// UserInfo fetches the authenticated user's profile.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	return getData[UserInfo](ctx, c, "/open-apis/authen/v1/user_info", nil)
}

// LoggedIn reports whether any token material is present.
func (c *Client) LoggedIn() bool {
	access, refresh := c.tokens.Tokens()
	return access != "" || refresh != ""
}

// Logout drops the persisted token pair.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}
