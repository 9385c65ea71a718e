package app

import (
	"larkvault/internal/feishu"
)

// GetAccessToken trades an OAuth authorization code for a token pair.
// Kept for frontends that receive the code themselves; the loopback
// listener calls the same exchange.
func (a *App) GetAccessToken(code string) (*feishu.TokenInfo, error) {
	a.logger.Info("frontend_request", "method", "GetAccessToken")

	info, err := a.client.ExchangeCode(a.context(), code)
	if err != nil {
		a.logger.Error("code exchange failed", "error", err)
		return nil, apiErr(err)
	}
	return info, nil
}

// RefreshAccessToken forces a token refresh.
func (a *App) RefreshAccessToken() (*feishu.TokenInfo, error) {
	a.logger.Info("frontend_request", "method", "RefreshAccessToken")

	info, err := a.client.Refresh(a.context())
	if err != nil {
		a.logger.Error("token refresh failed", "error", err)
		return nil, apiErr(err)
	}
	return info, nil
}

// CheckLoginStatus reports whether token material is present.
func (a *App) CheckLoginStatus() bool {
	return a.client.LoggedIn()
}

// Logout drops the persisted tokens.
func (a *App) Logout() error {
	a.logger.Info("frontend_request", "method", "Logout")
	if err := a.client.Logout(); err != nil {
		return apiErr(err)
	}
	return nil
}

// GetUserInfo returns the authenticated user's profile.
func (a *App) GetUserInfo() (*feishu.UserInfo, error) {
	info, err := a.client.UserInfo(a.context())
	if err != nil {
		a.logger.Error("failed to fetch user info", "error", err)
		return nil, apiErr(err)
	}
	return info, nil
}
