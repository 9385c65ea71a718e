// Package feishu is a typed client for the Feishu open API surface the
// exporter needs: OAuth, drive and wiki listing, export jobs, downloads.
package feishu

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification. Use errors.Is.
var (
	// ErrNotLoggedIn means there is no token material at all.
	ErrNotLoggedIn = errors.New("feishu: not logged in")
	// ErrAuthExpired means a refresh was attempted and rejected; the user
	// must re-authenticate.
	ErrAuthExpired = errors.New("feishu: authorization expired")
	// ErrExportTimeout means an export job did not finish within the
	// polling budget.
	ErrExportTimeout = errors.New("feishu: export job timed out")
)

// APIError carries a failure from the remote API: either a non-2xx HTTP
// status or a non-zero business code in the response envelope. Code -1 is
// used when no business code is available (a non-2xx HTTP status or a
// response missing its payload). Network errors are not wrapped in APIError.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Err  error  `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu: api error %d: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func upstreamErr(code int, format string, args ...interface{}) *APIError {
	return &APIError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
