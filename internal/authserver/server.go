// Package authserver runs the loopback HTTP listener that catches the
// OAuth redirect. The Feishu app's redirect URI points at
// http://127.0.0.1:<port>/callback; the browser lands there with the
// authorization code after the user consents.
package authserver

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"larkvault/internal/feishu"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const callbackPage = `<!doctype html>
<html><body>
<p>Login complete. You can close this window and return to LarkVault.</p>
</body></html>`

// Server receives the OAuth redirect and exchanges the code.
type Server struct {
	logger  *slog.Logger
	client  *feishu.Client
	router  *chi.Mux
	onLogin func(feishu.TokenInfo)
	onError func(error)
}

// NewServer creates the receiver. onLogin fires after a successful code
// exchange; onError after a failed one. Both may be nil.
func NewServer(logger *slog.Logger, client *feishu.Client, onLogin func(feishu.TokenInfo), onError func(error)) *Server {
	s := &Server{
		logger:  logger,
		client:  client,
		router:  chi.NewRouter(),
		onLogin: onLogin,
		onError: onError,
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/callback", s.handleCallback)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the loopback listener in the background. The listener stays
// up for the app's lifetime; repeated logins reuse it.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("authserver: binding %s: %w", addr, err)
	}
	s.logger.Info("OAuth listener started", "addr", addr)

	go func() {
		if err := http.Serve(conn, s.router); err != nil {
			s.logger.Error("OAuth listener stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code parameter", http.StatusBadRequest)
		return
	}

	info, err := s.client.ExchangeCode(r.Context(), code)
	if err != nil {
		s.logger.Error("code exchange failed", "error", err)
		if s.onError != nil {
			s.onError(err)
		}
		http.Error(w, "login failed, check the application log", http.StatusBadGateway)
		return
	}

	s.logger.Info("login completed via OAuth redirect")
	if s.onLogin != nil {
		s.onLogin(*info)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, callbackPage)
}
