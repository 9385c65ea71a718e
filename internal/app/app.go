// Package app provides the Wails bridge between the frontend and backend.
// It is split into multiple files by domain for maintainability.
package app

import (
	"context"
	"errors"
	"log/slog"

	"larkvault/internal/config"
	"larkvault/internal/engine"
	"larkvault/internal/feishu"
	"larkvault/internal/logger"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// APIError is the command-layer error shape: code zero is reserved for
// success at the transport level, anything else is a failure the frontend
// can match on.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return e.Msg
}

// apiErr converts an arbitrary backend error into the command shape,
// preserving the remote business code when there is one.
func apiErr(err error) error {
	if err == nil {
		return nil
	}
	var remote *feishu.APIError
	if errors.As(err, &remote) && remote.Code != 0 {
		return &APIError{Code: remote.Code, Msg: remote.Msg}
	}
	return &APIError{Code: -1, Msg: err.Error()}
}

// App is the main Wails application binding. It bridges frontend calls to
// the engine, the remote client and the settings store.
type App struct {
	ctx          context.Context
	logger       *slog.Logger
	wailsHandler *logger.WailsHandler
	client       *feishu.Client
	engine       *engine.Manager
	cfg          *config.Manager
	isQuitting   bool
}

// NewApp creates a new App struct with all dependencies injected.
func NewApp(
	log *slog.Logger,
	wailsHandler *logger.WailsHandler,
	client *feishu.Client,
	eng *engine.Manager,
	cfg *config.Manager,
) *App {
	return &App{
		logger:       log,
		wailsHandler: wailsHandler,
		client:       client,
		engine:       eng,
		cfg:          cfg,
		isQuitting:   false,
	}
}

// Startup is called when the app starts. The context is saved so we can
// call the runtime methods, and interrupted tasks are resumed.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	a.engine.SetContext(ctx)
	if a.wailsHandler != nil {
		a.wailsHandler.SetContext(ctx)
	}
	a.logger.Info("app started")

	if a.client.LoggedIn() {
		go func() {
			summary, err := a.engine.AutoResume()
			if err != nil {
				a.logger.Error("auto-resume failed", "error", err)
				return
			}
			a.logger.Info("auto-resume", "result", summary)
		}()
	}
}

// BeforeClose is called when the window is about to close. We hide to the
// tray instead, unless QuitApp set isQuitting.
func (a *App) BeforeClose(ctx context.Context) (prevent bool) {
	if a.isQuitting {
		return false
	}

	a.logger.Info("window close requested, minimizing to tray")
	runtime.WindowHide(ctx)
	return true
}

// QuitApp is called from the tray menu to truly exit.
func (a *App) QuitApp() {
	a.isQuitting = true
	a.engine.Shutdown()
	runtime.Quit(a.ctx)
}

// ShowApp restores the window from the tray.
func (a *App) ShowApp() {
	runtime.WindowShow(a.ctx)
	if runtime.WindowIsMinimised(a.ctx) {
		runtime.WindowUnminimise(a.ctx)
	}
	runtime.WindowSetAlwaysOnTop(a.ctx, true)
	runtime.WindowSetAlwaysOnTop(a.ctx, false)
}

// Context returns the Wails context for emitting events from outside the
// bridge; nil until Startup has run.
func (a *App) Context() context.Context {
	return a.ctx
}

// context returns a context for backend calls; before Startup runs we
// fall back to Background.
func (a *App) context() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}
