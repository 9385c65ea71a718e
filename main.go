package main

import (
	"embed"
	"os"
	"path/filepath"

	"larkvault/internal/app"
	"larkvault/internal/authserver"
	"larkvault/internal/config"
	"larkvault/internal/engine"
	"larkvault/internal/feishu"
	"larkvault/internal/logger"
	"larkvault/internal/osutil"
	"larkvault/internal/storage"

	"github.com/getlantern/systray"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/appicon.png
var appIcon []byte

func main() {
	dataDir, err := config.DataDir()
	if err != nil {
		println("Error locating data directory:", err.Error())
		return
	}

	log, wailsHandler, err := logger.New(dataDir, os.Stdout)
	if err != nil {
		println("Error initializing logger:", err.Error())
		return
	}

	store, err := storage.NewStorage(dataDir)
	if err != nil {
		log.Error("Error initializing storage", "error", err)
		return
	}
	defer store.Close()

	cfg := config.NewManager(store)

	// The expire listener is wired to the engine below; the indirection
	// lets the token store exist before the engine does.
	var eng *engine.Manager
	tokens := feishu.NewTokenStore(filepath.Join(dataDir, "token.json"), func(msg string) {
		log.Warn("login expired", "reason", msg)
		if eng != nil {
			eng.EmitLoginExpired(msg)
		}
	})

	client := feishu.NewClient(feishu.DefaultBaseURL, nil, tokens, cfg.GetAppID(), cfg.GetAppSecret(), log)
	eng = engine.NewManager(log, store, client)

	a := app.NewApp(log, wailsHandler, client, eng, cfg)

	// Loopback receiver for the OAuth redirect. Login success is pushed
	// to the frontend as an event.
	auth := authserver.NewServer(log, client,
		func(info feishu.TokenInfo) {
			if ctx := a.Context(); ctx != nil {
				wailsruntime.EventsEmit(ctx, "login-success", info)
			}
		},
		func(err error) {
			if ctx := a.Context(); ctx != nil {
				wailsruntime.EventsEmit(ctx, "login-error", err.Error())
			}
		})
	if err := auth.Start(cfg.GetOAuthPort()); err != nil {
		log.Error("Failed to start OAuth listener", "error", err)
	}

	// Handle standard OS signals (Ctrl+C) for graceful shutdown
	osutil.WaitForSignals(func() {
		log.Info("OS signal received, initiating shutdown...")
		a.QuitApp()
	})

	startHidden := false
	for _, arg := range os.Args {
		if arg == "--minimized" {
			startHidden = true
		}
	}

	// System tray (run in goroutine for Windows)
	go func() {
		systray.Run(func() {
			systray.SetIcon(appIcon)
			systray.SetTitle("LarkVault")
			systray.SetTooltip("LarkVault")

			mOpen := systray.AddMenuItem("Open LarkVault", "Restore the window")
			systray.AddSeparator()
			mQuit := systray.AddMenuItem("Quit", "Quit the application")

			go func() {
				for {
					select {
					case <-mOpen.ClickedCh:
						a.ShowApp()
					case <-mQuit.ClickedCh:
						a.QuitApp()
					}
				}
			}()
		}, func() {
			// Tray exit cleanup
		})
	}()

	appMenu := menu.NewMenu()
	fileMenu := appMenu.AddSubmenu("File")
	fileMenu.AddText("Open LarkVault", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		a.ShowApp()
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		a.QuitApp()
	})

	err = wails.Run(&options.App{
		Title:  "LarkVault",
		Width:  1100,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 250, G: 250, B: 250, A: 1},
		OnStartup:        a.Startup,
		OnBeforeClose:    a.BeforeClose,
		StartHidden:      startHidden,
		Menu:             appMenu,
		Bind: []interface{}{
			a,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
