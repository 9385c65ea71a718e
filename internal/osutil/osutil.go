// Package osutil holds small platform helpers shared by the shell.
package osutil

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
)

// DefaultDownloadPath returns the user's Downloads directory.
func DefaultDownloadPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, "Downloads"), nil
}

// OpenFolder opens the directory in the platform file manager.
func OpenFolder(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", absPath)
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}

// WaitForSignals listens for os.Interrupt and syscall.SIGTERM
// and calls the provided onSignal function when triggered.
func WaitForSignals(onSignal func()) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		<-sigChan

		if onSignal != nil {
			onSignal()
		}
	}()
}
