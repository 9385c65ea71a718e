package app

import (
	"larkvault/internal/osutil"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// lowSpaceThreshold is when CreateDownloadTask starts warning about the
// chosen output volume.
const lowSpaceThreshold = 500 * 1024 * 1024

// DiskUsage reports capacity of the volume holding a path.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage returns capacity information for the volume containing
// path, so the frontend can show free space next to the output picker.
func (a *App) GetDiskUsage(path string) (*DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		a.logger.Error("disk usage probe failed", "path", path, "error", err)
		return nil, apiErr(err)
	}
	return &DiskUsage{
		Path:        usage.Path,
		Total:       usage.Total,
		Free:        usage.Free,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func (a *App) warnIfLowDiskSpace(path string) {
	usage, err := disk.Usage(path)
	if err != nil {
		return
	}
	if usage.Free < lowSpaceThreshold {
		a.logger.Warn("output volume is low on space", "path", path, "free", usage.Free)
	}
}

// SelectOutputDirectory opens the native directory picker and returns the
// chosen path, or "" when the user cancels.
func (a *App) SelectOutputDirectory() (string, error) {
	dir, err := runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title:            "Choose output directory",
		DefaultDirectory: a.cfg.GetDefaultOutputPath(),
	})
	if err != nil {
		a.logger.Error("directory dialog failed", "error", err)
		return "", apiErr(err)
	}
	if dir != "" {
		if err := a.cfg.SetDefaultOutputPath(dir); err != nil {
			a.logger.Warn("failed to persist default output path", "error", err)
		}
	}
	return dir, nil
}

// GetDefaultOutputPath returns the directory offered when creating a task.
func (a *App) GetDefaultOutputPath() string {
	return a.cfg.GetDefaultOutputPath()
}

// OAuthConfig is the application-credential slice of the settings UI.
type OAuthConfig struct {
	AppID string `json:"app_id"`
	Port  int    `json:"port"`
}

// GetOAuthConfig returns the configured OAuth application id and the
// loopback redirect port. The secret is never sent to the frontend.
func (a *App) GetOAuthConfig() OAuthConfig {
	return OAuthConfig{AppID: a.cfg.GetAppID(), Port: a.cfg.GetOAuthPort()}
}

// SetOAuthConfig stores new OAuth application credentials. The client and
// the redirect listener pick them up on the next launch.
func (a *App) SetOAuthConfig(appID, appSecret string, port int) error {
	a.logger.Info("frontend_request", "method", "SetOAuthConfig")
	if err := a.cfg.SetAppID(appID); err != nil {
		return apiErr(err)
	}
	if appSecret != "" {
		if err := a.cfg.SetAppSecret(appSecret); err != nil {
			return apiErr(err)
		}
	}
	if port > 0 {
		if err := a.cfg.SetOAuthPort(port); err != nil {
			return apiErr(err)
		}
	}
	return nil
}

// OpenTaskFolder opens a task's output directory in the file manager.
func (a *App) OpenTaskFolder(id string) error {
	task, err := a.engine.Task(id)
	if err != nil {
		a.logger.Error("task not found for OpenTaskFolder", "id", id, "error", err)
		return apiErr(err)
	}
	if task.OutputPath == "" {
		return nil
	}
	if err := osutil.OpenFolder(task.OutputPath); err != nil {
		a.logger.Error("failed to open folder", "path", task.OutputPath, "error", err)
		return apiErr(err)
	}
	return nil
}
