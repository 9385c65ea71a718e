package engine

import (
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Event names emitted to the frontend.
const (
	EventDownloadProgress = "download-progress"
	EventLoginExpired     = "login_expired"
)

// DownloadProgress is the payload of every download-progress event. For a
// given task, events arrive in non-decreasing completed_files order.
type DownloadProgress struct {
	TaskID         string  `json:"task_id"`
	Progress       float64 `json:"progress"`
	CompletedFiles int     `json:"completed_files"`
	TotalFiles     int     `json:"total_files"`
	CurrentFile    string  `json:"current_file"`
	Status         string  `json:"status"`
}

// emitProgress sends a progress event to the shell. Before the Wails
// context is attached (and in tests) events are dropped.
func (m *Manager) emitProgress(p DownloadProgress) {
	if m.ctx == nil {
		return
	}
	runtime.EventsEmit(m.ctx, EventDownloadProgress, p)
}

// EmitLoginExpired forwards a token-refresh failure to the frontend so it
// can prompt for re-authentication.
func (m *Manager) EmitLoginExpired(msg string) {
	if m.ctx == nil {
		return
	}
	runtime.EventsEmit(m.ctx, EventLoginExpired, msg)
}
