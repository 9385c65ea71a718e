package app

import (
	"encoding/json"

	"larkvault/internal/engine"
	"larkvault/internal/storage"
)

// CreateTaskPayload mirrors the frontend's create request. SelectedNodes
// stays raw so the selection tree is persisted byte-for-byte.
type CreateTaskPayload struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	OutputPath    string          `json:"outputPath"`
	SelectedNodes json.RawMessage `json:"selectedNodes"`
}

// CreateDownloadTask persists a new pending task from the user's
// selection.
func (a *App) CreateDownloadTask(payload CreateTaskPayload) (*storage.DownloadTask, error) {
	a.logger.Info("frontend_request", "method", "CreateDownloadTask", "name", payload.Name, "outputPath", payload.OutputPath)

	task, err := a.engine.CreateTask(engine.CreateTaskRequest{
		Name:          payload.Name,
		Description:   payload.Description,
		OutputPath:    payload.OutputPath,
		SelectedNodes: string(payload.SelectedNodes),
	})
	if err != nil {
		a.logger.Error("failed to create task", "error", err)
		return nil, apiErr(err)
	}

	a.warnIfLowDiskSpace(payload.OutputPath)
	return task, nil
}

// GetDownloadTasks returns all tasks, newest first.
func (a *App) GetDownloadTasks() ([]storage.DownloadTask, error) {
	tasks, err := a.engine.Tasks()
	if err != nil {
		a.logger.Error("failed to get tasks", "error", err)
		return nil, apiErr(err)
	}
	if tasks == nil {
		tasks = []storage.DownloadTask{}
	}
	return tasks, nil
}

// GetTaskFiles returns a task's file records in processing order.
func (a *App) GetTaskFiles(taskID string) ([]storage.DownloadFile, error) {
	files, err := a.engine.TaskFiles(taskID)
	if err != nil {
		a.logger.Error("failed to get task files", "task", taskID, "error", err)
		return nil, apiErr(err)
	}
	if files == nil {
		files = []storage.DownloadFile{}
	}
	return files, nil
}

// UpdateDownloadTask applies a partial patch to a task. Returns false for
// unknown ids.
func (a *App) UpdateDownloadTask(taskID string, updates map[string]interface{}) (bool, error) {
	a.logger.Info("frontend_request", "method", "UpdateDownloadTask", "id", taskID)

	ok, err := a.engine.UpdateTask(taskID, updates)
	if err != nil {
		return false, apiErr(err)
	}
	return ok, nil
}

// DeleteDownloadTask removes a task, aborting its worker first when one
// is running.
func (a *App) DeleteDownloadTask(id string) (bool, error) {
	a.logger.Info("frontend_request", "method", "DeleteDownloadTask", "id", id)

	ok, err := a.engine.DeleteTask(id)
	if err != nil {
		return false, apiErr(err)
	}
	return ok, nil
}

// StartDownloadTask starts a task that is not already downloading or
// completed.
func (a *App) StartDownloadTask(id string) error {
	a.logger.Info("frontend_request", "method", "StartDownloadTask", "id", id)
	return apiErr(a.engine.Start(id))
}

// ExecuteDownloadTask starts a task without the status precondition.
func (a *App) ExecuteDownloadTask(id string) error {
	a.logger.Info("frontend_request", "method", "ExecuteDownloadTask", "id", id)
	return apiErr(a.engine.Execute(id))
}

// StopDownloadTask pauses a running task.
func (a *App) StopDownloadTask(id string) (bool, error) {
	a.logger.Info("frontend_request", "method", "StopDownloadTask", "id", id)

	ok, err := a.engine.Stop(id)
	if err != nil {
		return false, apiErr(err)
	}
	return ok, nil
}

// ResumePausedTask restarts a task the user paused.
func (a *App) ResumePausedTask(id string) error {
	a.logger.Info("frontend_request", "method", "ResumePausedTask", "id", id)
	return apiErr(a.engine.ResumePaused(id))
}

// ResumeDownloadingTasks restarts tasks interrupted by an unclean
// shutdown and returns a human-readable summary.
func (a *App) ResumeDownloadingTasks() (string, error) {
	a.logger.Info("frontend_request", "method", "ResumeDownloadingTasks")

	summary, err := a.engine.AutoResume()
	if err != nil {
		return "", apiErr(err)
	}
	return summary, nil
}

// RetryDownloadFile queues a single failed file for another attempt.
func (a *App) RetryDownloadFile(taskID, fileToken string) (bool, error) {
	a.logger.Info("frontend_request", "method", "RetryDownloadFile", "task", taskID, "token", fileToken)

	ok, err := a.engine.RetryFile(taskID, fileToken)
	if err != nil {
		return false, apiErr(err)
	}
	return ok, nil
}
