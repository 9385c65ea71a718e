// Package engine orchestrates export-and-download tasks: discovery of the
// selected hierarchy, the per-task background worker, and the command
// facade the shell talks to.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"larkvault/internal/feishu"
	"larkvault/internal/storage"

	"github.com/google/uuid"
)

// Precondition failures surfaced to the command layer.
var (
	ErrAlreadyRunning  = errors.New("engine: task is already running")
	ErrTaskDownloading = errors.New("engine: task is already downloading")
	ErrTaskCompleted   = errors.New("engine: task is already completed")
	ErrNotPaused       = errors.New("engine: only paused tasks can be resumed")
	ErrNoSuchFile      = errors.New("engine: no such file in task")
)

// API is the slice of the remote client the engine needs. *feishu.Client
// satisfies it; tests substitute a fake.
type API interface {
	ListFolderAll(ctx context.Context, folderToken string) ([]feishu.File, error)
	ListWikiSpacesAll(ctx context.Context) ([]feishu.WikiSpace, error)
	ListWikiSpaceNodesAll(ctx context.Context, spaceID, parentNodeToken string) ([]feishu.WikiNode, error)
	CreateExportJob(ctx context.Context, token, fileType string) (string, error)
	AwaitExport(ctx context.Context, ticket, originalToken string, maxPolls int) (string, error)
	DownloadToPath(ctx context.Context, token, destPath string, exported bool) error
}

// Manager owns the task lifecycle and the process-wide registry of
// running workers, one cancellable handle per task id.
type Manager struct {
	logger *slog.Logger
	store  *storage.Storage
	api    API
	ctx    context.Context

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewManager creates the task manager.
func NewManager(logger *slog.Logger, store *storage.Storage, api API) *Manager {
	return &Manager{
		logger: logger,
		store:  store,
		api:    api,
		active: make(map[string]context.CancelFunc),
	}
}

// SetContext attaches the Wails context used for event emission.
func (m *Manager) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// CreateTaskRequest is the payload of the create command. SelectedNodes
// is kept as raw JSON so the selection tree round-trips through storage
// byte-for-byte.
type CreateTaskRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	OutputPath    string `json:"outputPath"`
	SelectedNodes string `json:"-"`
}

// CreateTask persists a new pending task.
func (m *Manager) CreateTask(req CreateTaskRequest) (*storage.DownloadTask, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("engine: task name is required")
	}
	if req.OutputPath == "" {
		return nil, fmt.Errorf("engine: output path is required")
	}
	// Validate the selection blob up front; discovery parses it again later.
	if _, err := feishu.ParseTree(req.SelectedNodes); err != nil {
		return nil, err
	}

	task := &storage.DownloadTask{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Description:   req.Description,
		Status:        storage.TaskStatusPending,
		OutputPath:    req.OutputPath,
		SelectedNodes: req.SelectedNodes,
	}
	if err := m.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("engine: creating task: %w", err)
	}

	m.logger.Info("task created", "id", task.ID, "name", task.Name, "output", task.OutputPath)
	return task, nil
}

// Tasks returns every task, newest first.
func (m *Manager) Tasks() ([]storage.DownloadTask, error) {
	return m.store.GetAllTasks()
}

// Task returns a single task.
func (m *Manager) Task(id string) (storage.DownloadTask, error) {
	return m.store.GetTask(id)
}

// TaskFiles returns a task's file records in processing order.
func (m *Manager) TaskFiles(taskID string) ([]storage.DownloadFile, error) {
	return m.store.GetTaskFiles(taskID)
}

// UpdateTask applies a partial patch to a task row. Unknown keys are
// ignored. Returns false when the task does not exist.
func (m *Manager) UpdateTask(taskID string, updates map[string]interface{}) (bool, error) {
	task, err := m.store.GetTask(taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if v, ok := updates["name"].(string); ok {
		task.Name = v
	}
	if v, ok := updates["description"].(string); ok {
		task.Description = v
	}
	if v, ok := updates["status"].(string); ok {
		task.Status = v
	}
	if v, ok := updates["progress"].(float64); ok {
		task.Progress = v
	}
	// JSON numbers arrive as float64
	if v, ok := updates["total_files"].(float64); ok {
		task.TotalFiles = int(v)
	}
	if v, ok := updates["downloaded_files"].(float64); ok {
		task.DownloadedFiles = int(v)
	}
	if v, ok := updates["failed_files"].(float64); ok {
		task.FailedFiles = int(v)
	}
	if v, ok := updates["output_path"].(string); ok {
		task.OutputPath = v
	}

	if err := m.store.UpdateTask(&task); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteTask removes a task and its file records, aborting the worker
// first when one is running. Downloaded files stay on disk.
func (m *Manager) DeleteTask(id string) (bool, error) {
	if cancel := m.takeActive(id); cancel != nil {
		m.logger.Info("task running, stopping before delete", "id", id)
		cancel()
		// The worker aborts at its next suspension point; mirror Stop's
		// bookkeeping in case the delete below fails.
		_ = m.store.UpdateTaskStatus(id, storage.TaskStatusPaused)
	}

	if err := m.store.DeleteTask(id); err != nil {
		return false, fmt.Errorf("engine: deleting task: %w", err)
	}
	m.logger.Info("task deleted", "id", id)
	return true, nil
}

// Start begins a task that is not yet running. Tasks already downloading
// or completed are rejected; everything else (pending, ready, paused,
// partial, failed) runs through the shared worker body.
func (m *Manager) Start(id string) error {
	task, err := m.store.GetTask(id)
	if err != nil {
		return err
	}
	switch task.Status {
	case storage.TaskStatusDownloading:
		return ErrTaskDownloading
	case storage.TaskStatusCompleted:
		return ErrTaskCompleted
	}
	return m.spawn(task)
}

// Execute starts a task without the status precondition. It still rejects
// a task whose worker is already live.
func (m *Manager) Execute(id string) error {
	task, err := m.store.GetTask(id)
	if err != nil {
		return err
	}
	return m.spawn(task)
}

// Stop aborts a running worker and marks the task paused. The abort is
// asynchronous; the status write happens here, not in the worker.
func (m *Manager) Stop(id string) (bool, error) {
	cancel := m.takeActive(id)
	if cancel == nil {
		return false, fmt.Errorf("engine: task %s is not running", id)
	}
	cancel()

	if err := m.store.UpdateTaskStatus(id, storage.TaskStatusPaused); err != nil {
		return false, err
	}
	m.logger.Info("task paused", "id", id)
	return true, nil
}

// ResumePaused restarts a task the user paused.
func (m *Manager) ResumePaused(id string) error {
	task, err := m.store.GetTask(id)
	if err != nil {
		return err
	}
	if task.Status != storage.TaskStatusPaused {
		return ErrNotPaused
	}
	return m.spawn(task)
}

// AutoResume restarts tasks that are marked downloading but have no live
// worker — the signature of an unclean shutdown. Paused tasks are never
// touched. Returns a human-readable summary.
func (m *Manager) AutoResume() (string, error) {
	tasks, err := m.store.GetAutoResumeTasks()
	if err != nil {
		return "", fmt.Errorf("engine: listing interrupted tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "no interrupted tasks to resume", nil
	}

	resumed := 0
	for _, task := range tasks {
		if err := m.spawn(task); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				continue
			}
			m.logger.Error("failed to auto-resume task", "id", task.ID, "error", err)
			continue
		}
		m.logger.Info("auto-resumed interrupted task", "id", task.ID, "name", task.Name)
		resumed++
	}
	return fmt.Sprintf("resumed %d of %d interrupted tasks", resumed, len(tasks)), nil
}

// RetryFile puts a failed (or otherwise stuck) file record back to
// pending and recomputes the task's counters so a subsequent Start picks
// it up again.
func (m *Manager) RetryFile(taskID, fileToken string) (bool, error) {
	rows, err := m.store.ResetFileStatus(taskID, fileToken)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, ErrNoSuchFile
	}

	task, err := m.store.GetTask(taskID)
	if err != nil {
		return false, err
	}
	completed, err := m.store.CountFilesByStatus(taskID, storage.FileStatusCompleted)
	if err != nil {
		return false, err
	}
	failed, err := m.store.CountFilesByStatus(taskID, storage.FileStatusFailed)
	if err != nil {
		return false, err
	}

	progress := 0.0
	if task.TotalFiles > 0 {
		progress = float64(completed) / float64(task.TotalFiles) * 100
	}
	if err := m.store.UpdateTaskProgress(taskID, progress, int(completed), int(failed), task.TotalFiles); err != nil {
		return false, err
	}
	// A terminal task with retried files is runnable again.
	if err := m.store.UpdateTaskStatus(taskID, storage.TaskStatusReady); err != nil {
		return false, err
	}

	m.logger.Info("file queued for retry", "task", taskID, "token", fileToken)
	return true, nil
}

// Shutdown cancels every running worker.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.active {
		m.logger.Info("cancelling worker on shutdown", "id", id)
		cancel()
	}
	m.active = make(map[string]context.CancelFunc)
}

// spawn registers a worker handle for the task and launches the worker
// goroutine. At most one worker may exist per task id.
func (m *Manager) spawn(task storage.DownloadTask) error {
	m.mu.Lock()
	if _, ok := m.active[task.ID]; ok {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.active[task.ID] = cancel
	m.mu.Unlock()

	go m.runWorker(ctx, task)
	return nil
}

// takeActive removes and returns the cancel handle for id, if any.
func (m *Manager) takeActive(id string) context.CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	return cancel
}

// removeActive drops the handle when the worker exits on its own.
func (m *Manager) removeActive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// Running reports whether a worker is live for the task id.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}
