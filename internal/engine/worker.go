package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"larkvault/internal/feishu"
	"larkvault/internal/storage"
)

// exportTypes are the editable document types that need a server-side
// export job before anything can be downloaded.
var exportTypes = map[string]bool{
	feishu.FileTypeDoc:     true,
	feishu.FileTypeDocx:    true,
	feishu.FileTypeSheet:   true,
	feishu.FileTypeBitable: true,
}

// runWorker is the per-task background activity. It runs discovery for
// pending tasks, then processes the file list sequentially, persisting
// per-file state and emitting progress after every file. Cancellation is
// observed at suspension points; the facade writes the paused status.
func (m *Manager) runWorker(ctx context.Context, task storage.DownloadTask) {
	defer m.removeActive(task.ID)

	if task.Status == storage.TaskStatusPending {
		if err := m.discover(ctx, &task); err != nil {
			// Task stays pending; the user can start it again.
			m.logger.Error("discovery failed", "task", task.ID, "error", err)
			return
		}
	}

	files, err := m.store.GetTaskFiles(task.ID)
	if err != nil {
		m.logger.Error("failed to load task files", "task", task.ID, "error", err)
		return
	}

	total := len(files)
	completed, failed := 0, 0
	for _, f := range files {
		switch f.Status {
		case storage.FileStatusCompleted:
			completed++
		case storage.FileStatusFailed:
			failed++
		}
	}

	m.logger.Info("worker started", "task", task.ID, "total", total, "completed", completed, "failed", failed)

	if err := m.store.UpdateTaskStatus(task.ID, storage.TaskStatusDownloading); err != nil {
		m.logger.Error("failed to mark task downloading", "task", task.ID, "error", err)
		return
	}
	progress := progressPct(completed, total)
	_ = m.store.UpdateTaskProgress(task.ID, progress, completed, failed, total)

	label := "starting"
	if completed > 0 || failed > 0 {
		label = "resuming"
	}
	m.emitProgress(DownloadProgress{
		TaskID:         task.ID,
		Progress:       progress,
		CompletedFiles: completed,
		TotalFiles:     total,
		CurrentFile:    label,
		Status:         storage.TaskStatusDownloading,
	})

	for i := range files {
		if ctx.Err() != nil {
			m.logger.Info("worker cancelled", "task", task.ID)
			return
		}
		f := &files[i]
		// Completed work is never redone; every other state is retried
		// from the beginning of the file.
		if f.Status == storage.FileStatusCompleted {
			continue
		}
		wasFailed := f.Status == storage.FileStatusFailed

		_ = m.store.UpdateFileStatus(task.ID, f.Token, storage.FileStatusDownloading, "")
		m.emitProgress(DownloadProgress{
			TaskID:         task.ID,
			Progress:       progressPct(completed, total),
			CompletedFiles: completed,
			TotalFiles:     total,
			CurrentFile:    f.Name,
			Status:         storage.TaskStatusDownloading,
		})

		err := m.processFile(ctx, &task, f)
		if ctx.Err() != nil {
			// Abort mid-file: leave the record downloading for the next
			// resume, which treats it as pending.
			m.logger.Info("worker cancelled mid-file", "task", task.ID, "file", f.Name)
			return
		}

		if err != nil {
			if !wasFailed {
				failed++
			}
			_ = m.store.UpdateFileStatus(task.ID, f.Token, storage.FileStatusFailed, err.Error())
			m.logger.Warn("file failed", "task", task.ID, "file", f.Name, "error", err)
		} else {
			completed++
			if wasFailed {
				failed--
			}
			_ = m.store.UpdateFileStatus(task.ID, f.Token, storage.FileStatusCompleted, "")
		}

		progress = progressPct(completed, total)
		_ = m.store.UpdateTaskProgress(task.ID, progress, completed, failed, total)
		m.emitProgress(DownloadProgress{
			TaskID:         task.ID,
			Progress:       progress,
			CompletedFiles: completed,
			TotalFiles:     total,
			CurrentFile:    f.Name,
			Status:         storage.TaskStatusDownloading,
		})
	}

	finalStatus := storage.TaskStatusCompleted
	if failed > 0 {
		if completed == 0 {
			finalStatus = storage.TaskStatusFailed
		} else {
			finalStatus = storage.TaskStatusPartial
		}
	}

	// Final counters land before the terminal status, so a reader that
	// sees the terminal status also sees progress 100.
	_ = m.store.UpdateTaskProgress(task.ID, 100, completed, failed, total)
	_ = m.store.UpdateTaskStatus(task.ID, finalStatus)
	m.emitProgress(DownloadProgress{
		TaskID:         task.ID,
		Progress:       100,
		CompletedFiles: completed,
		TotalFiles:     total,
		CurrentFile:    "done",
		Status:         finalStatus,
	})

	m.logger.Info("worker finished", "task", task.ID, "status", finalStatus, "completed", completed, "failed", failed)
}

// processFile downloads one file record. Editable documents are exported
// first and the artifact is downloaded under the derived extension;
// plain files stream directly; anything else is skipped as a success.
func (m *Manager) processFile(ctx context.Context, task *storage.DownloadTask, f *storage.DownloadFile) error {
	dir := filepath.Join(task.OutputPath, filepath.FromSlash(f.RelativePath))

	switch {
	case f.FileType == feishu.FileTypeFile:
		return m.api.DownloadToPath(ctx, f.Token, filepath.Join(dir, f.Name), false)

	case exportTypes[f.FileType]:
		ticket, err := m.api.CreateExportJob(ctx, f.Token, f.FileType)
		if err != nil {
			return fmt.Errorf("creating export job: %w", err)
		}
		downloadToken, err := m.api.AwaitExport(ctx, ticket, f.Token, feishu.DefaultMaxExportPolls)
		if err != nil {
			return fmt.Errorf("waiting for export: %w", err)
		}
		name := f.Name + "." + feishu.ExportExtension(f.FileType)
		return m.api.DownloadToPath(ctx, downloadToken, filepath.Join(dir, name), true)

	default:
		// mindnote, slides and future types have no export path yet;
		// count them as done rather than wedging the task.
		m.logger.Warn("skipping unsupported file type", "task", task.ID, "file", f.Name, "type", f.FileType)
		return nil
	}
}

func progressPct(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
