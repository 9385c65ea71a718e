package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned for lookups of rows that do not exist.
var ErrNotFound = errors.New("storage: not found")

// Storage wraps the sqlite database holding tasks, files and settings.
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens (or creates) the database file under dataDir.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, "larkvault.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA foreign_keys=ON;")

	if err := db.AutoMigrate(&DownloadTask{}, &DownloadFile{}, &AppSetting{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{DB: db}, nil
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ===== download_tasks =====

// CreateTask inserts a new task row.
func (s *Storage) CreateTask(task *DownloadTask) error {
	ts := now()
	task.CreatedAt = ts
	task.UpdatedAt = ts
	return s.DB.Create(task).Error
}

// GetTask returns a task by id. Missing tasks surface ErrNotFound.
func (s *Storage) GetTask(id string) (DownloadTask, error) {
	var task DownloadTask
	err := s.DB.First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return task, ErrNotFound
	}
	return task, err
}

// GetAllTasks returns every task, newest first.
func (s *Storage) GetAllTasks() ([]DownloadTask, error) {
	var tasks []DownloadTask
	err := s.DB.Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// UpdateTask writes the full task row back.
func (s *Storage) UpdateTask(task *DownloadTask) error {
	task.UpdatedAt = now()
	return s.DB.Save(task).Error
}

// DeleteTask removes a task and all of its file records. The child delete
// is explicit: sqlite only honors the FK cascade when the pragma is on,
// and AutoMigrate does not declare the constraint.
func (s *Storage) DeleteTask(id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&DownloadFile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&DownloadTask{}, "id = ?", id).Error
	})
}

// UpdateTaskStatus sets only the status column.
func (s *Storage) UpdateTaskStatus(id string, status string) error {
	return s.DB.Model(&DownloadTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": now(),
	}).Error
}

// UpdateTaskProgress persists the derived progress and counters.
func (s *Storage) UpdateTaskProgress(id string, progress float64, downloaded, failed, total int) error {
	return s.DB.Model(&DownloadTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"progress":         progress,
		"downloaded_files": downloaded,
		"failed_files":     failed,
		"total_files":      total,
		"updated_at":       now(),
	}).Error
}

// GetTasksByStatus returns tasks with the given status, oldest first.
func (s *Storage) GetTasksByStatus(status string) ([]DownloadTask, error) {
	var tasks []DownloadTask
	err := s.DB.Where("status = ?", status).Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

// GetAutoResumeTasks returns tasks interrupted by an unclean shutdown:
// still marked downloading with no live worker. Paused tasks are the
// user's call and are never auto-resumed.
func (s *Storage) GetAutoResumeTasks() ([]DownloadTask, error) {
	return s.GetTasksByStatus(TaskStatusDownloading)
}

// ===== download_files =====

// BatchCreateFiles inserts the discovered file records for a task in one
// transaction, preserving slice order.
func (s *Storage) BatchCreateFiles(taskID string, files []DownloadFile) error {
	if len(files) == 0 {
		return nil
	}
	ts := now()
	for i := range files {
		files[i].ID = 0
		files[i].TaskID = taskID
		if files[i].Status == "" {
			files[i].Status = FileStatusPending
		}
		files[i].CreatedAt = ts
		files[i].UpdatedAt = ts
	}
	return s.DB.Create(&files).Error
}

// GetTaskFiles returns a task's file records in insertion order.
func (s *Storage) GetTaskFiles(taskID string) ([]DownloadFile, error) {
	var files []DownloadFile
	err := s.DB.Where("task_id = ?", taskID).Order("id ASC").Find(&files).Error
	return files, err
}

// UpdateFileStatus sets the status (and error message) of a single file
// record identified by its task and remote token.
func (s *Storage) UpdateFileStatus(taskID, token, status, errorMessage string) error {
	return s.DB.Model(&DownloadFile{}).
		Where("task_id = ? AND token = ?", taskID, token).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
			"updated_at":    now(),
		}).Error
}

// ResetFileStatus moves a file record back to pending for a retry.
// Returns the number of rows touched so callers can reject unknown tokens.
func (s *Storage) ResetFileStatus(taskID, token string) (int64, error) {
	res := s.DB.Model(&DownloadFile{}).
		Where("task_id = ? AND token = ?", taskID, token).
		Updates(map[string]interface{}{
			"status":        FileStatusPending,
			"error_message": "",
			"updated_at":    now(),
		})
	return res.RowsAffected, res.Error
}

// CountFilesByStatus counts a task's files in the given status.
func (s *Storage) CountFilesByStatus(taskID, status string) (int64, error) {
	var count int64
	err := s.DB.Model(&DownloadFile{}).
		Where("task_id = ? AND status = ?", taskID, status).
		Count(&count).Error
	return count, err
}

// ===== app_settings =====

// GetString retrieves a single string setting. Missing keys return "".
func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// SetString stores a single string setting (insert or update).
func (s *Storage) SetString(key, val string) error {
	return s.DB.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&AppSetting{Key: key, Value: val}).Error
}
