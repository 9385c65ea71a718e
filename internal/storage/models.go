package storage

// Task statuses. Tasks move pending -> ready -> downloading -> terminal;
// paused sits between downloading and a resume.
const (
	TaskStatusPending     = "pending"
	TaskStatusReady       = "ready"
	TaskStatusDownloading = "downloading"
	TaskStatusPaused      = "paused"
	TaskStatusCompleted   = "completed"
	TaskStatusPartial     = "partial"
	TaskStatusFailed      = "failed"
)

// File statuses.
const (
	FileStatusPending     = "pending"
	FileStatusDownloading = "downloading"
	FileStatusCompleted   = "completed"
	FileStatusFailed      = "failed"
)

// DownloadTask represents an export-and-download task in the database.
// SelectedNodes holds the user's selection tree as a JSON blob; it is
// stored verbatim and only interpreted by discovery.
type DownloadTask struct {
	ID              string  `gorm:"primaryKey" json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Status          string  `gorm:"index" json:"status"`
	Progress        float64 `json:"progress"`
	TotalFiles      int     `json:"total_files"`
	DownloadedFiles int     `json:"downloaded_files"`
	FailedFiles     int     `json:"failed_files"`
	OutputPath      string  `json:"output_path"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	SelectedNodes   string  `json:"selected_nodes,omitempty"`
}

// TableName specifies the table name for DownloadTask
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// DownloadFile is one leaf document discovered for a task.
type DownloadFile struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	TaskID       string `gorm:"index;index:idx_files_task_status" json:"task_id"`
	Token        string `json:"token"`
	Name         string `json:"name"`
	FileType     string `json:"type"`
	RelativePath string `json:"relativePath"`
	SpaceID      string `json:"spaceId,omitempty"`
	Status       string `gorm:"default:pending;index:idx_files_task_status" json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// TableName specifies the table name for DownloadFile
func (DownloadFile) TableName() string {
	return "download_files"
}

// AppSetting stores key-value application settings
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}
