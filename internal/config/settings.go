package config

import (
	"os"
	"path/filepath"
	"strconv"

	"larkvault/internal/osutil"
	"larkvault/internal/storage"
)

// Keys for AppSettings in DB
const (
	KeyAppID             = "app_id"
	KeyAppSecret         = "app_secret"
	KeyOAuthPort         = "oauth_port"
	KeyDefaultOutputPath = "default_output_path"
)

const defaultOAuthPort = 12380

// DataDir returns the per-user application data directory, creating it if
// needed. token.json, the database and logs all live here.
func DataDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(configDir, "LarkVault")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Manager reads and writes settings persisted in the app_settings table.
type Manager struct {
	storage *storage.Storage
}

func NewManager(s *storage.Storage) *Manager {
	return &Manager{storage: s}
}

// GetAppID returns the OAuth application id. The environment variable
// wins so packagers can bake credentials in without touching the DB.
func (c *Manager) GetAppID() string {
	if v := os.Getenv("LARKVAULT_APP_ID"); v != "" {
		return v
	}
	val, err := c.storage.GetString(KeyAppID)
	if err != nil {
		return ""
	}
	return val
}

func (c *Manager) SetAppID(id string) error {
	return c.storage.SetString(KeyAppID, id)
}

// GetAppSecret returns the OAuth application secret.
func (c *Manager) GetAppSecret() string {
	if v := os.Getenv("LARKVAULT_APP_SECRET"); v != "" {
		return v
	}
	val, err := c.storage.GetString(KeyAppSecret)
	if err != nil {
		return ""
	}
	return val
}

func (c *Manager) SetAppSecret(secret string) error {
	return c.storage.SetString(KeyAppSecret, secret)
}

// GetOAuthPort returns the loopback port the OAuth redirect listener
// binds to; the app's redirect URI must point at it.
func (c *Manager) GetOAuthPort() int {
	valStr, err := c.storage.GetString(KeyOAuthPort)
	if err != nil || valStr == "" {
		return defaultOAuthPort
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultOAuthPort
	}
	return val
}

func (c *Manager) SetOAuthPort(port int) error {
	return c.storage.SetString(KeyOAuthPort, strconv.Itoa(port))
}

// GetDefaultOutputPath returns the directory offered when creating a task.
func (c *Manager) GetDefaultOutputPath() string {
	val, err := c.storage.GetString(KeyDefaultOutputPath)
	if err == nil && val != "" {
		return val
	}
	downloads, err := osutil.DefaultDownloadPath()
	if err != nil {
		return "."
	}
	return filepath.Join(downloads, "LarkVault")
}

func (c *Manager) SetDefaultOutputPath(path string) error {
	return c.storage.SetString(KeyDefaultOutputPath, path)
}
