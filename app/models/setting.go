package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle              string `json:"site_title" validate:"required,min=1,max=255"`
	TerminalWebhookEnabled bool   `json:"terminal_webhook_enabled"`
	JobQueueWorkerCount    int    `json:"job_queue_worker_count" validate:"min=1,max=50"`
	WebhookRetryMinutes    int    `json:"webhook_retry_minutes" validate:"min=1,max=120"`
	mu                     sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return appSettings
}

// SetAppSettingsForTesting replaces the cached settings without touching the
// database. Pass nil to restore the unloaded state.
func SetAppSettingsForTesting(settings *AppSettings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	appSettings = settings
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = &AppSettings{
		SiteTitle:              "Till",
		TerminalWebhookEnabled: true,
		JobQueueWorkerCount:    5,
		WebhookRetryMinutes:    2,
	}

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Apply loaded settings
	for _, setting := range settings {
		switch setting.Key {
		case "site_title":
			appSettings.SiteTitle = setting.Value
		case "terminal_webhook_enabled":
			appSettings.TerminalWebhookEnabled = setting.Value == "true"
		case "job_queue_worker_count":
			if n, err := strconv.Atoi(setting.Value); err == nil && n > 0 {
				appSettings.JobQueueWorkerCount = n
			}
		case "webhook_retry_minutes":
			if n, err := strconv.Atoi(setting.Value); err == nil && n > 0 {
				appSettings.WebhookRetryMinutes = n
			}
		}
	}

	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *AppSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Validate settings
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]interface{}{
		"site_title":               settings.SiteTitle,
		"terminal_webhook_enabled": fmt.Sprintf("%t", settings.TerminalWebhookEnabled),
		"job_queue_worker_count":   strconv.Itoa(settings.JobQueueWorkerCount),
		"webhook_retry_minutes":    strconv.Itoa(settings.WebhookRetryMinutes),
	}

	// Save each setting
	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				// Create new setting
				setting = Setting{
					Key:   key,
					Value: fmt.Sprintf("%v", value),
					Type:  getSettingType(key),
				}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			// Update existing setting
			setting.Value = fmt.Sprintf("%v", value)
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	// Update global settings
	appSettings = settings
	return nil
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case "terminal_webhook_enabled":
		return "boolean"
	case "job_queue_worker_count", "webhook_retry_minutes":
		return "integer"
	default:
		return "string"
	}
}

// Validate validates the settings
func (s *AppSettings) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// ToJSON converts settings to JSON
func (s *AppSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// GetJobQueueWorkerCount returns the configured job queue worker count
func (s *AppSettings) GetJobQueueWorkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.JobQueueWorkerCount <= 0 {
		return 5
	}
	return s.JobQueueWorkerCount
}

// GetWebhookRetryMinutes returns the retry interval for failed webhook jobs
func (s *AppSettings) GetWebhookRetryMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.WebhookRetryMinutes <= 0 {
		return 2
	}
	return s.WebhookRetryMinutes
}

// IsTerminalWebhookEnabled returns whether terminal webhook processing is enabled
func (s *AppSettings) IsTerminalWebhookEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TerminalWebhookEnabled
}
