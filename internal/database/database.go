package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudterm/console/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&SessionEvent{}, &Setting{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.First(&s, "key = ?", key).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	s := Setting{Key: key, Value: value}
	return DB.Save(&s).Error
}

// RecordSessionEvent appends one row to the session audit trail.
func RecordSessionEvent(ev *SessionEvent) error {
	return DB.Create(ev).Error
}

// ListSessionEvents returns the most recent audit rows, newest first.
func ListSessionEvents(limit int) ([]SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []SessionEvent
	err := DB.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// PruneSessionEvents deletes audit rows older than the retention window.
// Returns the number of rows removed.
func PruneSessionEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := DB.Where("created_at < ?", cutoff).Delete(&SessionEvent{})
	return res.RowsAffected, res.Error
}
