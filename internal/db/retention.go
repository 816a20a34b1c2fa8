package db

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runRetentionOnce performs a single pass of retention cleanup, deleting
// call logs, telegram logs and usage buckets older than cutoff.
func runRetentionOnce(db *gorm.DB, cutoff time.Time) error {
	if err := db.Where("created_at < ?", cutoff).Delete(&APILog{}).Error; err != nil {
		return err
	}
	if err := db.Where("created_at < ?", cutoff).Delete(&TelegramLog{}).Error; err != nil {
		return err
	}
	return db.Where("bucket_start < ?", cutoff).Delete(&UsageBucket{}).Error
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day.
func StartRetentionWorker(db *gorm.DB, days int, log *zap.Logger) {
	if days <= 0 {
		return
	}
	window := time.Duration(days) * 24 * time.Hour

	go func() {
		if err := runRetentionOnce(db, time.Now().Add(-window)); err != nil {
			log.Error("retention cleanup failed (startup)", zap.Error(err))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for t := range ticker.C {
			if err := runRetentionOnce(db, t.Add(-window)); err != nil {
				log.Error("retention cleanup failed", zap.Error(err))
			}
		}
	}()
}
