package db

import (
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runAggregationOnce aggregates call logs for the given hour (bucketStart to
// bucketStart+1h) into UsageBucket rows, one per key. Calls made with an
// unknown key have no KeyID and are not bucketed.
func runAggregationOnce(db *gorm.DB, bucketStart time.Time) error {
	bucketEnd := bucketStart.Add(time.Hour)

	var logs []APILog
	if err := db.Where("created_at >= ? AND created_at < ? AND key_id IS NOT NULL", bucketStart, bucketEnd).
		Select("key_id", "status", "response_time_ms").
		Find(&logs).Error; err != nil {
		return err
	}

	groups := make(map[uint][]APILog)
	for _, l := range logs {
		groups[*l.KeyID] = append(groups[*l.KeyID], l)
	}

	for keyID, list := range groups {
		row := UsageBucket{
			KeyID:       keyID,
			BucketStart: bucketStart,
			TotalCount:  int64(len(list)),
		}
		durations := make([]int64, 0, len(list))
		for _, l := range list {
			switch l.Status {
			case CallSuccess:
				row.SuccessCount++
				durations = append(durations, l.ResponseTimeMs)
			case CallBlocked:
				row.BlockedCount++
			default:
				row.ErrorCount++
				durations = append(durations, l.ResponseTimeMs)
			}
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		if n := len(durations); n > 0 {
			row.ResponseP50Ms = durations[(n*50)/100]
			row.ResponseP95Ms = durations[(n*95)/100]
			row.ResponseP99Ms = durations[(n*99)/100]
		}

		var existing UsageBucket
		err := db.Where("key_id = ? AND bucket_start = ?", keyID, bucketStart).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = db.Create(&row).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"total_count":     row.TotalCount,
				"success_count":   row.SuccessCount,
				"blocked_count":   row.BlockedCount,
				"error_count":     row.ErrorCount,
				"response_p50_ms": row.ResponseP50Ms,
				"response_p95_ms": row.ResponseP95Ms,
				"response_p99_ms": row.ResponseP99Ms,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAggregationWorker runs aggregation for the last 24 completed hours at
// startup, then every hour. Buckets are in UTC.
func StartAggregationWorker(db *gorm.DB, log *zap.Logger) {
	go func() {
		now := time.Now().UTC()
		for i := 1; i <= 24; i++ {
			bucketStart := now.Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Error("aggregation failed (startup)", zap.Time("bucket", bucketStart), zap.Error(err))
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			bucketStart := t.UTC().Truncate(time.Hour).Add(-time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Error("aggregation failed", zap.Time("bucket", bucketStart), zap.Error(err))
			}
		}
	}()
}
