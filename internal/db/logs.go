package db

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

func (s *Store) CreateAPILog(ctx context.Context, l *APILog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Store) CreateTelegramLog(ctx context.Context, l *TelegramLog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *Store) CreateActivityLog(ctx context.Context, l *ActivityLog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

// LogFilter narrows the log listings. Zero values mean no restriction.
type LogFilter struct {
	KeyID  uint
	UserID uint
	Status string
	Action string
	Page
}

// ListAPILogs lists call logs newest first. UserID restricts to keys owned by that user.
func (s *Store) ListAPILogs(ctx context.Context, f LogFilter) ([]APILog, int64, error) {
	q := s.db.WithContext(ctx).Model(&APILog{})
	if f.KeyID != 0 {
		q = q.Where("key_id = ?", f.KeyID)
	}
	if f.UserID != 0 {
		q = q.Where("key_id IN (?)", s.db.Model(&APIKey{}).Select("id").Where("user_id = ?", f.UserID))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []APILog
	err := f.apply(q.Order("id DESC")).Find(&logs).Error
	return logs, total, err
}

func (s *Store) ListTelegramLogs(ctx context.Context, f LogFilter) ([]TelegramLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&TelegramLog{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []TelegramLog
	err := f.apply(q.Order("id DESC")).Find(&logs).Error
	return logs, total, err
}

func (s *Store) ListActivityLogs(ctx context.Context, f LogFilter) ([]ActivityLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&ActivityLog{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []ActivityLog
	err := f.apply(q.Order("id DESC")).Find(&logs).Error
	return logs, total, err
}

// GetSetting returns the stored value and whether the row exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Where(&Setting{Key: key}).Limit(1).Find(&rows).Error; err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// UpsertSetting writes one setting, replacing any existing value.
func (s *Store) UpsertSetting(ctx context.Context, key, value string) error {
	row := &Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(row).Error
}

// InsertSettingIfMissing writes a setting only when no row exists for key.
func (s *Store) InsertSettingIfMissing(ctx context.Context, key, value string) error {
	row := &Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// Summary returns headline counts as of now.
func (s *Store) Summary(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary
	q := s.db.WithContext(ctx)
	if err := q.Model(&User{}).Count(&sum.Users).Error; err != nil {
		return sum, err
	}
	if err := q.Model(&APIKey{}).Count(&sum.Keys).Error; err != nil {
		return sum, err
	}
	if err := q.Model(&APIKey{}).Where("is_active = ? AND expires_at > ?", true, now).Count(&sum.ActiveKeys).Error; err != nil {
		return sum, err
	}
	since := now.Add(-24 * time.Hour)
	if err := q.Model(&APILog{}).Where("created_at >= ?", since).Count(&sum.CallsLast24h).Error; err != nil {
		return sum, err
	}
	if err := q.Model(&APILog{}).Where("created_at >= ? AND status = ?", since, CallBlocked).Count(&sum.BlockedLast24h).Error; err != nil {
		return sum, err
	}
	return sum, nil
}

// UsageSince returns hourly buckets from since onwards, optionally for one key.
func (s *Store) UsageSince(ctx context.Context, keyID uint, since time.Time) ([]UsageBucket, error) {
	q := s.db.WithContext(ctx).Where("bucket_start >= ?", since)
	if keyID != 0 {
		q = q.Where("key_id = ?", keyID)
	}
	var buckets []UsageBucket
	err := q.Order("bucket_start, key_id").Find(&buckets).Error
	return buckets, err
}
