package db

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trendkeys/internal/apperr"
)

// CreateKey inserts a new key. The validity window must be non-empty.
func (s *Store) CreateKey(ctx context.Context, k *APIKey) error {
	return s.CreateKeyCharged(ctx, k, 0, 0)
}

// CreateKeyCharged inserts a new key and, when cost > 0, deducts cost coins
// from payerID in the same transaction.
func (s *Store) CreateKeyCharged(ctx context.Context, k *APIKey, payerID uint, cost int64) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	if !k.ExpiresAt.After(k.CreatedAt) {
		return apperr.BadRequest("expires_at must be after created_at")
	}
	if k.IPWhitelist == nil {
		k.IPWhitelist = datatypes.JSONSlice[string]{}
	}
	if k.DomainWhitelist == nil {
		k.DomainWhitelist = datatypes.JSONSlice[string]{}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cost > 0 {
			r := tx.Model(&User{}).
				Where("id = ? AND coins >= ?", payerID, cost).
				UpdateColumn("coins", gorm.Expr("coins - ?", cost))
			if r.Error != nil {
				return r.Error
			}
			if r.RowsAffected == 0 {
				return ErrInsufficientCoins
			}
		}
		if err := tx.Omit("User").Create(k).Error; err != nil {
			return duplicate(err, "api key already exists")
		}
		return nil
	})
}

func (s *Store) GetKey(ctx context.Context, id uint) (*APIKey, error) {
	var k APIKey
	if err := s.db.WithContext(ctx).Preload("User").First(&k, id).Error; err != nil {
		return nil, notFound(err, ErrKeyNotFound)
	}
	return &k, nil
}

// FindKeyByValue looks a key up by its secret string.
func (s *Store) FindKeyByValue(ctx context.Context, key string) (*APIKey, error) {
	if key == "" {
		return nil, ErrKeyNotFound
	}
	var k APIKey
	if err := s.db.WithContext(ctx).Where(&APIKey{Key: key}).First(&k).Error; err != nil {
		return nil, notFound(err, ErrKeyNotFound)
	}
	return &k, nil
}

// KeyFilter narrows ListKeys. Zero values mean no restriction.
type KeyFilter struct {
	UserID   uint
	GameType string
	Page
}

func (s *Store) ListKeys(ctx context.Context, f KeyFilter) ([]APIKey, int64, error) {
	q := s.db.WithContext(ctx).Model(&APIKey{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.GameType != "" {
		q = q.Where("game_type = ?", f.GameType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var keys []APIKey
	err := f.apply(q.Preload("User").Order("id DESC")).Find(&keys).Error
	return keys, total, err
}

func (s *Store) SetKeyActive(ctx context.Context, id uint, active bool) error {
	return s.updateKey(ctx, id, map[string]any{"is_active": active})
}

// UpdateKeyWhitelists replaces both whitelists of a key.
func (s *Store) UpdateKeyWhitelists(ctx context.Context, id uint, ips, domains []string) error {
	if ips == nil {
		ips = []string{}
	}
	if domains == nil {
		domains = []string{}
	}
	return s.updateKey(ctx, id, map[string]any{
		"ip_whitelist":     datatypes.JSONSlice[string](ips),
		"domain_whitelist": datatypes.JSONSlice[string](domains),
	})
}

// ExtendKey moves the expiry of a key. The new expiry must stay after its creation.
func (s *Store) ExtendKey(ctx context.Context, id uint, expiresAt time.Time) error {
	k, err := s.GetKey(ctx, id)
	if err != nil {
		return err
	}
	if !expiresAt.After(k.CreatedAt) {
		return apperr.BadRequest("expires_at must be after created_at")
	}
	return s.updateKey(ctx, id, map[string]any{"expires_at": expiresAt})
}

func (s *Store) updateKey(ctx context.Context, id uint, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// DeleteKey removes a key together with its call logs and usage buckets.
func (s *Store) DeleteKey(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key_id = ?", id).Delete(&APILog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("key_id = ?", id).Delete(&UsageBucket{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&APIKey{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrKeyNotFound
		}
		return nil
	})
}

// TouchKeyUsage increments the call counter and stamps the last use.
// Concurrent touches race on last_used_at; the last writer wins.
func (s *Store) TouchKeyUsage(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).UpdateColumns(map[string]any{
		"total_calls":  gorm.Expr("total_calls + 1"),
		"last_used_at": at,
	}).Error
}

// KeysExpiringBetween returns flagged-active keys whose expiry falls in (from, to].
func (s *Store) KeysExpiringBetween(ctx context.Context, from, to time.Time) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).Preload("User").
		Where("is_active = ? AND expires_at > ? AND expires_at <= ?", true, from, to).
		Order("expires_at").
		Find(&keys).Error
	return keys, err
}

// ExpiredActiveKeys returns keys past expiry that are still flagged active.
func (s *Store) ExpiredActiveKeys(ctx context.Context, now time.Time) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).Preload("User").
		Where("is_active = ? AND expires_at <= ?", true, now).
		Order("expires_at").
		Find(&keys).Error
	return keys, err
}
