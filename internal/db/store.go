package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"trendkeys/internal/apperr"
)

var (
	ErrUserNotFound      = apperr.NotFound("user not found")
	ErrKeyNotFound       = apperr.NotFound("api key not found")
	ErrInsufficientCoins = apperr.BadRequest("insufficient coins")
)

// Store wraps the gorm handle with the queries the service needs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for the background workers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func duplicate(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(message)
	}
	return err
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return q.Limit(limit).Offset(offset)
}

// CreateUser inserts the user together with its role row.
func (s *Store) CreateUser(ctx context.Context, u *User, role string, keyCost int64) error {
	if !ValidRole(role) {
		return apperr.BadRequest("invalid role")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.Role = nil
		if err := tx.Create(u).Error; err != nil {
			return duplicate(err, "username or email already exists")
		}
		r := &UserRole{UserID: u.ID, Role: role, KeyCost: keyCost}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		u.Role = r
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Preload("Role").First(&u, id).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Preload("Role").Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, page Page) ([]User, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	err := page.apply(s.db.WithContext(ctx).Preload("Role").Order("id DESC")).Find(&users).Error
	return users, total, err
}

func (s *Store) SetUserActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CascadeResult counts the rows removed by DeleteUserCascade.
type CascadeResult struct {
	APILogs      int64 `json:"api_logs"`
	UsageBuckets int64 `json:"usage_buckets"`
	Keys         int64 `json:"keys"`
	ActivityLogs int64 `json:"activity_logs"`
	Roles        int64 `json:"roles"`
}

// DeleteUserCascade removes a user and everything that references it,
// dependents first: call logs and usage buckets of the user's keys, the
// keys, the user's own activity entries, the role row, then the user.
func (s *Store) DeleteUserCascade(ctx context.Context, id uint) (CascadeResult, error) {
	var res CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, id).Error; err != nil {
			return notFound(err, ErrUserNotFound)
		}

		var keyIDs []uint
		if err := tx.Model(&APIKey{}).Where("user_id = ?", id).Pluck("id", &keyIDs).Error; err != nil {
			return err
		}
		if len(keyIDs) > 0 {
			r := tx.Where("key_id IN ?", keyIDs).Delete(&APILog{})
			if r.Error != nil {
				return r.Error
			}
			res.APILogs = r.RowsAffected

			r = tx.Where("key_id IN ?", keyIDs).Delete(&UsageBucket{})
			if r.Error != nil {
				return r.Error
			}
			res.UsageBuckets = r.RowsAffected
		}

		steps := []struct {
			model any
			count *int64
		}{
			{&APIKey{}, &res.Keys},
			{&ActivityLog{}, &res.ActivityLogs},
			{&UserRole{}, &res.Roles},
		}
		for _, step := range steps {
			r := tx.Where("user_id = ?", id).Delete(step.model)
			if r.Error != nil {
				return r.Error
			}
			*step.count = r.RowsAffected
		}

		return tx.Delete(&user).Error
	})
	return res, err
}

// Summary holds headline counts for the console dashboard.
type Summary struct {
	Users          int64 `json:"users"`
	Keys           int64 `json:"keys"`
	ActiveKeys     int64 `json:"active_keys"`
	CallsLast24h   int64 `json:"calls_last_24h"`
	BlockedLast24h int64 `json:"blocked_last_24h"`
}
