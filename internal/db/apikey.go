package db

import (
	"time"

	"gorm.io/datatypes"
)

// APIKey is an issued access grant to one trend feed. The persisted
// IsActive flag is a hint: a key past ExpiresAt is expired no matter
// what the flag says.
type APIKey struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Key is the bearer secret handed to the customer.
	Key string `gorm:"uniqueIndex;size:255;not null" json:"key"`

	UserID uint `gorm:"index;not null" json:"user_id"`

	// GameType and Duration select the trend feed (see internal/trend).
	GameType string `gorm:"size:16;not null" json:"game_type"`
	Duration string `gorm:"size:8;not null" json:"duration"`

	// BoundDomain is the customer's primary site, shown in the console.
	BoundDomain string `gorm:"size:255" json:"bound_domain,omitempty"`

	// Empty whitelists mean unrestricted.
	IPWhitelist     datatypes.JSONSlice[string] `json:"ip_whitelist"`
	DomainWhitelist datatypes.JSONSlice[string] `json:"domain_whitelist"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	IsActive  bool      `gorm:"not null" json:"is_active"`

	TotalCalls int64      `gorm:"not null;default:0" json:"total_calls"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Expired reports whether the key's validity window has closed at now.
func (k *APIKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
