package db

import (
	"time"

	"gorm.io/datatypes"
)

// APILog statuses.
const (
	CallSuccess = "success"
	CallError   = "error"
	CallBlocked = "blocked"
)

// APILog is one inbound trend API call. Rows are never updated.
type APILog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// KeyID is nil when the presented key did not match any row.
	KeyID *uint `gorm:"index" json:"key_id,omitempty"`

	Endpoint string `gorm:"size:255;not null" json:"endpoint"`
	IP       string `gorm:"size:64" json:"ip"`
	Domain   string `gorm:"size:255" json:"domain"`
	Status   string `gorm:"size:16;index;not null" json:"status"`

	// Reason carries the gate decision for blocked calls.
	Reason string `gorm:"size:32" json:"reason,omitempty"`

	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TelegramLog statuses.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// MaxLoggedMessage bounds the body stored in TelegramLog.Message.
const MaxLoggedMessage = 500

// TelegramLog is one notification attempt.
type TelegramLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	MessageType string `gorm:"size:32;index;not null" json:"message_type"`
	ChatID      string `gorm:"size:64;not null" json:"chat_id"`
	Message     string `gorm:"type:text" json:"message"`
	Status      string `gorm:"size:16;not null" json:"status"`
	Error       string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// ActivityLog records an administrative mutation.
type ActivityLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// UserID is the acting user, nil for system actions.
	UserID *uint `gorm:"index" json:"user_id,omitempty"`

	Action  string            `gorm:"size:64;index;not null" json:"action"`
	Details datatypes.JSONMap `json:"details,omitempty"`
	IP      string            `gorm:"size:64" json:"ip,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Setting is one row of the flat key/value configuration store.
// Booleans are stored as "true"/"false".
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageBucket stores pre-aggregated hourly call metrics per key. Filled by
// the aggregation worker.
type UsageBucket struct {
	ID uint `gorm:"primaryKey" json:"-"`

	KeyID       uint      `gorm:"uniqueIndex:idx_usage_bucket_unique,priority:1;not null" json:"key_id"`
	BucketStart time.Time `gorm:"uniqueIndex:idx_usage_bucket_unique,priority:2;not null" json:"bucket_start"` // start of the hour (UTC)

	TotalCount   int64 `gorm:"not null" json:"total_count"`
	SuccessCount int64 `gorm:"not null" json:"success_count"`
	BlockedCount int64 `gorm:"not null" json:"blocked_count"`
	ErrorCount   int64 `gorm:"not null" json:"error_count"`

	ResponseP50Ms int64 `gorm:"not null" json:"response_p50_ms"`
	ResponseP95Ms int64 `gorm:"not null" json:"response_p95_ms"`
	ResponseP99Ms int64 `gorm:"not null" json:"response_p99_ms"`
}
