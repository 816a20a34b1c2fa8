package db

import (
	"time"
)

// Roles a user can hold. A user has exactly one UserRole row.
const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleReseller = "reseller"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleUser || r == RoleReseller
}

// User represents a console account. Keys and activity logs hang off it;
// deleting a user goes through Store.DeleteUserCascade.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// TelegramID is the chat id lifecycle notifications go to.
	TelegramID string `gorm:"size:64" json:"telegram_id,omitempty"`

	// Active is a soft-disable flag; inactive users cannot sign in.
	Active bool `gorm:"not null" json:"active"`

	// Coins is the reseller balance spent on key creation.
	Coins int64 `gorm:"not null;default:0" json:"coins"`

	Role *UserRole `gorm:"foreignKey:UserID" json:"role,omitempty"`
}

// RoleName returns the user's role, defaulting to "user" when none is loaded.
func (u *User) RoleName() string {
	if u.Role == nil || u.Role.Role == "" {
		return RoleUser
	}
	return u.Role.Role
}

// UserRole stores the single role held by a user.
type UserRole struct {
	ID uint `gorm:"primaryKey" json:"-"`

	CreatedAt time.Time `json:"created_at"`

	UserID uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	Role   string `gorm:"size:16;not null" json:"role"`

	// KeyCost is the number of coins a reseller pays per issued key.
	KeyCost int64 `gorm:"not null;default:0" json:"key_cost"`
}
