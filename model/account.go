package model

import "time"

// Account statuses.
const (
	AccountBanned = 0
	AccountActive = 1
)

// Account is a login identity. GMs and players authenticate the same
// way; what they can do inside a session comes from the session's GMID
// and participant list, not the account.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:60;not null" json:"-"` // bcrypt
	Status       int        `gorm:"default:1" json:"status"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
