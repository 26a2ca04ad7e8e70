package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records engine operations (status changes, combat events,
// exploration resolutions) for after-session review.
type AuditLog struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID     string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	SessionID   string         `gorm:"index:idx_audit_session;size:36" json:"session_id"`
	AccountID   *int64         `json:"account_id"`
	CharacterID string         `gorm:"size:36" json:"character_id"`
	Action      string         `gorm:"size:64;not null" json:"action"`
	Request     datatypes.JSON `json:"request"`
	Response    datatypes.JSON `json:"response"`
	Error       string         `gorm:"type:text" json:"error"`
	IP          string         `gorm:"size:45" json:"ip"`
	DurationMs  int            `json:"duration_ms"`
	CreatedAt   time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
