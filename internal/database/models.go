package database

import "time"

// SessionEvent is one row of the terminal session audit trail. A session
// produces an "opened" row when the bridge registers it and a "closed" row
// when the lifecycle manager tears it down.
type SessionEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string    `gorm:"not null;index;size:64" json:"session_id"`
	Event      string    `gorm:"not null;size:16" json:"event"` // "opened" or "closed"
	TargetKind string    `gorm:"not null;size:16" json:"target_kind"`
	Target     string    `gorm:"not null" json:"target"` // e.g. "ops@10.0.0.5:22" or "prod/default/web-1/app"
	Reason     string    `json:"reason"`                 // close reason, empty for "opened"
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
