package models

import (
	"time"
)

// Session is the persisted presence record of one browser tab viewing a list.
// The in-memory connection registry is authoritative for routing; this row only
// feeds the "people viewing this list" count.
type Session struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ListID       uint      `json:"listId" gorm:"not null;index"`
	SessionID    string    `json:"sessionId" gorm:"type:varchar(128);not null;uniqueIndex"`
	UserAgent    string    `json:"userAgent" gorm:"type:text"`
	LastActivity time.Time `json:"lastActivity" gorm:"not null;index"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// SessionRegister is the body of POST /api/lists/{id}/sessions.
type SessionRegister struct {
	SessionID string `json:"sessionId"`
	UserAgent string `json:"userAgent,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}
