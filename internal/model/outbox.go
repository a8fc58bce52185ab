package model

import "time"

type OutboxKind string

const (
	OutboxWelcome     OutboxKind = "welcome"
	OutboxUnsubscribe OutboxKind = "unsubscribe"
	OutboxDigest      OutboxKind = "digest"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxMessage is a transactional email written alongside the change that
// triggered it and delivered afterwards.
type OutboxMessage struct {
	ID            uint         `json:"id" gorm:"primaryKey"`
	Kind          OutboxKind   `json:"kind" gorm:"size:30;not null"`
	Recipient     string       `json:"recipient" gorm:"size:320;not null"`
	Subject       string       `json:"subject" gorm:"size:255;not null"`
	HTML          string       `json:"html" gorm:"type:text"`
	Text          string       `json:"text" gorm:"type:text"`
	Status        OutboxStatus `json:"status" gorm:"size:20;index:idx_outbox_due,priority:1;not null;default:pending"`
	Attempts      int          `json:"attempts" gorm:"not null;default:0"`
	LastError     string       `json:"lastError,omitempty" gorm:"type:text"`
	Transport     string       `json:"transport,omitempty" gorm:"size:20"`
	NextAttemptAt time.Time    `json:"nextAttemptAt" gorm:"index:idx_outbox_due,priority:2"`
	SentAt        *time.Time   `json:"sentAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (OutboxMessage) TableName() string {
	return "email_outbox"
}
