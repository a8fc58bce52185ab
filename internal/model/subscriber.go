package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultSubscriberSource = "website"

// Column limits, counted in characters.
const (
	MaxNameLen   = 100
	MaxSourceLen = 50
)

type Subscriber struct {
	gorm.Model
	Email            string                      `json:"email" gorm:"uniqueIndex;size:320;not null"`
	FirstName        string                      `json:"firstName" gorm:"size:100"`
	LastName         string                      `json:"lastName" gorm:"size:100"`
	SubscribedAt     time.Time                   `json:"subscribedAt" gorm:"not null"`
	UnsubscribedAt   *time.Time                  `json:"unsubscribedAt,omitempty"`
	IsActive         bool                        `json:"isActive" gorm:"index;not null;default:true"`
	Source           string                      `json:"source" gorm:"size:50"`
	Tags             datatypes.JSONSlice[string] `json:"tags"`
	UnsubscribeToken string                      `json:"-" gorm:"uniqueIndex;size:64;not null"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// NormalizeEmail is the case-folded form used as the subscriber key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Subscriber) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
