package model

import (
	"time"

	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignFailed:
		return true
	}
	return false
}

type Campaign struct {
	gorm.Model
	Subject        string         `json:"subject" gorm:"size:255;not null"`
	Content        string         `json:"content" gorm:"type:text"`
	HTMLContent    string         `json:"htmlContent" gorm:"type:text"`
	Status         CampaignStatus `json:"status" gorm:"size:20;index;not null;default:draft"`
	ScheduledAt    *time.Time     `json:"scheduledAt,omitempty" gorm:"index"`
	SentAt         *time.Time     `json:"sentAt,omitempty"`
	RecipientCount int            `json:"recipientCount" gorm:"not null;default:0"`
	SentCount      int            `json:"sentCount" gorm:"not null;default:0"`
	FailedCount    int            `json:"failedCount" gorm:"not null;default:0"`
	TemplateID     *uint          `json:"templateId,omitempty"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// CampaignDelivery records one attempted recipient of a campaign. The unique
// pair lets an interrupted send resume without re-attempting anyone.
type CampaignDelivery struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	CampaignID   uint           `json:"campaignId" gorm:"uniqueIndex:idx_campaign_subscriber;not null"`
	SubscriberID uint           `json:"subscriberId" gorm:"uniqueIndex:idx_campaign_subscriber;not null"`
	Email        string         `json:"email" gorm:"size:320;not null"`
	Status       DeliveryStatus `json:"status" gorm:"size:20;not null"`
	Transport    string         `json:"transport" gorm:"size:20"`
	Error        string         `json:"error,omitempty" gorm:"type:text"`
	AttemptedAt  time.Time      `json:"attemptedAt" gorm:"autoCreateTime"`
}

func (CampaignDelivery) TableName() string {
	return "campaign_deliveries"
}
