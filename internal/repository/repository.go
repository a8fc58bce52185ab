package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"galvan_backend/internal/model"
)

var ErrNotFound = errors.New("record not found")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is a 1-based page request. Zero values fall back to the first page of
// DefaultPageSize rows.
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	n := p.normalize()
	return (n.Page - 1) * n.Limit
}

func (p Pagination) PageNumber() int {
	return p.normalize().Page
}

func (p Pagination) Size() int {
	return p.normalize().Limit
}

type SubscriberFilter struct {
	Pagination
	Active *bool
	Search string
}

type SubscriberCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type SubscriberRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	FindActiveByToken(ctx context.Context, token string) (*model.Subscriber, error)
	// Save writes the subscriber and any outbox messages in one transaction.
	Save(ctx context.Context, sub *model.Subscriber, messages ...*model.OutboxMessage) error
	ListActive(ctx context.Context) ([]model.Subscriber, error)
	All(ctx context.Context) ([]model.Subscriber, error)
	List(ctx context.Context, filter SubscriberFilter) ([]model.Subscriber, int64, error)
	Counts(ctx context.Context) (SubscriberCounts, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type CampaignFilter struct {
	Pagination
	Status model.CampaignStatus
}

type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	FindByID(ctx context.Context, id uint) (*model.Campaign, error)
	List(ctx context.Context, filter CampaignFilter) ([]model.Campaign, int64, error)
	// ListDue returns scheduled campaigns whose time has passed plus any
	// campaign still marked sending.
	ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error)
	UpdateStatus(ctx context.Context, id uint, status model.CampaignStatus) error
	// Complete marks the campaign sent and stores the final counters.
	Complete(ctx context.Context, id uint, sent, failed int, at time.Time) error
	Deliveries(ctx context.Context, campaignID uint) ([]model.CampaignDelivery, error)
	RecordDelivery(ctx context.Context, delivery *model.CampaignDelivery) error
}

type TemplateRepository interface {
	List(ctx context.Context, activeOnly bool) ([]model.Template, error)
	FindByID(ctx context.Context, id uint) (*model.Template, error)
	FindBySlug(ctx context.Context, slug string) (*model.Template, error)
	Create(ctx context.Context, tmpl *model.Template) error
	Update(ctx context.Context, tmpl *model.Template) error
	Delete(ctx context.Context, id uint) error
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error)
	// Claim moves a due pending message's next attempt to until and reports
	// whether this caller won it.
	Claim(ctx context.Context, id uint, now, until time.Time) (bool, error)
	Update(ctx context.Context, msg *model.OutboxMessage) error
}

type LoginHistoryRepository interface {
	Record(ctx context.Context, entry *model.LoginHistory) error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
