package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"galvan_backend/internal/model"
)

type GormSubscriberRepository struct {
	db *gorm.DB
}

var _ SubscriberRepository = (*GormSubscriberRepository)(nil)

func NewSubscriberRepository(db *gorm.DB) *GormSubscriberRepository {
	return &GormSubscriberRepository{db: db}
}

func (r *GormSubscriberRepository) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := r.db.WithContext(ctx).Where("email = ?", model.NormalizeEmail(email)).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *GormSubscriberRepository) FindActiveByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).
		Where("unsubscribe_token = ? AND is_active = ?", token, true).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *GormSubscriberRepository) Save(ctx context.Context, sub *model.Subscriber, messages ...*model.OutboxMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Select("*") so a false IsActive is written on update.
		if sub.ID == 0 {
			if err := tx.Create(sub).Error; err != nil {
				return fmt.Errorf("create subscriber: %w", err)
			}
		} else if err := tx.Select("*").Omit("created_at").Updates(sub).Error; err != nil {
			return fmt.Errorf("update subscriber %d: %w", sub.ID, err)
		}

		for _, msg := range messages {
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("enqueue %s email: %w", msg.Kind, err)
			}
		}
		return nil
	})
}

func (r *GormSubscriberRepository) ListActive(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return subs, nil
}

func (r *GormSubscriberRepository) All(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := r.db.WithContext(ctx).Order("subscribed_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

func (r *GormSubscriberRepository) List(ctx context.Context, filter SubscriberFilter) ([]model.Subscriber, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Subscriber{})
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if filter.Search != "" {
		query = query.Where(`email ILIKE ? ESCAPE '\'`, "%"+escapeLike(filter.Search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	var subs []model.Subscriber
	if err := query.Order("subscribed_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Size()).
		Find(&subs).Error; err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, total, nil
}

func (r *GormSubscriberRepository) Counts(ctx context.Context) (SubscriberCounts, error) {
	var counts SubscriberCounts
	db := r.db.WithContext(ctx).Model(&model.Subscriber{})
	if err := db.Count(&counts.Total).Error; err != nil {
		return counts, fmt.Errorf("count subscribers: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&model.Subscriber{}).
		Where("is_active = ?", true).
		Count(&counts.Active).Error; err != nil {
		return counts, fmt.Errorf("count active subscribers: %w", err)
	}
	return counts, nil
}

func (r *GormSubscriberRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Subscriber{}).
		Where("is_active = ? AND subscribed_at >= ?", true, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count new subscribers: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes LIKE wildcards in user input match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
