package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"galvan_backend/internal/model"
)

type GormOutboxRepository struct {
	db *gorm.DB
}

var _ OutboxRepository = (*GormOutboxRepository)(nil)

func NewOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("enqueue %s email: %w", msg.Kind, err)
	}
	return nil
}

func (r *GormOutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	var msgs []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list due outbox messages: %w", err)
	}
	return msgs, nil
}

func (r *GormOutboxRepository) Claim(ctx context.Context, id uint, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, model.OutboxPending, now).
		Update("next_attempt_at", until)
	if res.Error != nil {
		return false, fmt.Errorf("claim outbox message %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOutboxRepository) Update(ctx context.Context, msg *model.OutboxMessage) error {
	if err := r.db.WithContext(ctx).Save(msg).Error; err != nil {
		return fmt.Errorf("update outbox message %d: %w", msg.ID, err)
	}
	return nil
}

type GormLoginHistoryRepository struct {
	db *gorm.DB
}

var _ LoginHistoryRepository = (*GormLoginHistoryRepository)(nil)

func NewLoginHistoryRepository(db *gorm.DB) *GormLoginHistoryRepository {
	return &GormLoginHistoryRepository{db: db}
}

func (r *GormLoginHistoryRepository) Record(ctx context.Context, entry *model.LoginHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}
