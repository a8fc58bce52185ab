package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"galvan_backend/internal/model"
)

type GormCampaignRepository struct {
	db *gorm.DB
}

var _ CampaignRepository = (*GormCampaignRepository)(nil)

func NewCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

func (r *GormCampaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	if err := r.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *GormCampaignRepository) FindByID(ctx context.Context, id uint) (*model.Campaign, error) {
	var campaign model.Campaign
	if err := r.db.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &campaign, nil
}

func (r *GormCampaignRepository) List(ctx context.Context, filter CampaignFilter) ([]model.Campaign, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Campaign{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	var campaigns []model.Campaign
	if err := query.Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Size()).
		Find(&campaigns).Error; err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, total, nil
}

func (r *GormCampaignRepository) ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.WithContext(ctx).
		Where("(status = ? AND scheduled_at <= ?) OR status = ?", model.CampaignScheduled, now, model.CampaignSending).
		Order("id ASC").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *GormCampaignRepository) UpdateStatus(ctx context.Context, id uint, status model.CampaignStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update campaign %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormCampaignRepository) Complete(ctx context.Context, id uint, sent, failed int, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          model.CampaignSent,
		"sent_at":         at,
		"sent_count":      sent,
		"failed_count":    failed,
		"recipient_count": sent + failed,
	}).Error
	if err != nil {
		return fmt.Errorf("complete campaign %d: %w", id, err)
	}
	return nil
}

func (r *GormCampaignRepository) Deliveries(ctx context.Context, campaignID uint) ([]model.CampaignDelivery, error) {
	var deliveries []model.CampaignDelivery
	if err := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("list deliveries for campaign %d: %w", campaignID, err)
	}
	return deliveries, nil
}

func (r *GormCampaignRepository) RecordDelivery(ctx context.Context, delivery *model.CampaignDelivery) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(delivery).Error
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
