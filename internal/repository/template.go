package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"galvan_backend/internal/model"
)

type GormTemplateRepository struct {
	db *gorm.DB
}

var _ TemplateRepository = (*GormTemplateRepository)(nil)

func NewTemplateRepository(db *gorm.DB) *GormTemplateRepository {
	return &GormTemplateRepository{db: db}
}

func (r *GormTemplateRepository) List(ctx context.Context, activeOnly bool) ([]model.Template, error) {
	query := r.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var templates []model.Template
	if err := query.Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (r *GormTemplateRepository) FindByID(ctx context.Context, id uint) (*model.Template, error) {
	var tmpl model.Template
	if err := r.db.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tmpl, nil
}

func (r *GormTemplateRepository) FindBySlug(ctx context.Context, slug string) (*model.Template, error) {
	var tmpl model.Template
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&tmpl).Error; err != nil {
		return nil, notFound(err)
	}
	return &tmpl, nil
}

func (r *GormTemplateRepository) Create(ctx context.Context, tmpl *model.Template) error {
	if err := r.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *GormTemplateRepository) Update(ctx context.Context, tmpl *model.Template) error {
	if err := r.db.WithContext(ctx).Select("*").Omit("created_at").Updates(tmpl).Error; err != nil {
		return fmt.Errorf("update template %d: %w", tmpl.ID, err)
	}
	return nil
}

// Delete removes the row for good so its name and slug can be reused.
func (r *GormTemplateRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Unscoped().Delete(&model.Template{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete template %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
