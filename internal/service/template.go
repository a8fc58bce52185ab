package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
)

const (
	MsgTemplateNotFound     = "Template not found"
	MsgTemplateNameRequired = "Template name is required"
	MsgTemplateNameTaken    = "A template with this name already exists"
	MsgTemplateNameInvalid  = "Template name must contain letters or numbers"
	MsgTemplateCreated      = "Template created"
	MsgTemplateUpdated      = "Template updated"
	MsgTemplateDeleted      = "Template deleted"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_]*)\s*\}\}`)

type TemplateService struct {
	templates repository.TemplateRepository
	logger    *zap.Logger
}

func NewTemplateService(templates repository.TemplateRepository, log *zap.Logger) *TemplateService {
	return &TemplateService{templates: templates, logger: log}
}

// TemplateInput is used for both create and update. On update nil fields
// are left unchanged.
type TemplateInput struct {
	Name        *string  `json:"name"`
	Subject     *string  `json:"subject"`
	HTMLContent *string  `json:"htmlContent"`
	TextContent *string  `json:"textContent"`
	Variables   []string `json:"variables"`
	IsActive    *bool    `json:"isActive"`
}

func (s *TemplateService) List(ctx context.Context, activeOnly bool) Result {
	templates, err := s.templates.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("Failed to list templates", zap.Error(err))
		return internalError()
	}
	return succeed("", templates)
}

func (s *TemplateService) Get(ctx context.Context, id uint) Result {
	tmpl, res, ok := s.find(ctx, id)
	if !ok {
		return res
	}
	return succeed("", tmpl)
}

func (s *TemplateService) Create(ctx context.Context, in TemplateInput) Result {
	tmpl := &model.Template{IsActive: true}
	apply(tmpl, in)

	if tmpl.Name == "" {
		return fail(ReasonInvalid, MsgTemplateNameRequired)
	}
	if res, ok := s.nameAvailable(ctx, tmpl, 0); !ok {
		return res
	}

	if err := s.templates.Create(ctx, tmpl); err != nil {
		s.logger.Error("Failed to create template", zap.Error(err))
		return internalError()
	}
	return succeed(MsgTemplateCreated, tmpl)
}

func (s *TemplateService) Update(ctx context.Context, id uint, in TemplateInput) Result {
	tmpl, res, ok := s.find(ctx, id)
	if !ok {
		return res
	}

	apply(tmpl, in)
	if tmpl.Name == "" {
		return fail(ReasonInvalid, MsgTemplateNameRequired)
	}
	if res, ok := s.nameAvailable(ctx, tmpl, tmpl.ID); !ok {
		return res
	}

	if err := s.templates.Update(ctx, tmpl); err != nil {
		s.logger.Error("Failed to update template", zap.Uint("template_id", id), zap.Error(err))
		return internalError()
	}
	return succeed(MsgTemplateUpdated, tmpl)
}

func (s *TemplateService) Delete(ctx context.Context, id uint) Result {
	err := s.templates.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ReasonNotFound, MsgTemplateNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to delete template", zap.Uint("template_id", id), zap.Error(err))
		return internalError()
	}
	return succeed(MsgTemplateDeleted, nil)
}

func (s *TemplateService) find(ctx context.Context, id uint) (*model.Template, Result, bool) {
	tmpl, err := s.templates.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fail(ReasonNotFound, MsgTemplateNotFound), false
	}
	if err != nil {
		s.logger.Error("Failed to load template", zap.Uint("template_id", id), zap.Error(err))
		return nil, internalError(), false
	}
	return tmpl, Result{}, true
}

// nameAvailable checks the slug, which is unique and folds names that
// differ only in case or punctuation.
func (s *TemplateService) nameAvailable(ctx context.Context, tmpl *model.Template, selfID uint) (Result, bool) {
	if tmpl.Slug == "" {
		return fail(ReasonInvalid, MsgTemplateNameInvalid), false
	}
	existing, err := s.templates.FindBySlug(ctx, tmpl.Slug)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Result{}, true
	case err != nil:
		s.logger.Error("Failed to check template name", zap.Error(err))
		return internalError(), false
	case existing.ID != selfID:
		return fail(ReasonConflict, MsgTemplateNameTaken), false
	}
	return Result{}, true
}

func apply(tmpl *model.Template, in TemplateInput) {
	if in.Name != nil {
		tmpl.Name = strings.TrimSpace(*in.Name)
		tmpl.Slug = slug.Make(tmpl.Name)
	}
	if in.Subject != nil {
		tmpl.Subject = strings.TrimSpace(*in.Subject)
	}
	if in.HTMLContent != nil {
		tmpl.HTMLContent = *in.HTMLContent
	}
	if in.TextContent != nil {
		tmpl.TextContent = *in.TextContent
	}
	if in.IsActive != nil {
		tmpl.IsActive = *in.IsActive
	}

	// Stored variables survive updates that leave the content alone.
	contentChanged := in.Subject != nil || in.HTMLContent != nil || in.TextContent != nil
	switch {
	case in.Variables != nil:
		tmpl.Variables = in.Variables
	case contentChanged || tmpl.Variables == nil:
		tmpl.Variables = Placeholders(tmpl.Subject, tmpl.HTMLContent, tmpl.TextContent)
	}
}

// Placeholders lists the distinct {{name}} variables used across texts, in
// order of first appearance.
func Placeholders(texts ...string) []string {
	seen := make(map[string]bool)
	vars := []string{}
	for _, text := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				vars = append(vars, m[1])
			}
		}
	}
	return vars
}
