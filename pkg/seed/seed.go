package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
)

var defaultTemplates = []model.Template{
	{
		Name:    "Monthly Update",
		Slug:    "monthly-update",
		Subject: "What's new at Galvan AI",
		HTMLContent: `<p>Hi {{firstName}},</p>
<p>Here is what we shipped this month.</p>
<p style="font-size:12px;color:#6b7280;">You are receiving this at {{email}}. <a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`,
		TextContent: "Hi {{firstName}},\n\nHere is what we shipped this month.\n\nUnsubscribe: {{unsubscribeUrl}}\n",
		Variables:   []string{"email", "firstName", "unsubscribeUrl"},
		IsActive:    true,
	},
	{
		Name:    "Product Announcement",
		Slug:    "product-announcement",
		Subject: "{{firstName}}, meet our latest release",
		HTMLContent: `<p>Hi {{firstName}} {{lastName}},</p>
<p>We have something new to show you.</p>
<p style="font-size:12px;color:#6b7280;"><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`,
		TextContent: "Hi {{firstName}} {{lastName}},\n\nWe have something new to show you.\n\nUnsubscribe: {{unsubscribeUrl}}\n",
		Variables:   []string{"firstName", "lastName", "unsubscribeUrl"},
		IsActive:    true,
	},
}

// Templates creates the starter newsletter templates that are missing.
// Existing templates with the same slug are left untouched.
func Templates(ctx context.Context, repo repository.TemplateRepository, log *zap.Logger) error {
	created := 0
	for _, tmpl := range defaultTemplates {
		_, err := repo.FindBySlug(ctx, tmpl.Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("look up template %q: %w", tmpl.Name, err)
		}

		tmpl := tmpl
		if err := repo.Create(ctx, &tmpl); err != nil {
			return fmt.Errorf("create template %q: %w", tmpl.Name, err)
		}
		created++
	}

	if created > 0 {
		log.Info("Newsletter templates seeded", zap.Int("created", created))
	}
	return nil
}
