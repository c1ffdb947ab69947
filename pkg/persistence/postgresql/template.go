package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gridbase/gridbase/pkg/models"
	"github.com/gridbase/gridbase/pkg/persistence"
)

func (p *Persistence) TemplateByID(ctx context.Context, id string) (*models.AutomationTemplate, error) {
	var (
		document   []byte
		usageCount int64
	)

	err := p.db.QueryRowContext(ctx,
		`SELECT document, usage_count FROM automation_templates WHERE id = $1`, id).
		Scan(&document, &usageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	var template models.AutomationTemplate
	if err := unmarshalJSON(document, &template); err != nil {
		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	// The counter column is authoritative; the document copy is only a
	// snapshot from the last save.
	template.Trigger.UsageCount = usageCount

	return &template, nil
}

func (p *Persistence) SaveTemplate(ctx context.Context, template *models.AutomationTemplate) error {
	document, err := marshalJSON(template)
	if err != nil {
		return persistence.NewStoreError("SaveTemplate", template.Trigger.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO automation_templates (id, document, usage_count, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document`,
		template.Trigger.ID, document, template.Trigger.UsageCount)
	if err != nil {
		return persistence.NewStoreError("SaveTemplate", template.Trigger.ID, err)
	}

	return nil
}

func (p *Persistence) IncrementTemplateUsage(ctx context.Context, templateID string) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE automation_templates SET usage_count = usage_count + 1 WHERE id = $1`,
		templateID)
	if err != nil {
		return persistence.NewStoreError("IncrementTemplateUsage", templateID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("IncrementTemplateUsage", templateID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("IncrementTemplateUsage", templateID, persistence.ErrTemplateNotFound)
	}

	return nil
}
