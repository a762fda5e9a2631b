package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// TemplateRepo loads module templates. Templates are immutable from this
// service's point of view.
type TemplateRepo struct{ Pool PgxPool }

// NewTemplateRepo constructs a TemplateRepo with the given pool.
func NewTemplateRepo(p PgxPool) *TemplateRepo { return &TemplateRepo{Pool: p} }

// Get loads a template by id.
func (r *TemplateRepo) Get(ctx domain.Context, id string) (domain.Template, error) {
	q := `SELECT template_id, template_name, template_category, template_data FROM template_v2 WHERE template_id = $1`
	var t domain.Template
	var raw []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.Category, &raw); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Template{}, fmt.Errorf("op=template.get: %w", domain.ErrNotFound)
		}
		return domain.Template{}, fmt.Errorf("op=template.get: %w", err)
	}
	if err := json.Unmarshal(raw, &t.Data); err != nil {
		return domain.Template{}, fmt.Errorf("op=template.get: %w", err)
	}
	return t, nil
}
