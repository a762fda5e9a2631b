package postgres

import (
	"fmt"

	"github.com/claymoreai/claymore/internal/domain"
)

// MetricRepo appends usage rows. The table is append-only.
type MetricRepo struct{ Pool PgxPool }

// NewMetricRepo constructs a MetricRepo with the given pool.
func NewMetricRepo(p PgxPool) *MetricRepo { return &MetricRepo{Pool: p} }

// Insert appends one metric row.
func (r *MetricRepo) Insert(ctx domain.Context, m domain.Metric) error {
	q := `INSERT INTO metric_v2 (workspace_id, user_id, module_id, token_count, word_count)
	      VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.Pool.Exec(ctx, q, m.WorkspaceID, m.UserID, m.ModuleID, m.TokenCount, m.WordCount); err != nil {
		return fmt.Errorf("op=metric.insert: %w", err)
	}
	return nil
}
