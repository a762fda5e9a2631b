package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claymoreai/claymore/internal/domain"
)

// DataRepo persists saved data rows. Raw rows are scoped to a module, cooked
// rows to a datastore; tags is a comma-joined list matched element-wise.
type DataRepo struct{ Pool PgxPool }

// NewDataRepo constructs a DataRepo with the given pool.
func NewDataRepo(p PgxPool) *DataRepo { return &DataRepo{Pool: p} }

// Insert writes one data row.
func (r *DataRepo) Insert(ctx domain.Context, moduleID, moduleType string, isRaw bool, tags, content string, extra map[string]any) error {
	var extraRaw []byte
	if extra != nil {
		var err error
		extraRaw, err = json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("op=data.insert: %w", err)
		}
	}
	q := `INSERT INTO data_v2 (module_id, data_module_type, is_raw, tags, data_content, extra_data)
	      VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, moduleID, moduleType, isRaw, tags, content, extraRaw); err != nil {
		return fmt.Errorf("op=data.insert: %w", err)
	}
	return nil
}

// ListAssigned fetches rows matching any of the tags. Each row's tags column
// is treated as a comma list and matched element-wise against the requested
// tags.
func (r *DataRepo) ListAssigned(ctx domain.Context, scopeID string, isRaw bool, tags []string) ([]domain.DataRow, error) {
	scopeCol := "datastore_id"
	if isRaw {
		scopeCol = "module_id"
	}
	conds := make([]string, 0, len(tags))
	args := []any{scopeID, isRaw}
	for _, tag := range tags {
		args = append(args, tag)
		conds = append(conds, fmt.Sprintf("$%d = ANY(string_to_array(tags, ','))", len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT data_id, data_content, extra_data, is_raw, tags
	      FROM data_v2 WHERE %s = $1 AND is_raw = $2 AND (%s)`,
		scopeCol, strings.Join(conds, " OR "))
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=data.list_assigned: %w", err)
	}
	defer rows.Close()

	var out []domain.DataRow
	for rows.Next() {
		var d domain.DataRow
		var extra []byte
		if err := rows.Scan(&d.ID, &d.Content, &extra, &d.IsRaw, &d.Tags); err != nil {
			return nil, fmt.Errorf("op=data.list_assigned: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &d.ExtraData); err != nil {
				return nil, fmt.Errorf("op=data.list_assigned: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=data.list_assigned: %w", err)
	}
	return out, nil
}

// DistinctTagCount counts distinct tag sets of the module's raw rows. Used to
// derive the default tag on saveData.
func (r *DataRepo) DistinctTagCount(ctx domain.Context, moduleID string) (int, error) {
	q := `SELECT count(DISTINCT tags) FROM data_v2 WHERE module_id = $1 AND is_raw = true`
	var n int
	if err := r.Pool.QueryRow(ctx, q, moduleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=data.tag_count: %w", err)
	}
	return n, nil
}
