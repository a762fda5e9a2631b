package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// ModuleRepo persists modules and their JSON config.
type ModuleRepo struct{ Pool PgxPool }

// NewModuleRepo constructs a ModuleRepo with the given pool.
func NewModuleRepo(p PgxPool) *ModuleRepo { return &ModuleRepo{Pool: p} }

const moduleColumns = `module_id, module_name, template_id, workspace_id, module_category, config_data, created_at, updated_at`

func scanModule(row pgx.Row) (domain.Module, error) {
	var m domain.Module
	var raw []byte
	if err := row.Scan(&m.ID, &m.Name, &m.TemplateID, &m.Workspace, &m.Category, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Module{}, err
	}
	if err := json.Unmarshal(raw, &m.Config); err != nil {
		return domain.Module{}, err
	}
	return m, nil
}

// Create inserts a module and returns its id.
func (r *ModuleRepo) Create(ctx domain.Context, m domain.Module) (string, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return "", fmt.Errorf("op=module.create: %w", err)
	}
	q := `INSERT INTO module_v2 (module_id, module_name, template_id, workspace_id, module_category, config_data, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, m.Name, m.TemplateID, m.Workspace, m.Category, cfg, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=module.create: %w", err)
	}
	return id, nil
}

// Get loads a module by id.
func (r *ModuleRepo) Get(ctx domain.Context, id string) (domain.Module, error) {
	q := `SELECT ` + moduleColumns + ` FROM module_v2 WHERE module_id = $1`
	m, err := scanModule(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Module{}, fmt.Errorf("op=module.get: %w", domain.ErrNotFound)
		}
		return domain.Module{}, fmt.Errorf("op=module.get: %w", err)
	}
	return m, nil
}

// List returns all modules of a workspace with their derived status. The
// status is computed in one aggregate join: per active job, the distinct
// group count over its candidates is compared against target_count.
func (r *ModuleRepo) List(ctx domain.Context, workspaceID string) ([]domain.ModuleWithStatus, error) {
	q := `SELECT
	        module_v2.module_id,
	        module_name,
	        template_id,
	        workspace_id,
	        module_category,
	        config_data,
	        created_at,
	        updated_at,
	        CASE
	            WHEN job_count > 0 THEN
	                CASE
	                    WHEN some_running THEN 'Running'
	                    WHEN all_zero THEN 'Pending'
	                    ELSE 'Ready'
	                END
	            ELSE 'Ready'
	        END AS status
	    FROM module_v2
	    LEFT JOIN (
	        SELECT
	            module_id,
	            count(*) AS job_count,
	            bool_or(coalesce(counts, 0) < target_count AND coalesce(counts, 0) > 0) AS some_running,
	            bool_and(coalesce(counts, 0) = 0) AS all_zero
	        FROM job_v2 j
	        LEFT JOIN (
	            SELECT job_id, count(DISTINCT job_status_group_id) AS counts
	            FROM candidate_v2
	            GROUP BY job_id
	        ) c ON j.job_id = c.job_id
	        WHERE j.job_status = 0
	        GROUP BY j.module_id
	    ) job_status ON module_v2.module_id = job_status.module_id
	    WHERE workspace_id = $1`
	rows, err := r.Pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("op=module.list: %w", err)
	}
	defer rows.Close()

	var out []domain.ModuleWithStatus
	for rows.Next() {
		var ms domain.ModuleWithStatus
		var raw []byte
		if err := rows.Scan(&ms.ID, &ms.Name, &ms.TemplateID, &ms.Workspace, &ms.Category, &raw, &ms.CreatedAt, &ms.UpdatedAt, &ms.Status); err != nil {
			return nil, fmt.Errorf("op=module.list: %w", err)
		}
		if err := json.Unmarshal(raw, &ms.Config); err != nil {
			return nil, fmt.Errorf("op=module.list: %w", err)
		}
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=module.list: %w", err)
	}
	return out, nil
}

// SaveConfig rewrites the module's config and returns the updated row.
func (r *ModuleRepo) SaveConfig(ctx domain.Context, id string, cfg domain.ModuleConfig) (domain.Module, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return domain.Module{}, fmt.Errorf("op=module.save_config: %w", err)
	}
	q := `UPDATE module_v2 SET config_data = $1, updated_at = $2 WHERE module_id = $3
	      RETURNING ` + moduleColumns
	m, err := scanModule(r.Pool.QueryRow(ctx, q, raw, time.Now().UTC(), id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Module{}, fmt.Errorf("op=module.save_config: %w", domain.ErrNotFound)
		}
		return domain.Module{}, fmt.Errorf("op=module.save_config: %w", err)
	}
	return m, nil
}

// SaveConfigAndTemplate rewrites config and template binding together.
func (r *ModuleRepo) SaveConfigAndTemplate(ctx domain.Context, id string, cfg domain.ModuleConfig, templateID *string) (domain.Module, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return domain.Module{}, fmt.Errorf("op=module.save_config_template: %w", err)
	}
	q := `UPDATE module_v2 SET config_data = $1, template_id = $2, updated_at = $3 WHERE module_id = $4
	      RETURNING ` + moduleColumns
	m, err := scanModule(r.Pool.QueryRow(ctx, q, raw, templateID, time.Now().UTC(), id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Module{}, fmt.Errorf("op=module.save_config_template: %w", domain.ErrNotFound)
		}
		return domain.Module{}, fmt.Errorf("op=module.save_config_template: %w", err)
	}
	return m, nil
}

// PurgeRunState deletes the module's candidates, resets its file bindings
// (or clears them entirely when clearBindings is set), and supersedes its
// active jobs, all in one transaction so in-flight workers observe a
// consistent snapshot.
func (r *ModuleRepo) PurgeRunState(ctx domain.Context, id string, clearBindings bool) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=module.purge_run_state: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM candidate_v2 WHERE module_id = $1`, id); err != nil {
		return fmt.Errorf("op=module.purge_run_state: %w", err)
	}
	fileQ := `UPDATE file_module SET finish_process = false WHERE module_id = $1`
	if clearBindings {
		fileQ = `DELETE FROM file_module WHERE module_id = $1`
	}
	if _, err := tx.Exec(ctx, fileQ, id); err != nil {
		return fmt.Errorf("op=module.purge_run_state: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE job_v2 SET job_status = 1 WHERE module_id = $1 AND job_status = 0`, id); err != nil {
		return fmt.Errorf("op=module.purge_run_state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=module.purge_run_state: %w", err)
	}
	return nil
}

// SetAssignData updates only the assignData field of the stored config.
func (r *ModuleRepo) SetAssignData(ctx domain.Context, id string, ad domain.AssignData) (domain.Module, error) {
	raw, err := json.Marshal(ad)
	if err != nil {
		return domain.Module{}, fmt.Errorf("op=module.set_assign_data: %w", err)
	}
	q := `UPDATE module_v2 SET config_data = jsonb_set(config_data, '{assignData}', $1), updated_at = $2
	      WHERE module_id = $3
	      RETURNING ` + moduleColumns
	m, err := scanModule(r.Pool.QueryRow(ctx, q, raw, time.Now().UTC(), id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Module{}, fmt.Errorf("op=module.set_assign_data: %w", domain.ErrNotFound)
		}
		return domain.Module{}, fmt.Errorf("op=module.set_assign_data: %w", err)
	}
	return m, nil
}
