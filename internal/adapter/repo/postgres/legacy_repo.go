package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// LegacyRepo covers the legacy generator/job/datadrop tables consumed by the
// legacy_jobs queue.
type LegacyRepo struct{ Pool PgxPool }

// NewLegacyRepo constructs a LegacyRepo with the given pool.
func NewLegacyRepo(p PgxPool) *LegacyRepo { return &LegacyRepo{Pool: p} }

// GetGenerator loads a legacy generator. The prompt chain is stored as
// {"prompts": [string]} jsonb.
func (r *LegacyRepo) GetGenerator(ctx domain.Context, id string) (domain.Generator, error) {
	q := `SELECT generator_id, project_id, generator_name, prompt_chain, model_name, temperature, word_count
	      FROM generator WHERE generator_id = $1`
	var g domain.Generator
	var chain []byte
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&g.ID, &g.ProjectID, &g.Name, &chain, &g.ModelName, &g.Temperature, &g.WordCount); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Generator{}, fmt.Errorf("op=legacy.get_generator: %w", domain.ErrNotFound)
		}
		return domain.Generator{}, fmt.Errorf("op=legacy.get_generator: %w", err)
	}
	var pc struct {
		Prompts []string `json:"prompts"`
	}
	if err := json.Unmarshal(chain, &pc); err != nil {
		return domain.Generator{}, fmt.Errorf("op=legacy.get_generator: %w", err)
	}
	g.Prompts = pc.Prompts
	return g, nil
}

// GetLegacyJob loads a legacy job.
func (r *LegacyRepo) GetLegacyJob(ctx domain.Context, id string) (domain.LegacyJob, error) {
	q := `SELECT job_id, project_id, generator_id, target_count, job_status FROM job WHERE job_id = $1`
	var j domain.LegacyJob
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&j.ID, &j.ProjectID, &j.GeneratorID, &j.TargetCount, &j.Status); err != nil {
		if err == pgx.ErrNoRows {
			return domain.LegacyJob{}, fmt.Errorf("op=legacy.get_job: %w", domain.ErrNotFound)
		}
		return domain.LegacyJob{}, fmt.Errorf("op=legacy.get_job: %w", err)
	}
	return j, nil
}

// SetLegacyJobStatus updates the legacy job's status.
func (r *LegacyRepo) SetLegacyJobStatus(ctx domain.Context, id string, status int16) error {
	if _, err := r.Pool.Exec(ctx, `UPDATE job SET job_status = $2 WHERE job_id = $1`, id, status); err != nil {
		return fmt.Errorf("op=legacy.set_job_status: %w", err)
	}
	return nil
}

// InsertDatadrop appends one produced datadrop.
func (r *LegacyRepo) InsertDatadrop(ctx domain.Context, jobID, name, content string) error {
	q := `INSERT INTO datadrop (job_id, datadrop_name, datadrop_content) VALUES ($1,$2,$3)`
	if _, err := r.Pool.Exec(ctx, q, jobID, name, content); err != nil {
		return fmt.Errorf("op=legacy.insert_datadrop: %w", err)
	}
	return nil
}

// DatadropCount is the legacy job's progress toward its target.
func (r *LegacyRepo) DatadropCount(ctx domain.Context, jobID string) (int, error) {
	var n int
	if err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM datadrop WHERE job_id = $1`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=legacy.datadrop_count: %w", err)
	}
	return n, nil
}
