package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// JobRepo persists module jobs.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

// Create inserts a new job and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) (string, error) {
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO job_v2 (job_id, module_id, workspace_id, target_count, job_status, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, j.ModuleID, j.WorkspaceID, j.TargetCount, j.Status, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	q := `SELECT job_id, module_id, workspace_id, target_count, job_status, created_at FROM job_v2 WHERE job_id = $1`
	var j domain.Job
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&j.ID, &j.ModuleID, &j.WorkspaceID, &j.TargetCount, &j.Status, &j.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// SetStatus updates a job's status.
func (r *JobRepo) SetStatus(ctx domain.Context, id string, status int16) error {
	q := `UPDATE job_v2 SET job_status = $2 WHERE job_id = $1`
	if _, err := r.Pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("op=job.set_status: %w", err)
	}
	return nil
}

// ActiveJobs returns the module's jobs with status = active.
func (r *JobRepo) ActiveJobs(ctx domain.Context, moduleID string) ([]domain.Job, error) {
	q := `SELECT job_id, module_id, workspace_id, target_count, job_status, created_at
	      FROM job_v2 WHERE module_id = $1 AND job_status = 0`
	rows, err := r.Pool.Query(ctx, q, moduleID)
	if err != nil {
		return nil, fmt.Errorf("op=job.active: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.ModuleID, &j.WorkspaceID, &j.TargetCount, &j.Status, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=job.active: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.active: %w", err)
	}
	return out, nil
}

// DistinctGroupCount is the job's effective progress: the number of distinct
// job_status_group_id values over its candidates.
func (r *JobRepo) DistinctGroupCount(ctx domain.Context, jobID string) (int, error) {
	q := `SELECT count(DISTINCT job_status_group_id) FROM candidate_v2 WHERE job_id = $1`
	var n int
	if err := r.Pool.QueryRow(ctx, q, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=job.group_count: %w", err)
	}
	return n, nil
}
