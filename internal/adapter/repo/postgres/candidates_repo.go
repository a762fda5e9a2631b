package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// CandidateRepo persists produced candidates.
type CandidateRepo struct{ Pool PgxPool }

// NewCandidateRepo constructs a CandidateRepo with the given pool.
func NewCandidateRepo(p PgxPool) *CandidateRepo { return &CandidateRepo{Pool: p} }

// InsertGroup writes candidates sharing one group id inside a transaction
// that re-checks the owning job is still active against the same snapshot.
// It reports whether the rows were committed; a superseded or paused job
// aborts without error.
func (r *CandidateRepo) InsertGroup(ctx domain.Context, jobID string, cands []domain.Candidate) (bool, error) {
	if len(cands) == 0 {
		return true, nil
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("op=candidate.insert_group: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status int16
	if err := tx.QueryRow(ctx, `SELECT job_status FROM job_v2 WHERE job_id = $1 FOR UPDATE`, jobID).Scan(&status); err != nil {
		if err == pgx.ErrNoRows {
			return false, fmt.Errorf("op=candidate.insert_group: %w", domain.ErrNotFound)
		}
		return false, fmt.Errorf("op=candidate.insert_group: %w", err)
	}
	if status != domain.JobActive {
		return false, nil
	}

	for _, c := range cands {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		extra, err := json.Marshal(c.ExtraData)
		if err != nil {
			return false, fmt.Errorf("op=candidate.insert_group: %w", err)
		}
		q := `INSERT INTO candidate_v2 (candidate_id, module_id, job_id, job_status_group_id, content, extra_data, created_at)
		      VALUES ($1,$2,$3,$4,$5,$6,$7)`
		if _, err := tx.Exec(ctx, q, id, c.ModuleID, jobID, c.GroupID, c.Content, extra, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("op=candidate.insert_group: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("op=candidate.insert_group: %w", err)
	}
	return true, nil
}

// ListByModule returns all candidates of a module.
func (r *CandidateRepo) ListByModule(ctx domain.Context, moduleID string) ([]domain.Candidate, error) {
	q := `SELECT candidate_id, module_id, job_id, job_status_group_id, content, extra_data, created_at, updated_at
	      FROM candidate_v2 WHERE module_id = $1 ORDER BY created_at`
	rows, err := r.Pool.Query(ctx, q, moduleID)
	if err != nil {
		return nil, fmt.Errorf("op=candidate.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var extra []byte
		if err := rows.Scan(&c.ID, &c.ModuleID, &c.JobID, &c.GroupID, &c.Content, &extra, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=candidate.list: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &c.ExtraData); err != nil {
				return nil, fmt.Errorf("op=candidate.list: %w", err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=candidate.list: %w", err)
	}
	return out, nil
}

// DeleteByModule removes all candidates of a module.
func (r *CandidateRepo) DeleteByModule(ctx domain.Context, moduleID string) error {
	if _, err := r.Pool.Exec(ctx, `DELETE FROM candidate_v2 WHERE module_id = $1`, moduleID); err != nil {
		return fmt.Errorf("op=candidate.delete: %w", err)
	}
	return nil
}

// AppendEvaluation merges {"evaluate": evaluation} into extra_data of an
// existing candidate. Evaluators never create rows.
func (r *CandidateRepo) AppendEvaluation(ctx domain.Context, candidateID, evaluation string) error {
	patch, err := json.Marshal(map[string]string{"evaluate": evaluation})
	if err != nil {
		return fmt.Errorf("op=candidate.append_evaluation: %w", err)
	}
	q := `UPDATE candidate_v2
	      SET extra_data = coalesce(extra_data, '{}'::jsonb) || $1::jsonb, updated_at = $2
	      WHERE candidate_id = $3`
	tag, err := r.Pool.Exec(ctx, q, patch, time.Now().UTC(), candidateID)
	if err != nil {
		return fmt.Errorf("op=candidate.append_evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=candidate.append_evaluation: %w", domain.ErrNotFound)
	}
	return nil
}
