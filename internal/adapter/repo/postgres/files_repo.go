package postgres

import (
	"fmt"

	"github.com/claymoreai/claymore/internal/domain"
)

// FileRepo reads uploaded files through their module bindings and maintains
// the per-module processing flag.
type FileRepo struct{ Pool PgxPool }

// NewFileRepo constructs a FileRepo with the given pool.
func NewFileRepo(p PgxPool) *FileRepo { return &FileRepo{Pool: p} }

// ListByModule returns the module's file bindings joined with file metadata.
func (r *FileRepo) ListByModule(ctx domain.Context, moduleID string) ([]domain.FileModule, error) {
	q := `SELECT file_module.file_id, file_module.module_id, finish_process,
	             files.file_path, files.file_name, files.file_type
	      FROM file_module
	      LEFT JOIN files ON files.file_id = file_module.file_id
	      WHERE module_id = $1`
	rows, err := r.Pool.Query(ctx, q, moduleID)
	if err != nil {
		return nil, fmt.Errorf("op=file.list: %w", err)
	}
	defer rows.Close()

	var out []domain.FileModule
	for rows.Next() {
		var fm domain.FileModule
		if err := rows.Scan(&fm.FileID, &fm.ModuleID, &fm.FinishProcess, &fm.File.Path, &fm.File.Name, &fm.File.Type); err != nil {
			return nil, fmt.Errorf("op=file.list: %w", err)
		}
		fm.File.ID = fm.FileID
		out = append(out, fm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=file.list: %w", err)
	}
	return out, nil
}

// SetFinishProcess flips the processing flag of one binding.
func (r *FileRepo) SetFinishProcess(ctx domain.Context, moduleID, fileID string, done bool) error {
	q := `UPDATE file_module SET finish_process = $3 WHERE module_id = $1 AND file_id = $2`
	if _, err := r.Pool.Exec(ctx, q, moduleID, fileID, done); err != nil {
		return fmt.Errorf("op=file.set_finish: %w", err)
	}
	return nil
}

// ResetFinishProcess clears the processing flag for all of the module's
// bindings, making every file eligible for the next run.
func (r *FileRepo) ResetFinishProcess(ctx domain.Context, moduleID string) error {
	q := `UPDATE file_module SET finish_process = false WHERE module_id = $1`
	if _, err := r.Pool.Exec(ctx, q, moduleID); err != nil {
		return fmt.Errorf("op=file.reset_finish: %w", err)
	}
	return nil
}

// ClearBindings removes all of the module's file bindings. Files themselves
// are kept.
func (r *FileRepo) ClearBindings(ctx domain.Context, moduleID string) error {
	if _, err := r.Pool.Exec(ctx, `DELETE FROM file_module WHERE module_id = $1`, moduleID); err != nil {
		return fmt.Errorf("op=file.clear_bindings: %w", err)
	}
	return nil
}
