package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claymoreai/claymore/internal/domain"
)

// WorkspaceRepo resolves workspace memberships.
type WorkspaceRepo struct{ Pool PgxPool }

// NewWorkspaceRepo constructs a WorkspaceRepo with the given pool.
func NewWorkspaceRepo(p PgxPool) *WorkspaceRepo { return &WorkspaceRepo{Pool: p} }

// MemberLevel returns the caller's membership level in a workspace. A missing
// membership maps to ErrForbidden.
func (r *WorkspaceRepo) MemberLevel(ctx domain.Context, workspaceID, userID string) (int, error) {
	q := `SELECT user_level FROM workspace_member_v2 WHERE workspace_id = $1 AND user_id = $2`
	var level int
	if err := r.Pool.QueryRow(ctx, q, workspaceID, userID).Scan(&level); err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("op=workspace.member_level: %w", domain.ErrForbidden)
		}
		return 0, fmt.Errorf("op=workspace.member_level: %w", err)
	}
	return level, nil
}
