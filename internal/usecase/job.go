package usecase

import (
	"fmt"

	"github.com/claymoreai/claymore/internal/domain"
)

// JobService exposes the pause/resume control over a module's jobs.
type JobService struct {
	Jobs       domain.JobRepository
	Modules    domain.ModuleRepository
	Workspaces domain.WorkspaceRepository
}

// NewJobService constructs a JobService with its dependencies.
func NewJobService(jobs domain.JobRepository, modules domain.ModuleRepository, workspaces domain.WorkspaceRepository) JobService {
	return JobService{Jobs: jobs, Modules: modules, Workspaces: workspaces}
}

// Operate transitions a job between active and paused. Only those two target
// states are accepted from the API; superseded and finished are set
// internally.
func (s JobService) Operate(ctx domain.Context, userID, jobID string, status int16) error {
	if status != domain.JobActive && status != domain.JobPaused {
		return fmt.Errorf("op=job.operate field=jobStatus: %w", domain.ErrValidation)
	}
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	m, err := s.Modules.Get(ctx, j.ModuleID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return err
	}
	return s.Jobs.SetStatus(ctx, jobID, status)
}
