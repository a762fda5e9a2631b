package usecase

import (
	"fmt"

	"github.com/claymoreai/claymore/internal/domain"
)

// Membership thresholds. Mutating verbs require an elevated member; reads
// only require membership.
const mutationLevel = 1

// ModuleService covers module lifecycle: create, info, list, save, reset and
// file-binding management.
type ModuleService struct {
	Modules    domain.ModuleRepository
	Templates  domain.TemplateRepository
	Jobs       domain.JobRepository
	Candidates domain.CandidateRepository
	Files      domain.FileRepository
	Workspaces domain.WorkspaceRepository
}

// NewModuleService constructs a ModuleService with its dependencies.
func NewModuleService(
	modules domain.ModuleRepository,
	templates domain.TemplateRepository,
	jobs domain.JobRepository,
	candidates domain.CandidateRepository,
	files domain.FileRepository,
	workspaces domain.WorkspaceRepository,
) ModuleService {
	return ModuleService{
		Modules:    modules,
		Templates:  templates,
		Jobs:       jobs,
		Candidates: candidates,
		Files:      files,
		Workspaces: workspaces,
	}
}

// requireMember checks workspace membership; maxLevel < 0 skips the level
// check. A missing membership maps to ErrForbidden, an insufficient level to
// ErrUnauthorized.
func requireMember(ctx domain.Context, ws domain.WorkspaceRepository, workspaceID, userID string, maxLevel int) error {
	level, err := ws.MemberLevel(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if maxLevel >= 0 && level > maxLevel {
		return fmt.Errorf("op=usecase.require_member level=%d: %w", level, domain.ErrUnauthorized)
	}
	return nil
}

// Create inserts a module, seeding its config from the template when one is
// given. The template's category must match.
func (s ModuleService) Create(ctx domain.Context, userID, name, workspaceID, category string, templateID *string) (string, error) {
	if category != domain.CategoryGenerator && category != domain.CategoryEvaluator {
		return "", fmt.Errorf("op=module.create field=moduleCategory: %w", domain.ErrValidation)
	}
	if name == "" {
		return "", fmt.Errorf("op=module.create field=moduleName: %w", domain.ErrValidation)
	}
	if err := requireMember(ctx, s.Workspaces, workspaceID, userID, mutationLevel); err != nil {
		return "", err
	}

	cfg := domain.EmptyModuleConfig()
	if templateID != nil {
		t, err := s.Templates.Get(ctx, *templateID)
		if err != nil {
			return "", err
		}
		if t.Category != category {
			return "", fmt.Errorf("op=module.create field=templateId: %w", domain.ErrValidation)
		}
		cfg = domain.ConfigFromTemplate(t.Data)
	}

	return s.Modules.Create(ctx, domain.Module{
		Name:       name,
		TemplateID: templateID,
		Workspace:  workspaceID,
		Category:   category,
		Config:     cfg,
	})
}

// ModuleInfo is the aggregate returned for a single module read.
type ModuleInfo struct {
	Module     domain.Module
	Files      []domain.FileModule
	Candidates []domain.Candidate
	Status     string
}

// Info returns the module with its files, candidates and derived status.
func (s ModuleService) Info(ctx domain.Context, userID, moduleID string) (ModuleInfo, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return ModuleInfo{}, err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, -1); err != nil {
		return ModuleInfo{}, err
	}

	status, err := s.moduleStatus(ctx, moduleID)
	if err != nil {
		return ModuleInfo{}, err
	}
	files, err := s.Files.ListByModule(ctx, moduleID)
	if err != nil {
		return ModuleInfo{}, err
	}
	cands, err := s.Candidates.ListByModule(ctx, moduleID)
	if err != nil {
		return ModuleInfo{}, err
	}
	return ModuleInfo{Module: m, Files: files, Candidates: cands, Status: status}, nil
}

// moduleStatus derives the status from the module's active jobs:
// no active jobs is Ready; any partially filled job is Running; all empty
// jobs is Pending; fully filled jobs are Ready again.
func (s ModuleService) moduleStatus(ctx domain.Context, moduleID string) (string, error) {
	jobs, err := s.Jobs.ActiveJobs(ctx, moduleID)
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return domain.StatusReady, nil
	}
	allZero := true
	for _, j := range jobs {
		n, err := s.Jobs.DistinctGroupCount(ctx, j.ID)
		if err != nil {
			return "", err
		}
		if n > 0 && n < j.TargetCount {
			return domain.StatusRunning, nil
		}
		if n != 0 {
			allZero = false
		}
	}
	if allZero {
		return domain.StatusPending, nil
	}
	return domain.StatusReady, nil
}

// List returns the workspace's modules with their derived status.
func (s ModuleService) List(ctx domain.Context, userID, workspaceID string) ([]domain.ModuleWithStatus, error) {
	if err := requireMember(ctx, s.Workspaces, workspaceID, userID, -1); err != nil {
		return nil, err
	}
	return s.Modules.List(ctx, workspaceID)
}

// Save overwrites the module's config.
func (s ModuleService) Save(ctx domain.Context, userID, moduleID string, cfg domain.ModuleConfig) (domain.Module, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return domain.Module{}, err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return domain.Module{}, err
	}
	return s.Modules.SaveConfig(ctx, moduleID, cfg)
}

// Reset deletes candidates, clears file bindings, supersedes active jobs and
// rebuilds the config from the given template or to the empty config.
func (s ModuleService) Reset(ctx domain.Context, userID, moduleID string, templateID *string) (domain.Module, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return domain.Module{}, err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return domain.Module{}, err
	}

	cfg := domain.EmptyModuleConfig()
	if templateID != nil {
		t, err := s.Templates.Get(ctx, *templateID)
		if err != nil {
			return domain.Module{}, err
		}
		if t.Category != m.Category {
			return domain.Module{}, fmt.Errorf("op=module.reset field=templateId: %w", domain.ErrValidation)
		}
		cfg = domain.ConfigFromTemplate(t.Data)
	}

	if err := s.Modules.PurgeRunState(ctx, moduleID, true); err != nil {
		return domain.Module{}, err
	}
	return s.Modules.SaveConfigAndTemplate(ctx, moduleID, cfg, templateID)
}

// ClearFiles removes all file bindings of the module.
func (s ModuleService) ClearFiles(ctx domain.Context, userID, moduleID string) error {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return err
	}
	return s.Files.ClearBindings(ctx, moduleID)
}
