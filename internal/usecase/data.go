package usecase

import (
	"fmt"
	"strings"

	"github.com/claymoreai/claymore/internal/domain"
)

// DataService persists run outputs to the data store and points modules at
// saved data as their input source.
type DataService struct {
	Modules    domain.ModuleRepository
	Candidates domain.CandidateRepository
	Data       domain.DataRepository
	Workspaces domain.WorkspaceRepository
}

// NewDataService constructs a DataService with its dependencies.
func NewDataService(
	modules domain.ModuleRepository,
	candidates domain.CandidateRepository,
	data domain.DataRepository,
	workspaces domain.WorkspaceRepository,
) DataService {
	return DataService{Modules: modules, Candidates: candidates, Data: data, Workspaces: workspaces}
}

// SaveData copies the module's current candidates into the data store as raw
// rows under the given tags. An empty tag list gets a generated default of
// the form "<module name>-<n>" where n is one past the module's distinct tag
// count.
func (s DataService) SaveData(ctx domain.Context, userID, moduleID string, tags []string) error {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return err
	}

	if len(tags) == 0 {
		n, err := s.Data.DistinctTagCount(ctx, moduleID)
		if err != nil {
			return err
		}
		tags = []string{fmt.Sprintf("%s-%d", m.Name, n+1)}
	}
	joined := strings.Join(tags, ",")

	cands, err := s.Candidates.ListByModule(ctx, moduleID)
	if err != nil {
		return err
	}
	// A module with no candidates saves nothing; that is not an error.
	for _, c := range cands {
		if err := s.Data.Insert(ctx, moduleID, m.Category, true, joined, c.Content, c.ExtraData); err != nil {
			return err
		}
	}
	return nil
}

// AssignData records the module's input-source binding in its config.
func (s DataService) AssignData(ctx domain.Context, userID, moduleID string, ad domain.AssignData) (domain.Module, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return domain.Module{}, err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return domain.Module{}, err
	}
	if ad.DatastoreID == "" {
		return domain.Module{}, fmt.Errorf("op=data.assign field=databaseId: %w", domain.ErrValidation)
	}
	return s.Modules.SetAssignData(ctx, moduleID, ad)
}
