package usecase

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
)

// Chat models by module category. Evaluators get the stronger model because
// their output is parsed, not just stored.
const (
	GeneratorModel = "gpt-3.5-turbo"
	EvaluatorModel = "gpt-4-1106-preview"
)

// RunService starts a module run: it resets prior run state, executes the
// preprocess chain, expands the prompt and fans the input chunks out to the
// evo queue, one job per input source.
type RunService struct {
	Modules    domain.ModuleRepository
	Jobs       domain.JobRepository
	Files      domain.FileRepository
	Data       domain.DataRepository
	Workspaces domain.WorkspaceRepository
	Publisher  domain.Publisher
	Chunker    domain.Chunker
	Preprocess Preprocessor
}

// runUnit is one prompt invocation to be fanned out.
type runUnit struct {
	Input     string
	Reference string
	FileID    string
}

// RunModule kicks off a run for the module on behalf of userID.
func (s RunService) RunModule(ctx domain.Context, userID, moduleID string) error {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, mutationLevel); err != nil {
		return err
	}

	// Prior candidates and job rows from earlier runs would pollute the new
	// run's progress counting.
	if err := s.Modules.PurgeRunState(ctx, moduleID, false); err != nil {
		return err
	}

	cfg := m.Config
	if err := s.Preprocess.Run(ctx, &cfg); err != nil {
		return err
	}
	if len(cfg.Preprocess) > 0 {
		if _, err := s.Modules.SaveConfig(ctx, moduleID, cfg); err != nil {
			return err
		}
	}

	expanded := prompt.ExpandKeys(cfg.Prompt, cfg.Keys, cfg.KeyConfigs)
	model := GeneratorModel
	if m.Category == domain.CategoryEvaluator {
		model = EvaluatorModel
	}

	batches, err := s.collectBatches(ctx, m, cfg)
	if err != nil {
		return err
	}

	for _, units := range batches {
		jobID, err := s.Jobs.Create(ctx, domain.Job{
			ModuleID:    moduleID,
			WorkspaceID: m.Workspace,
			TargetCount: len(units),
		})
		if err != nil {
			return err
		}
		for _, u := range units {
			payload := domain.EvoTaskPayload{
				ModuleID:    moduleID,
				JobID:       jobID,
				WorkspaceID: m.Workspace,
				FileID:      u.FileID,
				Input:       u.Input,
				Prompt:      expanded,
				UserID:      userID,
				Separator:   cfg.Separator,
				Reference:   u.Reference,
				ModelName:   model,
			}
			if err := s.Publisher.Publish(ctx, domain.QueueEvo, payload); err != nil {
				return err
			}
		}
		slog.Info("run fanned out",
			slog.String("module_id", moduleID),
			slog.String("job_id", jobID),
			slog.Int("target_count", len(units)))
	}
	return nil
}

// collectBatches gathers the run's input units. Each batch becomes one job:
// the assigned data rows form one, and every bound file forms its own.
// Files already marked processed are skipped.
func (s RunService) collectBatches(ctx domain.Context, m domain.Module, cfg domain.ModuleConfig) ([][]runUnit, error) {
	var batches [][]runUnit

	if cfg.AssignData != nil {
		units, err := s.assignedUnits(ctx, *cfg.AssignData)
		if err != nil {
			return nil, err
		}
		if len(units) > 0 {
			batches = append(batches, units)
		}
	}

	files, err := s.Files.ListByModule(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	for _, fm := range files {
		if fm.FinishProcess {
			continue
		}
		if isCSV(fm.File) {
			units, err := csvRows(fm.File.Path)
			if err != nil {
				return nil, err
			}
			if len(units) > 0 {
				batches = append(batches, units)
			}
			continue
		}
		chunks, err := s.Chunker.ExtractChunks(ctx, fm.File.Name, fm.File.Path)
		if err != nil {
			return nil, err
		}
		units := make([]runUnit, 0, len(chunks))
		for _, c := range chunks {
			units = append(units, runUnit{Input: c, FileID: fm.FileID})
		}
		if len(units) > 0 {
			batches = append(batches, units)
		}
	}
	return batches, nil
}

// assignedUnits loads the module's assigned data rows. For raw rows the
// datastore id carries the source module's id.
func (s RunService) assignedUnits(ctx domain.Context, ad domain.AssignData) ([]runUnit, error) {
	rows, err := s.Data.ListAssigned(ctx, ad.DatastoreID, ad.IsRaw, splitTags(ad.Tags))
	if err != nil {
		return nil, err
	}
	units := make([]runUnit, 0, len(rows))
	for _, row := range rows {
		ref := ""
		if t, ok := row.ExtraData["text"].(string); ok {
			ref = t
		}
		units = append(units, runUnit{Input: row.Content, Reference: ref})
	}
	return units, nil
}

// splitTags parses a comma-separated tag list, dropping empty fragments.
func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isCSV(f domain.File) bool {
	return f.Type == "csv" || strings.EqualFold(filepath.Ext(f.Name), ".csv")
}

// csvRows reads input/reference column pairs from a header-addressed CSV.
func csvRows(path string) ([]runUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("op=run.csv path=%s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("op=run.csv path=%s: %w", path, err)
	}
	inputCol, refCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.ToLower(h)) {
		case "input":
			inputCol = i
		case "reference":
			refCol = i
		}
	}
	if inputCol < 0 {
		return nil, fmt.Errorf("op=run.csv path=%s missing input column: %w", path, domain.ErrValidation)
	}

	var units []runUnit
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("op=run.csv path=%s: %w", path, err)
		}
		if inputCol >= len(rec) || rec[inputCol] == "" {
			continue
		}
		u := runUnit{Input: rec[inputCol]}
		if refCol >= 0 && refCol < len(rec) {
			u.Reference = rec[refCol]
		}
		units = append(units, u)
	}
	return units, nil
}
