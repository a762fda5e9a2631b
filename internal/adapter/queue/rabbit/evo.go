package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
	"github.com/claymoreai/claymore/pkg/textx"
)

// EvoWorker consumes the evo queue: one delivery is one input chunk of a
// module run, producing one candidate group.
type EvoWorker struct {
	Jobs       domain.JobRepository
	Candidates domain.CandidateRepository
	Files      domain.FileRepository
	Creds      domain.CredentialRepository
	Chat       domain.ChatClient
	Metrics    usecase.MetricRecorder
}

// Handle processes one evo delivery.
func (w EvoWorker) Handle(ctx context.Context, body []byte) Outcome {
	var p domain.EvoTaskPayload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Error("evo payload unreadable", slog.String("error", err.Error()))
		return Drop
	}
	if p.ModuleID == "" || p.JobID == "" {
		slog.Error("evo payload missing ids", slog.String("module_id", p.ModuleID), slog.String("job_id", p.JobID))
		return Drop
	}

	job, err := w.Jobs.Get(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Drop
		}
		slog.Error("evo job read failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
		return Retry
	}
	if job.Status != domain.JobActive {
		slog.Info("evo job not active, dropping", slog.String("job_id", p.JobID), slog.Int("status", int(job.Status)))
		return Drop
	}

	input := prompt.ExpandInput(p.Prompt, p.Input)
	w.recordMetric(ctx, p, input)

	var output string
	err = usecase.WithCredential(ctx, w.Creds, func(c domain.Credential) error {
		var chatErr error
		output, chatErr = w.Chat.Chat(ctx, domain.ChatRequest{
			Model:       p.ModelName,
			Input:       input,
			MaxTokens:   2048,
			Temperature: 0.1,
			Secret:      c.Secret,
		})
		return chatErr
	})
	if err != nil {
		return chatRetry("evo chat failed", err, slog.String("job_id", p.JobID))
	}

	cands := splitCandidates(p, output)
	committed, err := w.Candidates.InsertGroup(ctx, p.JobID, cands)
	if err != nil {
		slog.Error("evo candidate insert failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
		return Retry
	}
	if !committed {
		// the job was paused or superseded between the entry check and here
		return Drop
	}

	w.recordMetric(ctx, p, output)
	if p.FileID != "" {
		if err := w.Files.SetFinishProcess(ctx, p.ModuleID, p.FileID, true); err != nil {
			slog.Error("evo file flag update failed", slog.String("file_id", p.FileID), slog.String("error", err.Error()))
		}
	}
	return Success
}

func (w EvoWorker) recordMetric(ctx context.Context, p domain.EvoTaskPayload, text string) {
	if err := w.Metrics.Record(ctx, p.WorkspaceID, p.UserID, p.ModuleID, text); err != nil {
		slog.Error("metric record failed", slog.String("module_id", p.ModuleID), slog.String("error", err.Error()))
	}
}

// splitCandidates applies the separator rules to one LLM output. All
// resulting candidates share one fresh group id.
func splitCandidates(p domain.EvoTaskPayload, output string) []domain.Candidate {
	groupID := uuid.New().String()
	strippedInput := textx.StripNUL(p.Input)

	if p.Separator != "" {
		var cands []domain.Candidate
		for _, frag := range splitNonEmpty(output, p.Separator) {
			cands = append(cands, domain.Candidate{
				ID:        uuid.New().String(),
				ModuleID:  p.ModuleID,
				JobID:     p.JobID,
				GroupID:   groupID,
				Content:   frag,
				ExtraData: map[string]any{"text": strippedInput},
			})
		}
		return cands
	}

	// no separator: a JSON-shaped output may carry the candidate plus a
	// rating; anything else is stored verbatim
	var parsed struct {
		Candidate struct {
			Data   string `json:"data"`
			Rating any    `json:"rating"`
		} `json:"candidate"`
	}
	if err := json.Unmarshal([]byte(output), &parsed); err == nil && parsed.Candidate.Data != "" {
		return []domain.Candidate{{
			ID:       uuid.New().String(),
			ModuleID: p.ModuleID,
			JobID:    p.JobID,
			GroupID:  groupID,
			Content:  parsed.Candidate.Data,
			ExtraData: map[string]any{
				"text":      strippedInput,
				"reference": p.Reference,
				"rating":    parsed.Candidate.Rating,
			},
		}}
	}

	return []domain.Candidate{{
		ID:        uuid.New().String(),
		ModuleID:  p.ModuleID,
		JobID:     p.JobID,
		GroupID:   groupID,
		Content:   output,
		ExtraData: map[string]any{"text": strippedInput},
	}}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, f := range strings.Split(s, sep) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
