package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
	"github.com/claymoreai/claymore/pkg/textx"
)

// GenerateWorker consumes v2_generate: one prompt, one candidate, attached
// to the module's newest active job.
type GenerateWorker struct {
	Jobs       domain.JobRepository
	Candidates domain.CandidateRepository
	Files      domain.FileRepository
	Creds      domain.CredentialRepository
	Chat       domain.ChatClient
	Metrics    usecase.MetricRecorder
}

// Handle processes one v2_generate delivery.
func (w GenerateWorker) Handle(ctx context.Context, body []byte) Outcome {
	var p domain.GenerateTaskPayload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Error("generate payload unreadable", slog.String("error", err.Error()))
		return Drop
	}
	if p.GeneratorID == "" {
		slog.Error("generate payload missing generator id")
		return Drop
	}

	jobs, err := w.Jobs.ActiveJobs(ctx, p.GeneratorID)
	if err != nil {
		slog.Error("generate job lookup failed", slog.String("generator_id", p.GeneratorID), slog.String("error", err.Error()))
		return Retry
	}
	if len(jobs) == 0 {
		slog.Info("generate has no active job, dropping", slog.String("generator_id", p.GeneratorID))
		return Drop
	}
	job := newestJob(jobs)

	input := prompt.ExpandInput(p.Prompt, p.Input)
	w.recordMetric(ctx, p, input)

	var output string
	err = usecase.WithCredential(ctx, w.Creds, func(c domain.Credential) error {
		var chatErr error
		output, chatErr = w.Chat.Chat(ctx, domain.ChatRequest{
			Model:       usecase.GeneratorModel,
			Input:       input,
			MaxTokens:   2048,
			Temperature: 0.1,
			Secret:      c.Secret,
		})
		return chatErr
	})
	if err != nil {
		return chatRetry("generate chat failed", err, slog.String("generator_id", p.GeneratorID))
	}

	cand := domain.Candidate{
		ID:        uuid.New().String(),
		ModuleID:  p.GeneratorID,
		JobID:     job.ID,
		GroupID:   uuid.New().String(),
		Content:   output,
		ExtraData: map[string]any{"text": textx.StripNUL(p.Input)},
	}
	committed, err := w.Candidates.InsertGroup(ctx, job.ID, []domain.Candidate{cand})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Drop
		}
		slog.Error("generate candidate insert failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return Retry
	}
	if !committed {
		return Drop
	}

	w.recordMetric(ctx, p, output)
	if p.FileID != "" {
		if err := w.Files.SetFinishProcess(ctx, p.GeneratorID, p.FileID, true); err != nil {
			slog.Error("generate file flag update failed", slog.String("file_id", p.FileID), slog.String("error", err.Error()))
		}
	}
	return Success
}

func (w GenerateWorker) recordMetric(ctx context.Context, p domain.GenerateTaskPayload, text string) {
	if err := w.Metrics.Record(ctx, p.TeamID, p.UserID, p.GeneratorID, text); err != nil {
		slog.Error("metric record failed", slog.String("generator_id", p.GeneratorID), slog.String("error", err.Error()))
	}
}

// newestJob picks the most recently created job.
func newestJob(jobs []domain.Job) domain.Job {
	j := jobs[0]
	for _, candidate := range jobs[1:] {
		if candidate.CreatedAt.After(j.CreatedAt) {
			j = candidate
		}
	}
	return j
}
