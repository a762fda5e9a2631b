package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
)

// EvaluateWorker consumes v2_evaluate: the LLM verdict is merged onto an
// existing candidate's extra_data. It never creates candidates.
type EvaluateWorker struct {
	Candidates domain.CandidateRepository
	Creds      domain.CredentialRepository
	Chat       domain.ChatClient
	Metrics    usecase.MetricRecorder
}

// Handle processes one v2_evaluate delivery.
func (w EvaluateWorker) Handle(ctx context.Context, body []byte) Outcome {
	var p domain.EvaluateTaskPayload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Error("evaluate payload unreadable", slog.String("error", err.Error()))
		return Drop
	}
	if p.DatadropID == "" {
		slog.Error("evaluate payload missing datadrop id")
		return Drop
	}

	input := prompt.ExpandInput(p.Prompt, p.Input)
	w.recordMetric(ctx, p, input)

	var output string
	err := usecase.WithCredential(ctx, w.Creds, func(c domain.Credential) error {
		var chatErr error
		output, chatErr = w.Chat.Chat(ctx, domain.ChatRequest{
			Model:       usecase.EvaluatorModel,
			Input:       input,
			MaxTokens:   2048,
			Temperature: 0.1,
			Secret:      c.Secret,
		})
		return chatErr
	})
	if err != nil {
		return chatRetry("evaluate chat failed", err, slog.String("datadrop_id", p.DatadropID))
	}

	if err := w.Candidates.AppendEvaluation(ctx, p.DatadropID, output); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("evaluate target gone, dropping", slog.String("datadrop_id", p.DatadropID))
			return Drop
		}
		slog.Error("evaluate write failed", slog.String("datadrop_id", p.DatadropID), slog.String("error", err.Error()))
		return Retry
	}

	w.recordMetric(ctx, p, output)
	return Success
}

func (w EvaluateWorker) recordMetric(ctx context.Context, p domain.EvaluateTaskPayload, text string) {
	if err := w.Metrics.Record(ctx, p.TeamID, p.UserID, p.GeneratorID, text); err != nil {
		slog.Error("metric record failed", slog.String("generator_id", p.GeneratorID), slog.String("error", err.Error()))
	}
}
