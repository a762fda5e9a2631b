package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
)

// defaultChainTokens bounds chain steps when no word count is configured.
const defaultChainTokens = 1024

// LegacyWorker consumes legacy_jobs: each delivery drives one unit of a
// prompt chain and inserts one datadrop. Its consumer loop nack-requeues on
// Success, so the same job keeps producing until the overflow check fires.
type LegacyWorker struct {
	Legacy   domain.LegacyRepository
	Creds    domain.CredentialRepository
	Chat     domain.ChatClient
	Expander *prompt.Expander
}

// chainSpec is the resolved chain for one delivery.
type chainSpec struct {
	Prompts     []string
	Model       string
	Temperature float64
	MaxTokens   int
	ProjectID   string
}

// Handle processes one legacy_jobs delivery.
func (w LegacyWorker) Handle(ctx context.Context, body []byte) Outcome {
	var p domain.LegacyJobPayload
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Error("legacy payload unreadable", slog.String("error", err.Error()))
		return Drop
	}
	if p.JobID == "" {
		slog.Error("legacy payload missing job id")
		return Drop
	}

	job, err := w.Legacy.GetLegacyJob(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Drop
		}
		slog.Error("legacy job read failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
		return Retry
	}

	produced, err := w.Legacy.DatadropCount(ctx, p.JobID)
	if err != nil {
		slog.Error("legacy count failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
		return Retry
	}
	if produced >= job.TargetCount {
		if err := w.Legacy.SetLegacyJobStatus(ctx, p.JobID, domain.JobFinished); err != nil {
			slog.Error("legacy finish failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
			return Retry
		}
		slog.Info("legacy job finished", slog.String("job_id", p.JobID), slog.Int("produced", produced))
		return Overflow
	}
	if job.Status != domain.JobActive {
		return Drop
	}

	spec, err := w.resolveChain(ctx, job, p)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Drop
		}
		return Retry
	}
	if len(spec.Prompts) == 0 {
		slog.Error("legacy chain empty", slog.String("job_id", p.JobID))
		return Drop
	}

	response, err := w.runChain(ctx, spec)
	if err != nil {
		return chatRetry("legacy chain failed", err, slog.String("job_id", p.JobID))
	}

	name := fmt.Sprintf("Data %s", p.JobID)
	if err := w.Legacy.InsertDatadrop(ctx, p.JobID, name, response); err != nil {
		slog.Error("legacy datadrop insert failed", slog.String("job_id", p.JobID), slog.String("error", err.Error()))
		return Retry
	}
	return Success
}

// resolveChain reads the chain from the generator row when the payload names
// one, and from the payload itself otherwise.
func (w LegacyWorker) resolveChain(ctx context.Context, job domain.LegacyJob, p domain.LegacyJobPayload) (chainSpec, error) {
	if p.GeneratorID != "" {
		gen, err := w.Legacy.GetGenerator(ctx, p.GeneratorID)
		if err != nil {
			slog.Error("legacy generator read failed", slog.String("generator_id", p.GeneratorID), slog.String("error", err.Error()))
			return chainSpec{}, err
		}
		return chainSpec{
			Prompts:     gen.Prompts,
			Model:       gen.ModelName,
			Temperature: gen.Temperature,
			MaxTokens:   tokensOrDefault(gen.WordCount),
			ProjectID:   gen.ProjectID,
		}, nil
	}
	spec := chainSpec{
		Model:       p.ModelName,
		Temperature: p.Temperature,
		MaxTokens:   tokensOrDefault(p.WordCount),
		ProjectID:   job.ProjectID,
	}
	if p.PromptChain != nil {
		spec.Prompts = p.PromptChain.Prompts
	}
	return spec, nil
}

// runChain executes the chain steps in order, feeding each response into the
// next step's ^^ and @prompt tokens, and returns the final response.
func (w LegacyWorker) runChain(ctx context.Context, spec chainSpec) (string, error) {
	var responses []string
	for _, tpl := range spec.Prompts {
		expanded, err := w.Expander.ExpandStep(ctx, spec.ProjectID, tpl, responses)
		if err != nil {
			return "", err
		}
		var output string
		err = usecase.WithCredential(ctx, w.Creds, func(c domain.Credential) error {
			var chatErr error
			output, chatErr = w.Chat.Chat(ctx, domain.ChatRequest{
				Model:       spec.Model,
				Input:       expanded,
				MaxTokens:   spec.MaxTokens,
				Temperature: spec.Temperature,
				Secret:      c.Secret,
			})
			return chatErr
		})
		if err != nil {
			return "", err
		}
		responses = append(responses, output)
	}
	return responses[len(responses)-1], nil
}

func tokensOrDefault(n int) int {
	if n <= 0 {
		return defaultChainTokens
	}
	return n
}
