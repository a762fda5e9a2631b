package usecase

import (
	"log/slog"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
)

// Preprocessor executes a module's preprocess chain inline: each step is a
// synchronous LLM call whose response overwrites the configured output key's
// value. Failures abort the run and surface to the caller.
type Preprocessor struct {
	Creds domain.CredentialRepository
	Chat  domain.ChatClient
}

// NewPreprocessor constructs a Preprocessor with its dependencies.
func NewPreprocessor(creds domain.CredentialRepository, chat domain.ChatClient) Preprocessor {
	return Preprocessor{Creds: creds, Chat: chat}
}

// Run executes the chain in declared order, mutating cfg's key configs.
func (p Preprocessor) Run(ctx domain.Context, cfg *domain.ModuleConfig) error {
	for _, step := range cfg.Preprocess {
		expanded := prompt.ExpandKeys(step.Prompt, step.InputKeys, cfg.KeyConfigs)
		slog.Info("preprocessing", slog.String("output_key", step.OutputKey), slog.String("model", step.Model))

		var output string
		err := WithCredential(ctx, p.Creds, func(c domain.Credential) error {
			var chatErr error
			output, chatErr = p.Chat.Chat(ctx, domain.ChatRequest{
				Model:       step.Model,
				Input:       expanded,
				MaxTokens:   2048,
				Temperature: 0.1,
				Secret:      c.Secret,
			})
			return chatErr
		})
		if err != nil {
			return err
		}

		kc := cfg.KeyConfigs[step.OutputKey]
		kc.Value = output
		cfg.KeyConfigs[step.OutputKey] = kc
	}
	return nil
}
