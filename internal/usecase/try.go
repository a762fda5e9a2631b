package usecase

import (
	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
)

// TryService runs a module's prompt once, synchronously, without touching
// jobs or candidates. The preprocess chain executes in memory only.
type TryService struct {
	Modules    domain.ModuleRepository
	Workspaces domain.WorkspaceRepository
	Creds      domain.CredentialRepository
	Chat       domain.ChatClient
	Metrics    MetricRecorder
	Preprocess Preprocessor
}

// Try executes one dry run. input overrides the config's stored input when
// non-empty.
func (s TryService) Try(ctx domain.Context, userID, moduleID, input string) (string, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return "", err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, -1); err != nil {
		return "", err
	}

	cfg := m.Config
	if err := s.Preprocess.Run(ctx, &cfg); err != nil {
		return "", err
	}

	if input == "" {
		input = cfg.Input
	}
	expanded := prompt.ExpandKeys(cfg.Prompt, cfg.Keys, cfg.KeyConfigs)
	expanded = prompt.ExpandInput(expanded, input)

	if err := s.Metrics.Record(ctx, m.Workspace, userID, moduleID, expanded); err != nil {
		return "", err
	}

	var output string
	err = WithCredential(ctx, s.Creds, func(c domain.Credential) error {
		var chatErr error
		output, chatErr = s.Chat.Chat(ctx, domain.ChatRequest{
			Model:       GeneratorModel,
			Input:       expanded,
			MaxTokens:   2048,
			Temperature: 0.1,
			Secret:      c.Secret,
		})
		return chatErr
	})
	if err != nil {
		return "", err
	}

	if err := s.Metrics.Record(ctx, m.Workspace, userID, moduleID, output); err != nil {
		return "", err
	}
	return output, nil
}
