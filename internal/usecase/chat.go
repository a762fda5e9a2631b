package usecase

import (
	"strings"

	"github.com/claymoreai/claymore/internal/domain"
)

// knowledgeBasePrompt frames retrieved candidate contents as the only
// allowed source of the answer.
const knowledgeBasePrompt = `Answer the question using only the knowledge base below.
If the knowledge base does not contain the answer, reply that you do not know.

Knowledge base:
%KB%

Question: %Q%`

// ChatService answers questions over a module's produced candidates: the
// contents are indexed once per module, the best matches become the
// knowledge base of a chat completion.
type ChatService struct {
	Modules    domain.ModuleRepository
	Candidates domain.CandidateRepository
	Workspaces domain.WorkspaceRepository
	Searcher   domain.ReferenceSearcher
	Creds      domain.CredentialRepository
	Chat       domain.ChatClient
	Metrics    MetricRecorder
}

// searchSize is the number of candidate contents retrieved per question.
const searchSize = 5

// Ask answers one question against the module's candidates, carrying prior
// turns as chat history.
func (s ChatService) Ask(ctx domain.Context, userID, moduleID, question string, history []domain.ChatTurn) (string, error) {
	m, err := s.Modules.Get(ctx, moduleID)
	if err != nil {
		return "", err
	}
	if err := requireMember(ctx, s.Workspaces, m.Workspace, userID, -1); err != nil {
		return "", err
	}

	cands, err := s.Candidates.ListByModule(ctx, moduleID)
	if err != nil {
		return "", err
	}
	contents := make([]string, 0, len(cands))
	for _, c := range cands {
		contents = append(contents, c.Content)
	}
	if err := s.Searcher.EnsureIndexed(ctx, moduleID, contents); err != nil {
		return "", err
	}

	matches, err := s.Searcher.Search(ctx, moduleID, question, searchSize)
	if err != nil {
		return "", err
	}
	kb := strings.Join(matches, "\n\n")
	input := strings.NewReplacer("%KB%", kb, "%Q%", question).Replace(knowledgeBasePrompt)

	if err := s.Metrics.Record(ctx, m.Workspace, userID, moduleID, input); err != nil {
		return "", err
	}

	var output string
	err = WithCredential(ctx, s.Creds, func(c domain.Credential) error {
		var chatErr error
		output, chatErr = s.Chat.Chat(ctx, domain.ChatRequest{
			Model:       EvaluatorModel,
			Input:       input,
			History:     history,
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
