package rabbit

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/prompt"
	"github.com/claymoreai/claymore/internal/usecase"
)

type stubJobs struct {
	job    domain.Job
	getErr error
	active []domain.Job
}

func (s *stubJobs) Create(domain.Context, domain.Job) (string, error) { return "", nil }
func (s *stubJobs) Get(domain.Context, string) (domain.Job, error)   { return s.job, s.getErr }
func (s *stubJobs) SetStatus(domain.Context, string, int16) error    { return nil }
func (s *stubJobs) ActiveJobs(domain.Context, string) ([]domain.Job, error) {
	return s.active, nil
}
func (s *stubJobs) DistinctGroupCount(domain.Context, string) (int, error) { return 0, nil }

type stubCandidates struct {
	inserted    [][]domain.Candidate
	committed   bool
	insertErr   error
	evaluations map[string]string
	appendErr   error
}

func (s *stubCandidates) InsertGroup(_ domain.Context, _ string, cands []domain.Candidate) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	s.inserted = append(s.inserted, cands)
	return s.committed, nil
}
func (s *stubCandidates) ListByModule(domain.Context, string) ([]domain.Candidate, error) {
	return nil, nil
}
func (s *stubCandidates) DeleteByModule(domain.Context, string) error { return nil }
func (s *stubCandidates) AppendEvaluation(_ domain.Context, id, evaluation string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.evaluations == nil {
		s.evaluations = map[string]string{}
	}
	s.evaluations[id] = evaluation
	return nil
}

type stubFiles struct{ finished []string }

func (s *stubFiles) ListByModule(domain.Context, string) ([]domain.FileModule, error) {
	return nil, nil
}
func (s *stubFiles) SetFinishProcess(_ domain.Context, _, fileID string, _ bool) error {
	s.finished = append(s.finished, fileID)
	return nil
}
func (s *stubFiles) ResetFinishProcess(domain.Context, string) error { return nil }
func (s *stubFiles) ClearBindings(domain.Context, string) error      { return nil }

type stubCreds struct{ released int }

func (s *stubCreds) Checkout(domain.Context) (domain.Credential, error) {
	return domain.Credential{ID: "cred-1", Secret: "sk"}, nil
}
func (s *stubCreds) Release(domain.Context, string) error {
	s.released++
	return nil
}

type stubChat struct {
	outputs  []string
	requests []domain.ChatRequest
	err      error
}

func (s *stubChat) Chat(_ domain.Context, req domain.ChatRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	if n := len(s.requests) - 1; n < len(s.outputs) {
		return s.outputs[n], nil
	}
	return "output", nil
}

type stubMetrics struct{ rows []domain.Metric }

func (s *stubMetrics) Insert(_ domain.Context, m domain.Metric) error {
	s.rows = append(s.rows, m)
	return nil
}

type stubCounter struct{}

func (stubCounter) CountTokens(text string) (int, error) { return len(text), nil }

type stubLegacy struct {
	job       domain.LegacyJob
	jobErr    error
	gen       domain.Generator
	count     int
	statusSet []int16
	datadrops []string
}

func (s *stubLegacy) GetGenerator(domain.Context, string) (domain.Generator, error) {
	return s.gen, nil
}
func (s *stubLegacy) GetLegacyJob(domain.Context, string) (domain.LegacyJob, error) {
	return s.job, s.jobErr
}
func (s *stubLegacy) SetLegacyJobStatus(_ domain.Context, _ string, status int16) error {
	s.statusSet = append(s.statusSet, status)
	return nil
}
func (s *stubLegacy) InsertDatadrop(_ domain.Context, _, name, content string) error {
	s.datadrops = append(s.datadrops, name+"|"+content)
	return nil
}
func (s *stubLegacy) DatadropCount(domain.Context, string) (int, error) { return s.count, nil }

func recorder() usecase.MetricRecorder {
	return usecase.MetricRecorder{Metrics: &stubMetrics{}, Counter: stubCounter{}}
}

func evoPayload(t *testing.T, p domain.EvoTaskPayload) []byte {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

func TestEvoWorkerDropsBadPayload(t *testing.T) {
	w := EvoWorker{Metrics: recorder()}
	assert.Equal(t, Drop, w.Handle(context.Background(), []byte("{not json")))
	assert.Equal(t, Drop, w.Handle(context.Background(), []byte(`{"module_id":"m"}`)))
}

func TestEvoWorkerDropsInactiveJob(t *testing.T) {
	w := EvoWorker{
		Jobs:    &stubJobs{job: domain.Job{ID: "j", Status: domain.JobSuperseded}},
		Metrics: recorder(),
	}
	body := evoPayload(t, domain.EvoTaskPayload{ModuleID: "m", JobID: "j"})
	assert.Equal(t, Drop, w.Handle(context.Background(), body))
}

func TestEvoWorkerRetriesOnChatFailure(t *testing.T) {
	w := EvoWorker{
		Jobs:    &stubJobs{job: domain.Job{ID: "j"}},
		Creds:   &stubCreds{},
		Chat:    &stubChat{err: domain.ErrUpstreamRateLimit},
		Metrics: recorder(),
	}
	body := evoPayload(t, domain.EvoTaskPayload{ModuleID: "m", JobID: "j"})
	assert.Equal(t, Retry, w.Handle(context.Background(), body))
}

func TestEvoWorkerSuccess(t *testing.T) {
	cands := &stubCandidates{committed: true}
	files := &stubFiles{}
	creds := &stubCreds{}
	chat := &stubChat{outputs: []string{"one---two--- ---"}}
	metrics := &stubMetrics{}
	w := EvoWorker{
		Jobs:       &stubJobs{job: domain.Job{ID: "j"}},
		Candidates: cands,
		Files:      files,
		Creds:      creds,
		Chat:       chat,
		Metrics:    usecase.MetricRecorder{Metrics: metrics, Counter: stubCounter{}},
	}
	body := evoPayload(t, domain.EvoTaskPayload{
		ModuleID:  "m",
		JobID:     "j",
		FileID:    "f-1",
		Input:     "the input",
		Prompt:    "do it with @key/input",
		Separator: "---",
		ModelName: "gpt-3.5-turbo",
	})

	assert.Equal(t, Success, w.Handle(context.Background(), body))

	require.Len(t, chat.requests, 1)
	assert.Equal(t, "do it with the input", chat.requests[0].Input)
	assert.Equal(t, "gpt-3.5-turbo", chat.requests[0].Model)

	require.Len(t, cands.inserted, 1)
	group := cands.inserted[0]
	require.Len(t, group, 2, "empty fragments are discarded")
	assert.Equal(t, "one", group[0].Content)
	assert.Equal(t, "two", group[1].Content)
	assert.Equal(t, group[0].GroupID, group[1].GroupID)
	assert.NotEqual(t, group[0].ID, group[1].ID)
	assert.Equal(t, "the input", group[0].ExtraData["text"])

	assert.Equal(t, []string{"f-1"}, files.finished)
	assert.Len(t, metrics.rows, 2, "input and output metrics")
	assert.Equal(t, 1, creds.released)
}

func TestEvoWorkerDropsWhenInsertNotCommitted(t *testing.T) {
	w := EvoWorker{
		Jobs:       &stubJobs{job: domain.Job{ID: "j"}},
		Candidates: &stubCandidates{committed: false},
		Creds:      &stubCreds{},
		Chat:       &stubChat{},
		Metrics:    recorder(),
	}
	body := evoPayload(t, domain.EvoTaskPayload{ModuleID: "m", JobID: "j"})
	assert.Equal(t, Drop, w.Handle(context.Background(), body))
}

func TestSplitCandidatesJSONOutput(t *testing.T) {
	p := domain.EvoTaskPayload{ModuleID: "m", JobID: "j", Input: "in\x00put", Reference: "ref"}
	out := `{"candidate":{"data":"the answer","rating":4}}`

	cands := splitCandidates(p, out)
	require.Len(t, cands, 1)
	assert.Equal(t, "the answer", cands[0].Content)
	assert.Equal(t, "input", cands[0].ExtraData["text"], "NUL bytes are stripped")
	assert.Equal(t, "ref", cands[0].ExtraData["reference"])
	assert.Equal(t, float64(4), cands[0].ExtraData["rating"])
}

func TestSplitCandidatesRawFallback(t *testing.T) {
	p := domain.EvoTaskPayload{ModuleID: "m", JobID: "j", Input: "in"}
	cands := splitCandidates(p, "plain text output")
	require.Len(t, cands, 1)
	assert.Equal(t, "plain text output", cands[0].Content)
	_, hasRating := cands[0].ExtraData["rating"]
	assert.False(t, hasRating)
}

func TestEvaluateWorker(t *testing.T) {
	cands := &stubCandidates{}
	w := EvaluateWorker{
		Candidates: cands,
		Creds:      &stubCreds{},
		Chat:       &stubChat{outputs: []string{"score: 7"}},
		Metrics:    recorder(),
	}
	body, _ := json.Marshal(domain.EvaluateTaskPayload{
		GeneratorID: "g", DatadropID: "c-1", Prompt: "judge @key/input", Input: "text",
	})

	assert.Equal(t, Success, w.Handle(context.Background(), body))
	assert.Equal(t, "score: 7", cands.evaluations["c-1"])
}

func TestEvaluateWorkerDropsMissingCandidate(t *testing.T) {
	w := EvaluateWorker{
		Candidates: &stubCandidates{appendErr: domain.ErrNotFound},
		Creds:      &stubCreds{},
		Chat:       &stubChat{},
		Metrics:    recorder(),
	}
	body, _ := json.Marshal(domain.EvaluateTaskPayload{DatadropID: "gone"})
	assert.Equal(t, Drop, w.Handle(context.Background(), body))
}

func TestGenerateWorkerDropsWithoutActiveJob(t *testing.T) {
	w := GenerateWorker{Jobs: &stubJobs{}, Metrics: recorder()}
	body, _ := json.Marshal(domain.GenerateTaskPayload{GeneratorID: "g"})
	assert.Equal(t, Drop, w.Handle(context.Background(), body))
}

func TestGenerateWorkerSuccess(t *testing.T) {
	cands := &stubCandidates{committed: true}
	w := GenerateWorker{
		Jobs:       &stubJobs{active: []domain.Job{{ID: "j-1", ModuleID: "g"}}},
		Candidates: cands,
		Files:      &stubFiles{},
		Creds:      &stubCreds{},
		Chat:       &stubChat{outputs: []string{"made"}},
		Metrics:    recorder(),
	}
	body, _ := json.Marshal(domain.GenerateTaskPayload{GeneratorID: "g", Prompt: "p", Input: "i"})

	assert.Equal(t, Success, w.Handle(context.Background(), body))
	require.Len(t, cands.inserted, 1)
	require.Len(t, cands.inserted[0], 1)
	assert.Equal(t, "made", cands.inserted[0][0].Content)
	assert.Equal(t, "j-1", cands.inserted[0][0].JobID)
}

func TestLegacyWorkerOverflow(t *testing.T) {
	legacy := &stubLegacy{job: domain.LegacyJob{ID: "lj", TargetCount: 3}, count: 3}
	w := LegacyWorker{Legacy: legacy, Expander: prompt.New(nil)}
	body, _ := json.Marshal(domain.LegacyJobPayload{JobID: "lj", ModelName: "gpt-4"})

	assert.Equal(t, Overflow, w.Handle(context.Background(), body))
	assert.Equal(t, []int16{domain.JobFinished}, legacy.statusSet)
	assert.Empty(t, legacy.datadrops)
}

func TestLegacyWorkerChain(t *testing.T) {
	legacy := &stubLegacy{job: domain.LegacyJob{ID: "lj", ProjectID: "p", TargetCount: 3}, count: 1}
	chat := &stubChat{outputs: []string{"draft", "polished"}}
	w := LegacyWorker{
		Legacy:   legacy,
		Creds:    &stubCreds{},
		Chat:     chat,
		Expander: prompt.New(nil),
	}
	body, _ := json.Marshal(domain.LegacyJobPayload{
		JobID:       "lj",
		ModelName:   "gpt-4",
		PromptChain: &domain.PromptChain{Prompts: []string{"write a draft", "polish: ^^"}},
		Temperature: 0.7,
		WordCount:   500,
	})

	assert.Equal(t, Success, w.Handle(context.Background(), body))

	require.Len(t, chat.requests, 2)
	assert.Equal(t, "write a draft", chat.requests[0].Input)
	assert.Equal(t, "polish: draft", chat.requests[1].Input, "second step sees the first response")
	assert.Equal(t, 500, chat.requests[0].MaxTokens)
	assert.InDelta(t, 0.7, chat.requests[0].Temperature, 1e-9)

	require.Len(t, legacy.datadrops, 1)
	assert.Equal(t, "Data lj|polished", legacy.datadrops[0])
}

func TestLegacyWorkerGeneratorChain(t *testing.T) {
	legacy := &stubLegacy{
		job:   domain.LegacyJob{ID: "lj", ProjectID: "p", TargetCount: 2},
		count: 0,
		gen: domain.Generator{
			ID: "gen", ProjectID: "p", Prompts: []string{"only step"},
			ModelName: "gpt-4", Temperature: 0.3,
		},
	}
	chat := &stubChat{outputs: []string{"result"}}
	w := LegacyWorker{Legacy: legacy, Creds: &stubCreds{}, Chat: chat, Expander: prompt.New(nil)}
	body, _ := json.Marshal(domain.LegacyJobPayload{JobID: "lj", GeneratorID: "gen"})

	assert.Equal(t, Success, w.Handle(context.Background(), body))
	require.Len(t, chat.requests, 1)
	assert.Equal(t, defaultChainTokens, chat.requests[0].MaxTokens, "zero word count falls back")
	require.Len(t, legacy.datadrops, 1)
}

func TestDeliveryAttempts(t *testing.T) {
	assert.EqualValues(t, 0, deliveryAttempts(amqp.Delivery{}))
	assert.EqualValues(t, 2, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{"x-attempts": int64(2)}}))
	assert.EqualValues(t, 3, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{"x-attempts": int32(3)}}))
	assert.EqualValues(t, 0, deliveryAttempts(amqp.Delivery{Headers: amqp.Table{"x-attempts": "nope"}}))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "overflow", Overflow.String())
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "drop", Drop.String())
}
