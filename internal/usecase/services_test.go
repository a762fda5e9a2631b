package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymoreai/claymore/internal/domain"
)

func TestSaveDataDefaultTag(t *testing.T) {
	m := generatorModule("mod-1")
	data := &fakeData{distinct: 2}
	cands := &fakeCandidates{byModule: map[string][]domain.Candidate{
		"mod-1": {
			{ID: "c-1", Content: "first", ExtraData: map[string]any{"text": "in"}},
			{ID: "c-2", Content: "second"},
		},
	}}
	svc := DataService{
		Modules:    newFakeModules(m),
		Candidates: cands,
		Data:       data,
		Workspaces: testWorkspaces(),
	}

	require.NoError(t, svc.SaveData(context.Background(), "admin", "mod-1", nil))
	require.Len(t, data.saved, 2)
	assert.Equal(t, "story-gen-3", data.saved[0].Tags)
	assert.Equal(t, "first", data.saved[0].Content)
}

func TestSaveDataJoinsTags(t *testing.T) {
	data := &fakeData{}
	cands := &fakeCandidates{byModule: map[string][]domain.Candidate{
		"mod-1": {{ID: "c-1", Content: "x"}},
	}}
	svc := DataService{
		Modules:    newFakeModules(generatorModule("mod-1")),
		Candidates: cands,
		Data:       data,
		Workspaces: testWorkspaces(),
	}

	require.NoError(t, svc.SaveData(context.Background(), "admin", "mod-1", []string{"a", "b"}))
	require.Len(t, data.saved, 1)
	assert.Equal(t, "a,b", data.saved[0].Tags)
}

func TestSaveDataNoCandidates(t *testing.T) {
	data := &fakeData{}
	svc := DataService{
		Modules:    newFakeModules(generatorModule("mod-1")),
		Candidates: &fakeCandidates{},
		Data:       data,
		Workspaces: testWorkspaces(),
	}
	err := svc.SaveData(context.Background(), "admin", "mod-1", []string{"t"})
	require.NoError(t, err)
	assert.Empty(t, data.saved)
}

func TestAssignData(t *testing.T) {
	modules := newFakeModules(generatorModule("mod-1"))
	svc := DataService{Modules: modules, Workspaces: testWorkspaces()}

	got, err := svc.AssignData(context.Background(), "editor", "mod-1", domain.AssignData{
		DatastoreID: "ds-1", Tags: "a,b",
	})
	require.NoError(t, err)
	require.NotNil(t, got.Config.AssignData)
	assert.Equal(t, "ds-1", got.Config.AssignData.DatastoreID)

	_, err = svc.AssignData(context.Background(), "editor", "mod-1", domain.AssignData{Tags: "a"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestJobOperate(t *testing.T) {
	jobs := newFakeJobs()
	jobs.jobs["job-1"] = domain.Job{ID: "job-1", ModuleID: "mod-1"}
	svc := JobService{
		Jobs:       jobs,
		Modules:    newFakeModules(generatorModule("mod-1")),
		Workspaces: testWorkspaces(),
	}

	require.NoError(t, svc.Operate(context.Background(), "editor", "job-1", domain.JobPaused))
	assert.Equal(t, domain.JobPaused, jobs.jobs["job-1"].Status)

	require.NoError(t, svc.Operate(context.Background(), "editor", "job-1", domain.JobActive))
	assert.Equal(t, domain.JobActive, jobs.jobs["job-1"].Status)

	err := svc.Operate(context.Background(), "editor", "job-1", domain.JobFinished)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.Operate(context.Background(), "viewer", "job-1", domain.JobPaused)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTry(t *testing.T) {
	m := generatorModule("mod-1")
	m.Config.Prompt = "translate @key/tone: @key/input"
	m.Config.Keys = []string{"tone"}
	m.Config.KeyConfigs = map[string]domain.KeyConfig{"tone": {Value: "formal"}}
	m.Config.Input = "stored input"

	chat := &fakeChat{responses: []string{"bonjour"}}
	creds := &fakeCreds{}
	metrics := &fakeMetrics{}
	svc := TryService{
		Modules:    newFakeModules(m),
		Workspaces: testWorkspaces(),
		Creds:      creds,
		Chat:       chat,
		Metrics:    MetricRecorder{Metrics: metrics, Counter: fakeCounter{}},
		Preprocess: Preprocessor{Creds: creds, Chat: chat},
	}

	out, err := svc.Try(context.Background(), "viewer", "mod-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out)

	require.Len(t, chat.requests, 1)
	assert.Equal(t, "translate formal: hello", chat.requests[0].Input)
	assert.Equal(t, GeneratorModel, chat.requests[0].Model)
	assert.Equal(t, 2048, chat.requests[0].MaxTokens)
	assert.InDelta(t, 0.1, chat.requests[0].Temperature, 1e-9)
	assert.Equal(t, "sk-test", chat.requests[0].Secret)

	// one metric row before the call, one after
	require.Len(t, metrics.rows, 2)
	assert.Equal(t, creds.leased, creds.released)
}

func TestTryUsesStoredInput(t *testing.T) {
	m := generatorModule("mod-1")
	m.Config.Prompt = "echo @key/input"
	m.Config.Input = "stored"
	chat := &fakeChat{}
	svc := TryService{
		Modules:    newFakeModules(m),
		Workspaces: testWorkspaces(),
		Creds:      &fakeCreds{},
		Chat:       chat,
		Metrics:    MetricRecorder{Metrics: &fakeMetrics{}, Counter: fakeCounter{}},
	}

	_, err := svc.Try(context.Background(), "viewer", "mod-1", "")
	require.NoError(t, err)
	require.Len(t, chat.requests, 1)
	assert.Equal(t, "echo stored", chat.requests[0].Input)
}

func TestChatAsk(t *testing.T) {
	m := generatorModule("mod-1")
	cands := &fakeCandidates{byModule: map[string][]domain.Candidate{
		"mod-1": {{Content: "fact one"}, {Content: "fact two"}},
	}}
	searcher := &fakeSearcher{matches: []string{"fact two", "fact one"}}
	chat := &fakeChat{responses: []string{"it is fact two"}}
	metrics := &fakeMetrics{}
	svc := ChatService{
		Modules:    newFakeModules(m),
		Candidates: cands,
		Workspaces: testWorkspaces(),
		Searcher:   searcher,
		Creds:      &fakeCreds{},
		Chat:       chat,
		Metrics:    MetricRecorder{Metrics: metrics, Counter: fakeCounter{}},
	}

	history := []domain.ChatTurn{{UserInput: "hi", AIOutput: "hello"}}
	out, err := svc.Ask(context.Background(), "viewer", "mod-1", "which fact?", history)
	require.NoError(t, err)
	assert.Equal(t, "it is fact two", out)

	assert.Equal(t, []string{"fact one", "fact two"}, searcher.indexed["mod-1"])
	assert.Equal(t, []string{"which fact?"}, searcher.queries)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Equal(t, EvaluatorModel, req.Model)
	assert.Equal(t, history, req.History)
	assert.Contains(t, req.Input, "fact two\n\nfact one")
	assert.Contains(t, req.Input, "which fact?")
	assert.True(t, strings.Contains(req.Input, "knowledge base"))

	require.Len(t, metrics.rows, 2)
}

func TestWithCredentialReleasesOnError(t *testing.T) {
	creds := &fakeCreds{}
	err := WithCredential(context.Background(), creds, func(domain.Credential) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, creds.released)
}

func TestWithCredentialCheckoutFailure(t *testing.T) {
	creds := &fakeCreds{failNext: true}
	err := WithCredential(context.Background(), creds, func(domain.Credential) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNoCredential)
	assert.Zero(t, creds.released, "nothing to release when checkout fails")
}

func TestPreprocessorRun(t *testing.T) {
	cfg := domain.EmptyModuleConfig()
	cfg.Keys = []string{"draft", "summary"}
	cfg.KeyConfigs = map[string]domain.KeyConfig{
		"draft":   {Value: "raw text"},
		"summary": {},
	}
	cfg.Preprocess = []domain.PreprocessStep{
		{InputKeys: []string{"draft"}, Prompt: "summarize: @key/draft", Model: GeneratorModel, OutputKey: "summary"},
	}

	chat := &fakeChat{responses: []string{"a short summary"}}
	creds := &fakeCreds{}
	p := Preprocessor{Creds: creds, Chat: chat}

	require.NoError(t, p.Run(context.Background(), &cfg))
	assert.Equal(t, "a short summary", cfg.KeyConfigs["summary"].Value)
	require.Len(t, chat.requests, 1)
	assert.Equal(t, "summarize: raw text", chat.requests[0].Input)
	assert.Equal(t, creds.leased, creds.released)
}

func TestPreprocessorAbortsOnChatError(t *testing.T) {
	cfg := domain.EmptyModuleConfig()
	cfg.Preprocess = []domain.PreprocessStep{{Prompt: "p", OutputKey: "k"}}
	p := Preprocessor{Creds: &fakeCreds{}, Chat: &fakeChat{err: domain.ErrUpstreamTimeout}}
	err := p.Run(context.Background(), &cfg)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestMetricRecorder(t *testing.T) {
	metrics := &fakeMetrics{}
	r := MetricRecorder{Metrics: metrics, Counter: fakeCounter{}}

	require.NoError(t, r.Record(context.Background(), "ws-1", "u-1", "mod-1", "héllo"))
	require.Len(t, metrics.rows, 1)
	row := metrics.rows[0]
	assert.Equal(t, "ws-1", row.WorkspaceID)
	assert.Equal(t, 5, row.WordCount, "rune count, not byte count")
	assert.Equal(t, len("héllo")/4, row.TokenCount)
}
