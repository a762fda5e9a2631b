package usecase

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/claymoreai/claymore/internal/domain"
)

// In-memory fakes for the repository ports. Only what the tests exercise is
// implemented; everything else returns zero values.

type fakeModules struct {
	modules map[string]domain.Module
	purged  []string
	cleared bool
	saved   []domain.ModuleConfig
}

func newFakeModules(ms ...domain.Module) *fakeModules {
	f := &fakeModules{modules: map[string]domain.Module{}}
	for _, m := range ms {
		f.modules[m.ID] = m
	}
	return f
}

func (f *fakeModules) Create(_ domain.Context, m domain.Module) (string, error) {
	id := fmt.Sprintf("mod-%d", len(f.modules)+1)
	m.ID = id
	f.modules[id] = m
	return id, nil
}

func (f *fakeModules) Get(_ domain.Context, id string) (domain.Module, error) {
	m, ok := f.modules[id]
	if !ok {
		return domain.Module{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeModules) List(_ domain.Context, _ string) ([]domain.ModuleWithStatus, error) {
	var out []domain.ModuleWithStatus
	for _, m := range f.modules {
		out = append(out, domain.ModuleWithStatus{Module: m, Status: domain.StatusReady})
	}
	return out, nil
}

func (f *fakeModules) SaveConfig(_ domain.Context, id string, cfg domain.ModuleConfig) (domain.Module, error) {
	m, ok := f.modules[id]
	if !ok {
		return domain.Module{}, domain.ErrNotFound
	}
	m.Config = cfg
	f.modules[id] = m
	f.saved = append(f.saved, cfg)
	return m, nil
}

func (f *fakeModules) SaveConfigAndTemplate(ctx domain.Context, id string, cfg domain.ModuleConfig, templateID *string) (domain.Module, error) {
	m, err := f.SaveConfig(ctx, id, cfg)
	if err != nil {
		return domain.Module{}, err
	}
	m.TemplateID = templateID
	f.modules[id] = m
	return m, nil
}

func (f *fakeModules) SetAssignData(_ domain.Context, id string, ad domain.AssignData) (domain.Module, error) {
	m, ok := f.modules[id]
	if !ok {
		return domain.Module{}, domain.ErrNotFound
	}
	m.Config.AssignData = &ad
	f.modules[id] = m
	return m, nil
}

func (f *fakeModules) PurgeRunState(_ domain.Context, id string, clearBindings bool) error {
	f.purged = append(f.purged, id)
	f.cleared = clearBindings
	return nil
}

type fakeTemplates struct{ templates map[string]domain.Template }

func (f *fakeTemplates) Get(_ domain.Context, id string) (domain.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return domain.Template{}, domain.ErrNotFound
	}
	return t, nil
}

type fakeJobs struct {
	jobs   map[string]domain.Job
	counts map[string]int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]domain.Job{}, counts: map[string]int{}}
}

func (f *fakeJobs) Create(_ domain.Context, j domain.Job) (string, error) {
	id := "job-" + strconv.Itoa(len(f.jobs)+1)
	j.ID = id
	f.jobs[id] = j
	return id, nil
}

func (f *fakeJobs) Get(_ domain.Context, id string) (domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobs) SetStatus(_ domain.Context, id string, status int16) error {
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = status
	f.jobs[id] = j
	return nil
}

func (f *fakeJobs) ActiveJobs(_ domain.Context, moduleID string) ([]domain.Job, error) {
	var out []domain.Job
	for _, j := range f.jobs {
		if j.ModuleID == moduleID && j.Status == domain.JobActive {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) DistinctGroupCount(_ domain.Context, jobID string) (int, error) {
	return f.counts[jobID], nil
}

type fakeCandidates struct {
	byModule map[string][]domain.Candidate
}

func (f *fakeCandidates) InsertGroup(_ domain.Context, _ string, _ []domain.Candidate) (bool, error) {
	return true, nil
}

func (f *fakeCandidates) ListByModule(_ domain.Context, moduleID string) ([]domain.Candidate, error) {
	return f.byModule[moduleID], nil
}

func (f *fakeCandidates) DeleteByModule(_ domain.Context, moduleID string) error {
	delete(f.byModule, moduleID)
	return nil
}

func (f *fakeCandidates) AppendEvaluation(_ domain.Context, _, _ string) error { return nil }

type fakeFiles struct {
	bindings map[string][]domain.FileModule
	cleared  []string
}

func (f *fakeFiles) ListByModule(_ domain.Context, moduleID string) ([]domain.FileModule, error) {
	return f.bindings[moduleID], nil
}

func (f *fakeFiles) SetFinishProcess(_ domain.Context, _, _ string, _ bool) error { return nil }
func (f *fakeFiles) ResetFinishProcess(_ domain.Context, _ string) error          { return nil }

func (f *fakeFiles) ClearBindings(_ domain.Context, moduleID string) error {
	f.cleared = append(f.cleared, moduleID)
	delete(f.bindings, moduleID)
	return nil
}

type savedRow struct {
	ModuleID string
	Tags     string
	Content  string
}

type fakeData struct {
	rows      []domain.DataRow
	saved     []savedRow
	distinct  int
	listCalls [][]string
}

func (f *fakeData) Insert(_ domain.Context, moduleID, _ string, _ bool, tags, content string, _ map[string]any) error {
	f.saved = append(f.saved, savedRow{ModuleID: moduleID, Tags: tags, Content: content})
	return nil
}

func (f *fakeData) ListAssigned(_ domain.Context, _ string, _ bool, tags []string) ([]domain.DataRow, error) {
	f.listCalls = append(f.listCalls, tags)
	return f.rows, nil
}

func (f *fakeData) DistinctTagCount(_ domain.Context, _ string) (int, error) {
	return f.distinct, nil
}

// fakeCreds tracks lease balance; failNext makes the next checkout fail.
type fakeCreds struct {
	mu       sync.Mutex
	leased   int
	released int
	failNext bool
}

func (f *fakeCreds) Checkout(_ domain.Context) (domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return domain.Credential{}, domain.ErrNoCredential
	}
	f.leased++
	return domain.Credential{ID: "cred-1", Secret: "sk-test"}, nil
}

func (f *fakeCreds) Release(_ domain.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

type fakeMetrics struct{ rows []domain.Metric }

func (f *fakeMetrics) Insert(_ domain.Context, m domain.Metric) error {
	f.rows = append(f.rows, m)
	return nil
}

// fakeWorkspaces maps "workspace/user" to a level. Missing keys are
// non-members.
type fakeWorkspaces struct{ levels map[string]int }

func (f *fakeWorkspaces) MemberLevel(_ domain.Context, workspaceID, userID string) (int, error) {
	level, ok := f.levels[workspaceID+"/"+userID]
	if !ok {
		return 0, domain.ErrForbidden
	}
	return level, nil
}

// fakeChat replays canned responses in order and records requests.
type fakeChat struct {
	responses []string
	requests  []domain.ChatRequest
	err       error
}

func (f *fakeChat) Chat(_ domain.Context, req domain.ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	i := len(f.requests) - 1
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "response", nil
}

type fakePublisher struct {
	queues   []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(_ domain.Context, queue string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.queues = append(f.queues, queue)
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeChunker struct{ chunks map[string][]string }

func (f *fakeChunker) ExtractChunks(_ domain.Context, fileName, _ string) ([]string, error) {
	return f.chunks[fileName], nil
}

type fakeSearcher struct {
	indexed map[string][]string
	matches []string
	queries []string
}

func (f *fakeSearcher) EnsureIndexed(_ domain.Context, moduleID string, contents []string) error {
	if f.indexed == nil {
		f.indexed = map[string][]string{}
	}
	f.indexed[moduleID] = contents
	return nil
}

func (f *fakeSearcher) Search(_ domain.Context, _, query string, _ int) ([]string, error) {
	f.queries = append(f.queries, query)
	return f.matches, nil
}

type fakeCounter struct{ err error }

func (f fakeCounter) CountTokens(text string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(text) / 4, nil
}

var errBoom = errors.New("boom")
