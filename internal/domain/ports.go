package domain

// Repositories (ports)

type ModuleRepository interface {
	Create(ctx Context, m Module) (string, error)
	Get(ctx Context, id string) (Module, error)
	// List returns the workspace's modules with their derived status, computed
	// in a single aggregate query.
	List(ctx Context, workspaceID string) ([]ModuleWithStatus, error)
	SaveConfig(ctx Context, id string, cfg ModuleConfig) (Module, error)
	// SaveConfigAndTemplate rewrites config and template binding together
	// (used by reset).
	SaveConfigAndTemplate(ctx Context, id string, cfg ModuleConfig, templateID *string) (Module, error)
	// SetAssignData updates only the assignData field of the stored config.
	SetAssignData(ctx Context, id string, ad AssignData) (Module, error)
	// PurgeRunState deletes the module's candidates, resets (or clears, for
	// reset) its file bindings, and supersedes its active jobs in one
	// transaction.
	PurgeRunState(ctx Context, id string, clearBindings bool) error
}

// ModuleWithStatus pairs a module with its aggregator-derived status.
type ModuleWithStatus struct {
	Module
	Status string
}

type TemplateRepository interface {
	Get(ctx Context, id string) (Template, error)
}

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	Get(ctx Context, id string) (Job, error)
	SetStatus(ctx Context, id string, status int16) error
	// ActiveJobs returns jobs with status = active for the module.
	ActiveJobs(ctx Context, moduleID string) ([]Job, error)
	// DistinctGroupCount is the job's effective progress: the number of
	// distinct job_status_group_id values over its candidates.
	DistinctGroupCount(ctx Context, jobID string) (int, error)
}

type CandidateRepository interface {
	// InsertGroup writes candidates sharing one group id inside a transaction
	// that re-checks the owning job is still active; it reports whether the
	// rows were committed.
	InsertGroup(ctx Context, jobID string, cands []Candidate) (bool, error)
	ListByModule(ctx Context, moduleID string) ([]Candidate, error)
	DeleteByModule(ctx Context, moduleID string) error
	// AppendEvaluation merges {"evaluate": evaluation} into extra_data of an
	// existing candidate. Evaluators never create rows.
	AppendEvaluation(ctx Context, candidateID, evaluation string) error
}

type FileRepository interface {
	ListByModule(ctx Context, moduleID string) ([]FileModule, error)
	SetFinishProcess(ctx Context, moduleID, fileID string, done bool) error
	ResetFinishProcess(ctx Context, moduleID string) error
	ClearBindings(ctx Context, moduleID string) error
}

type DataRepository interface {
	Insert(ctx Context, moduleID, moduleType string, isRaw bool, tags, content string, extra map[string]any) error
	// ListAssigned fetches rows matching any of the tags. Raw rows are scoped
	// by module id, cooked rows by datastore id.
	ListAssigned(ctx Context, scopeID string, isRaw bool, tags []string) ([]DataRow, error)
	DistinctTagCount(ctx Context, moduleID string) (int, error)
}

// CredentialRepository arbitrates the shared LLM key pool through the
// relational store. Checkout is transactional; Release is unconditional and
// must be safe to call from any exit path.
type CredentialRepository interface {
	Checkout(ctx Context) (Credential, error)
	Release(ctx Context, id string) error
}

type MetricRepository interface {
	Insert(ctx Context, m Metric) error
}

// WorkspaceRepository resolves the caller's membership level in a workspace.
// A missing membership maps to ErrForbidden.
type WorkspaceRepository interface {
	MemberLevel(ctx Context, workspaceID, userID string) (int, error)
}

// LegacyRepository covers the legacy generator/job/datadrop tables consumed
// by the legacy_jobs queue.
type LegacyRepository interface {
	GetGenerator(ctx Context, id string) (Generator, error)
	GetLegacyJob(ctx Context, id string) (LegacyJob, error)
	SetLegacyJobStatus(ctx Context, id string, status int16) error
	InsertDatadrop(ctx Context, jobID, name, content string) error
	DatadropCount(ctx Context, jobID string) (int, error)
}

// CharacterSource resolves @ref tokens to project-scoped character sheets.
type CharacterSource interface {
	Lookup(ctx Context, projectID, name string) ([]CharacterEntry, error)
}

// Service ports

// ChatRequest is a single chat-completion invocation. Secret is the leased
// credential's API key.
type ChatRequest struct {
	Model       string
	Input       string
	History     []ChatTurn
	MaxTokens   int
	Temperature float64
	Secret      string
}

// ChatTurn is one prior user/assistant exchange.
type ChatTurn struct {
	UserInput string
	AIOutput  string
}

// ChatClient issues one chat completion and returns the first assistant
// message's content, or the empty string if the reply carries none.
type ChatClient interface {
	Chat(ctx Context, req ChatRequest) (string, error)
}

// Publisher hands a payload to a named broker queue with publisher confirm.
type Publisher interface {
	Publish(ctx Context, queue string, payload any) error
}

// Chunker splits an uploaded document into input chunks via the external
// document-chunking service.
type Chunker interface {
	ExtractChunks(ctx Context, fileName, path string) ([]string, error)
}

// ReferenceSearcher backs the chat endpoint: candidate contents are indexed
// per module, then the user input is matched against them.
type ReferenceSearcher interface {
	// EnsureIndexed creates the module's index from contents if it does not
	// exist yet. An existing index is left as is.
	EnsureIndexed(ctx Context, moduleID string, contents []string) error
	// Search returns up to size contents best matching query.
	Search(ctx Context, moduleID, query string, size int) ([]string, error)
}
