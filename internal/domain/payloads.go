package domain

// Queue names. Prefetch is per-queue: evo runs two parallel deliveries, the
// rest are strictly serial.
const (
	QueueLegacyJobs = "legacy_jobs"
	QueueGenerate   = "v2_generate"
	QueueEvaluate   = "v2_evaluate"
	QueueEvo        = "evo"
)

// AttemptHeader carries the retry count on republished deliveries; absence
// means first attempt.
const AttemptHeader = "x-attempts"

// MaxAttempts is the retry ceiling: a delivery that has already failed this
// many times is dropped instead of republished.
const MaxAttempts = 3

// EvoTaskPayload fans out one input chunk of a module run.
type EvoTaskPayload struct {
	ModuleID    string `json:"module_id"`
	JobID       string `json:"job_id"`
	WorkspaceID string `json:"workspace_id"`
	FileID      string `json:"file_id"`
	Input       string `json:"input"`
	Prompt      string `json:"prompt"`
	UserID      string `json:"user_id"`
	Separator   string `json:"separator"`
	Reference   string `json:"reference"`
	ModelName   string `json:"model_name"`
}

// GenerateTaskPayload is one v2_generate unit: single prompt, single
// candidate.
type GenerateTaskPayload struct {
	GeneratorID string `json:"generator_id"`
	ProjectID   string `json:"project_id"`
	FileID      string `json:"file_id"`
	Input       string `json:"input"`
	Prompt      string `json:"prompt"`
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	Separator   string `json:"separator"`
}

// EvaluateTaskPayload is one v2_evaluate unit: the response is written onto
// an existing candidate's extra_data.
type EvaluateTaskPayload struct {
	GeneratorID string `json:"generator_id"`
	DatadropID  string `json:"datadrop_id"`
	ProjectID   string `json:"project_id"`
	Input       string `json:"input"`
	Prompt      string `json:"prompt"`
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	Reference   string `json:"reference"`
}

// PromptChain is the legacy ordered template list.
type PromptChain struct {
	Prompts []string `json:"prompts"`
}

// LegacyJobPayload drives the legacy_jobs queue. Either GeneratorID is set
// and the chain parameters are read from the generator row, or the chain is
// carried inline.
type LegacyJobPayload struct {
	JobID       string       `json:"job_id"`
	GeneratorID string       `json:"generator_id,omitempty"`
	ModelName   string       `json:"model_name,omitempty"`
	PromptChain *PromptChain `json:"prompt_chain,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	WordCount   int          `json:"word_count,omitempty"`
}
