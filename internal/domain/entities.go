package domain

import (
	"context"
	"time"
)

// Context is an alias so repositories and ports do not import std context
// directly in their signatures; adapters pass context.Context through.
type Context = context.Context

// ModuleCategory enumerates the two module kinds.
const (
	CategoryGenerator = "generator"
	CategoryEvaluator = "evaluator"
)

// Job status values. The zero value is the active state on purpose: rows
// inserted without an explicit status are runnable.
const (
	JobActive     int16 = 0
	JobSuperseded int16 = 1
	JobPaused     int16 = 2
	JobFinished   int16 = 3
)

// Module status as derived by the status aggregator.
const (
	StatusReady   = "Ready"
	StatusPending = "Pending"
	StatusRunning = "Running"
)

// Module is a user-defined LLM workflow: prompt, keys, optional preprocess
// chain, optional separator, optionally assigned input data.
type Module struct {
	ID         string
	Name       string
	TemplateID *string
	Workspace  string
	Category   string
	Config     ModuleConfig
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// Template is an immutable module blueprint.
type Template struct {
	ID       string
	Name     string
	Category string
	Data     ModuleConfig
}

// Job is a single execution instance of a module. TargetCount is the number
// of input chunks fanned out when the job was created; the count of distinct
// group ids over its candidates is its effective progress.
type Job struct {
	ID          string
	ModuleID    string
	WorkspaceID string
	TargetCount int
	Status      int16
	CreatedAt   time.Time
}

// Candidate is one produced artifact. Candidates split from a single LLM
// response by separator share one GroupID.
type Candidate struct {
	ID        string
	ModuleID  string
	JobID     string
	GroupID   string
	Content   string
	ExtraData map[string]any
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// File is an uploaded source document bound to modules via FileModule.
type File struct {
	ID   string
	Path string
	Name string
	Type string
}

// FileModule is the binding row carrying the per-module processing flag.
type FileModule struct {
	FileID        string
	ModuleID      string
	FinishProcess bool
	File          File
}

// DataRow is a persisted datum in the data store. IsRaw rows are scoped to a
// module; non-raw rows to a datastore. Exactly one scope is set.
type DataRow struct {
	ID        string
	Content   string
	ExtraData map[string]any
	IsRaw     bool
	Tags      string
}

// Credential is a shared LLM API key leased to one worker at a time.
type Credential struct {
	ID     string
	Secret string
}

// Metric is one append-only usage row per LLM-touching operation.
type Metric struct {
	WorkspaceID string
	UserID      string
	ModuleID    string
	TokenCount  int
	WordCount   int
}

// Generator is the legacy prompt-chain definition driven by legacy_jobs.
type Generator struct {
	ID          string
	ProjectID   string
	Name        string
	Prompts     []string
	ModelName   string
	Temperature float64
	WordCount   int
}

// LegacyJob is a legacy queue job producing datadrops until TargetCount.
type LegacyJob struct {
	ID          string
	ProjectID   string
	GeneratorID *string
	TargetCount int
	Status      int16
}

// CharacterEntry is one key of a project-scoped character sheet, referenced
// from templates via @ref tokens.
type CharacterEntry struct {
	Key    string
	Type   string // "scalar" or "array"
	Values []string
}
