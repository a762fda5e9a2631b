package usecase

import (
	"fmt"
	"unicode/utf8"

	"github.com/claymoreai/claymore/internal/domain"
)

// TokenCounter counts BPE tokens of a text.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// MetricRecorder appends one usage row per LLM-touching text: the BPE token
// count plus the rune count. Called before and after every chat.
type MetricRecorder struct {
	Metrics domain.MetricRepository
	Counter TokenCounter
}

// NewMetricRecorder constructs a MetricRecorder with its dependencies.
func NewMetricRecorder(m domain.MetricRepository, c TokenCounter) MetricRecorder {
	return MetricRecorder{Metrics: m, Counter: c}
}

// Record counts text and appends the metric row.
func (r MetricRecorder) Record(ctx domain.Context, workspaceID, userID, moduleID, text string) error {
	tokens, err := r.Counter.CountTokens(text)
	if err != nil {
		return fmt.Errorf("op=metric.record: %w", err)
	}
	return r.Metrics.Insert(ctx, domain.Metric{
		WorkspaceID: workspaceID,
		UserID:      userID,
		ModuleID:    moduleID,
		TokenCount:  tokens,
		WordCount:   utf8.RuneCountInString(text),
	})
}
