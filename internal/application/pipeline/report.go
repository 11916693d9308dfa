package pipeline

import (
	"time"

	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// RunRecord is the registry row for one analysis run.
type RunRecord struct {
	ID            common.ID        `json:"id"`
	Status        common.RunStatus `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	AnswersSource string           `json:"answers_source,omitempty"`
	TokensSource  string           `json:"tokens_source,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// InputSnapshot counts what a run read before any processing.
type InputSnapshot struct {
	AnswersRead  int `json:"answers_read"`
	TokensLoaded int `json:"tokens_loaded"`
	EmbeddingDim int `json:"embedding_dim"`
}

// VectorizationAudit accounts for every answer that entered vectorization:
// Vectorized + Excluded equals InputSnapshot.AnswersRead.
type VectorizationAudit struct {
	Vectorized int                               `json:"vectorized"`
	Excluded   int                               `json:"excluded"`
	ByReason   map[embedding.ExclusionReason]int `json:"by_reason,omitempty"`
	Exclusions []*embedding.Exclusion            `json:"exclusions,omitempty"`
}

// ScoringSummary counts the grouping and scoring outcomes of a run.
type ScoringSummary struct {
	QuestionsTotal  int `json:"questions_total"`
	QuestionsScored int `json:"questions_scored"`
	SingletonGroups int `json:"singleton_groups"`
	AnswersScored   int `json:"answers_scored"`
}

// AnalysisReport is the complete output of one run: the question metrics
// table, the correlation analysis, and the full audit trail of what was
// read, excluded, and scored. It is what gets archived, cached, and served.
type AnalysisReport struct {
	RunID      common.ID        `json:"run_id"`
	Status     common.RunStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	ElapsedMs  float64          `json:"elapsed_ms"`

	Input         InputSnapshot      `json:"input"`
	Vectorization VectorizationAudit `json:"vectorization"`
	Scoring       ScoringSummary     `json:"scoring"`

	Questions   []*analytics.QuestionMetrics `json:"questions"`
	Correlation *analytics.CorrelationResult `json:"correlation"`

	// ArchiveKey is set after the report has been archived; the archived
	// copy itself does not carry it.
	ArchiveKey string `json:"archive_key,omitempty"`

	// SinkErrors lists non-fatal sink failures ("sink: cause"). The run
	// still completes when only secondary sinks fail.
	SinkErrors []string `json:"sink_errors,omitempty"`
}

// QuestionCount returns the number of questions in the metrics table.
func (r *AnalysisReport) QuestionCount() int { return len(r.Questions) }
