package pipeline

import (
	"context"
	"time"

	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sources
// ─────────────────────────────────────────────────────────────────────────────

// EmbeddingSource loads the complete token-embedding table for a run.
type EmbeddingSource interface {
	ReadTable(ctx context.Context) (*embedding.Table, error)
}

// SourceInfo is an optional interface a source may implement to describe
// where it reads from (a file path, a table name). The description is stored
// on the run record for traceability.
type SourceInfo interface {
	Describe() string
}

// ─────────────────────────────────────────────────────────────────────────────
// Sinks
// ─────────────────────────────────────────────────────────────────────────────

// RunStore is the primary sink: the run registry and the tabular outputs.
// Unlike the other sinks, a RunStore failure fails the run.
type RunStore interface {
	// CreateRun registers a new run in the running state.
	CreateRun(ctx context.Context, run *RunRecord) error

	// FinishRun records the terminal status of a run. errMsg is empty on
	// success.
	FinishRun(ctx context.Context, runID common.ID, status common.RunStatus, errMsg string) error

	// SaveAnswerScores bulk-inserts the per-answer controversy scores.
	SaveAnswerScores(ctx context.Context, runID common.ID, scores []*controversy.AnswerScore) error

	// SaveQuestionMetrics bulk-inserts the per-question metrics rows.
	SaveQuestionMetrics(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics) error

	// SaveCorrelation stores the correlation table and descriptive stats.
	SaveCorrelation(ctx context.Context, runID common.ID, result *analytics.CorrelationResult) error
}

// ReportArchive stores the full JSON report and returns the object key it
// was stored under.
type ReportArchive interface {
	Archive(ctx context.Context, report *AnalysisReport) (string, error)
}

// EventPublisher emits run lifecycle events and, when enabled, one event per
// scored question. PublishQuestionScored may be called concurrently.
type EventPublisher interface {
	PublishRunStarted(ctx context.Context, run *RunRecord) error
	PublishRunCompleted(ctx context.Context, report *AnalysisReport) error
	PublishQuestionScored(ctx context.Context, runID common.ID, metrics *analytics.QuestionMetrics) error
}

// VectorStore persists the per-answer vectors for similarity search.
type VectorStore interface {
	StoreVectors(ctx context.Context, runID common.ID, vectors []*embedding.AnswerVector) error
}

// ScoreIndex indexes per-answer score documents for ad-hoc queries.
type ScoreIndex interface {
	IndexScores(ctx context.Context, runID common.ID, scores []*controversy.AnswerScore) error
}

// GraphWriter materializes the disagreement graph of a run: question and
// answer nodes plus distance-weighted edges between sibling answers.
type GraphWriter interface {
	WriteGraph(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics, pairs []*controversy.PairDistance) error
}

// MetricsCache keeps hot copies of the latest report and the per-question
// rows for low-latency reads.
type MetricsCache interface {
	CacheReport(ctx context.Context, report *AnalysisReport) error
	CacheQuestionMetrics(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics) error
}

// Sinks bundles the output destinations of a run. Any nil field disables
// that destination; a Sinks zero value is a valid "compute only" setup.
type Sinks struct {
	Store   RunStore
	Cache   MetricsCache
	Events  EventPublisher
	Vectors VectorStore
	Index   ScoreIndex
	Graph   GraphWriter
	Archive ReportArchive
}

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline Metrics
// ─────────────────────────────────────────────────────────────────────────────

// Stage labels used for metrics and logs.
const (
	StageLoadEmbeddings = "load_embeddings"
	StageLoadAnswers    = "load_answers"
	StageVectorize      = "vectorize"
	StageScore          = "score"
	StageAggregate      = "aggregate"
	StageAnalyze        = "analyze"
	StagePersist        = "persist"
)

// Metrics receives pipeline-level measurements. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// ObserveStage records the wall-clock duration of one pipeline stage.
	ObserveStage(stage string, elapsed time.Duration)

	// ObserveRun records a finished run with its terminal status.
	ObserveRun(status common.RunStatus, elapsed time.Duration)

	// SetReportCounts publishes the headline counts of the latest report.
	SetReportCounts(report *AnalysisReport)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) ObserveStage(string, time.Duration) {}

func (NopMetrics) ObserveRun(common.RunStatus, time.Duration) {}

func (NopMetrics) SetReportCounts(*AnalysisReport) {}
