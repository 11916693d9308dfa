package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// durationBuckets cover stage timings from sub-second scoring up to
// multi-minute full runs.
var durationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// PipelineMetrics implements pipeline.Metrics and pipeline.BatchObserver on
// top of a Collector.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	answersRead       prometheus.Gauge
	answersVectorized prometheus.Gauge
	answersExcluded   prometheus.Gauge
	questionsScored   prometheus.Gauge
	answersScored     prometheus.Gauge

	batchItems    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

var (
	_ pipeline.Metrics       = (*PipelineMetrics)(nil)
	_ pipeline.BatchObserver = (*PipelineMetrics)(nil)
)

// NewPipelineMetrics registers the pipeline metric family on the collector.
func NewPipelineMetrics(c *Collector) *PipelineMetrics {
	return &PipelineMetrics{
		stageDuration: c.Histogram("pipeline_stage_duration_seconds",
			"Wall-clock duration of one pipeline stage.", durationBuckets, "stage"),
		runsTotal: c.Counter("pipeline_runs_total",
			"Finished analysis runs by terminal status.", "status"),
		runDuration: c.Histogram("pipeline_run_duration_seconds",
			"End-to-end duration of an analysis run.", durationBuckets, "status"),

		answersRead: c.Gauge("report_answers_read",
			"Answers read by the most recent run.").WithLabelValues(),
		answersVectorized: c.Gauge("report_answers_vectorized",
			"Answers vectorized in the most recent run.").WithLabelValues(),
		answersExcluded: c.Gauge("report_answers_excluded",
			"Answers excluded from vectorization in the most recent run.").WithLabelValues(),
		questionsScored: c.Gauge("report_questions_scored",
			"Questions that received a controversy score in the most recent run.").WithLabelValues(),
		answersScored: c.Gauge("report_answers_scored",
			"Answers that received a controversy score in the most recent run.").WithLabelValues(),

		batchItems: c.Counter("sink_batch_items_total",
			"Items written by batched sinks, by outcome.", "name", "outcome"),
		batchDuration: c.Histogram("sink_batch_duration_seconds",
			"Duration of one sink batch flush.", nil, "name"),
	}
}

// ObserveStage records the wall-clock duration of one pipeline stage.
func (m *PipelineMetrics) ObserveStage(stage string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveRun records a finished run with its terminal status.
func (m *PipelineMetrics) ObserveRun(status common.RunStatus, elapsed time.Duration) {
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// SetReportCounts publishes the headline counts of the latest report.
func (m *PipelineMetrics) SetReportCounts(report *pipeline.AnalysisReport) {
	if report == nil {
		return
	}
	m.answersRead.Set(float64(report.Input.AnswersRead))
	m.answersVectorized.Set(float64(report.Vectorization.Vectorized))
	m.answersExcluded.Set(float64(report.Vectorization.Excluded))
	m.questionsScored.Set(float64(report.Scoring.QuestionsScored))
	m.answersScored.Set(float64(report.Scoring.AnswersScored))
}

// ObserveBatch records the outcome of one batched sink flush.
func (m *PipelineMetrics) ObserveBatch(name string, succeeded, failed int, elapsed time.Duration) {
	if succeeded > 0 {
		m.batchItems.WithLabelValues(name, "succeeded").Add(float64(succeeded))
	}
	if failed > 0 {
		m.batchItems.WithLabelValues(name, "failed").Add(float64(failed))
	}
	m.batchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
