// Package pipeline orchestrates a full analysis run: load the embedding
// table and the answers, vectorize, score question groups in parallel,
// aggregate per question, correlate against engagement, and fan the results
// out to the configured sinks.
package pipeline

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// ErrRunInProgress is returned by Run while another run is still active.
// The pipeline is single-flight: concurrent runs would race on the sinks.
var ErrRunInProgress = stderrors.New("an analysis run is already in progress")

// Service executes analysis runs. All dependencies are injected; the
// zero-sink configuration computes a report without persisting anything.
type Service struct {
	answerSrc    answer.Source
	embeddingSrc EmbeddingSource
	sinks        *Sinks
	metrics      Metrics
	logger       logging.Logger

	concurrency           int
	publishQuestionEvents bool

	running atomic.Bool
}

// NewService wires the pipeline. Both sources are required; sinks, metrics
// and logger may be nil (disabled respectively no-op).
func NewService(cfg config.PipelineConfig, answers answer.Source, embeddings EmbeddingSource, sinks *Sinks, metrics Metrics, logger logging.Logger) (*Service, error) {
	if answers == nil {
		return nil, errors.InvalidParam("pipeline: answer source is required")
	}
	if embeddings == nil {
		return nil, errors.InvalidParam("pipeline: embedding source is required")
	}
	if sinks == nil {
		sinks = &Sinks{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		answerSrc:             answers,
		embeddingSrc:          embeddings,
		sinks:                 sinks,
		metrics:               metrics,
		logger:                logger.Named("pipeline"),
		concurrency:           cfg.Concurrency,
		publishQuestionEvents: cfg.PublishQuestionEvents,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Run
// ─────────────────────────────────────────────────────────────────────────────

// Run executes one analysis run end to end and returns the report.
// A RunStore failure is fatal; failures of the other sinks are recorded in
// the report's SinkErrors and do not fail the run.
func (s *Service) Run(ctx context.Context) (*AnalysisReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	run := &RunRecord{
		ID:        common.NewID(),
		Status:    common.RunRunning,
		StartedAt: time.Now(),
	}
	if d, ok := s.answerSrc.(SourceInfo); ok {
		run.AnswersSource = d.Describe()
	}
	if d, ok := s.embeddingSrc.(SourceInfo); ok {
		run.TokensSource = d.Describe()
	}

	log := s.logger.With(logging.String("run_id", string(run.ID)))
	log.Info("analysis run started",
		logging.String("answers_source", run.AnswersSource),
		logging.String("tokens_source", run.TokensSource))

	if s.sinks.Store != nil {
		if err := s.sinks.Store.CreateRun(ctx, run); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRunFailed, "pipeline: run not registered")
		}
	}
	if s.sinks.Events != nil {
		if err := s.sinks.Events.PublishRunStarted(ctx, run); err != nil {
			log.Warn("run-started event not published", logging.Err(err))
		}
	}

	report, err := s.execute(ctx, run, log)
	if err != nil {
		s.finishRun(run, common.RunFailed, err.Error(), log)
		s.metrics.ObserveRun(common.RunFailed, time.Since(run.StartedAt))
		log.Error("analysis run failed", logging.Err(err))
		return nil, err
	}

	s.finishRun(run, common.RunCompleted, "", log)
	s.metrics.ObserveRun(common.RunCompleted, time.Since(run.StartedAt))
	log.Info("analysis run completed",
		logging.Int("questions", report.QuestionCount()),
		logging.Int("scored_answers", report.Scoring.AnswersScored),
		logging.Int("sink_errors", len(report.SinkErrors)),
		logging.Float64("elapsed_ms", report.ElapsedMs))
	return report, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stages
// ─────────────────────────────────────────────────────────────────────────────

// artifacts carries the intermediate products of a run into the sink fan-out.
type artifacts struct {
	outcome *embedding.Outcome
	ix      *controversy.QuestionIndex
	scorer  *controversy.Scorer
	scores  []*controversy.AnswerScore
}

func (s *Service) execute(ctx context.Context, run *RunRecord, log logging.Logger) (*AnalysisReport, error) {
	start := time.Now()
	table, err := s.embeddingSrc.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRunFailed, "pipeline: embedding table load failed")
	}
	if err := s.endStage(ctx, StageLoadEmbeddings, start); err != nil {
		return nil, err
	}
	log.Info("embedding table loaded",
		logging.Int("tokens", table.Len()),
		logging.Int("dim", table.Dim()))

	start = time.Now()
	answers, err := s.answerSrc.ReadAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRunFailed, "pipeline: answer load failed")
	}
	if err := s.endStage(ctx, StageLoadAnswers, start); err != nil {
		return nil, err
	}
	log.Info("answers loaded", logging.Int("answers", len(answers)))

	start = time.Now()
	outcome := embedding.NewVectorizer(table, log).Vectorize(answers)
	if err := s.endStage(ctx, StageVectorize, start); err != nil {
		return nil, err
	}

	start = time.Now()
	ix := controversy.BuildIndex(outcome.Vectors)
	scorer := controversy.NewScorer(log)
	scores, singletons, err := s.scoreGroups(ctx, ix, scorer, log)
	if err != nil {
		return nil, err
	}
	if err := s.endStage(ctx, StageScore, start); err != nil {
		return nil, err
	}

	start = time.Now()
	questionMetrics := analytics.NewAggregator(log).Aggregate(answers, scores)
	if err := s.endStage(ctx, StageAggregate, start); err != nil {
		return nil, err
	}

	start = time.Now()
	correlation := analytics.NewAnalyzer(log).Analyze(questionMetrics)
	if err := s.endStage(ctx, StageAnalyze, start); err != nil {
		return nil, err
	}

	finished := time.Now()
	report := &AnalysisReport{
		RunID:      run.ID,
		Status:     common.RunCompleted,
		StartedAt:  run.StartedAt,
		FinishedAt: finished,
		ElapsedMs:  float64(finished.Sub(run.StartedAt).Microseconds()) / 1000.0,
		Input: InputSnapshot{
			AnswersRead:  len(answers),
			TokensLoaded: table.Len(),
			EmbeddingDim: table.Dim(),
		},
		Vectorization: VectorizationAudit{
			Vectorized: outcome.VectorizedCount(),
			Excluded:   outcome.ExcludedCount(),
			ByReason:   outcome.ExclusionsByReason(),
			Exclusions: outcome.Exclusions,
		},
		Scoring: ScoringSummary{
			QuestionsTotal:  ix.Len(),
			QuestionsScored: len(questionMetrics),
			SingletonGroups: singletons,
			AnswersScored:   len(scores),
		},
		Questions:   questionMetrics,
		Correlation: correlation,
	}

	start = time.Now()
	art := &artifacts{outcome: outcome, ix: ix, scorer: scorer, scores: scores}
	if err := s.persist(ctx, report, art, log); err != nil {
		return nil, err
	}
	s.metrics.ObserveStage(StagePersist, time.Since(start))
	s.metrics.SetReportCounts(report)

	return report, nil
}

// scoreGroups fans the question groups out to the batch processor, largest
// groups first so stragglers do not dominate the tail. The flattened score
// slice follows the index's first-appearance question order, identical to a
// sequential sweep.
func (s *Service) scoreGroups(ctx context.Context, ix *controversy.QuestionIndex, scorer *controversy.Scorer, log logging.Logger) ([]*controversy.AnswerScore, int, error) {
	questionIDs := ix.Questions()
	items := make([]PrioritizedItem[string], len(questionIDs))
	for i, q := range questionIDs {
		items[i] = PrioritizedItem[string]{Item: q, Priority: len(ix.Group(q))}
	}

	opts := []BatchOption{
		WithName("score_groups"),
		WithConcurrency(s.concurrency),
		WithBatchLogger(log),
	}
	if ob, ok := s.metrics.(BatchObserver); ok {
		opts = append(opts, WithObserver(ob))
	}
	proc := NewProcessor[string, []*controversy.AnswerScore](opts...)

	// Cancellation applies between groups, never inside a group's pairwise
	// loop, so the per-item context is deliberately unused.
	br, err := proc.ProcessWithPriority(ctx, items, func(_ context.Context, questionID string) ([]*controversy.AnswerScore, error) {
		return scorer.ScoreGroup(questionID, ix.Group(questionID))
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeScoringFailed, "pipeline: scoring dispatch failed")
	}
	if berr := br.Err(); berr != nil {
		return nil, 0, errors.Wrap(berr, errors.ErrCodeScoringFailed, "pipeline: group scoring failed")
	}

	scores := make([]*controversy.AnswerScore, 0, ix.VectorCount())
	singletons := 0
	for _, group := range br.Values() {
		if len(group) == 0 {
			singletons++
			continue
		}
		scores = append(scores, group...)
	}
	log.Info("groups scored",
		logging.Int("questions", ix.Len()),
		logging.Int("singleton_groups", singletons),
		logging.Int("scored_answers", len(scores)))
	return scores, singletons, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink Fan-Out
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) persist(ctx context.Context, report *AnalysisReport, art *artifacts, log logging.Logger) error {
	tolerate := func(sink string, err error) {
		if err == nil {
			return
		}
		log.Error("sink write failed", logging.String("sink", sink), logging.Err(err))
		report.SinkErrors = append(report.SinkErrors, sink+": "+err.Error())
	}

	if s.sinks.Store != nil {
		if err := s.sinks.Store.SaveAnswerScores(ctx, report.RunID, art.scores); err != nil {
			return errors.Wrap(err, errors.ErrCodePersistFailed, "pipeline: answer scores not persisted")
		}
		if err := s.sinks.Store.SaveQuestionMetrics(ctx, report.RunID, report.Questions); err != nil {
			return errors.Wrap(err, errors.ErrCodePersistFailed, "pipeline: question metrics not persisted")
		}
		if err := s.sinks.Store.SaveCorrelation(ctx, report.RunID, report.Correlation); err != nil {
			return errors.Wrap(err, errors.ErrCodePersistFailed, "pipeline: correlation results not persisted")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.sinks.Vectors != nil {
		tolerate("vectors", s.sinks.Vectors.StoreVectors(ctx, report.RunID, art.outcome.Vectors))
	}
	if s.sinks.Index != nil {
		tolerate("index", s.sinks.Index.IndexScores(ctx, report.RunID, art.scores))
	}
	if s.sinks.Graph != nil {
		pairs, err := s.pairDistances(art)
		if err != nil {
			tolerate("graph", err)
		} else {
			tolerate("graph", s.sinks.Graph.WriteGraph(ctx, report.RunID, report.Questions, pairs))
		}
	}

	s.publishScoredQuestions(ctx, report, tolerate, log)

	if s.sinks.Archive != nil {
		key, err := s.sinks.Archive.Archive(ctx, report)
		if err != nil {
			tolerate("archive", err)
		} else {
			report.ArchiveKey = key
			log.Info("report archived", logging.String("key", key))
		}
	}
	if s.sinks.Cache != nil {
		tolerate("cache", s.sinks.Cache.CacheQuestionMetrics(ctx, report.RunID, report.Questions))
		tolerate("cache", s.sinks.Cache.CacheReport(ctx, report))
	}
	if s.sinks.Events != nil {
		tolerate("events", s.sinks.Events.PublishRunCompleted(ctx, report))
	}
	return nil
}

// publishScoredQuestions emits one event per question through the batch
// processor: bounded concurrency, two retries, and a failure gate so a dead
// broker does not stall the run on every single question.
func (s *Service) publishScoredQuestions(ctx context.Context, report *AnalysisReport, tolerate func(string, error), log logging.Logger) {
	if s.sinks.Events == nil || !s.publishQuestionEvents || len(report.Questions) == 0 {
		return
	}

	opts := []BatchOption{
		WithName("publish_question_scored"),
		WithConcurrency(s.concurrency),
		WithRetry(2, 100*time.Millisecond),
		WithFailureGate(10, 5*time.Second),
		WithBatchLogger(log),
	}
	if ob, ok := s.metrics.(BatchObserver); ok {
		opts = append(opts, WithObserver(ob))
	}
	proc := NewProcessor[*analytics.QuestionMetrics, struct{}](opts...)

	br, err := proc.Process(ctx, report.Questions, func(ctx context.Context, m *analytics.QuestionMetrics) (struct{}, error) {
		return struct{}{}, s.sinks.Events.PublishQuestionScored(ctx, report.RunID, m)
	})
	switch {
	case err != nil:
		tolerate("events", err)
	case br.Failed > 0:
		tolerate("events", errors.Newf(errors.ErrCodePublishFailed,
			"%d of %d question events not published", br.Failed, br.Total()))
	}
}

func (s *Service) pairDistances(art *artifacts) ([]*controversy.PairDistance, error) {
	var pairs []*controversy.PairDistance
	for _, q := range art.ix.Questions() {
		pd, err := art.scorer.PairDistances(q, art.ix.Group(q))
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pd...)
	}
	return pairs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// endStage records a stage duration and surfaces cancellation at the stage
// boundary.
func (s *Service) endStage(ctx context.Context, stage string, start time.Time) error {
	s.metrics.ObserveStage(stage, time.Since(start))
	return ctx.Err()
}

// finishRun records the terminal state with its own short deadline so a
// cancelled run context cannot block the bookkeeping write.
func (s *Service) finishRun(run *RunRecord, status common.RunStatus, errMsg string, log logging.Logger) {
	run.Status = status
	now := time.Now()
	run.FinishedAt = &now
	run.Error = errMsg

	if s.sinks.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sinks.Store.FinishRun(ctx, run.ID, status, errMsg); err != nil {
		log.Error("run status not recorded", logging.Err(err))
	}
}
