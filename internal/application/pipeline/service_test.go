package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	apperrors "github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func testTable(t *testing.T) *embedding.Table {
	t.Helper()
	b := embedding.NewTableBuilder()
	require.NoError(t, b.Add(1, []float32{1, 0}))
	require.NoError(t, b.Add(2, []float32{0, 1}))
	table, err := b.Build()
	require.NoError(t, err)
	return table
}

// testAnswers returns seven answers:
//   - q1: a, b, c — the three-member group with likes 10/5/0
//   - q2: d, e — identical vectors, zero controversy, likes 2/3
//   - q3: f — singleton, never scored
//   - q4: g — unparsable token field, excluded from vectorization
func testAnswers(t *testing.T) []*answer.Answer {
	t.Helper()
	mk := func(id, q, tokens string, likes int64) *answer.Answer {
		a, err := answer.NewAnswer(id, q, tokens, answer.Engagement{Likes: likes})
		require.NoError(t, err)
		return a
	}
	return []*answer.Answer{
		mk("a", "q1", "1", 10),
		mk("b", "q1", "2", 5),
		mk("c", "q1", "1 2", 0),
		mk("d", "q2", "1", 2),
		mk("e", "q2", "1", 3),
		mk("f", "q3", "2", 9),
		mk("g", "q4", "oops", 100),
	}
}

type stubAnswerSource struct {
	answers []*answer.Answer
	err     error
}

func (s *stubAnswerSource) ReadAll(_ context.Context) ([]*answer.Answer, error) {
	return s.answers, s.err
}

func (s *stubAnswerSource) Describe() string { return "answers.tsv" }

type stubEmbeddingSource struct {
	table *embedding.Table
	err   error
}

func (s *stubEmbeddingSource) ReadTable(_ context.Context) (*embedding.Table, error) {
	return s.table, s.err
}

func (s *stubEmbeddingSource) Describe() string { return "tokens.tsv" }

// blockingAnswerSource signals when ReadAll is entered and then parks until
// released, for exercising the single-flight guard.
type blockingAnswerSource struct {
	answers []*answer.Answer
	started chan struct{}
	release chan struct{}
}

func (b *blockingAnswerSource) ReadAll(_ context.Context) ([]*answer.Answer, error) {
	select {
	case <-b.started:
		return nil, errors.New("blockingAnswerSource: ReadAll called again after channels were closed")
	default:
	}
	close(b.started)
	<-b.release
	return b.answers, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sink Recorders
// ─────────────────────────────────────────────────────────────────────────────

type finishedRun struct {
	id     common.ID
	status common.RunStatus
	errMsg string
}

type runStoreRecorder struct {
	mu             sync.Mutex
	created        []*RunRecord
	finished       []finishedRun
	scores         []*controversy.AnswerScore
	metrics        []*analytics.QuestionMetrics
	correlation    *analytics.CorrelationResult
	failSaveScores bool
}

func (r *runStoreRecorder) CreateRun(_ context.Context, run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, run)
	return nil
}

func (r *runStoreRecorder) FinishRun(_ context.Context, id common.ID, status common.RunStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, finishedRun{id: id, status: status, errMsg: errMsg})
	return nil
}

func (r *runStoreRecorder) SaveAnswerScores(_ context.Context, _ common.ID, scores []*controversy.AnswerScore) error {
	if r.failSaveScores {
		return errors.New("connection refused")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = scores
	return nil
}

func (r *runStoreRecorder) SaveQuestionMetrics(_ context.Context, _ common.ID, metrics []*analytics.QuestionMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = metrics
	return nil
}

func (r *runStoreRecorder) SaveCorrelation(_ context.Context, _ common.ID, result *analytics.CorrelationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correlation = result
	return nil
}

type questionEvent struct {
	runID      common.ID
	questionID string
}

type eventsRecorder struct {
	mu             sync.Mutex
	started        []*RunRecord
	completed      []*AnalysisReport
	questionEvents []questionEvent
	questionCalls  int32
	failQuestions  bool
}

func (e *eventsRecorder) PublishRunStarted(_ context.Context, run *RunRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, run)
	return nil
}

func (e *eventsRecorder) PublishRunCompleted(_ context.Context, report *AnalysisReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, report)
	return nil
}

func (e *eventsRecorder) PublishQuestionScored(_ context.Context, runID common.ID, m *analytics.QuestionMetrics) error {
	atomic.AddInt32(&e.questionCalls, 1)
	if e.failQuestions {
		return errors.New("broker unreachable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.questionEvents = append(e.questionEvents, questionEvent{runID: runID, questionID: m.QuestionID})
	return nil
}

type vectorStoreRecorder struct {
	mu      sync.Mutex
	vectors []*embedding.AnswerVector
}

func (v *vectorStoreRecorder) StoreVectors(_ context.Context, _ common.ID, vectors []*embedding.AnswerVector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vectors = vectors
	return nil
}

type scoreIndexRecorder struct {
	mu     sync.Mutex
	scores []*controversy.AnswerScore
}

func (s *scoreIndexRecorder) IndexScores(_ context.Context, _ common.ID, scores []*controversy.AnswerScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = scores
	return nil
}

type graphRecorder struct {
	mu      sync.Mutex
	metrics []*analytics.QuestionMetrics
	pairs   []*controversy.PairDistance
}

func (g *graphRecorder) WriteGraph(_ context.Context, _ common.ID, metrics []*analytics.QuestionMetrics, pairs []*controversy.PairDistance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics = metrics
	g.pairs = pairs
	return nil
}

type cacheRecorder struct {
	mu      sync.Mutex
	report  *AnalysisReport
	metrics []*analytics.QuestionMetrics
}

func (c *cacheRecorder) CacheReport(_ context.Context, report *AnalysisReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report = report
	return nil
}

func (c *cacheRecorder) CacheQuestionMetrics(_ context.Context, _ common.ID, metrics []*analytics.QuestionMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
	return nil
}

type archiveRecorder struct {
	mu     sync.Mutex
	report *AnalysisReport
	err    error
}

func (a *archiveRecorder) Archive(_ context.Context, report *AnalysisReport) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report = report
	return "reports/" + string(report.RunID) + ".json", nil
}

type allRecorders struct {
	store   *runStoreRecorder
	events  *eventsRecorder
	vectors *vectorStoreRecorder
	index   *scoreIndexRecorder
	graph   *graphRecorder
	cache   *cacheRecorder
	archive *archiveRecorder
}

func newAllSinks() (*Sinks, *allRecorders) {
	rec := &allRecorders{
		store:   &runStoreRecorder{},
		events:  &eventsRecorder{},
		vectors: &vectorStoreRecorder{},
		index:   &scoreIndexRecorder{},
		graph:   &graphRecorder{},
		cache:   &cacheRecorder{},
		archive: &archiveRecorder{},
	}
	sinks := &Sinks{
		Store:   rec.store,
		Cache:   rec.cache,
		Events:  rec.events,
		Vectors: rec.vectors,
		Index:   rec.index,
		Graph:   rec.graph,
		Archive: rec.archive,
	}
	return sinks, rec
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestNewService_RequiresSources(t *testing.T) {
	cfg := config.PipelineConfig{}

	_, err := NewService(cfg, nil, &stubEmbeddingSource{}, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answer source")

	_, err = NewService(cfg, &stubAnswerSource{}, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding source")
}

func TestService_Run_FullReport(t *testing.T) {
	sinks, rec := newAllSinks()
	cfg := config.PipelineConfig{Concurrency: 4, PublishQuestionEvents: true}

	svc, err := NewService(cfg,
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NoError(t, report.RunID.Validate())
	assert.Equal(t, common.RunCompleted, report.Status)
	assert.Empty(t, report.SinkErrors)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	// Input snapshot and the vectorization audit.
	assert.Equal(t, 7, report.Input.AnswersRead)
	assert.Equal(t, 2, report.Input.TokensLoaded)
	assert.Equal(t, 2, report.Input.EmbeddingDim)
	assert.Equal(t, 6, report.Vectorization.Vectorized)
	assert.Equal(t, 1, report.Vectorization.Excluded)
	assert.Equal(t, 1, report.Vectorization.ByReason[embedding.ReasonTokenFieldUnparsable])
	require.Len(t, report.Vectorization.Exclusions, 1)
	assert.Equal(t, "g", report.Vectorization.Exclusions[0].AnswerID)

	// Scoring summary: q3 is a singleton, q4 never reached the index.
	assert.Equal(t, 3, report.Scoring.QuestionsTotal)
	assert.Equal(t, 2, report.Scoring.QuestionsScored)
	assert.Equal(t, 1, report.Scoring.SingletonGroups)
	assert.Equal(t, 5, report.Scoring.AnswersScored)

	// Question metrics in score order.
	require.Len(t, report.Questions, 2)
	q1 := report.Questions[0]
	assert.Equal(t, "q1", q1.QuestionID)
	assert.InDelta(t, 0.5285954792, q1.AvgControversy, 1e-9)
	assert.Equal(t, int64(15), q1.Engagement.Likes)
	assert.Equal(t, int64(15), q1.TotalEngagement)
	q2 := report.Questions[1]
	assert.Equal(t, "q2", q2.QuestionID)
	assert.InDelta(t, 0.0, q2.AvgControversy, 1e-12)
	assert.Equal(t, int64(5), q2.TotalEngagement)

	// Correlation over the two rows: likes move with controversy, thanks is
	// constant and therefore undefined.
	require.NotNil(t, report.Correlation)
	likes := report.Correlation.Coefficient(analytics.MethodPearson, answer.SignalLikes)
	assert.InDelta(t, 1.0, float64(likes), 1e-9)
	thanks := report.Correlation.Coefficient(analytics.MethodPearson, answer.SignalThanks)
	assert.False(t, thanks.IsDefined())
	assert.Equal(t, 2, report.Correlation.ControversyStats.Count)
	assert.InDelta(t, 10.0, report.Correlation.EngagementStats.Mean, 1e-12)

	// Primary store captured everything, in deterministic order.
	require.Len(t, rec.store.created, 1)
	assert.Equal(t, report.RunID, rec.store.created[0].ID)
	assert.Equal(t, "answers.tsv", rec.store.created[0].AnswersSource)
	assert.Equal(t, "tokens.tsv", rec.store.created[0].TokensSource)
	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunCompleted, rec.store.finished[0].status)
	assert.Empty(t, rec.store.finished[0].errMsg)

	var scoreIDs []string
	for _, sc := range rec.store.scores {
		scoreIDs = append(scoreIDs, sc.AnswerID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, scoreIDs)
	assert.Len(t, rec.store.metrics, 2)
	assert.NotNil(t, rec.store.correlation)

	// Secondary sinks.
	assert.Len(t, rec.vectors.vectors, 6)
	assert.Len(t, rec.index.scores, 5)
	assert.Len(t, rec.graph.pairs, 4) // 3 pairs in q1 + 1 pair in q2
	assert.Len(t, rec.graph.metrics, 2)
	assert.Same(t, report, rec.cache.report)
	assert.Len(t, rec.cache.metrics, 2)
	assert.Same(t, report, rec.archive.report)
	assert.Equal(t, "reports/"+string(report.RunID)+".json", report.ArchiveKey)

	// Events: one started, one completed, one per scored question.
	require.Len(t, rec.events.started, 1)
	require.Len(t, rec.events.completed, 1)
	require.Len(t, rec.events.questionEvents, 2)
	got := map[string]bool{}
	for _, ev := range rec.events.questionEvents {
		assert.Equal(t, report.RunID, ev.runID)
		got[ev.questionID] = true
	}
	assert.True(t, got["q1"])
	assert.True(t, got["q2"])
}

func TestService_Run_NoSinksComputesReport(t *testing.T) {
	cfg := config.PipelineConfig{}

	svc, err := NewService(cfg,
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		nil, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.QuestionCount())
	assert.Empty(t, report.SinkErrors)
	assert.Empty(t, report.ArchiveKey)
}

func TestService_Run_QuestionEventsDisabledByDefault(t *testing.T) {
	sinks, rec := newAllSinks()
	cfg := config.PipelineConfig{}

	svc, err := NewService(cfg,
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rec.events.started, 1)
	assert.Len(t, rec.events.completed, 1)
	assert.Empty(t, rec.events.questionEvents)
}

func TestService_Run_AllSingletonQuestionsCompletesWithEmptyOutputs(t *testing.T) {
	sinks, rec := newAllSinks()

	// Two singleton questions: vectors exist but no pair can be scored.
	// Insufficient data means empty outputs, not a failed run.
	answers := []*answer.Answer{}
	for _, in := range []struct{ id, q string }{{"a", "q1"}, {"b", "q2"}} {
		a, err := answer.NewAnswer(in.id, in.q, "1", answer.Engagement{})
		require.NoError(t, err)
		answers = append(answers, a)
	}

	svc, err := NewService(config.PipelineConfig{},
		&stubAnswerSource{answers: answers},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, common.RunCompleted, report.Status)
	assert.Equal(t, 2, report.Scoring.QuestionsTotal)
	assert.Equal(t, 0, report.Scoring.QuestionsScored)
	assert.Equal(t, 2, report.Scoring.SingletonGroups)
	assert.Equal(t, 0, report.Scoring.AnswersScored)
	assert.Empty(t, report.Questions)

	require.NotNil(t, report.Correlation)
	assert.Equal(t, 0, report.Correlation.ControversyStats.Count)
	for _, sc := range report.Correlation.Signals {
		assert.False(t, sc.Pearson.IsDefined())
	}

	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunCompleted, rec.store.finished[0].status)
}

func TestService_Run_EmptyAnswerSourceCompletes(t *testing.T) {
	svc, err := NewService(config.PipelineConfig{},
		&stubAnswerSource{},
		&stubEmbeddingSource{table: testTable(t)},
		nil, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, common.RunCompleted, report.Status)
	assert.Equal(t, 0, report.Input.AnswersRead)
	assert.Equal(t, 0, report.Scoring.QuestionsTotal)
	assert.Empty(t, report.Questions)
	require.NotNil(t, report.Correlation)
	assert.Equal(t, 0, report.Correlation.EngagementStats.Count)
}

func TestService_Run_PrimarySinkFailureFailsRun(t *testing.T) {
	sinks, rec := newAllSinks()
	rec.store.failSaveScores = true

	svc, err := NewService(config.PipelineConfig{},
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePersistFailed))
	assert.Contains(t, err.Error(), "answer scores")

	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunFailed, rec.store.finished[0].status)
}

func TestService_Run_SecondarySinkFailureTolerated(t *testing.T) {
	sinks, rec := newAllSinks()
	rec.archive.err = errors.New("bucket gone")

	svc, err := NewService(config.PipelineConfig{},
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, report.SinkErrors, 1)
	assert.Contains(t, report.SinkErrors[0], "archive")
	assert.Contains(t, report.SinkErrors[0], "bucket gone")
	assert.Empty(t, report.ArchiveKey)

	// The run itself still completes, and the cached copy carries the error.
	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunCompleted, rec.store.finished[0].status)
	require.NotNil(t, rec.cache.report)
	assert.Equal(t, report.SinkErrors, rec.cache.report.SinkErrors)
}

func TestService_Run_EventPublishFailureTolerated(t *testing.T) {
	sinks, rec := newAllSinks()
	rec.events.failQuestions = true

	svc, err := NewService(config.PipelineConfig{PublishQuestionEvents: true},
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	require.Len(t, report.SinkErrors, 1)
	assert.Contains(t, report.SinkErrors[0], "events")
	assert.Contains(t, report.SinkErrors[0], "not published")

	// Two questions, each attempted once plus two retries.
	assert.Equal(t, int32(6), atomic.LoadInt32(&rec.events.questionCalls))

	// Lifecycle events are unaffected.
	assert.Len(t, rec.events.completed, 1)
	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunCompleted, rec.store.finished[0].status)
}

func TestService_Run_ContextCancelled(t *testing.T) {
	sinks, rec := newAllSinks()

	svc, err := NewService(config.PipelineConfig{},
		&stubAnswerSource{answers: testAnswers(t)},
		&stubEmbeddingSource{table: testTable(t)},
		sinks, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, rec.store.finished, 1)
	assert.Equal(t, common.RunFailed, rec.store.finished[0].status)
}

func TestService_Run_SingleFlight(t *testing.T) {
	blocking := &blockingAnswerSource{
		answers: testAnswers(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	svc, err := NewService(config.PipelineConfig{},
		blocking,
		&stubEmbeddingSource{table: testTable(t)},
		nil, nil, nil)
	require.NoError(t, err)

	type runResult struct {
		report *AnalysisReport
		err    error
	}
	firstDone := make(chan runResult, 1)
	go func() {
		report, err := svc.Run(context.Background())
		firstDone <- runResult{report: report, err: err}
	}()

	<-blocking.started

	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(blocking.release)
	first := <-firstDone
	require.NoError(t, first.err)
	assert.Equal(t, 2, first.report.QuestionCount())

	// The guard resets once the run finishes.
	report, err := svc.Run(context.Background())
	require.Error(t, err) // second ReadAll would re-close the channels
	_ = report
}
