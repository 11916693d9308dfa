// Package repositories contains the PostgreSQL persistence for analysis
// runs and their tabular outputs.
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// ResultStore is the PostgreSQL implementation of pipeline.RunStore plus the
// read side used by the API and CLI.
type ResultStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewResultStore constructs a ready-to-use ResultStore.
func NewResultStore(pool *pgxpool.Pool, logger logging.Logger) *ResultStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ResultStore{pool: pool, logger: logger.Named("postgres.results")}
}

// ─────────────────────────────────────────────────────────────────────────────
// pipeline.RunStore
// ─────────────────────────────────────────────────────────────────────────────

// CreateRun registers a new run.
func (s *ResultStore) CreateRun(ctx context.Context, run *pipeline.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, status, started_at, answers_source, tokens_source)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Status, run.StartedAt, run.AnswersSource, run.TokensSource,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistFailed, "failed to insert run")
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *ResultStore) FinishRun(ctx context.Context, runID common.ID, status common.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, finished_at = now(), error = $3
		WHERE id = $1`,
		runID, status, errMsg,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistFailed, "failed to update run status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}
	return nil
}

// SaveAnswerScores bulk-inserts the per-answer scores via the COPY protocol.
func (s *ResultStore) SaveAnswerScores(ctx context.Context, runID common.ID, scores []*controversy.AnswerScore) error {
	if len(scores) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []interface{}{runID, sc.AnswerID, sc.QuestionID, sc.Score, sc.GroupSize})
	}

	n, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"answer_scores"},
		[]string{"run_id", "answer_id", "question_id", "score", "group_size"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistFailed, "failed to bulk insert answer scores")
	}
	s.logger.Debug("answer scores persisted", logging.Int64("inserted", n))
	return nil
}

// SaveQuestionMetrics bulk-inserts the per-question metric rows.
func (s *ResultStore) SaveQuestionMetrics(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics) error {
	if len(metrics) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, []interface{}{
			runID, m.QuestionID, m.AvgControversy, m.ScoredAnswers, m.TotalAnswers,
			m.Engagement.Thanks, m.Engagement.Likes, m.Engagement.Comments,
			m.Engagement.Collections, m.Engagement.Dislikes, m.Engagement.Reports,
			m.Engagement.Helpless, m.TotalEngagement,
		})
	}

	n, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"question_metrics"},
		[]string{
			"run_id", "question_id", "avg_controversy", "scored_answers", "total_answers",
			"thanks_count", "likes_count", "comments_count",
			"collections_count", "dislikes_count", "reports_count",
			"helpless_count", "total_engagement",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistFailed, "failed to bulk insert question metrics")
	}
	s.logger.Debug("question metrics persisted", logging.Int64("inserted", n))
	return nil
}

// SaveCorrelation stores the correlation table for a run as a JSONB document.
// The document form keeps the signal/method layout intact without a column
// per coefficient.
func (s *ResultStore) SaveCorrelation(ctx context.Context, runID common.ID, result *analytics.CorrelationResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal correlation result")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO correlation_results (run_id, result)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET result = EXCLUDED.result, saved_at = now()`,
		runID, doc,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodePersistFailed, "failed to insert correlation result")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read side
// ─────────────────────────────────────────────────────────────────────────────

// GetRun returns one run record.
func (s *ResultStore) GetRun(ctx context.Context, runID common.ID) (*pipeline.RunRecord, error) {
	run := &pipeline.RunRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, started_at, finished_at, answers_source, tokens_source, error
		FROM analysis_runs WHERE id = $1`, runID,
	).Scan(&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.AnswersSource, &run.TokensSource, &run.Error)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeRunNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load run")
	}
	return run, nil
}

// ListRuns returns runs ordered most recent first, with the total count.
func (s *ResultStore) ListRuns(ctx context.Context, p common.Pagination) ([]*pipeline.RunRecord, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count runs")
	}

	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, status, started_at, finished_at, answers_source, tokens_source, error
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var runs []*pipeline.RunRecord
	for rows.Next() {
		run := &pipeline.RunRecord{}
		if err := rows.Scan(&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt,
			&run.AnswersSource, &run.TokensSource, &run.Error); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// LatestCompletedRun returns the most recently finished successful run.
func (s *ResultStore) LatestCompletedRun(ctx context.Context) (*pipeline.RunRecord, error) {
	run := &pipeline.RunRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, started_at, finished_at, answers_source, tokens_source, error
		FROM analysis_runs
		WHERE status = $1
		ORDER BY finished_at DESC
		LIMIT 1`, common.RunCompleted,
	).Scan(&run.ID, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.AnswersSource, &run.TokensSource, &run.Error)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeRunNotFound, "no completed runs")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load latest run")
	}
	return run, nil
}

// QuestionMetrics returns the metric rows of a run ordered by descending
// average controversy, with the total row count.
func (s *ResultStore) QuestionMetrics(ctx context.Context, runID common.ID, p common.Pagination) ([]*analytics.QuestionMetrics, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM question_metrics WHERE run_id = $1`, runID,
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count question metrics")
	}

	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	rows, err := s.pool.Query(ctx, `
		SELECT question_id, avg_controversy, scored_answers, total_answers,
		       thanks_count, likes_count, comments_count, collections_count,
		       dislikes_count, reports_count, helpless_count, total_engagement
		FROM question_metrics
		WHERE run_id = $1
		ORDER BY avg_controversy DESC, question_id
		LIMIT $2 OFFSET $3`, runID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query question metrics")
	}
	defer rows.Close()

	metrics, err := scanQuestionMetrics(rows)
	return metrics, total, err
}

// AnswerScores returns the per-answer scores of one question in one run,
// highest score first.
func (s *ResultStore) AnswerScores(ctx context.Context, runID common.ID, questionID string) ([]*controversy.AnswerScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT answer_id, question_id, score, group_size
		FROM answer_scores
		WHERE run_id = $1 AND question_id = $2
		ORDER BY score DESC, answer_id`, runID, questionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query answer scores")
	}
	defer rows.Close()

	var scores []*controversy.AnswerScore
	for rows.Next() {
		sc := &controversy.AnswerScore{}
		if err := rows.Scan(&sc.AnswerID, &sc.QuestionID, &sc.Score, &sc.GroupSize); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan answer score")
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

// Correlation returns the stored correlation analysis of a run.
func (s *ResultStore) Correlation(ctx context.Context, runID common.ID) (*analytics.CorrelationResult, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM correlation_results WHERE run_id = $1`, runID,
	).Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeReportNotFound, "no correlation result for run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load correlation result")
	}

	result := &analytics.CorrelationResult{}
	if err := json.Unmarshal(doc, result); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal correlation result")
	}
	return result, nil
}

func scanQuestionMetrics(rows pgx.Rows) ([]*analytics.QuestionMetrics, error) {
	var metrics []*analytics.QuestionMetrics
	for rows.Next() {
		m := &analytics.QuestionMetrics{}
		var eng answer.Engagement
		if err := rows.Scan(&m.QuestionID, &m.AvgControversy, &m.ScoredAnswers, &m.TotalAnswers,
			&eng.Thanks, &eng.Likes, &eng.Comments, &eng.Collections,
			&eng.Dislikes, &eng.Reports, &eng.Helpless, &m.TotalEngagement); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan question metrics")
		}
		m.Engagement = eng
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
