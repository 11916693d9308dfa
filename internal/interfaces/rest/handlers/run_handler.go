package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

// ResultReader is the tabular read side backing the API.
type ResultReader interface {
	GetRun(ctx context.Context, runID common.ID) (*pipeline.RunRecord, error)
	ListRuns(ctx context.Context, p common.Pagination) ([]*pipeline.RunRecord, int64, error)
	LatestCompletedRun(ctx context.Context) (*pipeline.RunRecord, error)
	QuestionMetrics(ctx context.Context, runID common.ID, p common.Pagination) ([]*analytics.QuestionMetrics, int64, error)
	AnswerScores(ctx context.Context, runID common.ID, questionID string) ([]*controversy.AnswerScore, error)
	Correlation(ctx context.Context, runID common.ID) (*analytics.CorrelationResult, error)
}

// ReportCache serves hot report copies. Optional; a nil cache falls through
// to the archive.
type ReportCache interface {
	ReportOrLoad(ctx context.Context, runID common.ID, loader func(ctx context.Context) (*pipeline.AnalysisReport, error)) (*pipeline.AnalysisReport, error)
	LatestReport(ctx context.Context) (*pipeline.AnalysisReport, error)
	TopControversial(ctx context.Context, runID common.ID, limit int) ([]*analytics.QuestionMetrics, error)
}

// ReportFetcher reads archived reports. Optional.
type ReportFetcher interface {
	Fetch(ctx context.Context, runID common.ID) (*pipeline.AnalysisReport, error)
	DownloadURL(ctx context.Context, runID common.ID) (string, error)
}

// RunHandler serves the run, question-metrics, and correlation endpoints.
type RunHandler struct {
	store   ResultReader
	cache   ReportCache
	archive ReportFetcher
	logger  logging.Logger
}

// NewRunHandler constructs a RunHandler. cache and archive may be nil.
func NewRunHandler(store ResultReader, cache ReportCache, archive ReportFetcher, log logging.Logger) *RunHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RunHandler{
		store:   store,
		cache:   cache,
		archive: archive,
		logger:  log.Named("api"),
	}
}

// List handles GET /runs.
func (h *RunHandler) List(c *gin.Context) {
	p := parsePagination(c)
	runs, total, err := h.store.ListRuns(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	p.Total = total
	c.JSON(http.StatusOK, ListResponse{Items: runs, Pagination: p})
}

// Get handles GET /runs/:runID.
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), common.ID(c.Param("runID")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Report handles GET /runs/:runID/report. The cached copy is preferred; a
// miss falls through to the archive and backfills.
func (h *RunHandler) Report(c *gin.Context) {
	ctx := c.Request.Context()
	runID := common.ID(c.Param("runID"))

	report, err := h.loadReport(ctx, runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *RunHandler) loadReport(ctx context.Context, runID common.ID) (*pipeline.AnalysisReport, error) {
	switch {
	case h.cache != nil && h.archive != nil:
		return h.cache.ReportOrLoad(ctx, runID, func(ctx context.Context) (*pipeline.AnalysisReport, error) {
			return h.archive.Fetch(ctx, runID)
		})
	case h.archive != nil:
		return h.archive.Fetch(ctx, runID)
	case h.cache != nil:
		return h.cache.ReportOrLoad(ctx, runID, func(context.Context) (*pipeline.AnalysisReport, error) {
			return nil, errors.New(errors.ErrCodeReportNotFound, "report not cached and no archive configured")
		})
	default:
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "no report source configured")
	}
}

// Download handles GET /runs/:runID/report/download and returns a presigned
// URL instead of streaming the object through the API.
func (h *RunHandler) Download(c *gin.Context) {
	if h.archive == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "report archive not configured"))
		return
	}
	url, err := h.archive.DownloadURL(c.Request.Context(), common.ID(c.Param("runID")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Questions handles GET /runs/:runID/questions, most controversial first.
func (h *RunHandler) Questions(c *gin.Context) {
	p := parsePagination(c)
	runID := common.ID(c.Param("runID"))

	metrics, total, err := h.store.QuestionMetrics(c.Request.Context(), runID, p)
	if err != nil {
		respondError(c, err)
		return
	}
	p.Total = total
	c.JSON(http.StatusOK, ListResponse{Items: metrics, Pagination: p})
}

// Leaderboard handles GET /runs/:runID/leaderboard. The cache's sorted set
// answers when available; otherwise the first store page serves, since the
// store already orders by controversy.
func (h *RunHandler) Leaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	runID := common.ID(c.Param("runID"))

	limit := 10
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			limit = n
		}
	}

	if h.cache != nil {
		metrics, err := h.cache.TopControversial(ctx, runID, limit)
		if err == nil && len(metrics) > 0 {
			c.JSON(http.StatusOK, gin.H{"items": metrics})
			return
		}
		if err != nil && !errors.IsNotFound(err) {
			h.logger.Warn("leaderboard cache read failed",
				logging.String("run_id", string(runID)),
				logging.Err(err),
			)
		}
	}

	metrics, _, err := h.store.QuestionMetrics(ctx, runID, common.Pagination{Page: 1, PageSize: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": metrics})
}

// Scores handles GET /runs/:runID/questions/:questionID/scores.
func (h *RunHandler) Scores(c *gin.Context) {
	runID := common.ID(c.Param("runID"))
	questionID := c.Param("questionID")

	scores, err := h.store.AnswerScores(c.Request.Context(), runID, questionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": scores})
}

// Correlation handles GET /runs/:runID/correlation.
func (h *RunHandler) Correlation(c *gin.Context) {
	result, err := h.store.Correlation(c.Request.Context(), common.ID(c.Param("runID")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Latest handles GET /reports/latest: the cached latest report, else the
// latest completed run's archived report.
func (h *RunHandler) Latest(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		if report, err := h.cache.LatestReport(ctx); err == nil {
			c.JSON(http.StatusOK, report)
			return
		}
	}

	run, err := h.store.LatestCompletedRun(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.loadReport(ctx, run.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
