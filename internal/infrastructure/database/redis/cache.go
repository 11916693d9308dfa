package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// MetricsCache keeps the latest analysis report and the per-question metric
// rows in Redis for low-latency reads. It implements pipeline.MetricsCache.
type MetricsCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	group      singleflight.Group
}

// NewMetricsCache builds the cache on top of an established client. Prefix
// and TTL come from the client's configuration.
func NewMetricsCache(client *Client, log logging.Logger) *MetricsCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	prefix := client.cfg.KeyPrefix
	if prefix == "" {
		prefix = "controversy:"
	}
	return &MetricsCache{
		client:     client,
		logger:     log.Named("redis.cache"),
		prefix:     prefix,
		defaultTTL: client.cfg.DefaultTTL,
	}
}

func (c *MetricsCache) reportKey(runID common.ID) string {
	return fmt.Sprintf("%sreport:%s", c.prefix, runID)
}

func (c *MetricsCache) latestReportKey() string {
	return c.prefix + "report:latest"
}

func (c *MetricsCache) questionKey(runID common.ID, questionID string) string {
	return fmt.Sprintf("%srun:%s:question:%s", c.prefix, runID, questionID)
}

func (c *MetricsCache) leaderboardKey(runID common.ID) string {
	return fmt.Sprintf("%srun:%s:leaderboard", c.prefix, runID)
}

// CacheReport stores the full report under its run key and moves the
// "latest" pointer to it.
func (c *MetricsCache) CacheReport(ctx context.Context, report *pipeline.AnalysisReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.reportKey(report.RunID), data, c.defaultTTL)
	pipe.Set(ctx, c.latestReportKey(), data, c.defaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to cache report")
	}
	return nil
}

// CacheQuestionMetrics stores one JSON document per question plus a sorted
// set ranking questions by average controversy.
func (c *MetricsCache) CacheQuestionMetrics(ctx context.Context, runID common.ID, metrics []*analytics.QuestionMetrics) error {
	if len(metrics) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	members := make([]redis.Z, 0, len(metrics))
	for _, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal question metrics")
		}
		pipe.Set(ctx, c.questionKey(runID, m.QuestionID), data, c.defaultTTL)
		members = append(members, redis.Z{Score: m.AvgControversy, Member: m.QuestionID})
	}
	pipe.ZAdd(ctx, c.leaderboardKey(runID), members...)
	pipe.Expire(ctx, c.leaderboardKey(runID), c.defaultTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to cache question metrics")
	}
	c.logger.Debug("question metrics cached",
		logging.String("run_id", string(runID)),
		logging.Int("questions", len(metrics)),
	)
	return nil
}

// Report returns the cached report of one run, ErrCacheMiss when absent.
func (c *MetricsCache) Report(ctx context.Context, runID common.ID) (*pipeline.AnalysisReport, error) {
	return c.getReport(ctx, c.reportKey(runID))
}

// LatestReport returns the most recently cached report.
func (c *MetricsCache) LatestReport(ctx context.Context) (*pipeline.AnalysisReport, error) {
	return c.getReport(ctx, c.latestReportKey())
}

func (c *MetricsCache) getReport(ctx context.Context, key string) (*pipeline.AnalysisReport, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read cached report")
	}
	report := &pipeline.AnalysisReport{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal cached report")
	}
	return report, nil
}

// QuestionMetrics returns the cached row of one question, ErrCacheMiss when
// absent.
func (c *MetricsCache) QuestionMetrics(ctx context.Context, runID common.ID, questionID string) (*analytics.QuestionMetrics, error) {
	data, err := c.client.Get(ctx, c.questionKey(runID, questionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read cached question metrics")
	}
	m := &analytics.QuestionMetrics{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal cached question metrics")
	}
	return m, nil
}

// TopControversial returns up to limit question rows ordered by descending
// average controversy from the run's leaderboard.
func (c *MetricsCache) TopControversial(ctx context.Context, runID common.ID, limit int) ([]*analytics.QuestionMetrics, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := c.client.ZRevRangeWithScores(ctx, c.leaderboardKey(runID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read leaderboard")
	}
	if len(ids) == 0 {
		return nil, ErrCacheMiss
	}

	keys := make([]string, 0, len(ids))
	for _, z := range ids {
		keys = append(keys, c.questionKey(runID, fmt.Sprint(z.Member)))
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read leaderboard rows")
	}

	metrics := make([]*analytics.QuestionMetrics, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // row expired between ZREVRANGE and MGET
		}
		m := &analytics.QuestionMetrics{}
		if err := json.Unmarshal([]byte(raw), m); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal leaderboard row")
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// ReportOrLoad returns the cached report for the key, loading and caching it
// on a miss. Concurrent misses for the same run share one loader call.
func (c *MetricsCache) ReportOrLoad(ctx context.Context, runID common.ID, loader func(ctx context.Context) (*pipeline.AnalysisReport, error)) (*pipeline.AnalysisReport, error) {
	if report, err := c.Report(ctx, runID); err == nil {
		return report, nil
	} else if !stderrors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed, falling through to loader", logging.Err(err))
	}

	v, err, _ := c.group.Do(string(runID), func() (interface{}, error) {
		report, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(report); err == nil {
			if err := c.client.Set(ctx, c.reportKey(runID), data, c.defaultTTL).Err(); err != nil {
				c.logger.Warn("failed to backfill report cache", logging.Err(err))
			}
		}
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pipeline.AnalysisReport), nil
}

// Invalidate drops the cached artifacts of one run.
func (c *MetricsCache) Invalidate(ctx context.Context, runID common.ID) error {
	keys := []string{c.reportKey(runID), c.leaderboardKey(runID)}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate run cache")
	}
	return nil
}
