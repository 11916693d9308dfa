package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/config"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

func newMockedCache(t *testing.T) (*MetricsCache, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	client := &Client{
		rdb:    db,
		cfg:    config.RedisConfig{KeyPrefix: "test:", DefaultTTL: time.Hour},
		logger: logging.NewNopLogger(),
	}
	cache := NewMetricsCache(client, logging.NewNopLogger())
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return cache, mock
}

func sampleReport(runID common.ID) *pipeline.AnalysisReport {
	return &pipeline.AnalysisReport{
		RunID:  runID,
		Status: common.RunCompleted,
	}
}

func TestMetricsCache_CacheReport(t *testing.T) {
	cache, mock := newMockedCache(t)
	runID := common.ID("run-1")
	report := sampleReport(runID)
	data, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectSet("test:report:run-1", data, time.Hour).SetVal("OK")
	mock.ExpectSet("test:report:latest", data, time.Hour).SetVal("OK")

	require.NoError(t, cache.CacheReport(context.Background(), report))
}

func TestMetricsCache_Report_Hit(t *testing.T) {
	cache, mock := newMockedCache(t)
	runID := common.ID("run-1")
	data, err := json.Marshal(sampleReport(runID))
	require.NoError(t, err)

	mock.ExpectGet("test:report:run-1").SetVal(string(data))

	got, err := cache.Report(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, common.RunCompleted, got.Status)
}

func TestMetricsCache_Report_Miss(t *testing.T) {
	cache, mock := newMockedCache(t)
	mock.ExpectGet("test:report:missing").RedisNil()

	_, err := cache.Report(context.Background(), common.ID("missing"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMetricsCache_LatestReport(t *testing.T) {
	cache, mock := newMockedCache(t)
	data, err := json.Marshal(sampleReport(common.ID("run-9")))
	require.NoError(t, err)

	mock.ExpectGet("test:report:latest").SetVal(string(data))

	got, err := cache.LatestReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.ID("run-9"), got.RunID)
}

func TestMetricsCache_CacheQuestionMetrics(t *testing.T) {
	cache, mock := newMockedCache(t)
	runID := common.ID("run-1")
	metrics := []*analytics.QuestionMetrics{
		{QuestionID: "q1", AvgControversy: 0.7, ScoredAnswers: 3, TotalAnswers: 3},
		{QuestionID: "q2", AvgControversy: 0.2, ScoredAnswers: 1, TotalAnswers: 2},
	}

	for _, m := range metrics {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		mock.ExpectSet("test:run:run-1:question:"+m.QuestionID, data, time.Hour).SetVal("OK")
	}
	mock.ExpectZAdd("test:run:run-1:leaderboard",
		goredis.Z{Score: 0.7, Member: "q1"},
		goredis.Z{Score: 0.2, Member: "q2"},
	).SetVal(2)
	mock.ExpectExpire("test:run:run-1:leaderboard", time.Hour).SetVal(true)

	require.NoError(t, cache.CacheQuestionMetrics(context.Background(), runID, metrics))
}

func TestMetricsCache_CacheQuestionMetrics_Empty(t *testing.T) {
	cache, _ := newMockedCache(t)
	require.NoError(t, cache.CacheQuestionMetrics(context.Background(), common.ID("run-1"), nil))
}

func TestMetricsCache_QuestionMetrics_Hit(t *testing.T) {
	cache, mock := newMockedCache(t)
	m := &analytics.QuestionMetrics{QuestionID: "q1", AvgControversy: 0.5}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	mock.ExpectGet("test:run:run-1:question:q1").SetVal(string(data))

	got, err := cache.QuestionMetrics(context.Background(), common.ID("run-1"), "q1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.AvgControversy, 1e-9)
}

func TestMetricsCache_TopControversial(t *testing.T) {
	cache, mock := newMockedCache(t)
	runID := common.ID("run-1")

	q1, _ := json.Marshal(&analytics.QuestionMetrics{QuestionID: "q1", AvgControversy: 0.9})
	q2, _ := json.Marshal(&analytics.QuestionMetrics{QuestionID: "q2", AvgControversy: 0.4})

	mock.ExpectZRevRangeWithScores("test:run:run-1:leaderboard", 0, 1).SetVal([]goredis.Z{
		{Score: 0.9, Member: "q1"},
		{Score: 0.4, Member: "q2"},
	})
	mock.ExpectMGet("test:run:run-1:question:q1", "test:run:run-1:question:q2").
		SetVal([]interface{}{string(q1), string(q2)})

	got, err := cache.TopControversial(context.Background(), runID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].QuestionID)
	assert.Equal(t, "q2", got[1].QuestionID)
}

func TestMetricsCache_TopControversial_EmptyLeaderboard(t *testing.T) {
	cache, mock := newMockedCache(t)
	mock.ExpectZRevRangeWithScores("test:run:run-1:leaderboard", 0, 9).SetVal(nil)

	_, err := cache.TopControversial(context.Background(), common.ID("run-1"), 10)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
