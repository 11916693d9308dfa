package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

func newPublisher(t *testing.T) (*EventPublisher, *fakeWriter) {
	t.Helper()
	w := &fakeWriter{}
	producer := NewProducerWithWriter(w, logging.NewNopLogger())
	return NewEventPublisher(producer, logging.NewNopLogger()), w
}

func decodeEnvelope(t *testing.T, data []byte) *EventEnvelope {
	t.Helper()
	envelope := &EventEnvelope{}
	require.NoError(t, json.Unmarshal(data, envelope))
	return envelope
}

func TestEventPublisher_PublishRunStarted(t *testing.T) {
	publisher, w := newPublisher(t)

	run := &pipeline.RunRecord{
		ID:            common.ID("run-1"),
		Status:        common.RunRunning,
		StartedAt:     time.Now().UTC(),
		AnswersSource: "file:///answers.csv",
		TokensSource:  "file:///tokens.csv",
	}
	require.NoError(t, publisher.PublishRunStarted(context.Background(), run))

	require.Len(t, w.messages, 1)
	assert.Equal(t, TopicRunStarted, w.messages[0].Topic)
	assert.Equal(t, []byte("run-1"), w.messages[0].Key)

	envelope := decodeEnvelope(t, w.messages[0].Value)
	assert.Equal(t, TopicRunStarted, envelope.EventType)
	assert.Equal(t, eventSource, envelope.Source)
	assert.Equal(t, "v1", envelope.SchemaVersion)
	assert.NotEmpty(t, envelope.EventID)

	payload := RunStartedPayload{}
	require.NoError(t, envelope.DecodePayload(&payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, "file:///answers.csv", payload.AnswersSource)
}

func TestEventPublisher_PublishRunCompleted(t *testing.T) {
	publisher, w := newPublisher(t)

	report := &pipeline.AnalysisReport{
		RunID:      common.ID("run-2"),
		Status:     common.RunCompleted,
		FinishedAt: time.Now().UTC(),
		ElapsedMs:  1234.5,
		Scoring:    pipeline.ScoringSummary{QuestionsScored: 7, AnswersScored: 42},
	}
	require.NoError(t, publisher.PublishRunCompleted(context.Background(), report))

	require.Len(t, w.messages, 1)
	envelope := decodeEnvelope(t, w.messages[0].Value)

	payload := RunCompletedPayload{}
	require.NoError(t, envelope.DecodePayload(&payload))
	assert.Equal(t, "run-2", payload.RunID)
	assert.Equal(t, string(common.RunCompleted), payload.Status)
	assert.Equal(t, 7, payload.QuestionsScored)
	assert.Equal(t, 42, payload.AnswersScored)
	assert.InDelta(t, 1234.5, payload.ElapsedMs, 1e-9)
}

func TestEventPublisher_PublishQuestionScored(t *testing.T) {
	publisher, w := newPublisher(t)

	metrics := &analytics.QuestionMetrics{
		QuestionID:      "q-9",
		AvgControversy:  0.61,
		ScoredAnswers:   4,
		TotalAnswers:    5,
		TotalEngagement: 120,
	}
	require.NoError(t, publisher.PublishQuestionScored(context.Background(), common.ID("run-3"), metrics))

	require.Len(t, w.messages, 1)
	// Keyed by question id.
	assert.Equal(t, []byte("q-9"), w.messages[0].Key)

	payload := QuestionScoredPayload{}
	require.NoError(t, decodeEnvelope(t, w.messages[0].Value).DecodePayload(&payload))
	assert.Equal(t, "run-3", payload.RunID)
	assert.InDelta(t, 0.61, payload.AvgControversy, 1e-9)
	assert.EqualValues(t, 120, payload.TotalEngagement)
}

func TestEventEnvelope_DecodePayload_Empty(t *testing.T) {
	envelope := &EventEnvelope{}
	err := envelope.DecodePayload(&RunStartedPayload{})
	assert.Error(t, err)
}
