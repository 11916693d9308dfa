package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/Controversy-Insight/internal/application/pipeline"
	"github.com/turtacn/Controversy-Insight/internal/domain/analytics"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
	"github.com/turtacn/Controversy-Insight/pkg/types/common"
)

const eventSource = "controversy-insight"

// EventPublisher emits run lifecycle and question-scored events. It
// implements pipeline.EventPublisher.
type EventPublisher struct {
	producer *Producer
	logger   logging.Logger
}

// NewEventPublisher wraps a producer.
func NewEventPublisher(producer *Producer, log logging.Logger) *EventPublisher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &EventPublisher{producer: producer, logger: log.Named("kafka.events")}
}

// PublishRunStarted announces a new run. Keyed by run id so all events of a
// run land on one partition.
func (p *EventPublisher) PublishRunStarted(ctx context.Context, run *pipeline.RunRecord) error {
	payload := RunStartedPayload{
		RunID:         string(run.ID),
		AnswersSource: run.AnswersSource,
		TokensSource:  run.TokensSource,
		StartedAt:     run.StartedAt,
	}
	return p.publish(ctx, TopicRunStarted, string(run.ID), payload)
}

// PublishRunCompleted emits the run summary.
func (p *EventPublisher) PublishRunCompleted(ctx context.Context, report *pipeline.AnalysisReport) error {
	payload := RunCompletedPayload{
		RunID:           string(report.RunID),
		Status:          string(report.Status),
		QuestionsScored: report.Scoring.QuestionsScored,
		AnswersScored:   report.Scoring.AnswersScored,
		ElapsedMs:       report.ElapsedMs,
		FinishedAt:      report.FinishedAt,
	}
	return p.publish(ctx, TopicRunCompleted, string(report.RunID), payload)
}

// PublishQuestionScored emits one event per scored question. Keyed by
// question id so repeated runs of a question stay ordered.
func (p *EventPublisher) PublishQuestionScored(ctx context.Context, runID common.ID, metrics *analytics.QuestionMetrics) error {
	payload := QuestionScoredPayload{
		RunID:           string(runID),
		QuestionID:      metrics.QuestionID,
		AvgControversy:  metrics.AvgControversy,
		ScoredAnswers:   metrics.ScoredAnswers,
		TotalAnswers:    metrics.TotalAnswers,
		TotalEngagement: metrics.TotalEngagement,
	}
	return p.publish(ctx, TopicQuestionScored, metrics.QuestionID, payload)
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, payload interface{}) error {
	envelope, err := NewEventEnvelope(topic, eventSource, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return p.producer.Publish(ctx, &ProducerMessage{
		Topic:     topic,
		Key:       []byte(key),
		Value:     data,
		Timestamp: time.Now(),
	})
}
