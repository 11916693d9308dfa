package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// Topic constants.
const (
	TopicRunStarted     = "analysis.run.started"
	TopicRunCompleted   = "analysis.run.completed"
	TopicQuestionScored = "analysis.question.scored"
)

// EventEnvelope standardizes event messages across topics.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RunStartedPayload announces a new analysis run.
type RunStartedPayload struct {
	RunID         string    `json:"run_id"`
	AnswersSource string    `json:"answers_source"`
	TokensSource  string    `json:"tokens_source"`
	StartedAt     time.Time `json:"started_at"`
}

// RunCompletedPayload summarizes a finished run.
type RunCompletedPayload struct {
	RunID           string    `json:"run_id"`
	Status          string    `json:"status"`
	QuestionsScored int       `json:"questions_scored"`
	AnswersScored   int       `json:"answers_scored"`
	ElapsedMs       float64   `json:"elapsed_ms"`
	FinishedAt      time.Time `json:"finished_at"`
}

// QuestionScoredPayload carries the metrics of one scored question.
type QuestionScoredPayload struct {
	RunID           string  `json:"run_id"`
	QuestionID      string  `json:"question_id"`
	AvgControversy  float64 `json:"avg_controversy"`
	ScoredAnswers   int     `json:"scored_answers"`
	TotalAnswers    int     `json:"total_answers"`
	TotalEngagement int64   `json:"total_engagement"`
}

// NewEventEnvelope wraps a payload into a versioned envelope.
func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "empty payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}
