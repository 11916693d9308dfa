// Package answer provides the core domain model for Q&A answer records in the
// Controversy-Insight platform.  An Answer is an immutable input record: it is
// created once from ingested data and never mutated by the pipeline.
package answer

import (
	"fmt"
	"strings"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Engagement Signals
// ─────────────────────────────────────────────────────────────────────────────

// Signal identifies one engagement-derived column: one of the seven raw
// counters or their sum.
type Signal string

const (
	SignalThanks      Signal = "thanks_count"
	SignalLikes       Signal = "likes_count"
	SignalComments    Signal = "comments_count"
	SignalCollections Signal = "collections_count"
	SignalDislikes    Signal = "dislikes_count"
	SignalReports     Signal = "reports_count"
	SignalHelpless    Signal = "helpless_count"

	// SignalTotalEngagement is the sum of the seven counters.
	SignalTotalEngagement Signal = "total_engagement"
)

// CounterSignals returns the seven raw counter signals in canonical column
// order.  The order is fixed; downstream tables and reports rely on it.
func CounterSignals() []Signal {
	return []Signal{
		SignalThanks,
		SignalLikes,
		SignalComments,
		SignalCollections,
		SignalDislikes,
		SignalReports,
		SignalHelpless,
	}
}

// Signals returns all eight engagement-derived signals in canonical column
// order: the seven counters followed by the total.
func Signals() []Signal {
	return append(CounterSignals(), SignalTotalEngagement)
}

// IsValid checks whether the signal is one of the eight known columns.
func (s Signal) IsValid() bool {
	switch s {
	case SignalThanks, SignalLikes, SignalComments, SignalCollections,
		SignalDislikes, SignalReports, SignalHelpless, SignalTotalEngagement:
		return true
	default:
		return false
	}
}

// String returns the string representation of the signal.
func (s Signal) String() string {
	return string(s)
}

// ParseSignal parses a string into a Signal.
func ParseSignal(s string) (Signal, error) {
	sig := Signal(s)
	if sig.IsValid() {
		return sig, nil
	}
	return "", errors.New(errors.ErrCodeValidation, "unknown engagement signal: "+s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Engagement Value Object
// ─────────────────────────────────────────────────────────────────────────────

// Engagement holds the seven named engagement counters of a single answer.
// All counters are non-negative.  Engagement is a value object; Add returns a
// new value and never mutates the receiver.
type Engagement struct {
	Thanks      int64 `json:"thanks_count"`
	Likes       int64 `json:"likes_count"`
	Comments    int64 `json:"comments_count"`
	Collections int64 `json:"collections_count"`
	Dislikes    int64 `json:"dislikes_count"`
	Reports     int64 `json:"reports_count"`
	Helpless    int64 `json:"helpless_count"`
}

// Total returns the sum of the seven counters.
func (e Engagement) Total() int64 {
	return e.Thanks + e.Likes + e.Comments + e.Collections + e.Dislikes + e.Reports + e.Helpless
}

// Get returns the counter value for the given signal.  SignalTotalEngagement
// resolves to Total().  Unknown signals return 0.
func (e Engagement) Get(s Signal) int64 {
	switch s {
	case SignalThanks:
		return e.Thanks
	case SignalLikes:
		return e.Likes
	case SignalComments:
		return e.Comments
	case SignalCollections:
		return e.Collections
	case SignalDislikes:
		return e.Dislikes
	case SignalReports:
		return e.Reports
	case SignalHelpless:
		return e.Helpless
	case SignalTotalEngagement:
		return e.Total()
	default:
		return 0
	}
}

// Add returns the coordinate-wise sum of two engagement values.
func (e Engagement) Add(o Engagement) Engagement {
	return Engagement{
		Thanks:      e.Thanks + o.Thanks,
		Likes:       e.Likes + o.Likes,
		Comments:    e.Comments + o.Comments,
		Collections: e.Collections + o.Collections,
		Dislikes:    e.Dislikes + o.Dislikes,
		Reports:     e.Reports + o.Reports,
		Helpless:    e.Helpless + o.Helpless,
	}
}

// Validate checks that every counter is non-negative.
func (e Engagement) Validate() error {
	for _, s := range CounterSignals() {
		if e.Get(s) < 0 {
			return errors.New(errors.ErrCodeValidation,
				fmt.Sprintf("engagement counter %s must be non-negative, got %d", s, e.Get(s)))
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Answer Entity
// ─────────────────────────────────────────────────────────────────────────────

// Answer is one Q&A answer record.  RawTokens preserves the token-identifier
// field exactly as ingested (whitespace-delimited integers, possibly empty);
// parsing is deferred to ParseTokens so that a malformed field can be handled
// as an exclusion by the vectorization stage rather than an ingest failure.
type Answer struct {
	ID         string     `json:"id"`
	QuestionID string     `json:"question_id"`
	RawTokens  string     `json:"raw_tokens"`
	Engagement Engagement `json:"engagement"`
}

// NewAnswer constructs a validated Answer.  The token field is accepted
// verbatim; only identifiers and engagement counters are validated here.
func NewAnswer(id, questionID, rawTokens string, eng Engagement) (*Answer, error) {
	id = strings.TrimSpace(id)
	questionID = strings.TrimSpace(questionID)

	if id == "" {
		return nil, errors.InvalidParam("answer id cannot be empty")
	}
	if questionID == "" {
		return nil, errors.InvalidParam("question id cannot be empty").
			WithDetail("answer_id=" + id)
	}
	if err := eng.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid engagement for answer "+id)
	}

	return &Answer{
		ID:         id,
		QuestionID: questionID,
		RawTokens:  rawTokens,
		Engagement: eng,
	}, nil
}

// HasTokenField reports whether the token field contains any content at all.
// A blank field is valid input; it simply yields no tokens.
func (a *Answer) HasTokenField() bool {
	return strings.TrimSpace(a.RawTokens) != ""
}

// ParseTokens parses the raw token field into an ordered token-identifier
// sequence.  See ParseTokenIDs for the exact contract.
func (a *Answer) ParseTokens() ([]int64, error) {
	return ParseTokenIDs(a.RawTokens)
}

func (a *Answer) String() string {
	return fmt.Sprintf("Answer{id=%s, question=%s, engagement=%d}", a.ID, a.QuestionID, a.Engagement.Total())
}
