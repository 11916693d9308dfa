package embedding

import (
	"fmt"

	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Vectorization Results
// ─────────────────────────────────────────────────────────────────────────────

// ExclusionReason classifies why an answer received no vector.
type ExclusionReason string

const (
	// ReasonTokenFieldUnparsable marks answers whose token field contains a
	// non-integer element.  The whole answer is excluded; no partial parse.
	ReasonTokenFieldUnparsable ExclusionReason = "token_field_unparsable"

	// ReasonNoResolvableTokens marks answers whose token field parsed cleanly
	// but yielded zero tokens present in the lookup (including an empty field).
	ReasonNoResolvableTokens ExclusionReason = "no_resolvable_tokens"
)

// Exclusion is the audit record for one answer that could not be vectorized.
type Exclusion struct {
	AnswerID   string          `json:"answer_id"`
	QuestionID string          `json:"question_id"`
	Reason     ExclusionReason `json:"reason"`
	Detail     string          `json:"detail,omitempty"`
}

// AnswerVector is the mean-pooled embedding of one answer's resolvable tokens.
type AnswerVector struct {
	AnswerID   string    `json:"answer_id"`
	QuestionID string    `json:"question_id"`
	Vector     []float32 `json:"vector"`
}

// Outcome is the complete result of a vectorization pass: every input answer
// appears exactly once, either in Vectors or in Exclusions, in input order.
type Outcome struct {
	Vectors    []*AnswerVector `json:"vectors"`
	Exclusions []*Exclusion    `json:"exclusions"`
}

// VectorizedCount returns the number of answers that received a vector.
func (o *Outcome) VectorizedCount() int { return len(o.Vectors) }

// ExcludedCount returns the number of answers excluded from vectorization.
func (o *Outcome) ExcludedCount() int { return len(o.Exclusions) }

// ExclusionsByReason tallies exclusions per reason.
func (o *Outcome) ExclusionsByReason() map[ExclusionReason]int {
	counts := make(map[ExclusionReason]int)
	for _, e := range o.Exclusions {
		counts[e.Reason]++
	}
	return counts
}

// ─────────────────────────────────────────────────────────────────────────────
// Vectorizer
// ─────────────────────────────────────────────────────────────────────────────

// Vectorizer turns answers into fixed-dimension vectors by averaging the
// embeddings of their resolvable tokens.  Tokens absent from the lookup are
// dropped from the average; they do not contribute zeros.
type Vectorizer struct {
	lookup Lookup
	logger logging.Logger
}

// NewVectorizer constructs a Vectorizer over the given lookup.
func NewVectorizer(lookup Lookup, logger logging.Logger) *Vectorizer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Vectorizer{lookup: lookup, logger: logger}
}

// Vectorize processes every answer and returns vectors and exclusions in
// input order.  Vectorization never fails as a whole: malformed or
// unresolvable answers become audit records, not errors.
//
// The mean is accumulated in float64 per coordinate and truncated to float32
// once, so the result does not depend on the magnitude drift of incremental
// float32 addition.
func (v *Vectorizer) Vectorize(answers []*answer.Answer) *Outcome {
	out := &Outcome{
		Vectors:    make([]*AnswerVector, 0, len(answers)),
		Exclusions: make([]*Exclusion, 0),
	}

	dim := v.lookup.Dim()
	sums := make([]float64, dim)

	for _, a := range answers {
		tokens, err := a.ParseTokens()
		if err != nil {
			out.Exclusions = append(out.Exclusions, &Exclusion{
				AnswerID:   a.ID,
				QuestionID: a.QuestionID,
				Reason:     ReasonTokenFieldUnparsable,
				Detail:     err.Error(),
			})
			v.logger.Debug("answer excluded from vectorization",
				logging.String("answer_id", a.ID),
				logging.String("reason", string(ReasonTokenFieldUnparsable)))
			continue
		}

		for i := range sums {
			sums[i] = 0
		}
		resolved := 0
		for _, id := range tokens {
			vec, ok := v.lookup.Vector(id)
			if !ok {
				continue
			}
			for i, val := range vec {
				sums[i] += float64(val)
			}
			resolved++
		}

		if resolved == 0 {
			out.Exclusions = append(out.Exclusions, &Exclusion{
				AnswerID:   a.ID,
				QuestionID: a.QuestionID,
				Reason:     ReasonNoResolvableTokens,
				Detail:     fmt.Sprintf("0 of %d tokens resolvable", len(tokens)),
			})
			v.logger.Debug("answer excluded from vectorization",
				logging.String("answer_id", a.ID),
				logging.String("reason", string(ReasonNoResolvableTokens)))
			continue
		}

		mean := make([]float32, dim)
		for i := range sums {
			mean[i] = float32(sums[i] / float64(resolved))
		}
		out.Vectors = append(out.Vectors, &AnswerVector{
			AnswerID:   a.ID,
			QuestionID: a.QuestionID,
			Vector:     mean,
		})
	}

	v.logger.Info("vectorization complete",
		logging.Int("answers", len(answers)),
		logging.Int("vectorized", out.VectorizedCount()),
		logging.Int("excluded", out.ExcludedCount()))

	return out
}
