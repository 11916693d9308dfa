package controversy

import (
	"fmt"

	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// AnswerScore is the controversy score of one answer: the mean cosine
// distance between its vector and every sibling vector under the same
// question.
type AnswerScore struct {
	AnswerID   string  `json:"answer_id"`
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
	GroupSize  int     `json:"group_size"`
}

// PairDistance is one pairwise distance inside a question group, used to
// materialize disagreement edges.  AnswerA precedes AnswerB in group order.
type PairDistance struct {
	QuestionID string  `json:"question_id"`
	AnswerA    string  `json:"answer_a"`
	AnswerB    string  `json:"answer_b"`
	Distance   float64 `json:"distance"`
}

// Scorer computes per-answer controversy scores group by group.  A Scorer is
// stateless and safe for concurrent use; one instance serves all workers.
type Scorer struct {
	logger logging.Logger
}

// NewScorer constructs a Scorer.
func NewScorer(logger logging.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scorer{logger: logger}
}

// ScoreGroup scores every answer in one question group.
//
// Groups with fewer than two vectors produce no scores at all: a lone answer
// has nothing to disagree with, so its score is absent rather than zero.
//
// Each unordered pair's distance is computed once and credited to both
// endpoints; an answer's score is its distance sum divided by (n−1).  The
// per-answer sums accumulate the same addends in the same ascending-index
// order as a full n×n sweep, so the two produce bit-identical results.
func (s *Scorer) ScoreGroup(questionID string, group []*embedding.AnswerVector) ([]*AnswerScore, error) {
	n := len(group)
	if n < 2 {
		return nil, nil
	}

	sums := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := CosineDistance(group[i].Vector, group[j].Vector)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeScoringFailed,
					fmt.Sprintf("question %s: answers %s and %s", questionID, group[i].AnswerID, group[j].AnswerID))
			}
			sums[i] += d
			sums[j] += d
		}
	}

	scores := make([]*AnswerScore, n)
	for i, v := range group {
		scores[i] = &AnswerScore{
			AnswerID:   v.AnswerID,
			QuestionID: questionID,
			Score:      sums[i] / float64(n-1),
			GroupSize:  n,
		}
	}
	return scores, nil
}

// PairDistances returns every unordered pairwise distance in one group, in
// ascending (i, j) order.  Groups with fewer than two vectors yield nil.
// The result is O(n²) records; callers should request it only when edges are
// actually needed.
func (s *Scorer) PairDistances(questionID string, group []*embedding.AnswerVector) ([]*PairDistance, error) {
	n := len(group)
	if n < 2 {
		return nil, nil
	}

	pairs := make([]*PairDistance, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := CosineDistance(group[i].Vector, group[j].Vector)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeScoringFailed,
					fmt.Sprintf("question %s: answers %s and %s", questionID, group[i].AnswerID, group[j].AnswerID))
			}
			pairs = append(pairs, &PairDistance{
				QuestionID: questionID,
				AnswerA:    group[i].AnswerID,
				AnswerB:    group[j].AnswerID,
				Distance:   d,
			})
		}
	}
	return pairs, nil
}

// ScoreAll scores every group in the index sequentially, in the index's
// question order.  The pipeline service provides a parallel variant; this
// one is the reference path and the one used by the CLI for small inputs.
func (s *Scorer) ScoreAll(ix *QuestionIndex) ([]*AnswerScore, error) {
	var all []*AnswerScore
	skipped := 0

	for _, q := range ix.Questions() {
		scores, err := s.ScoreGroup(q, ix.Group(q))
		if err != nil {
			return nil, err
		}
		if scores == nil {
			skipped++
			continue
		}
		all = append(all, scores...)
	}

	s.logger.Info("scoring complete",
		logging.Int("questions", ix.Len()),
		logging.Int("singleton_groups_skipped", skipped),
		logging.Int("scored_answers", len(all)))

	return all, nil
}
