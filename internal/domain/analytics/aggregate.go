// Package analytics implements the aggregation and correlation stages of the
// controversy pipeline: per-question metric rows, Pearson and Spearman
// correlation of engagement signals against average controversy, and
// descriptive statistics over the result table.
package analytics

import (
	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

// QuestionMetrics is one output row: a question's average controversy and its
// engagement totals.  Engagement totals cover ALL answers of the question,
// including answers that received no vector or score; the controversy average
// covers scored answers only.
type QuestionMetrics struct {
	QuestionID      string            `json:"question_id"`
	AvgControversy  float64           `json:"avg_controversy"`
	ScoredAnswers   int               `json:"scored_answers"`
	TotalAnswers    int               `json:"total_answers"`
	Engagement      answer.Engagement `json:"engagement"`
	TotalEngagement int64             `json:"total_engagement"`
}

// Signal returns the metric value for one engagement-derived column.
func (m *QuestionMetrics) Signal(s answer.Signal) int64 {
	if s == answer.SignalTotalEngagement {
		return m.TotalEngagement
	}
	return m.Engagement.Get(s)
}

// Aggregator merges per-answer controversy scores with the full answer table
// into per-question metric rows.
type Aggregator struct {
	logger logging.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(logger logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Aggregator{logger: logger}
}

// Aggregate builds one QuestionMetrics row per question that has at least one
// scored answer.  Questions with zero scored answers are excluded entirely;
// their engagement is not reported anywhere.
//
// Row order follows the first appearance of each question in scores, so the
// output is deterministic for a deterministic scoring pass.
func (ag *Aggregator) Aggregate(answers []*answer.Answer, scores []*controversy.AnswerScore) []*QuestionMetrics {
	type acc struct {
		scoreSum   float64
		scoreCount int
	}

	order := make([]string, 0)
	sums := make(map[string]*acc)
	for _, sc := range scores {
		a, ok := sums[sc.QuestionID]
		if !ok {
			a = &acc{}
			sums[sc.QuestionID] = a
			order = append(order, sc.QuestionID)
		}
		a.scoreSum += sc.Score
		a.scoreCount++
	}

	engagement := make(map[string]answer.Engagement)
	totalAnswers := make(map[string]int)
	for _, a := range answers {
		engagement[a.QuestionID] = engagement[a.QuestionID].Add(a.Engagement)
		totalAnswers[a.QuestionID]++
	}

	rows := make([]*QuestionMetrics, 0, len(order))
	for _, q := range order {
		a := sums[q]
		eng := engagement[q]
		rows = append(rows, &QuestionMetrics{
			QuestionID:      q,
			AvgControversy:  a.scoreSum / float64(a.scoreCount),
			ScoredAnswers:   a.scoreCount,
			TotalAnswers:    totalAnswers[q],
			Engagement:      eng,
			TotalEngagement: eng.Total(),
		})
	}

	ag.logger.Info("aggregation complete",
		logging.Int("questions_in", len(totalAnswers)),
		logging.Int("questions_out", len(rows)),
		logging.Int("scored_answers", len(scores)))

	return rows
}
