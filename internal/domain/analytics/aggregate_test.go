package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/domain/answer"
	"github.com/turtacn/Controversy-Insight/internal/domain/controversy"
	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

func mustAnswer(t *testing.T, id, questionID string, eng answer.Engagement) *answer.Answer {
	t.Helper()
	a, err := answer.NewAnswer(id, questionID, "", eng)
	require.NoError(t, err)
	return a
}

func score(answerID, questionID string, s float64) *controversy.AnswerScore {
	return &controversy.AnswerScore{AnswerID: answerID, QuestionID: questionID, Score: s, GroupSize: 2}
}

func TestAggregator_AveragesScoredAnswersOnly(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())

	answers := []*answer.Answer{
		mustAnswer(t, "A", "q1", answer.Engagement{Likes: 10}),
		mustAnswer(t, "B", "q1", answer.Engagement{Likes: 5}),
		mustAnswer(t, "C", "q1", answer.Engagement{Likes: 0}),
	}
	// C has no score (e.g. unresolvable text); it must not drag the average.
	scores := []*controversy.AnswerScore{
		score("A", "q1", 0.8),
		score("B", "q1", 0.4),
	}

	rows := ag.Aggregate(answers, scores)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "q1", row.QuestionID)
	assert.InDelta(t, 0.6, row.AvgControversy, 1e-12)
	assert.Equal(t, 2, row.ScoredAnswers)
	assert.Equal(t, 3, row.TotalAnswers)
}

func TestAggregator_EngagementSumsCoverAllAnswers(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())

	answers := []*answer.Answer{
		mustAnswer(t, "A", "q1", answer.Engagement{Likes: 10, Thanks: 1}),
		mustAnswer(t, "B", "q1", answer.Engagement{Likes: 5, Comments: 2}),
		mustAnswer(t, "C", "q1", answer.Engagement{Likes: 0, Reports: 7}),
	}
	scores := []*controversy.AnswerScore{
		score("A", "q1", 0.5),
		score("B", "q1", 0.5),
	}

	rows := ag.Aggregate(answers, scores)
	require.Len(t, rows, 1)

	// C is unscored but its engagement still counts.
	assert.Equal(t, int64(15), rows[0].Engagement.Likes)
	assert.Equal(t, int64(1), rows[0].Engagement.Thanks)
	assert.Equal(t, int64(2), rows[0].Engagement.Comments)
	assert.Equal(t, int64(7), rows[0].Engagement.Reports)
	assert.Equal(t, int64(25), rows[0].TotalEngagement)
}

func TestAggregator_ExcludesQuestionsWithoutScores(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())

	answers := []*answer.Answer{
		mustAnswer(t, "A", "q1", answer.Engagement{Likes: 1}),
		mustAnswer(t, "B", "q2", answer.Engagement{Likes: 100}), // singleton, never scored
	}
	scores := []*controversy.AnswerScore{
		score("A", "q1", 0.25),
	}

	rows := ag.Aggregate(answers, scores)
	require.Len(t, rows, 1)
	assert.Equal(t, "q1", rows[0].QuestionID)
}

func TestAggregator_ConcreteScenario(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())

	answers := []*answer.Answer{
		mustAnswer(t, "A", "Q1", answer.Engagement{Likes: 10}),
		mustAnswer(t, "B", "Q1", answer.Engagement{Likes: 5}),
		mustAnswer(t, "C", "Q1", answer.Engagement{Likes: 0}),
	}
	scores := []*controversy.AnswerScore{
		score("A", "Q1", 0.6464466094),
		score("B", "Q1", 0.6464466094),
		score("C", "Q1", 0.2928932188),
	}

	rows := ag.Aggregate(answers, scores)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.5285954792, rows[0].AvgControversy, 1e-9)
	assert.Equal(t, int64(15), rows[0].Engagement.Likes)
}

func TestAggregator_RowOrderFollowsScores(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())

	answers := []*answer.Answer{
		mustAnswer(t, "A", "q1", answer.Engagement{}),
		mustAnswer(t, "B", "q2", answer.Engagement{}),
		mustAnswer(t, "C", "q3", answer.Engagement{}),
	}
	scores := []*controversy.AnswerScore{
		score("C", "q3", 0.1),
		score("A", "q1", 0.2),
		score("B", "q2", 0.3),
	}

	rows := ag.Aggregate(answers, scores)
	require.Len(t, rows, 3)
	assert.Equal(t, "q3", rows[0].QuestionID)
	assert.Equal(t, "q1", rows[1].QuestionID)
	assert.Equal(t, "q2", rows[2].QuestionID)
}

func TestAggregator_EmptyInputs(t *testing.T) {
	ag := NewAggregator(logging.NewNopLogger())
	assert.Empty(t, ag.Aggregate(nil, nil))
}

func TestQuestionMetrics_Signal(t *testing.T) {
	m := &QuestionMetrics{
		Engagement:      answer.Engagement{Likes: 3, Dislikes: 2},
		TotalEngagement: 5,
	}
	assert.Equal(t, int64(3), m.Signal(answer.SignalLikes))
	assert.Equal(t, int64(2), m.Signal(answer.SignalDislikes))
	assert.Equal(t, int64(5), m.Signal(answer.SignalTotalEngagement))
}
