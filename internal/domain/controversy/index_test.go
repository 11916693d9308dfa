package controversy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
)

func vec(answerID, questionID string, v ...float32) *embedding.AnswerVector {
	return &embedding.AnswerVector{AnswerID: answerID, QuestionID: questionID, Vector: v}
}

func TestBuildIndex_GroupsByQuestion(t *testing.T) {
	ix := BuildIndex([]*embedding.AnswerVector{
		vec("a1", "q1", 1, 0),
		vec("b1", "q2", 0, 1),
		vec("a2", "q1", 0.5, 0.5),
	})

	require.Equal(t, 2, ix.Len())
	assert.Equal(t, 3, ix.VectorCount())

	g := ix.Group("q1")
	require.Len(t, g, 2)
	assert.Equal(t, "a1", g[0].AnswerID)
	assert.Equal(t, "a2", g[1].AnswerID)

	require.Len(t, ix.Group("q2"), 1)
}

func TestBuildIndex_QuestionOrderIsFirstAppearance(t *testing.T) {
	ix := BuildIndex([]*embedding.AnswerVector{
		vec("a", "q9", 1),
		vec("b", "q2", 1),
		vec("c", "q9", 1),
		vec("d", "q5", 1),
	})

	assert.Equal(t, []string{"q9", "q2", "q5"}, ix.Questions())
}

func TestQuestionIndex_UnknownQuestionYieldsNil(t *testing.T) {
	ix := BuildIndex([]*embedding.AnswerVector{vec("a", "q1", 1)})
	assert.Nil(t, ix.Group("missing"))
}

func TestBuildIndex_Empty(t *testing.T) {
	ix := BuildIndex(nil)
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 0, ix.VectorCount())
	assert.Empty(t, ix.Questions())
}
