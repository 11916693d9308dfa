package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

func TestSignals_CanonicalOrder(t *testing.T) {
	want := []Signal{
		SignalThanks,
		SignalLikes,
		SignalComments,
		SignalCollections,
		SignalDislikes,
		SignalReports,
		SignalHelpless,
		SignalTotalEngagement,
	}
	assert.Equal(t, want, Signals())
	assert.Equal(t, want[:7], CounterSignals())
}

func TestSignal_IsValid(t *testing.T) {
	assert.True(t, SignalLikes.IsValid())
	assert.True(t, SignalTotalEngagement.IsValid())
	assert.False(t, Signal("views_count").IsValid())
}

func TestParseSignal(t *testing.T) {
	sig, err := ParseSignal("helpless_count")
	require.NoError(t, err)
	assert.Equal(t, SignalHelpless, sig)

	_, err = ParseSignal("bogus")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestEngagement_Total(t *testing.T) {
	e := Engagement{Thanks: 1, Likes: 2, Comments: 3, Collections: 4, Dislikes: 5, Reports: 6, Helpless: 7}
	assert.Equal(t, int64(28), e.Total())
	assert.Equal(t, int64(0), Engagement{}.Total())
}

func TestEngagement_Get(t *testing.T) {
	e := Engagement{Thanks: 10, Likes: 20, Helpless: 30}
	assert.Equal(t, int64(10), e.Get(SignalThanks))
	assert.Equal(t, int64(20), e.Get(SignalLikes))
	assert.Equal(t, int64(30), e.Get(SignalHelpless))
	assert.Equal(t, int64(0), e.Get(SignalDislikes))
	assert.Equal(t, int64(60), e.Get(SignalTotalEngagement))
	assert.Equal(t, int64(0), e.Get(Signal("bogus")))
}

func TestEngagement_Add(t *testing.T) {
	a := Engagement{Thanks: 1, Likes: 10}
	b := Engagement{Thanks: 2, Comments: 5}

	sum := a.Add(b)
	assert.Equal(t, Engagement{Thanks: 3, Likes: 10, Comments: 5}, sum)
	// Add never mutates the receiver.
	assert.Equal(t, Engagement{Thanks: 1, Likes: 10}, a)
}

func TestEngagement_Validate(t *testing.T) {
	assert.NoError(t, Engagement{}.Validate())
	assert.NoError(t, Engagement{Likes: 100}.Validate())

	err := Engagement{Reports: -1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports_count")
}

func TestNewAnswer_Valid(t *testing.T) {
	a, err := NewAnswer("a1", "q1", "5 17 5", Engagement{Likes: 3})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "q1", a.QuestionID)
	assert.Equal(t, "5 17 5", a.RawTokens)
	assert.Equal(t, int64(3), a.Engagement.Likes)
}

func TestNewAnswer_TrimsIdentifiers(t *testing.T) {
	a, err := NewAnswer("  a1 ", "\tq1\n", "", Engagement{})
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "q1", a.QuestionID)
}

func TestNewAnswer_EmptyID(t *testing.T) {
	_, err := NewAnswer("", "q1", "", Engagement{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestNewAnswer_EmptyQuestionID(t *testing.T) {
	_, err := NewAnswer("a1", "   ", "", Engagement{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question id")
}

func TestNewAnswer_NegativeEngagement(t *testing.T) {
	_, err := NewAnswer("a1", "q1", "", Engagement{Dislikes: -5})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestAnswer_HasTokenField(t *testing.T) {
	a := &Answer{RawTokens: "1 2 3"}
	assert.True(t, a.HasTokenField())

	assert.False(t, (&Answer{RawTokens: ""}).HasTokenField())
	assert.False(t, (&Answer{RawTokens: "   \t "}).HasTokenField())
}
