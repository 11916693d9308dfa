package controversy

import (
	"github.com/turtacn/Controversy-Insight/internal/domain/embedding"
)

// QuestionIndex groups answer vectors by parent question with O(1) group
// retrieval.  It is built once per run and never mutated afterwards, so it is
// safe to share across scoring workers.
//
// Both the question order (first appearance) and the in-group answer order
// (input order) are preserved, which keeps every downstream traversal
// deterministic.
type QuestionIndex struct {
	order  []string
	groups map[string][]*embedding.AnswerVector
}

// BuildIndex constructs a QuestionIndex from vectors in a single pass.
func BuildIndex(vectors []*embedding.AnswerVector) *QuestionIndex {
	ix := &QuestionIndex{
		groups: make(map[string][]*embedding.AnswerVector),
	}
	for _, v := range vectors {
		if _, seen := ix.groups[v.QuestionID]; !seen {
			ix.order = append(ix.order, v.QuestionID)
		}
		ix.groups[v.QuestionID] = append(ix.groups[v.QuestionID], v)
	}
	return ix
}

// Group returns the vectors for one question in input order, or nil if the
// question has no vectorized answers.  Callers must not modify the slice.
func (ix *QuestionIndex) Group(questionID string) []*embedding.AnswerVector {
	return ix.groups[questionID]
}

// Questions returns all question identifiers in first-appearance order.
// Callers must not modify the slice.
func (ix *QuestionIndex) Questions() []string {
	return ix.order
}

// Len returns the number of distinct questions in the index.
func (ix *QuestionIndex) Len() int {
	return len(ix.groups)
}

// VectorCount returns the total number of indexed answer vectors.
func (ix *QuestionIndex) VectorCount() int {
	n := 0
	for _, g := range ix.groups {
		n += len(g)
	}
	return n
}
