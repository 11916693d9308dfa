// Package embedding provides the token-embedding lookup table and the answer
// vectorization stage of the controversy pipeline.  The table is built once
// from ingested data and is immutable and safe for concurrent reads
// afterwards.
package embedding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// Lookup resolves a token identifier to its embedding vector.  Implementations
// must be safe for concurrent use; the pipeline shares one lookup across all
// scoring workers.
type Lookup interface {
	// Vector returns the embedding for tokenID and whether it exists.
	// Callers must not modify the returned slice.
	Vector(tokenID int64) ([]float32, bool)
	// Dim returns the fixed embedding dimension.
	Dim() int
}

// Table is the in-memory token-embedding lookup.  Every stored vector has the
// same dimension, established by the first inserted row.
type Table struct {
	dim     int
	vectors map[int64][]float32
}

// Vector implements Lookup.
func (t *Table) Vector(tokenID int64) ([]float32, bool) {
	v, ok := t.vectors[tokenID]
	return v, ok
}

// Dim implements Lookup.
func (t *Table) Dim() int { return t.dim }

// Len returns the number of distinct tokens in the table.
func (t *Table) Len() int { return len(t.vectors) }

// TableBuilder accumulates token rows and enforces the table invariants:
// one vector per token, uniform non-zero dimension.
type TableBuilder struct {
	dim     int
	vectors map[int64][]float32
}

// NewTableBuilder constructs an empty TableBuilder.
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{vectors: make(map[int64][]float32)}
}

// Add inserts one token row.  The first row fixes the table dimension; any
// later row with a different length is rejected with ErrCodeDimensionMismatch.
// Re-adding an existing token is rejected with ErrCodeDuplicateToken.
func (b *TableBuilder) Add(tokenID int64, vector []float32) error {
	if len(vector) == 0 {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("token %d has an empty embedding", tokenID))
	}
	if b.dim == 0 {
		b.dim = len(vector)
	} else if len(vector) != b.dim {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("token %d has dimension %d, table dimension is %d", tokenID, len(vector), b.dim))
	}
	if _, exists := b.vectors[tokenID]; exists {
		return errors.New(errors.ErrCodeDuplicateToken,
			fmt.Sprintf("token %d already present in the table", tokenID))
	}

	// Copy so later mutation of the caller's slice cannot corrupt the table.
	v := make([]float32, len(vector))
	copy(v, vector)
	b.vectors[tokenID] = v
	return nil
}

// Len returns the number of rows added so far.
func (b *TableBuilder) Len() int { return len(b.vectors) }

// Build finalizes the table.  An empty table is an error: a pipeline run
// without any embeddings cannot vectorize anything.
func (b *TableBuilder) Build() (*Table, error) {
	if len(b.vectors) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyEmbeddingTable, "embedding table has no rows")
	}
	return &Table{dim: b.dim, vectors: b.vectors}, nil
}

// ParseVector parses a whitespace-delimited embedding field into a vector.
// Any element that is not a finite decimal number fails the whole parse;
// a blank field is an error because an embedding row without values is
// malformed by definition.
func ParseVector(raw string) ([]float32, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrCodeMalformedRow, "embedding field is empty")
	}

	vec := make([]float32, 0, len(fields))
	for i, f := range fields {
		val, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, errors.New(errors.ErrCodeMalformedRow,
				fmt.Sprintf("embedding element %d (%q) is not a number", i, f))
		}
		vec = append(vec, float32(val))
	}
	return vec, nil
}
