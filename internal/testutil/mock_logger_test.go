package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
)

func TestMockLogger_RecordsEntries(t *testing.T) {
	l := NewMockLogger()

	l.Info("run finished", logging.String("run_id", "run-1"))
	l.Warn("sink degraded")

	entries := l.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "run finished", entries[0].Message)
	assert.True(t, l.Has("warn", "degraded"))
	assert.False(t, l.Has("error", "degraded"))

	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestMockLogger_ChildrenShareRecorder(t *testing.T) {
	l := NewMockLogger()
	l.Named("pipeline").With(logging.Int("n", 1)).Info("stage done")
	assert.True(t, l.Has("info", "stage done"))
}
