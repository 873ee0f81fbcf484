package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpVectorQuery, 10*time.Millisecond)
	c.RecordTiming(OpVectorQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	op, ok := snap.Operations[OpVectorQuery]
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(40), op.TotalTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.001)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
}

func TestTimePropagatesError(t *testing.T) {
	c := NewCollector()

	sentinel := errors.New("backend down")
	err := c.Time(OpEmbedding, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	// The failed call is still counted.
	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Operations[OpEmbedding].Count)
}

func TestSnapshotEmpty(t *testing.T) {
	c := NewCollector()

	snap := c.Snapshot()
	assert.Empty(t, snap.Operations)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
