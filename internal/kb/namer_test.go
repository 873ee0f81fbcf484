package kb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionNameDeterminism(t *testing.T) {
	first, err := CollectionName(4, 5)
	require.NoError(t, err)

	second, err := CollectionName(4, 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "kb_job_4_ds_5", first)
}

func TestCollectionNameNoCollisions(t *testing.T) {
	seen := make(map[string]string)
	for job := int64(1); job <= 50; job++ {
		for ds := int64(1); ds <= 50; ds++ {
			name, err := CollectionName(job, ds)
			require.NoError(t, err)

			pair := fmt.Sprintf("%d/%d", job, ds)
			if prev, ok := seen[name]; ok {
				t.Fatalf("collision: %s produced by both %s and %s", name, prev, pair)
			}
			seen[name] = pair
		}
	}
}

// The separator matters: (1, 11) and (11, 1) must not collide with any
// concatenation of adjacent digits.
func TestCollectionNameAmbiguousIDs(t *testing.T) {
	a, err := CollectionName(1, 11)
	require.NoError(t, err)
	b, err := CollectionName(11, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCollectionNameInvalidArguments(t *testing.T) {
	cases := []struct {
		name      string
		jobID     int64
		datasetID int64
	}{
		{"zero job", 0, 5},
		{"negative job", -1, 5},
		{"zero dataset", 4, 0},
		{"negative dataset", 4, -7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CollectionName(tc.jobID, tc.datasetID)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}
