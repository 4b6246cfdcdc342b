package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/parts/internal/detect"
)

func testReport(started time.Time, parts ...detect.Outcome) *detect.Report {
	return &detect.Report{
		Outcomes:  parts,
		StartedAt: started,
		Elapsed:   42 * time.Millisecond,
		Committed: true,
	}
}

func TestAppendAndRecent(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	id1, err := j.Append(ctx, testReport(base,
		detect.Outcome{Part: "src", Status: detect.StatusChanged, NewDigest: "abc"},
		detect.Outcome{Part: "docs", Status: detect.StatusUnchanged, NewDigest: "def"},
	))
	require.NoError(t, err)
	id2, err := j.Append(ctx, testReport(base.Add(time.Minute),
		detect.Outcome{Part: "src", Status: detect.StatusUnchanged, NewDigest: "abc"},
	))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, id2, runs[0].ID)
	assert.Equal(t, id1, runs[1].ID)

	assert.Equal(t, 1, runs[1].Changed)
	assert.Equal(t, 0, runs[1].Added)
	assert.True(t, runs[1].Committed)
	assert.Equal(t, 42*time.Millisecond, runs[1].Elapsed)

	require.Len(t, runs[1].Outcomes, 2)
	assert.Equal(t, "src", runs[1].Outcomes[0].Part)
	assert.Equal(t, detect.StatusChanged, runs[1].Outcomes[0].Status)
}

func TestRecentLimit(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		_, err := j.Append(ctx, testReport(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	runs, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestEmptyJournal(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
