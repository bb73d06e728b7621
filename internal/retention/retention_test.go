package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (p *recordingPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 3, p.err
}

func TestPruneAuditLog_UsesCutoff(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	p := &recordingPruner{}

	deleted, err := PruneAuditLog(context.Background(), p, now, 30)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)
	require.Equal(t, time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC), p.cutoff)
}

func TestPruneAuditLog_RejectsNonPositiveDays(t *testing.T) {
	p := &recordingPruner{}
	_, err := PruneAuditLog(context.Background(), p, time.Now(), 0)
	require.Error(t, err)
	require.Zero(t, p.calls)
}

func TestRunRetentionJob_PropagatesFailure(t *testing.T) {
	p := &recordingPruner{err: errors.New("db down")}
	err := RunRetentionJob(context.Background(), p, 7)
	require.Error(t, err)
	require.Contains(t, err.Error(), "db down")
}

func TestNewScheduler(t *testing.T) {
	p := &recordingPruner{}

	c, err := NewScheduler("0 3 * * *", p, 30)
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	_, err = NewScheduler("not a schedule", p, 30)
	require.Error(t, err)
}
