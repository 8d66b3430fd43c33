package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmstay/internal/availability"
)

type countingRefresher struct {
	calls    int32
	deadline bool
}

func (c *countingRefresher) Refresh(ctx context.Context) availability.Snapshot {
	atomic.AddInt32(&c.calls, 1)
	_, c.deadline = ctx.Deadline()
	return availability.Snapshot{}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(context.Background(), "every now and then", time.UTC, time.Second, &countingRefresher{})
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	r := &countingRefresher{}
	s, err := New(context.Background(), "*/15 * * * *", time.UTC, time.Second, r)
	require.NoError(t, err)

	s.RunNow()

	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	assert.True(t, r.deadline)
}

func TestStartSchedulesNextRun(t *testing.T) {
	s, err := New(context.Background(), "*/15 * * * *", time.UTC, time.Second, &countingRefresher{})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	next := s.Next()
	require.False(t, next.IsZero())
	assert.True(t, next.After(time.Now().Add(-time.Second)))
	assert.LessOrEqual(t, time.Until(next), 15*time.Minute)
	assert.Equal(t, 0, next.Minute()%15)
}
