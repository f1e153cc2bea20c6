package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireIdle(context.Context) (int, error) {
	e.calls.Add(1)
	return 2, e.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce(t *testing.T) {
	expirer := &countingExpirer{}
	New(expirer, "@every 1m", discard()).RunOnce()
	assert.Equal(t, int32(1), expirer.calls.Load())

	failing := &countingExpirer{err: errors.New("store down")}
	New(failing, "@every 1m", discard()).RunOnce()
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	err := New(&countingExpirer{}, "every minute", discard()).Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every minute")
}

func TestStartRunsOnSchedule(t *testing.T) {
	expirer := &countingExpirer{}
	s := New(expirer, "@every 1s", discard())
	require.NoError(t, s.Start())
	defer func() { <-s.Stop().Done() }()

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
