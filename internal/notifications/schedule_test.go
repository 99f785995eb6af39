package notifications

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startScheduler(t *testing.T, s *Scheduler) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Start(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestScheduler_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := NewScheduler(time.Hour, 0, func(context.Context) (CycleResult, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return CycleResult{}, nil
	}, discardLogger())
	startScheduler(t, s)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run at start-up")
	}
}

func TestScheduler_TicksNeverOverlap(t *testing.T) {
	var running, maxRunning, runs atomic.Int32
	s := NewScheduler(5*time.Millisecond, 0, func(context.Context) (CycleResult, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
		return CycleResult{}, nil
	}, discardLogger())
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_PanicDoesNotStopLoop(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(5*time.Millisecond, 0, func(context.Context) (CycleResult, error) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return CycleResult{}, nil
	}, discardLogger())
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Status().Cycles >= 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_ErrorRecordedInStatus(t *testing.T) {
	s := NewScheduler(time.Hour, 0, func(context.Context) (CycleResult, error) {
		return CycleResult{}, errors.New("scan failed")
	}, discardLogger())
	startScheduler(t, s)

	require.Eventually(t, func() bool { return s.Status().Cycles == 1 }, time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Equal(t, "scan failed", st.LastError)
	assert.False(t, st.Running)
}

func TestScheduler_TriggerRunsExtraCycle(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(time.Hour, 0, func(context.Context) (CycleResult, error) {
		runs.Add(1)
		return CycleResult{}, nil
	}, discardLogger())
	startScheduler(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Trigger())
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	s := NewScheduler(time.Hour, 0, nil, discardLogger())
	assert.True(t, s.Trigger())
	assert.False(t, s.Trigger())
}

func TestScheduler_GraceLetsCycleFinish(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := NewScheduler(time.Hour, time.Second, func(ctx context.Context) (CycleResult, error) {
		close(started)
		select {
		case <-time.After(50 * time.Millisecond):
			finished.Store(true)
		case <-ctx.Done():
		}
		return CycleResult{}, nil
	}, discardLogger())

	cancel, done := startScheduler(t, s)
	<-started
	cancel()
	<-done
	assert.True(t, finished.Load())
}

func TestScheduler_StartTwice(t *testing.T) {
	s := NewScheduler(time.Hour, 0, func(context.Context) (CycleResult, error) { return CycleResult{}, nil }, discardLogger())
	startScheduler(t, s)
	require.Eventually(t, func() bool { return s.Status().Cycles == 1 }, time.Second, 5*time.Millisecond)
	assert.Error(t, s.Start(context.Background()))
}
