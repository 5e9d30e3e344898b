package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(cancel)
	return l
}

func TestLoop_RunsPostedFuncsInOrder(t *testing.T) {
	l := startLoop(t)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.Post(func() { got = append(got, i) }))
	}
	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() { snapshot = append(snapshot, got...) }))
	require.Equal(t, []int{0, 1, 2, 3, 4}, snapshot)
}

func TestLoop_DoAfterStop(t *testing.T) {
	l := startLoop(t)
	l.Stop()
	<-l.Done()
	err := l.Do(context.Background(), func() {})
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, l.Post(func() {}), ErrStopped)
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	l := startLoop(t)
	require.NoError(t, l.Do(context.Background(), func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	require.True(t, ran)
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := NewLoop(1) // never started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Post(func() {})) // fill the queue
	err := l.Do(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDebouncer_LastScheduleWins(t *testing.T) {
	l := startLoop(t)
	d := NewDebouncer(l)
	var first, second atomic.Int32
	d.Schedule(30*time.Millisecond, func(context.Context) { first.Add(1) })
	d.Schedule(30*time.Millisecond, func(context.Context) { second.Add(1) })
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), first.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	l := startLoop(t)
	d := NewDebouncer(l)
	var ran atomic.Bool
	d.Schedule(20*time.Millisecond, func(context.Context) { ran.Store(true) })
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestDebouncer_ContextCancelledAfterRun(t *testing.T) {
	l := startLoop(t)
	d := NewDebouncer(l)
	got := make(chan context.Context, 1)
	errAtRun := make(chan error, 1)
	d.Schedule(0, func(ctx context.Context) {
		errAtRun <- ctx.Err()
		got <- ctx
	})
	select {
	case ctx := <-got:
		require.NoError(t, <-errAtRun)
		require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, time.Millisecond)
	case <-time.After(time.Second):
		t.Fatalf("debounced func never ran")
	}
}
