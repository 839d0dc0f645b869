package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunAllReturnsNilWhenEveryTaskFinishesNormally(t *testing.T) {
	err := RunAll(context.Background(),
		Task{Name: "a", Run: func(ctx context.Context) error { return nil }},
		Task{Name: "b", Run: func(ctx context.Context) error { return nil }},
	)
	require.NoError(t, err)
}

func TestRunAllCancelsSiblingsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	cancelled := make(chan struct{})

	err := RunAll(context.Background(),
		Task{Name: "fails", Run: func(ctx context.Context) error { return boom }},
		Task{Name: "waits", Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}},
	)
	require.ErrorIs(t, err, boom)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("sibling task was never cancelled")
	}
}

func TestRaceAllEndsOnFirstCompletionEvenIfNil(t *testing.T) {
	cancelled := make(chan struct{})

	out := RaceAll(context.Background(),
		Task{Name: "sync-exhausted", Run: func(ctx context.Context) error { return nil }},
		Task{Name: "poller", Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}},
	)
	require.Equal(t, "sync-exhausted", out.TaskName)
	require.NoError(t, out.Err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("sibling task was never cancelled after the race ended")
	}
}

func TestRestartableRetriesUntilCeiling(t *testing.T) {
	attempts := 0
	boom := errors.New("transient")
	task := Restartable("flaky", RestartPolicy{Backoff: time.Millisecond, Ceiling: 3}, func(ctx context.Context) error {
		attempts++
		return boom
	})

	err := task.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 4, attempts) // initial attempt + 3 retries
}

func TestRestartableStopsOnNilReturn(t *testing.T) {
	attempts := 0
	task := Restartable("flaky", RestartPolicy{Backoff: time.Millisecond, Ceiling: 3}, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			return nil
		}
		return errors.New("transient")
	})

	err := task.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestLifecycleStartStopIdempotent(t *testing.T) {
	l := NewLifecycle()
	require.True(t, l.Start())
	require.False(t, l.Start())

	ran := make(chan struct{})
	l.Go(func() {
		<-l.Quit
		close(ran)
	})

	require.True(t, l.Stop())
	require.False(t, l.Stop())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine registered via Go was never released by Stop")
	}
}
