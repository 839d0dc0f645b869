// Package agent implements the shared agent lifecycle: from_settings,
// build_channel, run, run_many, and the two run_all race disciplines every
// agent is built from. The lifecycle itself borrows the teacher's
// atomic-CompareAndSwap start/stop guard and quit-channel-plus-WaitGroup
// shutdown idiom (see breacharbiter.go's Start/Stop); the racing
// disciplines are new, grounded on §4.F/§4.G/§5 of the specification.
package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by agent.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Task is one named, cancellable unit of supervised work. It must return
// promptly once ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunAll races tasks under "first-failure-wins": every task runs until it
// either finishes normally (nil error, e.g. HistorySync exhaustion) or
// returns an error. The first error cancels the shared context; RunAll
// waits for every task to observe the cancellation and return, then
// reports the first error (nil if every task finished normally). This is
// the default run_all described in §4.G.
func RunAll(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			err := t.Run(gctx)
			if err != nil {
				log.Errorf("task %q failed: %v", t.Name, err)
			}
			return err
		})
	}
	return g.Wait()
}

// Outcome is the result reported by RaceAll: which task completed first
// and what it returned.
type Outcome struct {
	TaskName string
	Err      error
}

// RaceAll races tasks under "first-to-complete-wins", used by the fraud
// detector's run_all override (§4.F): its topology is not per-replica, and
// any task completing at all -- whether with a distinguished normal
// value, a DoubleUpdate, a FailedHome, or a plain error -- ends the race
// and must cancel every other task. Unlike RunAll, a nil-error completion
// still stops the group.
func RaceAll(ctx context.Context, tasks ...Task) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Outcome, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := t.Run(ctx)
			select {
			case results <- Outcome{TaskName: t.Name, Err: err}:
			case <-ctx.Done():
			}
		}()
	}

	first := <-results
	cancel()
	wg.Wait()
	return first
}

// RestartPolicy bounds how Restartable retries a non-fatal task exit:
// fixed backoff between attempts, tripping the whole agent once Ceiling
// consecutive restarts have been exhausted.
type RestartPolicy struct {
	Backoff time.Duration
	Ceiling int
}

// DefaultRestartPolicy is a conservative restart policy: five attempts,
// one second apart.
var DefaultRestartPolicy = RestartPolicy{Backoff: time.Second, Ceiling: 5}

// Restartable wraps a task so that any non-fatal exit (err != nil) is
// retried under policy, up to its restart ceiling, at which point the
// last error is returned and the owning supervisor's race trips. A nil
// error (normal completion) is never restarted.
func Restartable(name string, policy RestartPolicy, run func(ctx context.Context) error) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context) error {
			var lastErr error
			for attempt := 0; attempt <= policy.Ceiling; attempt++ {
				if attempt > 0 {
					log.Warnf("restarting task %q (attempt %d/%d) after: %v", name, attempt, policy.Ceiling, lastErr)
					select {
					case <-time.After(policy.Backoff):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				err := run(ctx)
				if err == nil {
					return nil
				}
				lastErr = err
				if ctx.Err() != nil {
					return err
				}
			}
			return lastErr
		},
	}
}

// InstanceID is a per-task correlation id used in supervisor logs,
// grounded on the pack's widespread use of google/uuid for run
// correlation.
func InstanceID() string {
	return uuid.NewString()
}

// Lifecycle is the embeddable start/stop guard every agent uses, mirroring
// breacharbiter's atomic.CompareAndSwapUint32 started/stopped pattern plus
// a quit channel and WaitGroup for goroutine teardown.
type Lifecycle struct {
	started uint32
	stopped uint32

	Quit chan struct{}
	wg   sync.WaitGroup
}

// NewLifecycle returns a zero-value-safe Lifecycle with Quit initialized.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{Quit: make(chan struct{})}
}

// Start marks the lifecycle started, returning false if it was already
// started. Idempotent under concurrent callers via CompareAndSwap.
func (l *Lifecycle) Start() bool {
	return atomic.CompareAndSwapUint32(&l.started, 0, 1)
}

// Stop closes Quit exactly once and waits for every goroutine registered
// via Go to return. Returns false if it was already stopped.
func (l *Lifecycle) Stop() bool {
	if !atomic.CompareAndSwapUint32(&l.stopped, 0, 1) {
		return false
	}
	close(l.Quit)
	l.wg.Wait()
	return true
}

// Go runs fn in a goroutine tracked by the lifecycle's WaitGroup, so Stop
// can wait for it to exit.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}
