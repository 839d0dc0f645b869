package agent

import "context"

// Agent is the shape every concrete agent (watcher, monitor, and in
// principle the out-of-scope relayer/updater/processor/kathy bodies)
// implements: construct from settings, build a per-replica channel, run a
// single replica, run every replica, and run the whole agent.
type Agent interface {
	// BuildChannel returns a name used to correlate this replica's tasks
	// in logs and metrics; agents that are not per-replica (the watcher)
	// may ignore the replica name.
	BuildChannel(replicaName string) string

	// Run runs the tasks for a single named replica until ctx is done or
	// a task fails.
	Run(ctx context.Context, replicaName string) error

	// RunMany runs Run for every given replica under RunAll's
	// first-failure-wins discipline.
	RunMany(ctx context.Context, replicaNames []string) error

	// RunAll runs the agent's full topology (home sync, per-replica sync,
	// RunMany) under its chosen race discipline.
	RunAll(ctx context.Context) error
}
