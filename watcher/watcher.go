package watcher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nomad-xyz/agents/agent"
	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/db"
	"github.com/nomad-xyz/agents/metrics"
)

// updateChannelCapacity is the shared update channel's capacity (§4.F):
// watchers block on a full channel, which is desired backpressure that
// ultimately slows polling.
const updateChannelCapacity = 200

// Settings configures a Watcher (§6's per-agent AgentConfig.watcher
// section, reduced to what the detector itself needs).
type Settings struct {
	Home               chain.Home
	Replicas           map[string]chain.Replica
	ConnectionManagers map[string]chain.ConnectionManager
	Store              *db.Store
	Metrics            *metrics.Metrics

	AttestationKey *ecdsa.PrivateKey
	Updater        core.Address

	PollInterval          time.Duration
	HistorySyncInterval   time.Duration
	ImproperUpdateInterval time.Duration
}

// Watcher is the fraud detector: one per home. It owns two task tables --
// sync_tasks (the per-replica ContractWatcher/HistorySync pairs) and
// watch_tasks (the single UpdateHandler and ImproperUpdateWatcher) --
// mirroring the original's two-collection split. RunAll races the tasks of
// both tables together in one race.
type Watcher struct {
	settings Settings

	mu         sync.RWMutex
	syncTasks  map[string]agent.Task
	watchTasks map[string]agent.Task

	updateChan chan core.SignedUpdate
}

// FromSettings builds a Watcher ready to run. It does not start any task.
func FromSettings(s Settings) (*Watcher, error) {
	w := &Watcher{
		settings:   s,
		syncTasks:  make(map[string]agent.Task),
		watchTasks: make(map[string]agent.Task),
		updateChan: make(chan core.SignedUpdate, updateChannelCapacity),
	}
	for name, replica := range s.Replicas {
		if err := w.buildSyncTasksFor(name, replica); err != nil {
			return nil, err
		}
	}
	w.watchTasks["update_handler"] = agent.Task{
		Name: "update_handler",
		Run: (&UpdateHandler{
			Home:      s.Home,
			Updater:   s.Updater,
			Store:     s.Store,
			In:        w.updateChan,
			OnChecked: w.recordUpdateInspected,
		}).Run,
	}
	w.watchTasks["improper_update_watcher"] = agent.Task{
		Name: "improper_update_watcher",
		Run: (&ImproperUpdateWatcher{
			Home:     s.Home,
			Interval: s.ImproperUpdateInterval,
		}).Run,
	}
	return w, nil
}

// BuildChannel returns the correlation name used for a replica's sync
// tasks, matching the teacher's per-subsystem naming convention.
func (w *Watcher) BuildChannel(replicaName string) string {
	return fmt.Sprintf("%s/%s", w.settings.Home.Name(), replicaName)
}

func (w *Watcher) buildSyncTasksFor(replicaName string, replica chain.Replica) error {
	root, err := replica.CommittedRoot(context.Background())
	if err != nil {
		return &core.ChainCommunicationError{Chain: replicaName, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncTasks["contract_watcher_"+replicaName] = agent.Task{
		Name: "contract_watcher_" + replicaName,
		Run: (&ContractWatcher{
			Home:         w.settings.Home,
			PollInterval: w.settings.PollInterval,
			Cursor:       root,
			Out:          w.updateChan,
		}).Run,
	}
	w.syncTasks["history_sync_"+replicaName] = agent.Task{
		Name: "history_sync_" + replicaName,
		Run: (&HistorySync{
			Home:             w.settings.Home,
			Interval:         w.settings.HistorySyncInterval,
			Cursor:           root,
			Out:              w.updateChan,
			UpdatesInspected: w.recordUpdateInspected,
		}).Run,
	}
	return nil
}

func (w *Watcher) recordUpdateInspected() {
	if w.settings.Metrics == nil {
		return
	}
	w.settings.Metrics.UpdatesInspectedForDouble.WithLabelValues(
		w.settings.Home.Name(), "true", "watcher",
	).Inc()
}

// Run runs a single replica's sync tasks (ContractWatcher + HistorySync)
// under first-failure-wins, satisfying the generic Agent.Run shape even
// though the watcher's own RunAll below does not use it directly.
func (w *Watcher) Run(ctx context.Context, replicaName string) error {
	w.mu.RLock()
	tasks := []agent.Task{
		w.syncTasks["contract_watcher_"+replicaName],
		w.syncTasks["history_sync_"+replicaName],
	}
	w.mu.RUnlock()
	return agent.RunAll(ctx, tasks...)
}

// RunMany runs Run for every given replica.
func (w *Watcher) RunMany(ctx context.Context, replicaNames []string) error {
	tasks := make([]agent.Task, 0, len(replicaNames))
	for _, name := range replicaNames {
		name := name
		tasks = append(tasks, agent.Task{
			Name: "replica_" + name,
			Run:  func(ctx context.Context) error { return w.Run(ctx, name) },
		})
	}
	return agent.RunAll(ctx, tasks...)
}

// RunAll overrides the generic per-replica topology (§4.G): the watcher's
// sync_tasks and watch_tasks race under "first-to-complete-wins", because
// any one of them finishing -- a history sync exhausting, an improper
// update firing, a double update firing, or a plain task error -- ends the
// whole detector one way or another.
func (w *Watcher) RunAll(ctx context.Context) error {
	w.mu.RLock()
	tasks := make([]agent.Task, 0, len(w.syncTasks)+len(w.watchTasks))
	for _, t := range w.syncTasks {
		tasks = append(tasks, t)
	}
	for _, t := range w.watchTasks {
		tasks = append(tasks, t)
	}
	w.mu.RUnlock()

	outcome := agent.RaceAll(ctx, tasks...)
	return w.respond(ctx, outcome)
}

// respond implements the response orchestration of §4.F: a DoubleUpdate
// triggers double_update submissions plus a broadcast; a FailedHomeError
// skips straight to the broadcast; a SyncExhaustedError is normal
// termination; anything else is a plain failure.
func (w *Watcher) respond(ctx context.Context, outcome agent.Outcome) error {
	var double *core.DoubleUpdate
	if errors.As(outcome.Err, &double) {
		log.Errorf("task %q detected a double update: %v", outcome.TaskName, double)
		if err := w.handleDoubleUpdateFailure(ctx, double); err != nil {
			log.Errorf("error while responding to double update: %v", err)
		}
		return double
	}

	var failedHome *core.FailedHomeError
	if errors.As(outcome.Err, &failedHome) {
		log.Errorf("task %q observed a failed home: %v", outcome.TaskName, failedHome)
		if err := w.handleImproperUpdateFailure(ctx); err != nil {
			log.Errorf("error while responding to improper update: %v", err)
		}
		return failedHome
	}

	var exhausted *core.SyncExhaustedError
	if errors.As(outcome.Err, &exhausted) {
		log.Infof("task %q finished normally (sync exhausted)", outcome.TaskName)
		return nil
	}

	if outcome.Err != nil {
		log.Errorf("task %q failed: %v", outcome.TaskName, outcome.Err)
	}
	return outcome.Err
}
