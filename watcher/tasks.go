// Package watcher implements the fraud detector: ContractWatcher and
// HistorySync pollers per replica, a single UpdateHandler that detects
// double updates, an ImproperUpdateWatcher, and the response orchestration
// that fires when either is detected. Grounded on the teacher's
// breacharbiter.go (poll chain state, detect byzantine behavior, broadcast
// a punitive transaction, persist enough state to survive a restart).
package watcher

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/db"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by watcher.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// ContractWatcher periodically polls home.SignedUpdateByOldRoot(cursor);
// while a newer update exists it advances cursor to that update's new
// root and sends the update to out. It terminates only on RPC error or a
// closed out channel (§4.F).
type ContractWatcher struct {
	Home         chain.Home
	PollInterval time.Duration
	Cursor       core.Root
	Out          chan<- core.SignedUpdate
}

func (w *ContractWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.pollAndSend(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollAndSend implements poll_and_send_update. Per §9's first Open
// Question, the cursor advances as soon as an update is observed, before
// confirming the send succeeded; this is preserved deliberately (a failed
// send means the channel is closing, i.e. the whole detector is shutting
// down anyway) rather than silently fixed.
func (w *ContractWatcher) pollAndSend(ctx context.Context) error {
	for {
		su, err := w.Home.SignedUpdateByOldRoot(ctx, w.Cursor)
		if err != nil {
			return &core.ChainCommunicationError{Chain: w.Home.Name(), Err: err}
		}
		if su == nil {
			return nil
		}
		w.Cursor = su.Update.NewRoot
		select {
		case w.Out <- *su:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HistorySync walks backward from Cursor via home.SignedUpdateByNewRoot,
// emitting each discovered update to Out, until previous_root is the zero
// root. It then returns a SyncExhaustedError wrapped as a distinguished
// normal-completion marker -- callers must treat this specific error as
// "done", not "failed" (§9's second supplemented note, §7's sync
// exhaustion policy).
type HistorySync struct {
	Home     chain.Home
	Interval time.Duration
	Cursor   core.Root
	Out      chan<- core.SignedUpdate

	// UpdatesInspected, if non-nil, is incremented once per emitted
	// historic update, mirroring the gauge the original increments (§9's
	// note that despite its name it is treated as a counter here).
	UpdatesInspected func()
}

func (h *HistorySync) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		done, err := h.updateHistory(ctx)
		if err != nil {
			return err
		}
		if done {
			return &core.SyncExhaustedError{}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// updateHistory emits one historic update per call, matching S6's
// call-by-call contract, and reports done=true once previous_root is zero.
func (h *HistorySync) updateHistory(ctx context.Context) (bool, error) {
	if h.Cursor.IsZero() {
		return true, nil
	}
	su, err := h.Home.SignedUpdateByNewRoot(ctx, h.Cursor)
	if err != nil {
		return false, &core.ChainCommunicationError{Chain: h.Home.Name(), Err: err}
	}
	if su == nil {
		return false, &core.ChainCommunicationError{Chain: h.Home.Name(), Err: errNoSuchUpdate{h.Cursor}}
	}
	select {
	case h.Out <- *su:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	if h.UpdatesInspected != nil {
		h.UpdatesInspected()
	}
	h.Cursor = su.Update.PreviousRoot
	return h.Cursor.IsZero(), nil
}

type errNoSuchUpdate struct{ root core.Root }

func (e errNoSuchUpdate) Error() string {
	return "no update found for new root " + e.root.String()
}

// ImproperUpdateWatcher polls home.State() every Interval; when it
// observes Failed it returns a FailedHomeError.
type ImproperUpdateWatcher struct {
	Home     chain.Home
	Interval time.Duration
}

func (i *ImproperUpdateWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.Interval)
	defer ticker.Stop()

	for {
		state, err := i.Home.State(ctx)
		if err != nil {
			return &core.ChainCommunicationError{Chain: i.Home.Name(), Err: err}
		}
		if state == core.ChainStateFailed {
			return &core.FailedHomeError{HomeDomain: i.Home.Domain()}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UpdateHandler is the single consumer of the shared update channel. For
// every incoming update it verifies the signer, best-effort pushes it to
// the home, and checks for a double update.
type UpdateHandler struct {
	Home    chain.Home
	Updater core.Address
	Store   *db.Store
	In      <-chan core.SignedUpdate

	// OnChecked, if non-nil, is called once per inspected update -- the
	// hook updates_inspected_for_double is recorded through.
	OnChecked func()
}

func (h *UpdateHandler) Run(ctx context.Context) error {
	for {
		select {
		case su, ok := <-h.In:
			if !ok {
				return &core.ChannelClosedError{What: "inbound update"}
			}
			if err := h.handle(ctx, su); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *UpdateHandler) handle(ctx context.Context, su core.SignedUpdate) error {
	signer, err := su.Signer()
	if err != nil || signer != h.Updater {
		return &core.MisconfiguredUpdaterError{HomeDomain: su.Update.HomeDomain, Expected: h.Updater, Got: signer}
	}

	committed, err := h.Home.CommittedRoot(ctx)
	if err != nil {
		return &core.ChainCommunicationError{Chain: h.Home.Name(), Err: err}
	}
	if su.Update.PreviousRoot == committed {
		if _, err := h.Home.Update(ctx, su); err != nil {
			log.Debugf("best-effort home.update reverted or failed, ignoring: %v", err)
		}
	}

	if h.OnChecked != nil {
		h.OnChecked()
	}

	double, err := CheckDoubleUpdate(h.Store, su)
	if err != nil {
		return err
	}
	if double != nil {
		return double
	}
	return nil
}

// CheckDoubleUpdate implements check_double_update (§4.F):
//   - look up the stored update extending su.Update.PreviousRoot;
//   - if absent, store su and report no double update;
//   - if present, recover both signers; if either fails to recover, the
//     update is unverifiable, not double;
//   - if both recover to the same signer and the new roots differ, report
//     a DoubleUpdate;
//   - otherwise, no double update.
func CheckDoubleUpdate(store *db.Store, su core.SignedUpdate) (*core.DoubleUpdate, error) {
	existing, ok, err := store.UpdateByPreviousRoot(su.Update.PreviousRoot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.StoreUpdate(su)
	}

	existingSigner, err := existing.Signer()
	if err != nil {
		log.Warnf("could not recover signer of stored update, treating as unverifiable: %v", err)
		return nil, nil
	}
	newSigner, err := su.Signer()
	if err != nil {
		log.Warnf("could not recover signer of incoming update, treating as unverifiable: %v", err)
		return nil, nil
	}
	if existingSigner != newSigner {
		return nil, nil
	}
	if existing.Update.NewRoot == su.Update.NewRoot {
		return nil, nil
	}
	return &core.DoubleUpdate{First: existing, Second: su}, nil
}
