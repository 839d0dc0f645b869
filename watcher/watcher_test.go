package watcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/db"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(filepath.Join(t.TempDir(), "watcher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// S1: double-update detection. Update1/Update2 signed by k populate the
// store; Update3 (same previous root as Update2, different new root, same
// signer k) must come back as DoubleUpdate(Update2, Update3).
func TestCheckDoubleUpdateDetectsDoubleUpdate(t *testing.T) {
	store := openTestStore(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	u1, err := core.SignUpdate(key, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x11}, NewRoot: core.Root{0x22}})
	require.NoError(t, err)
	u2, err := core.SignUpdate(key, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x22}, NewRoot: core.Root{0x33}})
	require.NoError(t, err)
	u3, err := core.SignUpdate(key, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x22}, NewRoot: core.Root{0x44}})
	require.NoError(t, err)

	d, err := CheckDoubleUpdate(store, u1)
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = CheckDoubleUpdate(store, u2)
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = CheckDoubleUpdate(store, u3)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, u2, d.First)
	require.Equal(t, u3, d.Second)
}

// S2: signer rotation is not a double update.
func TestCheckDoubleUpdateIgnoresSignerRotation(t *testing.T) {
	store := openTestStore(t)
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	kPrime, err := crypto.GenerateKey()
	require.NoError(t, err)

	u2, err := core.SignUpdate(k, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x22}, NewRoot: core.Root{0x33}})
	require.NoError(t, err)
	u3, err := core.SignUpdate(kPrime, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x22}, NewRoot: core.Root{0x44}})
	require.NoError(t, err)

	_, err = CheckDoubleUpdate(store, u2)
	require.NoError(t, err)

	d, err := CheckDoubleUpdate(store, u3)
	require.NoError(t, err)
	require.Nil(t, d)
}

// S6: history-sync termination. Store holds two updates; starting from
// the newest root, the first call emits the newer update and advances,
// the second call emits the older update and reports done.
func TestHistorySyncTerminatesAtZeroRoot(t *testing.T) {
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	u1, err := core.SignUpdate(k, core.Update{PreviousRoot: core.Root{0x00}, NewRoot: core.Root{0x01}})
	require.NoError(t, err)
	u2, err := core.SignUpdate(k, core.Update{PreviousRoot: core.Root{0x01}, NewRoot: core.Root{0x02}})
	require.NoError(t, err)

	home := chain.NewMockHome("home", 1)
	byNewRoot := map[core.Root]core.SignedUpdate{
		u1.Update.NewRoot: u1,
		u2.Update.NewRoot: u2,
	}
	home.SignedUpdateByNewRootFunc = func(root core.Root) (*core.SignedUpdate, error) {
		su, ok := byNewRoot[root]
		if !ok {
			return nil, nil
		}
		return &su, nil
	}

	out := make(chan core.SignedUpdate, 2)
	hs := &HistorySync{Home: home, Cursor: u2.Update.NewRoot, Out: out}

	done, err := hs.updateHistory(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, u2, <-out)
	require.Equal(t, u1.Update.NewRoot, hs.Cursor)

	done, err = hs.updateHistory(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, u1, <-out)
}

// S3: improper-update response. A failed home plus two connection
// managers: unenroll_replica is invoked exactly once on each manager with
// the same signed failure notification.
func TestHandleImproperUpdateFailureBroadcastsOnce(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	updater := core.Address(crypto.PubkeyToAddress(key.PublicKey))

	home := chain.NewMockHome("home", 1)
	cm1 := chain.NewMockConnectionManager("cm1")
	cm2 := chain.NewMockConnectionManager("cm2")

	w := &Watcher{settings: Settings{
		Home:               home,
		ConnectionManagers: map[string]chain.ConnectionManager{"cm1": cm1, "cm2": cm2},
		AttestationKey:     key,
		Updater:            updater,
	}}

	require.NoError(t, w.handleImproperUpdateFailure(context.Background()))

	require.Equal(t, 1, cm1.CountUnenrollReplicaCalls())
	require.Equal(t, 1, cm2.CountUnenrollReplicaCalls())
	require.Equal(t, cm1.UnenrollReplicaCalls[0], cm2.UnenrollReplicaCalls[0])

	signer, err := cm1.UnenrollReplicaCalls[0].Signer()
	require.NoError(t, err)
	require.Equal(t, updater, signer)
}

// S4: double-update response broadcast. One home, two replicas, two
// connection managers: exactly one double_update call per contract (3
// total) and one unenroll_replica call per manager (2 total).
func TestHandleDoubleUpdateFailureBroadcastCounts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	updater := core.Address(crypto.PubkeyToAddress(key.PublicKey))

	home := chain.NewMockHome("home", 1)
	r1 := chain.NewMockReplica("r1", 2, 1)
	r2 := chain.NewMockReplica("r2", 3, 1)
	cm1 := chain.NewMockConnectionManager("cm1")
	cm2 := chain.NewMockConnectionManager("cm2")

	w := &Watcher{settings: Settings{
		Home:               home,
		Replicas:           map[string]chain.Replica{"r1": r1, "r2": r2},
		ConnectionManagers: map[string]chain.ConnectionManager{"cm1": cm1, "cm2": cm2},
		AttestationKey:     key,
		Updater:            updater,
	}}

	u1, err := core.SignUpdate(key, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x11}, NewRoot: core.Root{0x22}})
	require.NoError(t, err)
	u2, err := core.SignUpdate(key, core.Update{HomeDomain: 1, PreviousRoot: core.Root{0x11}, NewRoot: core.Root{0x33}})
	require.NoError(t, err)
	d := &core.DoubleUpdate{First: u1, Second: u2}

	require.NoError(t, w.handleDoubleUpdateFailure(context.Background(), d))

	require.Equal(t, 1, home.CountDoubleUpdateCalls())
	require.Equal(t, 1, r1.CountDoubleUpdateCalls())
	require.Equal(t, 1, r2.CountDoubleUpdateCalls())
	require.Equal(t, 1, cm1.CountUnenrollReplicaCalls())
	require.Equal(t, 1, cm2.CountUnenrollReplicaCalls())
}
