package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nomad.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSignedUpdate(home core.Domain, prev, next byte) core.SignedUpdate {
	su := core.SignedUpdate{
		Update: core.Update{
			HomeDomain:   home,
			PreviousRoot: core.Root{prev},
			NewRoot:      core.Root{next},
		},
	}
	su.Signature[64] = 27
	return su
}

// P1: after storing an update U, the previous-root and new-root indices
// agree with U (I1).
func TestStoreUpdateSatisfiesI1(t *testing.T) {
	s := openTestStore(t)
	su := mustSignedUpdate(1, 0x11, 0x22)

	require.NoError(t, s.StoreUpdatesAndMeta(core.SignedUpdateWithMeta{
		SignedUpdate: su,
		Meta:         core.Meta{BlockNumber: 10},
	}))

	got, ok, err := s.UpdateByPreviousRoot(su.Update.PreviousRoot)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, su, got)

	got2, ok, err := s.UpdateByNewRoot(su.Update.NewRoot)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, su, got2)
}

// P4/I4: storeLatestUpdate only advances the latest pointer when the new
// update's previous root matches the current latest root; an out-of-order
// update still gets its I1 mapping but does not move the pointer.
func TestStoreLatestUpdateRespectsI4(t *testing.T) {
	s := openTestStore(t)

	first := mustSignedUpdate(1, 0x00, 0x01)
	require.NoError(t, s.StoreUpdatesAndMeta(core.SignedUpdateWithMeta{SignedUpdate: first}))

	root, ok, err := s.RetrieveLatestRoot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.Update.NewRoot, root)

	// Out of order: previous root does not match current latest (0x01).
	outOfOrder := mustSignedUpdate(1, 0x05, 0x06)
	require.NoError(t, s.StoreUpdatesAndMeta(core.SignedUpdateWithMeta{SignedUpdate: outOfOrder}))

	root, ok, err = s.RetrieveLatestRoot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.Update.NewRoot, root, "latest root must not move for an out-of-order update")

	// But its I1 mapping is still present.
	got, ok, err := s.UpdateByPreviousRoot(outOfOrder.Update.PreviousRoot)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, outOfOrder, got)

	// In-order extension does move the pointer.
	next := mustSignedUpdate(1, 0x01, 0x02)
	require.NoError(t, s.StoreUpdatesAndMeta(core.SignedUpdateWithMeta{SignedUpdate: next}))
	root, ok, err = s.RetrieveLatestRoot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next.Update.NewRoot, root)
}

// P2: leaf indices stored strictly increasing from 0 update
// retrieve_latest_leaf_index each time; an out-of-order insert leaves it
// unchanged (I2, I3).
func TestLatestLeafIndexSatisfiesI2I3(t *testing.T) {
	s := openTestStore(t)

	msg := core.Message{Origin: 1, Destination: 2, Nonce: 0, Body: []byte("m0")}
	require.NoError(t, s.StoreRawCommittedMessage(core.RawCommittedMessage{
		LeafIndex: 0,
		Message:   msg.Encode(),
	}))
	idx, ok, err := s.RetrieveLatestLeafIndex()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, idx)

	// Out-of-order: skips index 1.
	msg2 := core.Message{Origin: 1, Destination: 2, Nonce: 2, Body: []byte("m2")}
	require.NoError(t, s.StoreRawCommittedMessage(core.RawCommittedMessage{
		LeafIndex: 2,
		Message:   msg2.Encode(),
	}))
	idx, ok, err = s.RetrieveLatestLeafIndex()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, idx, "latest leaf index must not advance past a gap")

	// leaf_ ‖ 2 is still written even though the pointer did not move.
	_, ok, err = s.LeafByLeafIndex(2)
	require.NoError(t, err)
	require.True(t, ok)

	// Now fill the gap.
	msg1 := core.Message{Origin: 1, Destination: 2, Nonce: 1, Body: []byte("m1")}
	require.NoError(t, s.StoreRawCommittedMessage(core.RawCommittedMessage{
		LeafIndex: 1,
		Message:   msg1.Encode(),
	}))
	idx, ok, err = s.RetrieveLatestLeafIndex()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, idx, "filling index 1 advances the pointer to 1, not 2")
}

func TestWaitForLeafTimesOut(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := s.WaitForLeaf(ctx, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForLeafReturnsOnceWritten(t *testing.T) {
	s := openTestStore(t)
	msg := core.Message{Origin: 1, Destination: 2, Body: []byte("x")}
	want := core.HashLeaf(msg)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.StoreRawCommittedMessage(core.RawCommittedMessage{LeafIndex: 0, Message: msg.Encode()})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := s.WaitForLeaf(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// coreFixture mirrors the {home:{proxy}, replicas: map[name]{proxy}}
// shape used by the integrity check's original test fixture.
type coreFixture struct {
	Home     proxyFixture            `json:"home"`
	Replicas map[string]proxyFixture `json:"replicas"`
}

type proxyFixture struct {
	Proxy string `json:"proxy"`
}

// P7: check_core_integrity(name, x); check_core_integrity(name, y)
// succeeds iff x == y.
func TestCheckCoreIntegrityWriteOnceCompare(t *testing.T) {
	s := openTestStore(t)

	fixture := coreFixture{
		Home: proxyFixture{Proxy: "0x1111111111111111111111111111111111111111"},
		Replicas: map[string]proxyFixture{
			"evmos": {Proxy: "0x2222222222222222222222222222222222222222"},
		},
	}

	require.NoError(t, s.CheckCoreIntegrity("evmos_core", fixture))
	// Same content again: succeeds (idempotent).
	require.NoError(t, s.CheckCoreIntegrity("evmos_core", fixture))

	different := fixture
	different.Home.Proxy = "0x3333333333333333333333333333333333333333"
	err := s.CheckCoreIntegrity("evmos_core", different)
	require.ErrorIs(t, err, ErrIntegrityMismatch)
}

func TestProofRoundTrip(t *testing.T) {
	s := openTestStore(t)
	var p core.MerkleProof
	p.Index = 4
	p.Leaf[0] = 0xAB
	p.Path[0][0] = 0xCD

	require.NoError(t, s.StoreProof(p))
	got, ok, err := s.ProofByLeafIndex(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p, got)
}

func TestPreviouslyAttempted(t *testing.T) {
	s := openTestStore(t)
	var leaf core.Leaf
	leaf[0] = 1

	attempted, err := s.PreviouslyAttempted(leaf)
	require.NoError(t, err)
	require.False(t, attempted)

	require.NoError(t, s.SetPreviouslyAttempted(leaf))

	attempted, err = s.PreviouslyAttempted(leaf)
	require.NoError(t, err)
	require.True(t, attempted)
}
