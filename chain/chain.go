// Package chain defines the chain abstraction: the uniform read and write
// capability sets every home, replica, and connection manager exposes
// regardless of the underlying chain family. Real RPC bindings are an
// external collaborator (see spec §1's Non-goals); this package only
// defines the capability surface and a closed enum over chain families, so
// that the fraud detector, the caching contract, and the observer pipeline
// can all be written and tested against it without a live chain.
package chain

import (
	"context"

	"github.com/nomad-xyz/agents/core"
)

// TxOutcome is the result of a write operation. A nil Err with a non-empty
// TxHash means the transaction was included in a finalized-enough block.
type TxOutcome struct {
	TxHash string
	Err    error
}

// Common is the capability set every home, replica, and connection-manager
// exposes.
type Common interface {
	Name() string
	Domain() core.Domain
	State(ctx context.Context) (core.ChainState, error)
	CommittedRoot(ctx context.Context) (core.Root, error)
	Updater(ctx context.Context) (core.Address, error)
	Update(ctx context.Context, su core.SignedUpdate) (TxOutcome, error)
	DoubleUpdate(ctx context.Context, d core.DoubleUpdate) (TxOutcome, error)
}

// Home is the capability set a home contract exposes beyond Common.
type Home interface {
	Common
	LocalDomain() core.Domain
	Nonces(ctx context.Context, destination core.Domain) (uint32, error)
	QueueContains(ctx context.Context, root core.Root) (bool, error)
	ProduceUpdate(ctx context.Context) (*core.Update, error)
	Dispatch(ctx context.Context, m core.Message) (TxOutcome, error)
	ImproperUpdate(ctx context.Context, su core.SignedUpdate) (TxOutcome, error)
	SignedUpdateByOldRoot(ctx context.Context, oldRoot core.Root) (*core.SignedUpdate, error)
	SignedUpdateByNewRoot(ctx context.Context, newRoot core.Root) (*core.SignedUpdate, error)
}

// Replica is the capability set a replica contract exposes beyond Common.
type Replica interface {
	Common
	RemoteDomain() core.Domain
	Prove(ctx context.Context, p core.MerkleProof) (TxOutcome, error)
	Process(ctx context.Context, message []byte) (TxOutcome, error)
	ProveAndProcess(ctx context.Context, message []byte, p core.MerkleProof) (TxOutcome, error)
	MessageStatus(ctx context.Context, leaf core.Leaf) (core.MessageStatus, error)
	AcceptableRoot(ctx context.Context, root core.Root) (bool, error)
}

// ConnectionManager is the on-chain registry of replicas per destination
// that watchers invoke unenroll on when a fault is detected.
type ConnectionManager interface {
	Name() string
	IsReplica(ctx context.Context, addr core.Address) (bool, error)
	WatcherPermission(ctx context.Context, watcher core.Address) (bool, error)
	SetHome(ctx context.Context, home core.Address) (TxOutcome, error)
	OwnerEnrollReplica(ctx context.Context, replica core.Address, domain core.Domain) (TxOutcome, error)
	OwnerUnenrollReplica(ctx context.Context, replica core.Address) (TxOutcome, error)
	SetWatcherPermission(ctx context.Context, watcher core.Address, allowed bool) (TxOutcome, error)
	UnenrollReplica(ctx context.Context, sf core.SignedFailureNotification) (TxOutcome, error)
}
