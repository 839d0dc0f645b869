// Package indexer defines the event-indexer contract: pulling updates and
// messages from a chain by block range and returning them in the order
// spec.md §4.B requires. The concrete RPC-backed implementations are an
// external collaborator (out of scope per spec §1); this package owns the
// ordering contract and a reference in-memory implementation used by the
// rest of the module's tests.
package indexer

import (
	"context"
	"sort"

	"github.com/nomad-xyz/agents/core"
)

// EventIndexer is implemented once per chain family. from is inclusive, to
// is exclusive, matching spec §4.B's "[from,to)" window.
type EventIndexer interface {
	GetBlockNumber(ctx context.Context) (uint32, error)
	FetchSortedUpdates(ctx context.Context, from, to uint32) ([]core.SignedUpdateWithMeta, error)
	FetchSortedMessages(ctx context.Context, from, to uint32) ([]core.RawCommittedMessage, error)
}

// SortUpdates orders updates by (block_number, tx_index) ascending, per
// spec §4.B. Ties on block_number are broken by TxIndex, which every
// FetchSortedUpdates implementation must populate in Meta's sibling
// ordering field before calling this helper (see UpdateEvent below).
func SortUpdates(events []UpdateEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Update.Meta.BlockNumber != events[j].Update.Meta.BlockNumber {
			return events[i].Update.Meta.BlockNumber < events[j].Update.Meta.BlockNumber
		}
		return events[i].TxIndex < events[j].TxIndex
	})
}

// UpdateEvent pairs a SignedUpdateWithMeta with the transaction index it
// was observed at, the secondary ordering key within a block.
type UpdateEvent struct {
	Update  core.SignedUpdateWithMeta
	TxIndex uint32
}

// SortMessages orders raw committed messages by leaf_index ascending, per
// spec §4.B.
func SortMessages(messages []core.RawCommittedMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].LeafIndex < messages[j].LeafIndex
	})
}
