package indexer

import (
	"context"

	"github.com/nomad-xyz/agents/core"
)

// MockIndexer is an in-memory EventIndexer used by tests across the
// module. Events are fed in any order via AddUpdate/AddMessage; fetches
// always return them resorted per the ordering contract.
type MockIndexer struct {
	BlockNumber uint32

	updates  []UpdateEvent
	messages []core.RawCommittedMessage
}

func NewMockIndexer() *MockIndexer {
	return &MockIndexer{}
}

func (m *MockIndexer) AddUpdate(u core.SignedUpdateWithMeta, txIndex uint32) {
	m.updates = append(m.updates, UpdateEvent{Update: u, TxIndex: txIndex})
}

func (m *MockIndexer) AddMessage(raw core.RawCommittedMessage) {
	m.messages = append(m.messages, raw)
}

func (m *MockIndexer) GetBlockNumber(ctx context.Context) (uint32, error) {
	return m.BlockNumber, nil
}

func (m *MockIndexer) FetchSortedUpdates(ctx context.Context, from, to uint32) ([]core.SignedUpdateWithMeta, error) {
	var filtered []UpdateEvent
	for _, e := range m.updates {
		b := uint32(e.Update.Meta.BlockNumber)
		if b >= from && b < to {
			filtered = append(filtered, e)
		}
	}
	SortUpdates(filtered)
	out := make([]core.SignedUpdateWithMeta, len(filtered))
	for i, e := range filtered {
		out[i] = e.Update
	}
	return out, nil
}

func (m *MockIndexer) FetchSortedMessages(ctx context.Context, from, to uint32) ([]core.RawCommittedMessage, error) {
	var filtered []core.RawCommittedMessage
	for _, msg := range m.messages {
		// messages are not windowed by block in this reference
		// implementation; callers needing block-range filtering
		// should use the leaf_index range instead.
		filtered = append(filtered, msg)
	}
	SortMessages(filtered)
	return filtered, nil
}
