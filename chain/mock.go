package chain

import (
	"context"
	"sync"

	"github.com/nomad-xyz/agents/core"
)

// MockCommon is a test double for Common, Home, and Replica. Every method
// records its call and returns either a canned value or invokes a
// caller-supplied hook, following the teacher's lightweight mock style
// (function-field mocks rather than a generated mocking framework).
type MockCommon struct {
	mu sync.Mutex

	NameVal   string
	DomainVal core.Domain

	StateFunc         func() (core.ChainState, error)
	CommittedRootFunc func() (core.Root, error)
	UpdaterFunc       func() (core.Address, error)
	UpdateFunc        func(core.SignedUpdate) (TxOutcome, error)
	DoubleUpdateFunc  func(core.DoubleUpdate) (TxOutcome, error)

	UpdateCalls       []core.SignedUpdate
	DoubleUpdateCalls []core.DoubleUpdate
}

func (m *MockCommon) Name() string         { return m.NameVal }
func (m *MockCommon) Domain() core.Domain  { return m.DomainVal }

func (m *MockCommon) State(ctx context.Context) (core.ChainState, error) {
	if m.StateFunc != nil {
		return m.StateFunc()
	}
	return core.ChainStateActive, nil
}

func (m *MockCommon) CommittedRoot(ctx context.Context) (core.Root, error) {
	if m.CommittedRootFunc != nil {
		return m.CommittedRootFunc()
	}
	return core.Root{}, nil
}

func (m *MockCommon) Updater(ctx context.Context) (core.Address, error) {
	if m.UpdaterFunc != nil {
		return m.UpdaterFunc()
	}
	return core.Address{}, nil
}

func (m *MockCommon) Update(ctx context.Context, su core.SignedUpdate) (TxOutcome, error) {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, su)
	m.mu.Unlock()
	if m.UpdateFunc != nil {
		return m.UpdateFunc(su)
	}
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockCommon) DoubleUpdate(ctx context.Context, d core.DoubleUpdate) (TxOutcome, error) {
	m.mu.Lock()
	m.DoubleUpdateCalls = append(m.DoubleUpdateCalls, d)
	m.mu.Unlock()
	if m.DoubleUpdateFunc != nil {
		return m.DoubleUpdateFunc(d)
	}
	return TxOutcome{TxHash: "0xmock"}, nil
}

// CountUpdateCalls and CountDoubleUpdateCalls are safe for concurrent use
// with the write paths above, used by the scenario tests in package
// watcher to assert call counts (S4).
func (m *MockCommon) CountUpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UpdateCalls)
}

func (m *MockCommon) CountDoubleUpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DoubleUpdateCalls)
}

// MockHome embeds MockCommon and adds the Home extras.
type MockHome struct {
	*MockCommon

	SignedUpdateByOldRootFunc func(core.Root) (*core.SignedUpdate, error)
	SignedUpdateByNewRootFunc func(core.Root) (*core.SignedUpdate, error)
	ProduceUpdateFunc         func() (*core.Update, error)
}

func NewMockHome(name string, domain core.Domain) *MockHome {
	return &MockHome{MockCommon: &MockCommon{NameVal: name, DomainVal: domain}}
}

func (m *MockHome) LocalDomain() core.Domain { return m.DomainVal }

func (m *MockHome) Nonces(ctx context.Context, destination core.Domain) (uint32, error) {
	return 0, nil
}

func (m *MockHome) QueueContains(ctx context.Context, root core.Root) (bool, error) {
	return false, nil
}

func (m *MockHome) ProduceUpdate(ctx context.Context) (*core.Update, error) {
	if m.ProduceUpdateFunc != nil {
		return m.ProduceUpdateFunc()
	}
	return nil, nil
}

func (m *MockHome) Dispatch(ctx context.Context, msg core.Message) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockHome) ImproperUpdate(ctx context.Context, su core.SignedUpdate) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockHome) SignedUpdateByOldRoot(ctx context.Context, oldRoot core.Root) (*core.SignedUpdate, error) {
	if m.SignedUpdateByOldRootFunc != nil {
		return m.SignedUpdateByOldRootFunc(oldRoot)
	}
	return nil, nil
}

func (m *MockHome) SignedUpdateByNewRoot(ctx context.Context, newRoot core.Root) (*core.SignedUpdate, error) {
	if m.SignedUpdateByNewRootFunc != nil {
		return m.SignedUpdateByNewRootFunc(newRoot)
	}
	return nil, nil
}

// MockReplica embeds MockCommon and adds the Replica extras.
type MockReplica struct {
	*MockCommon
	RemoteDomainVal core.Domain
}

func NewMockReplica(name string, domain, remoteDomain core.Domain) *MockReplica {
	return &MockReplica{
		MockCommon:      &MockCommon{NameVal: name, DomainVal: domain},
		RemoteDomainVal: remoteDomain,
	}
}

func (m *MockReplica) RemoteDomain() core.Domain { return m.RemoteDomainVal }

func (m *MockReplica) Prove(ctx context.Context, p core.MerkleProof) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockReplica) Process(ctx context.Context, message []byte) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockReplica) ProveAndProcess(ctx context.Context, message []byte, p core.MerkleProof) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockReplica) MessageStatus(ctx context.Context, leaf core.Leaf) (core.MessageStatus, error) {
	return core.MessageStatusNone, nil
}

func (m *MockReplica) AcceptableRoot(ctx context.Context, root core.Root) (bool, error) {
	return true, nil
}

// MockConnectionManager is a test double for ConnectionManager.
type MockConnectionManager struct {
	mu sync.Mutex

	NameVal string

	UnenrollReplicaFunc func(core.SignedFailureNotification) (TxOutcome, error)
	UnenrollReplicaCalls []core.SignedFailureNotification
}

func NewMockConnectionManager(name string) *MockConnectionManager {
	return &MockConnectionManager{NameVal: name}
}

func (m *MockConnectionManager) Name() string { return m.NameVal }

func (m *MockConnectionManager) IsReplica(ctx context.Context, addr core.Address) (bool, error) {
	return true, nil
}

func (m *MockConnectionManager) WatcherPermission(ctx context.Context, watcher core.Address) (bool, error) {
	return true, nil
}

func (m *MockConnectionManager) SetHome(ctx context.Context, home core.Address) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockConnectionManager) OwnerEnrollReplica(ctx context.Context, replica core.Address, domain core.Domain) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockConnectionManager) OwnerUnenrollReplica(ctx context.Context, replica core.Address) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockConnectionManager) SetWatcherPermission(ctx context.Context, watcher core.Address, allowed bool) (TxOutcome, error) {
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockConnectionManager) UnenrollReplica(ctx context.Context, sf core.SignedFailureNotification) (TxOutcome, error) {
	m.mu.Lock()
	m.UnenrollReplicaCalls = append(m.UnenrollReplicaCalls, sf)
	m.mu.Unlock()
	if m.UnenrollReplicaFunc != nil {
		return m.UnenrollReplicaFunc(sf)
	}
	return TxOutcome{TxHash: "0xmock"}, nil
}

func (m *MockConnectionManager) CountUnenrollReplicaCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UnenrollReplicaCalls)
}
