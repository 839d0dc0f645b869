// Package monitor implements the observer pipeline: a per-chain DAG of
// producers, latency stages, and terminal sinks connected by
// single-producer-single-consumer channels, per spec.md §4.E. Edges carry
// typed events wrapping {event_payload, meta{block_number}}.
package monitor

import "github.com/nomad-xyz/agents/core"

// channelDepth bounds every SPSC channel in the pipeline. The source
// models these as unbounded; §9's Design Notes explicitly sanction
// replacing them with bounded channels (depth ~1024) in environments
// where pathological RPC bursts could exhaust memory, noting the design
// tolerates the change without further modification because every stage
// forwards before it observes. We take that sanctioned alternative
// directly, sized generously above the note's suggested floor.
const channelDepth = 4096

// DispatchEvent is one dispatch observed on a home.
type DispatchEvent struct {
	Message core.Message
	Meta    core.Meta
}

// UpdateEvent is one signed update observed on a home.
type UpdateEvent struct {
	Update core.SignedUpdateWithMeta
}

// RelayEvent is one signed update observed on a replica (the replica
// "relaying" the home's update to itself).
type RelayEvent struct {
	Update core.SignedUpdateWithMeta
}

// ProcessEvent is one message-processed observation on a replica.
type ProcessEvent struct {
	Leaf core.Leaf
	Meta core.Meta
}

// DispatchChan, UpdateChan, RelayChan, and ProcessChan are the four SPSC
// event-channel types the pipeline is built from.
type (
	DispatchChan chan DispatchEvent
	UpdateChan   chan UpdateEvent
	RelayChan    chan RelayEvent
	ProcessChan  chan ProcessEvent
)

func newDispatchChan() DispatchChan { return make(DispatchChan, channelDepth) }
func newUpdateChan() UpdateChan     { return make(UpdateChan, channelDepth) }
func newRelayChan() RelayChan       { return make(RelayChan, channelDepth) }
func newProcessChan() ProcessChan   { return make(ProcessChan, channelDepth) }
