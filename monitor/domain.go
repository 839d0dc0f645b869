package monitor

import (
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/indexer"
)

// Domain is one chain's place in the observer topology: its own home (for
// the dispatch and update streams) and, for every other network, the
// local replica-of-that-network contract (for the relay and process
// streams). A replica is named after the remote home it replicates, the
// Nomad convention the config layer's network list already follows. Every
// domain in a Monitor shares one poll interval.
type Domain struct {
	Network         string
	DomainNumber    core.Domain
	HomeIndexer     indexer.EventIndexer
	ReplicaIndexers map[string]indexer.EventIndexer
}

// compositeKey names the Faucets tap for the (hostNetwork, homeNetwork)
// pair a single replica contract represents, so distinct replicas hosted
// on different chains for the same remote home don't collide in the
// shared tap registry.
func compositeKey(hostNetwork, homeNetwork string) string {
	return hostNetwork + "->" + homeNetwork
}
