package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/indexer"
	"github.com/nomad-xyz/agents/metrics"
)

// TestMonitorBuildWiresTwoDomainsWithoutDeadlock exercises the full
// producer/between/wait/terminal graph across two domains, each
// replicating the other, and asserts the whole thing can be torn down
// cleanly on context cancellation. With both indexers parked at block 0
// no events ever flow, so this is purely a wiring smoke test; per-stage
// behavior is covered by the dedicated *_test.go files for each stage.
func TestMonitorBuildWiresTwoDomainsWithoutDeadlock(t *testing.T) {
	ethereum := indexer.NewMockIndexer()
	polygon := indexer.NewMockIndexer()

	mon := &Monitor{
		Domains: []Domain{
			{
				Network:      "ethereum",
				DomainNumber: core.Domain(1),
				HomeIndexer:  ethereum,
				ReplicaIndexers: map[string]indexer.EventIndexer{
					"polygon": indexer.NewMockIndexer(),
				},
			},
			{
				Network:      "polygon",
				DomainNumber: core.Domain(2),
				HomeIndexer:  polygon,
				ReplicaIndexers: map[string]indexer.EventIndexer{
					"ethereum": indexer.NewMockIndexer(),
				},
			},
		},
		Metrics:      metrics.New(),
		PollInterval: time.Millisecond,
	}
	mon.Build()
	require.NotEmpty(t, mon.tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := mon.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
