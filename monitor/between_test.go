package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

func TestDispatchBetweenForwardsAndObservesGap(t *testing.T) {
	m := metrics.New()
	b := &DispatchBetween{Network: "ethereum", In: newDispatchChan(), Out: newDispatchChan(), Metrics: m}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.In <- DispatchEvent{Meta: core.Meta{BlockNumber: 10}}
	require.Equal(t, uint64(10), (<-b.Out).Meta.BlockNumber)

	b.In <- DispatchEvent{Meta: core.Meta{BlockNumber: 13}}
	require.Equal(t, uint64(13), (<-b.Out).Meta.BlockNumber)

	require.Eventually(t, func() bool {
		return histogramSampleCount(t, m.BlocksLatency.WithLabelValues("ethereum", "dispatch", "home")) == 1
	}, time.Second, time.Millisecond)
}
