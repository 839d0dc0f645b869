package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

// UpdateWait records the time between a home's update and each remote
// chain's relay of that same root.
func TestUpdateWaitRecordsPerReplicaLatency(t *testing.T) {
	m := metrics.New()
	polygonRelay := newRelayChan()
	avalancheRelay := newRelayChan()

	w := &UpdateWait{
		HomeNetwork: "ethereum",
		Metrics:     m,
		UpdateIn:    newUpdateChan(),
		UpdateOut:   newUpdateChan(),
		Relays: map[string]RelayChan{
			"polygon":   polygonRelay,
			"avalanche": avalancheRelay,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	root := core.Root{0xAB}
	w.UpdateIn <- UpdateEvent{Update: core.SignedUpdateWithMeta{
		SignedUpdate: core.SignedUpdate{Update: core.Update{NewRoot: root}},
	}}
	<-w.UpdateOut

	polygonRelay <- RelayEvent{Update: core.SignedUpdateWithMeta{
		SignedUpdate: core.SignedUpdate{Update: core.Update{NewRoot: root}},
	}}

	require.Eventually(t, func() bool {
		return histogramSampleCount(t, m.UpdateToRelaySeconds.WithLabelValues("ethereum", "polygon")) == 1
	}, time.Second, time.Millisecond)

	require.Equal(t, uint64(0), histogramSampleCount(t, m.UpdateToRelaySeconds.WithLabelValues("ethereum", "avalanche")))

	cancel()
	<-done
}
