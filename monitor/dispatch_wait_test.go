package monitor

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

func histogramSampleCount(t *testing.T, o interface{ Write(*dto.Metric) error }) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, o.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

// P5: N dispatches at blocks d1..dn followed by one update at block u
// yields exactly N blocks-histogram observations with values u-di, and
// the pending set is empty afterward.
func TestDispatchWaitFlushesAllPendingOnUpdate(t *testing.T) {
	m := metrics.New()
	w := &DispatchWait{
		Network:     "ethereum",
		Metrics:     m,
		DispatchIn:  newDispatchChan(),
		DispatchOut: newDispatchChan(),
		UpdateIn:    newUpdateChan(),
		UpdateOut:   newUpdateChan(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	blocks := []uint64{10, 12, 15}
	for _, b := range blocks {
		w.DispatchIn <- DispatchEvent{Meta: core.Meta{BlockNumber: b}}
		<-w.DispatchOut
	}

	w.UpdateIn <- UpdateEvent{Update: core.SignedUpdateWithMeta{Meta: core.Meta{BlockNumber: 20}}}
	<-w.UpdateOut

	require.Eventually(t, func() bool {
		return histogramSampleCount(t, m.DispatchToUpdateBlocks.WithLabelValues("ethereum", "home")) == uint64(len(blocks))
	}, time.Second, time.Millisecond)

	cancel()
	<-done

	require.Empty(t, w.pending)
}

func TestDispatchWaitForwardsBeforeObserving(t *testing.T) {
	w := &DispatchWait{
		Network:     "ethereum",
		Metrics:     metrics.New(),
		DispatchIn:  newDispatchChan(),
		DispatchOut: newDispatchChan(),
		UpdateIn:    newUpdateChan(),
		UpdateOut:   newUpdateChan(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ev := DispatchEvent{Meta: core.Meta{BlockNumber: 5}}
	w.DispatchIn <- ev
	got := <-w.DispatchOut
	require.Equal(t, ev, got)
}
