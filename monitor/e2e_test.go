package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

func TestE2ELatencyMatchesDispatchToProcessByLeaf(t *testing.T) {
	m := metrics.New()
	ethDispatch := newDispatchChan()
	polygonProcess := newProcessChan()

	e := &E2ELatency{
		Metrics:         m,
		DomainToNetwork: map[core.Domain]string{1: "ethereum", 2: "polygon"},
		Dispatches:      map[string]DispatchChan{"ethereum": ethDispatch},
		Processes:       map[string]ProcessChan{"polygon": polygonProcess},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	msg := core.Message{Origin: 1, Nonce: 1, Destination: 2, Body: []byte("hello")}
	ethDispatch <- DispatchEvent{Message: msg}

	leaf := core.HashLeaf(msg)
	polygonProcess <- ProcessEvent{Leaf: leaf}

	require.Eventually(t, func() bool {
		return histogramSampleCount(t, m.E2ELatencySeconds.WithLabelValues("ethereum", "polygon")) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestE2ELatencyIgnoresUnmatchedProcess(t *testing.T) {
	m := metrics.New()
	polygonProcess := newProcessChan()

	e := &E2ELatency{
		Metrics:         m,
		DomainToNetwork: map[core.Domain]string{1: "ethereum", 2: "polygon"},
		Dispatches:      map[string]DispatchChan{"ethereum": newDispatchChan()},
		Processes:       map[string]ProcessChan{"polygon": polygonProcess},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	polygonProcess <- ProcessEvent{Leaf: core.Leaf{0x01}}

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, uint64(0), histogramSampleCount(t, m.E2ELatencySeconds.WithLabelValues("ethereum", "polygon")))

	cancel()
	<-done
}
