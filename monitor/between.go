package monitor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomad-xyz/agents/metrics"
)

// gapTracker records the wall-clock time and block number of the previous
// emission on a stream, so the next one can be turned into a gap
// observation. The zero value has no previous emission yet.
type gapTracker struct {
	have      bool
	lastWall  time.Time
	lastBlock uint64
}

func (g *gapTracker) observe(now time.Time, block uint64, wallclock, blocks prometheus.Observer) {
	if g.have {
		wallclock.Observe(now.Sub(g.lastWall).Seconds())
		blocks.Observe(float64(block) - float64(g.lastBlock))
	}
	g.have = true
	g.lastWall = now
	g.lastBlock = block
}

// DispatchBetween measures wall-clock and block gaps between successive
// dispatches on one home's stream, forwarding every event before it
// observes per spec's pipe convention.
type DispatchBetween struct {
	Network string
	In      DispatchChan
	Out     DispatchChan
	Metrics *metrics.Metrics
}

func (b *DispatchBetween) Run(ctx context.Context) error {
	var g gapTracker
	wallclock := b.Metrics.WallclockLatency.WithLabelValues(b.Network, "dispatch", "home")
	blocks := b.Metrics.BlocksLatency.WithLabelValues(b.Network, "dispatch", "home")
	for {
		select {
		case ev, ok := <-b.In:
			if !ok {
				return nil
			}
			select {
			case b.Out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			g.observe(time.Now(), ev.Meta.BlockNumber, wallclock, blocks)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// UpdateBetween is DispatchBetween's UpdateEvent counterpart.
type UpdateBetween struct {
	Network string
	In      UpdateChan
	Out     UpdateChan
	Metrics *metrics.Metrics
}

func (b *UpdateBetween) Run(ctx context.Context) error {
	var g gapTracker
	wallclock := b.Metrics.WallclockLatency.WithLabelValues(b.Network, "update", "home")
	blocks := b.Metrics.BlocksLatency.WithLabelValues(b.Network, "update", "home")
	for {
		select {
		case ev, ok := <-b.In:
			if !ok {
				return nil
			}
			select {
			case b.Out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			g.observe(time.Now(), ev.Update.Meta.BlockNumber, wallclock, blocks)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RelayBetween is DispatchBetween's RelayEvent counterpart, labeled by the
// replica network it was observed on.
type RelayBetween struct {
	Network string
	In      RelayChan
	Out     RelayChan
	Metrics *metrics.Metrics
}

func (b *RelayBetween) Run(ctx context.Context) error {
	var g gapTracker
	wallclock := b.Metrics.WallclockLatency.WithLabelValues(b.Network, "relay", "replica")
	blocks := b.Metrics.BlocksLatency.WithLabelValues(b.Network, "relay", "replica")
	for {
		select {
		case ev, ok := <-b.In:
			if !ok {
				return nil
			}
			select {
			case b.Out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			g.observe(time.Now(), ev.Update.Meta.BlockNumber, wallclock, blocks)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ProcessBetween is DispatchBetween's ProcessEvent counterpart.
type ProcessBetween struct {
	Network string
	In      ProcessChan
	Out     ProcessChan
	Metrics *metrics.Metrics
}

func (b *ProcessBetween) Run(ctx context.Context) error {
	var g gapTracker
	wallclock := b.Metrics.WallclockLatency.WithLabelValues(b.Network, "process", "replica")
	blocks := b.Metrics.BlocksLatency.WithLabelValues(b.Network, "process", "replica")
	for {
		select {
		case ev, ok := <-b.In:
			if !ok {
				return nil
			}
			select {
			case b.Out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			g.observe(time.Now(), ev.Meta.BlockNumber, wallclock, blocks)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
