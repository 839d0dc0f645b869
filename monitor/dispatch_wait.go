package monitor

import (
	"context"

	"github.com/nomad-xyz/agents/metrics"
)

// DispatchWait joins one home's Dispatch and Update streams. Each Dispatch
// starts a pending timer keyed only by its block number; each Update
// flushes every pending dispatch, recording update_block - dispatch_block
// into the blocks histogram for each. Both events are forwarded downstream
// before the local observation. The select is biased to poll Dispatch
// first when both are ready, the documented tie-break.
type DispatchWait struct {
	Network string
	Metrics *metrics.Metrics

	DispatchIn  DispatchChan
	DispatchOut DispatchChan
	UpdateIn    UpdateChan
	UpdateOut   UpdateChan

	pending []uint64
}

func (w *DispatchWait) Run(ctx context.Context) error {
	blocks := w.Metrics.DispatchToUpdateBlocks.WithLabelValues(w.Network, "home")
	for {
		select {
		case ev, ok := <-w.DispatchIn:
			if !ok {
				return nil
			}
			select {
			case w.DispatchOut <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			w.pending = append(w.pending, ev.Meta.BlockNumber)
			continue
		default:
		}

		select {
		case ev, ok := <-w.DispatchIn:
			if !ok {
				return nil
			}
			select {
			case w.DispatchOut <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			w.pending = append(w.pending, ev.Meta.BlockNumber)
		case ev, ok := <-w.UpdateIn:
			if !ok {
				return nil
			}
			select {
			case w.UpdateOut <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			for _, d := range w.pending {
				blocks.Observe(float64(ev.Update.Meta.BlockNumber) - float64(d))
			}
			w.pending = w.pending[:0]
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
