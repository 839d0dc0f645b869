package monitor

import (
	"context"
	"time"

	"github.com/nomad-xyz/agents/metrics"
)

// RelayWait joins one replica's Relay and Process streams. Each Relay
// starts a pending timer; each Process flushes every pending relay,
// recording the wall-clock time from relay to process. Both events are
// forwarded downstream before the local observation, and the select is
// biased to poll Relay first when both are ready.
type RelayWait struct {
	Network string
	Metrics *metrics.Metrics

	RelayIn    RelayChan
	RelayOut   RelayChan
	ProcessIn  ProcessChan
	ProcessOut ProcessChan

	pending []time.Time
}

func (w *RelayWait) Run(ctx context.Context) error {
	seconds := w.Metrics.RelayToProcessSeconds.WithLabelValues(w.Network)
	for {
		select {
		case ev, ok := <-w.RelayIn:
			if !ok {
				return nil
			}
			if err := w.forwardRelay(ctx, ev); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case ev, ok := <-w.RelayIn:
			if !ok {
				return nil
			}
			if err := w.forwardRelay(ctx, ev); err != nil {
				return err
			}
		case ev, ok := <-w.ProcessIn:
			if !ok {
				return nil
			}
			select {
			case w.ProcessOut <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			now := time.Now()
			for _, relayed := range w.pending {
				seconds.Observe(now.Sub(relayed).Seconds())
			}
			w.pending = w.pending[:0]
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *RelayWait) forwardRelay(ctx context.Context, ev RelayEvent) error {
	select {
	case w.RelayOut <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.pending = append(w.pending, time.Now())
	return nil
}
