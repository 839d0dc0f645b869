package monitor

import (
	"context"
	"reflect"
	"time"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

// UpdateWait joins one home's Update stream with the Relay streams of
// every other chain's replica of this home. Those Relay streams are
// private taps Monitor registers via Faucets.SwapAllRelays on top of each
// replica's normal relay_to_process pipeline, so UpdateWait never forwards
// them further: the original stream already continues on to its own
// RelayWait independently. For each update it remembers the wall-clock
// time its new root was observed at; each matching Relay event on any of
// the replica streams records the elapsed time since that root's update.
type UpdateWait struct {
	HomeNetwork string
	Metrics     *metrics.Metrics

	UpdateIn  UpdateChan
	UpdateOut UpdateChan

	// Relays maps the network name of a chain hosting a replica of
	// HomeNetwork to the private tap of that replica's relay stream.
	Relays map[string]RelayChan

	pending map[core.Root]time.Time
}

// Run fans in UpdateIn and every registered relay tap with reflect.Select,
// since the set of replica networks is only known at wiring time. UpdateIn
// is always select case index 0, but reflect.Select picks uniformly among
// ready cases, so ties between UpdateIn and a relay tap are not biased.
func (w *UpdateWait) Run(ctx context.Context) error {
	if w.pending == nil {
		w.pending = make(map[core.Root]time.Time)
	}

	networks := make([]string, 0, len(w.Relays))
	for network := range w.Relays {
		networks = append(networks, network)
	}

	cases := make([]reflect.SelectCase, 0, len(networks)+2)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(w.UpdateIn)})
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, network := range networks {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(w.Relays[network])})
	}

	for {
		chosen, value, ok := reflect.Select(cases)
		switch {
		case chosen == 0:
			if !ok {
				return nil
			}
			ev := value.Interface().(UpdateEvent)
			select {
			case w.UpdateOut <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			w.pending[ev.Update.SignedUpdate.Update.NewRoot] = time.Now()
		case chosen == 1:
			return ctx.Err()
		default:
			if !ok {
				continue
			}
			network := networks[chosen-2]
			ev := value.Interface().(RelayEvent)
			root := ev.Update.SignedUpdate.Update.NewRoot
			if seen, ok := w.pending[root]; ok {
				w.Metrics.UpdateToRelaySeconds.WithLabelValues(w.HomeNetwork, network).Observe(time.Since(seen).Seconds())
			}
		}
	}
}
