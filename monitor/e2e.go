package monitor

import (
	"context"
	"reflect"
	"time"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

// E2ELatency is global rather than per-chain: it observes Dispatch on
// every home and Process on every replica, and records end-to-end latency
// from origin dispatch to destination process. DomainToNetwork resolves
// the numeric origin domain carried on the wire to the human-readable
// network label metrics are keyed by; destination is already the network
// name the tapped Process stream belongs to.
type E2ELatency struct {
	Metrics *metrics.Metrics

	// DomainToNetwork maps a home's protocol domain number to its network
	// name, mirroring the config-driven map the original runtime builds
	// at startup from the network list.
	DomainToNetwork map[core.Domain]string

	// Dispatches and Processes are fed by Faucets.SwapAllDispatches/
	// SwapAllProcesses taps on every domain's normal pipeline; neither is
	// forwarded further; E2ELatency is a true sink for its own taps.
	Dispatches map[string]DispatchChan
	Processes  map[string]ProcessChan

	pending map[core.Leaf]pendingDispatch
}

type pendingDispatch struct {
	originNetwork string
	at            time.Time
}

func (e *E2ELatency) Run(ctx context.Context) error {
	if e.pending == nil {
		e.pending = make(map[core.Leaf]pendingDispatch)
	}

	type tagged struct {
		network string
		kind    int // 0 = dispatch, 1 = process
	}
	tags := make([]tagged, 0, len(e.Dispatches)+len(e.Processes))
	cases := make([]reflect.SelectCase, 0, len(e.Dispatches)+len(e.Processes)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	tags = append(tags, tagged{})

	for network, ch := range e.Dispatches {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		tags = append(tags, tagged{network: network, kind: 0})
	}
	for network, ch := range e.Processes {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		tags = append(tags, tagged{network: network, kind: 1})
	}

	for {
		chosen, value, ok := reflect.Select(cases)
		if chosen == 0 {
			return ctx.Err()
		}
		if !ok {
			continue
		}
		tag := tags[chosen]
		if tag.kind == 0 {
			ev := value.Interface().(DispatchEvent)
			leaf := core.HashLeaf(ev.Message)
			origin := e.DomainToNetwork[ev.Message.Origin]
			e.pending[leaf] = pendingDispatch{originNetwork: origin, at: time.Now()}
			continue
		}
		ev := value.Interface().(ProcessEvent)
		dispatched, ok := e.pending[ev.Leaf]
		if !ok {
			continue
		}
		delete(e.pending, ev.Leaf)
		e.Metrics.E2ELatencySeconds.
			WithLabelValues(dispatched.originNetwork, tag.network).
			Observe(time.Since(dispatched.at).Seconds())
	}
}
