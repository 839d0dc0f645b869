package monitor

import "context"

// fanoutDispatch reads every DispatchEvent off in and writes a copy onto
// each of outs before reading the next one. It is the plumbing behind
// Faucets.SwapAllDispatches: a stream already feeding its normal per-chain
// pipeline can still feed the global E2ELatency collector without the two
// consumers contending over the same channel.
func fanoutDispatch(ctx context.Context, in DispatchChan, outs ...DispatchChan) error {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			for _, out := range outs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fanoutProcess is fanoutDispatch's ProcessEvent counterpart, backing
// Faucets.SwapAllProcesses.
func fanoutProcess(ctx context.Context, in ProcessChan, outs ...ProcessChan) error {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			for _, out := range outs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// fanoutRelay is fanoutDispatch's RelayEvent counterpart, used to hand a
// replica's relay stream to both its own RelayWait and another home's
// UpdateWait (the update_to_relay swap).
func fanoutRelay(ctx context.Context, in RelayChan, outs ...RelayChan) error {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			for _, out := range outs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Faucets collects the extra taps the Monitor registers on top of each
// domain's normal per-chain pipeline: one set feeding the global
// E2ELatency collector (swap_all_dispatches / swap_all_processes in the
// original), and one set feeding the cross-domain UpdateWait instances
// (the update_to_relay replica swap).
type Faucets struct {
	dispatchTaps map[string][]DispatchChan
	processTaps  map[string][]ProcessChan
	relayTaps    map[string][]RelayChan
}

func NewFaucets() *Faucets {
	return &Faucets{
		dispatchTaps: make(map[string][]DispatchChan),
		processTaps:  make(map[string][]ProcessChan),
		relayTaps:    make(map[string][]RelayChan),
	}
}

// TapDispatch registers an additional sink for network's dispatch stream.
func (f *Faucets) TapDispatch(network string, out DispatchChan) {
	f.dispatchTaps[network] = append(f.dispatchTaps[network], out)
}

// TapProcess registers an additional sink for network's process stream.
func (f *Faucets) TapProcess(network string, out ProcessChan) {
	f.processTaps[network] = append(f.processTaps[network], out)
}

// TapRelay registers an additional sink for network's relay stream.
func (f *Faucets) TapRelay(network string, out RelayChan) {
	f.relayTaps[network] = append(f.relayTaps[network], out)
}

// SwapAllDispatches returns the fanout task for network, forwarding its
// primary stream in to primary plus every tap registered for network (to
// primary alone when none is).
func (f *Faucets) SwapAllDispatches(network string, in DispatchChan, primary DispatchChan) func(ctx context.Context) error {
	outs := append([]DispatchChan{primary}, f.dispatchTaps[network]...)
	return func(ctx context.Context) error { return fanoutDispatch(ctx, in, outs...) }
}

// SwapAllProcesses is SwapAllDispatches's ProcessEvent counterpart.
func (f *Faucets) SwapAllProcesses(network string, in ProcessChan, primary ProcessChan) func(ctx context.Context) error {
	outs := append([]ProcessChan{primary}, f.processTaps[network]...)
	return func(ctx context.Context) error { return fanoutProcess(ctx, in, outs...) }
}

// SwapAllRelays is SwapAllDispatches's RelayEvent counterpart, used to
// hand a replica's relay stream to both its own chain's RelayWait and the
// remote home's UpdateWait.
func (f *Faucets) SwapAllRelays(network string, in RelayChan, primary RelayChan) func(ctx context.Context) error {
	outs := append([]RelayChan{primary}, f.relayTaps[network]...)
	return func(ctx context.Context) error { return fanoutRelay(ctx, in, outs...) }
}
