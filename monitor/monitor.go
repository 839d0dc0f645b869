// Package monitor implements the observer pipeline (spec.md §4.E): a
// multi-stage event-flow DAG that ingests the four event streams per
// chain, computes inter-event and inter-stage latencies, and reports them
// as Prometheus histograms. Monitor is the top-level orchestrator that
// wires every Domain's per-chain stages together, including the
// update_to_relay and end-to-end taps that cross chain boundaries.
package monitor

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/nomad-xyz/agents/agent"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/metrics"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by monitor.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Monitor owns every Domain in the deployment and the cross-domain stages
// (UpdateWait and E2ELatency) that tap their streams.
type Monitor struct {
	Domains      []Domain
	Metrics      *metrics.Metrics
	PollInterval time.Duration

	faucets *Faucets
	tasks   []agent.Task
}

// Build wires the full observer DAG: per-domain producers, BetweenEvents
// stages, and the home-local DispatchWait, then the cross-domain
// UpdateWait instances and the single global E2ELatency sink, and finally
// the Faucets fanout tasks that make both possible without double-reading
// any channel. It must be called once before Run.
func (m *Monitor) Build() {
	m.faucets = NewFaucets()

	// Pass 1: per-domain producers and BetweenEvents stages.
	dispatchBetweenOuts := make(map[string]DispatchChan, len(m.Domains))
	updateBetweenOuts := make(map[string]UpdateChan, len(m.Domains))
	relayBetweenOuts := make(map[string]map[string]RelayChan, len(m.Domains))
	processBetweenOuts := make(map[string]map[string]ProcessChan, len(m.Domains))

	for _, d := range m.Domains {
		d := d
		dispatchOut := newDispatchChan()
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":dispatch_producer",
			Run: (&DispatchProducer{Network: d.Network, Indexer: d.HomeIndexer, PollInterval: m.PollInterval, Out: dispatchOut}).Run,
		})
		dispatchBetweenOut := newDispatchChan()
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":dispatch_between",
			Run:  (&DispatchBetween{Network: d.Network, In: dispatchOut, Out: dispatchBetweenOut, Metrics: m.Metrics}).Run,
		})
		dispatchBetweenOuts[d.Network] = dispatchBetweenOut

		updateOut := newUpdateChan()
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":update_producer",
			Run: (&UpdateProducer{Network: d.Network, Indexer: d.HomeIndexer, PollInterval: m.PollInterval, Out: updateOut}).Run,
		})
		updateBetweenOut := newUpdateChan()
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":update_between",
			Run:  (&UpdateBetween{Network: d.Network, In: updateOut, Out: updateBetweenOut, Metrics: m.Metrics}).Run,
		})
		updateBetweenOuts[d.Network] = updateBetweenOut

		relayBetweenOuts[d.Network] = make(map[string]RelayChan, len(d.ReplicaIndexers))
		processBetweenOuts[d.Network] = make(map[string]ProcessChan, len(d.ReplicaIndexers))
		for homeNetwork, idx := range d.ReplicaIndexers {
			homeNetwork, idx := homeNetwork, idx
			relayOut := newRelayChan()
			m.tasks = append(m.tasks, agent.Task{
				Name: d.Network + ":" + homeNetwork + ":relay_producer",
				Run:  (&RelayProducer{Network: homeNetwork, Indexer: idx, PollInterval: m.PollInterval, Out: relayOut}).Run,
			})
			relayBetweenOut := newRelayChan()
			m.tasks = append(m.tasks, agent.Task{
				Name: d.Network + ":" + homeNetwork + ":relay_between",
				Run:  (&RelayBetween{Network: homeNetwork, In: relayOut, Out: relayBetweenOut, Metrics: m.Metrics}).Run,
			})
			relayBetweenOuts[d.Network][homeNetwork] = relayBetweenOut

			processOut := newProcessChan()
			m.tasks = append(m.tasks, agent.Task{
				Name: d.Network + ":" + homeNetwork + ":process_producer",
				Run:  (&ProcessProducer{Network: homeNetwork, Indexer: idx, PollInterval: m.PollInterval, Out: processOut}).Run,
			})
			processBetweenOut := newProcessChan()
			m.tasks = append(m.tasks, agent.Task{
				Name: d.Network + ":" + homeNetwork + ":process_between",
				Run:  (&ProcessBetween{Network: homeNetwork, In: processOut, Out: processBetweenOut, Metrics: m.Metrics}).Run,
			})
			processBetweenOuts[d.Network][homeNetwork] = processBetweenOut
		}
	}

	// Pass 2: home-local DispatchWait, plus its E2E dispatch tap.
	updateWaitHomeIn := make(map[string]UpdateChan, len(m.Domains))
	e2eDispatches := make(map[string]DispatchChan, len(m.Domains))
	e2eProcesses := make(map[string]ProcessChan, len(m.Domains))

	for _, d := range m.Domains {
		d := d
		dw := &DispatchWait{
			Network:     d.Network,
			Metrics:     m.Metrics,
			DispatchIn:  dispatchBetweenOuts[d.Network],
			DispatchOut: newDispatchChan(),
			UpdateIn:    updateBetweenOuts[d.Network],
			UpdateOut:   newUpdateChan(),
		}
		m.tasks = append(m.tasks, agent.Task{Name: d.Network + ":dispatch_wait", Run: dw.Run})
		updateWaitHomeIn[d.Network] = dw.UpdateOut

		e2eDispatch := newDispatchChan()
		m.faucets.TapDispatch(d.Network, e2eDispatch)
		e2eDispatches[d.Network] = e2eDispatch

		dispatchDrain := newDispatchChan()
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":dispatch_fanout",
			Run:  m.faucets.SwapAllDispatches(d.Network, dw.DispatchOut, dispatchDrain),
		})
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":dispatch_terminal",
			Run:  func(ctx context.Context) error { return DrainDispatch(ctx, dispatchDrain) },
		})

		e2eProcesses[d.Network] = newProcessChan()
	}

	// Pass 3: per-replica RelayWait, tapping each replica's relay stream
	// for the remote home's UpdateWait and each replica's process stream
	// for this domain's E2E destination sink.
	updateWaitRelays := make(map[string]map[string]RelayChan) // homeNetwork -> hostNetwork -> tap

	for _, d := range m.Domains {
		d := d
		for homeNetwork := range d.ReplicaIndexers {
			homeNetwork := homeNetwork
			key := compositeKey(d.Network, homeNetwork)

			relayTap := newRelayChan()
			if updateWaitRelays[homeNetwork] == nil {
				updateWaitRelays[homeNetwork] = make(map[string]RelayChan)
			}
			updateWaitRelays[homeNetwork][d.Network] = relayTap
			m.faucets.TapRelay(key, relayTap)
			m.faucets.TapProcess(key, e2eProcesses[d.Network])

			relayWaitIn := newRelayChan()
			processWaitIn := newProcessChan()
			m.tasks = append(m.tasks, agent.Task{
				Name: key + ":relay_fanout",
				Run:  m.faucets.SwapAllRelays(key, relayBetweenOuts[d.Network][homeNetwork], relayWaitIn),
			})
			m.tasks = append(m.tasks, agent.Task{
				Name: key + ":process_fanout",
				Run:  m.faucets.SwapAllProcesses(key, processBetweenOuts[d.Network][homeNetwork], processWaitIn),
			})

			rw := &RelayWait{
				Network:    homeNetwork,
				Metrics:    m.Metrics,
				RelayIn:    relayWaitIn,
				RelayOut:   newRelayChan(),
				ProcessIn:  processWaitIn,
				ProcessOut: newProcessChan(),
			}
			m.tasks = append(m.tasks, agent.Task{Name: key + ":relay_wait", Run: rw.Run})
			m.tasks = append(m.tasks, agent.Task{
				Name: key + ":relay_terminal",
				Run:  func(ctx context.Context) error { return DrainRelay(ctx, rw.RelayOut) },
			})
			m.tasks = append(m.tasks, agent.Task{
				Name: key + ":process_terminal",
				Run:  func(ctx context.Context) error { return DrainProcess(ctx, rw.ProcessOut) },
			})
		}
	}

	// Pass 4: one UpdateWait per home, joining its forwarded Update
	// stream with the relay taps collected in pass 3.
	for _, d := range m.Domains {
		d := d
		uw := &UpdateWait{
			HomeNetwork: d.Network,
			Metrics:     m.Metrics,
			UpdateIn:    updateWaitHomeIn[d.Network],
			UpdateOut:   newUpdateChan(),
			Relays:      updateWaitRelays[d.Network],
		}
		m.tasks = append(m.tasks, agent.Task{Name: d.Network + ":update_wait", Run: uw.Run})
		m.tasks = append(m.tasks, agent.Task{
			Name: d.Network + ":update_terminal",
			Run:  func(ctx context.Context) error { return DrainUpdate(ctx, uw.UpdateOut) },
		})
	}

	// Pass 5: the single global E2ELatency sink.
	domainToNetwork := make(map[core.Domain]string, len(m.Domains))
	for _, d := range m.Domains {
		domainToNetwork[d.DomainNumber] = d.Network
	}
	e2e := &E2ELatency{
		Metrics:         m.Metrics,
		DomainToNetwork: domainToNetwork,
		Dispatches:      e2eDispatches,
		Processes:       e2eProcesses,
	}
	m.tasks = append(m.tasks, agent.Task{Name: "e2e_latency", Run: e2e.Run})
}

// Run races every wired task under first-failure-wins, tearing the whole
// graph down if any stage errors.
func (m *Monitor) Run(ctx context.Context) error {
	return agent.RunAll(ctx, m.tasks...)
}
