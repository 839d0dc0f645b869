// Package metrics is the pure-sink metrics surface: Prometheus histograms
// and gauges, and the HTTP server that exposes them in text format. Nothing
// in this package computes a latency value; every producer feeds an
// already-computed observation in here.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nomad_agents"

// Metrics is the process-wide metrics registry, created once at boot and
// passed by shared immutable handle to every task, matching §9's "global
// mutable state" guidance: one value, interior synchronization (Prometheus
// collectors are themselves safe for concurrent use), no ambient globals.
type Metrics struct {
	registry *prometheus.Registry

	WallclockLatency *prometheus.HistogramVec
	BlocksLatency    *prometheus.HistogramVec

	DispatchToUpdateBlocks *prometheus.HistogramVec
	UpdateToRelaySeconds   *prometheus.HistogramVec
	RelayToProcessSeconds  *prometheus.HistogramVec
	E2ELatencySeconds      *prometheus.HistogramVec

	DoubleUpdatesObserved     *prometheus.GaugeVec
	UpdatesInspectedForDouble *prometheus.GaugeVec

	SyncCursor  *prometheus.GaugeVec
	SyncHeadLag *prometheus.GaugeVec
}

// New builds a Metrics registry with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		WallclockLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "wallclock_latency_seconds",
			Help:    "wall-clock time between successive emissions of the same event stream",
			Buckets: prometheus.DefBuckets,
		}, []string{"network", "event", "emitter"}),
		BlocksLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "blocks_latency",
			Help:    "block-count between successive emissions of the same event stream",
			Buckets: prometheus.LinearBuckets(0, 5, 20),
		}, []string{"network", "event", "emitter"}),
		DispatchToUpdateBlocks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dispatch_to_update_blocks",
			Help:    "blocks elapsed between a dispatch and the update that includes it",
			Buckets: prometheus.LinearBuckets(0, 5, 20),
		}, []string{"network", "emitter"}),
		UpdateToRelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "update_to_relay_seconds",
			Help:    "time between a home update and the matching replica relay",
			Buckets: prometheus.DefBuckets,
		}, []string{"home_network", "replica_network"}),
		RelayToProcessSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "relay_to_process_seconds",
			Help:    "time between a replica relay and the matching process",
			Buckets: prometheus.DefBuckets,
		}, []string{"replica_network"}),
		E2ELatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "e2e_latency_seconds",
			Help:    "end-to-end latency from origin dispatch to destination process",
			Buckets: prometheus.DefBuckets,
		}, []string{"origin", "destination"}),
		DoubleUpdatesObserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "double_updates_observed",
			Help: "count of double updates observed",
		}, []string{"home", "agent"}),
		UpdatesInspectedForDouble: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "updates_inspected_for_double",
			Help: "count of updates inspected for double-update status; monotonic, treated as a counter per spec",
		}, []string{"home", "checked", "agent"}),
		SyncCursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "contract_sync_cursor",
			Help: "next_block_to_process cursor of a contract sync task",
		}, []string{"network", "contract"}),
		SyncHeadLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "contract_sync_head_lag",
			Help: "blocks between the sync cursor and the finalized chain head",
		}, []string{"network", "contract"}),
	}
	reg.MustRegister(
		m.WallclockLatency, m.BlocksLatency,
		m.DispatchToUpdateBlocks, m.UpdateToRelaySeconds, m.RelayToProcessSeconds, m.E2ELatencySeconds,
		m.DoubleUpdatesObserved, m.UpdatesInspectedForDouble,
		m.SyncCursor, m.SyncHeadLag,
	)
	return m
}

// RunHTTPServer serves the registry in Prometheus text format on addr
// until ctx is cancelled.
func (m *Metrics) RunHTTPServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
