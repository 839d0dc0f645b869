// Command monitor runs the observer pipeline across every network named in
// the config document, following the same daemon/config split as
// cmd/watcher: parse flags, load config, wire logging, build one
// monitor.Domain per network, then run until a stage fails.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	agents "github.com/nomad-xyz/agents"
	"github.com/nomad-xyz/agents/config"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/indexer"
	"github.com/nomad-xyz/agents/metrics"
	"github.com/nomad-xyz/agents/monitor"
)

// defaultPollInterval is used when no network's agent config sets one.
const defaultPollInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := config.ParseCLIOptions()
	if err != nil {
		return err
	}

	if err := agents.InitLogRotator("monitor.log", 10); err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	if err := agents.SetLogLevels(opts.DebugLevel); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Networks) == 0 {
		return fmt.Errorf("config declares no networks")
	}

	m := metrics.New()

	mon := &monitor.Monitor{
		Domains:      buildDomains(cfg),
		Metrics:      m,
		PollInterval: monitorPollInterval(cfg),
	}
	mon.Build()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsAddr := ":9090"
	if first, ok := cfg.Agent[cfg.Networks[0]]; ok && first.Metrics.Port != 0 {
		metricsAddr = fmt.Sprintf(":%d", first.Metrics.Port)
	}
	go func() {
		if err := m.RunHTTPServer(ctx, metricsAddr); err != nil {
			fmt.Fprintln(os.Stderr, "metrics server:", err)
		}
	}()

	return mon.Run(ctx)
}

// buildDomains wires every network into a monitor.Domain, reading every
// other configured network's replica of it through indexer.MockIndexer:
// indexers sourced from live chain event logs are an external collaborator
// (spec Non-goals on chain RPC), so this module only provides the indexer
// surface and a reference double it satisfies.
func buildDomains(cfg *config.Config) []monitor.Domain {
	domains := make([]monitor.Domain, 0, len(cfg.Networks))
	for i, network := range cfg.Networks {
		replicaIndexers := make(map[string]indexer.EventIndexer, len(cfg.Networks)-1)
		for _, remote := range cfg.Networks {
			if remote == network {
				continue
			}
			replicaIndexers[remote] = indexer.NewMockIndexer()
		}

		domains = append(domains, monitor.Domain{
			Network:         network,
			DomainNumber:    core.Domain(i + 1),
			HomeIndexer:     indexer.NewMockIndexer(),
			ReplicaIndexers: replicaIndexers,
		})
	}
	return domains
}

func monitorPollInterval(cfg *config.Config) time.Duration {
	for _, agentCfg := range cfg.Agent {
		if agentCfg.Interval > 0 {
			return agentCfg.Interval
		}
	}
	return defaultPollInterval
}
