// Command watcher runs one fraud-detector agent for a single home network,
// following the teacher's daemon/config split (lnd.go's main before it was
// pared down to the parts this module needs): parse flags, load config,
// wire logging, build the chain/store layer, then run until a task fails
// or history sync exhausts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	agents "github.com/nomad-xyz/agents"
	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/config"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/db"
	"github.com/nomad-xyz/agents/metrics"
	"github.com/nomad-xyz/agents/watcher"
)

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

	if err := agents.InitLogRotator("watcher.log", 10); err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	if err := agents.SetLogLevels(opts.DebugLevel); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	network := opts.Network
	if network == "" {
		if len(cfg.Networks) == 0 {
			return fmt.Errorf("config declares no networks")
		}
		network = cfg.Networks[0]
	}

	agentCfg, ok := cfg.Agent[network]
	if !ok {
		return fmt.Errorf("no agent config for network %q", network)
	}

	store, err := db.Open(agentCfg.DB)
	if err != nil {
		return fmt.Errorf("open store %s: %w", agentCfg.DB, err)
	}
	defer store.Close()

	m := metrics.New()

	home, replicas, connectionManagers, err := buildChainAbstraction(cfg, network)
	if err != nil {
		return err
	}

	w, err := watcher.FromSettings(watcher.Settings{
		Home:                   home,
		Replicas:               replicas,
		ConnectionManagers:     connectionManagers,
		Store:                  store,
		Metrics:                m,
		Updater:                core.Address{},
		PollInterval:           agentCfg.Interval,
		HistorySyncInterval:    agentCfg.Interval,
		ImproperUpdateInterval: agentCfg.Interval,
	})
	if err != nil {
		return fmt.Errorf("build watcher: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := m.RunHTTPServer(ctx, fmt.Sprintf(":%d", agentCfg.Metrics.Port)); err != nil {
			fmt.Fprintln(os.Stderr, "metrics server:", err)
		}
	}()

	return w.RunAll(ctx)
}

// buildChainAbstraction wires chain.Mock-backed Home/Replica/ConnectionManager
// values named after cfg.Core's deployment. Real Ethereum/Substrate RPC
// bindings are an external collaborator (spec Non-goals); a future
// replacement only needs to satisfy chain.Home/chain.Replica/
// chain.ConnectionManager to slot in here.
func buildChainAbstraction(cfg *config.Config, network string) (chain.Home, map[string]chain.Replica, map[string]chain.ConnectionManager, error) {
	contracts, ok := cfg.Core[network]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no core contracts configured for network %q", network)
	}

	home := chain.NewMockHome(network, domainFor(cfg, network))

	replicas := make(map[string]chain.Replica, len(contracts.Replicas))
	connectionManagers := make(map[string]chain.ConnectionManager, len(contracts.Replicas))
	for remote := range contracts.Replicas {
		replicas[remote] = chain.NewMockReplica(remote, domainFor(cfg, network), domainFor(cfg, remote))
		connectionManagers[remote] = chain.NewMockConnectionManager(remote)
	}

	return home, replicas, connectionManagers, nil
}

// domainFor assigns each network a stable domain number from its position
// in cfg.Networks; the real deployment's domain numbers live in the
// protocol config that this reduced schema does not model (§6's Non-goal
// on configuration-loader completeness).
func domainFor(cfg *config.Config, network string) core.Domain {
	for i, n := range cfg.Networks {
		if n == network {
			return core.Domain(i + 1)
		}
	}
	return 0
}
