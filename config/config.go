// Package config loads the NomadConfig document that drives the watcher,
// sync, and monitor subsystems: a JSON file (located by CONFIG_PATH or
// fetched from CONFIG_URL), overlaid with per-network environment
// variables.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// RPCStyle selects the wire protocol a network's chain abstraction speaks.
type RPCStyle string

const (
	RPCStyleEthereum  RPCStyle = "ethereum"
	RPCStyleSubstrate RPCStyle = "substrate"
)

// CoreContracts names the on-chain proxy addresses for one network's home
// and its replicas of every other network, keyed by the remote network name
// the replica mirrors.
type CoreContracts struct {
	Home struct {
		Proxy string `json:"proxy"`
	} `json:"home"`
	Replicas map[string]struct {
		Proxy string `json:"proxy"`
	} `json:"replicas"`
}

// AgentConfig carries the per-network knobs shared by every agent binary.
type AgentConfig struct {
	Interval time.Duration `json:"interval"`
	DB       string        `json:"db"`
	Metrics  struct {
		Port int `json:"port"`
	} `json:"metrics"`
}

// NetworkProtocol mirrors protocol.networks[*].specs from the NomadConfig
// schema.
type NetworkProtocol struct {
	Specs struct {
		FinalizationBlocks uint64 `json:"finalizationBlocks"`
	} `json:"specs"`
}

// Config is the Go-native rendering of the NomadConfig JSON document.
// Only the fields the watcher, sync, and monitor subsystems actually read
// are modeled; the rest of the upstream schema (bridge, gas, kathy) is
// intentionally left unparsed.
type Config struct {
	Version     int                        `json:"version"`
	Environment string                     `json:"environment"`
	Networks    []string                   `json:"networks"`
	RPCs        map[string][]string        `json:"rpcs"`
	Protocol    map[string]NetworkProtocol `json:"-"`
	Core        map[string]CoreContracts   `json:"core"`
	Agent       map[string]AgentConfig     `json:"agent"`

	// Overlay resolves per network, filled in by Overlay after the JSON
	// document is loaded.
	Overlay map[string]NetworkOverlay `json:"-"`
}

// NetworkOverlay holds the environment-variable-sourced settings for one
// network: RPC style, connection URL, and signer identifiers. None of
// these are safe to bake into the checked-in JSON document, so they are
// resolved exclusively from the process environment.
type NetworkOverlay struct {
	RPCStyle            RPCStyle
	ConnectionURL       string
	TxSignerID          string
	AttestationSignerID string
}

// Load locates the config document via CONFIG_PATH or CONFIG_URL, parses
// it, and overlays every named network with its environment variables.
func Load() (*Config, error) {
	body, err := locate()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.Overlay = make(map[string]NetworkOverlay, len(cfg.Networks))
	for _, network := range cfg.Networks {
		overlay, err := overlayFor(network)
		if err != nil {
			return nil, err
		}
		cfg.Overlay[network] = overlay
	}

	return &cfg, nil
}

func locate() ([]byte, error) {
	if url := os.Getenv("CONFIG_URL"); url != "" {
		resp, err := http.Get(url)
		if err != nil {
			return nil, fmt.Errorf("config: fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("config: fetch %s: status %s", url, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return os.ReadFile(path)
	}

	return nil, fmt.Errorf("config: neither CONFIG_URL nor CONFIG_PATH set")
}

func overlayFor(network string) (NetworkOverlay, error) {
	prefix := strings.ToUpper(network) + "_"

	style := RPCStyle(os.Getenv(prefix + "RPCSTYLE"))
	if style == "" {
		style = RPCStyle(os.Getenv("DEFAULT_RPCSTYLE"))
	}
	if style == "" {
		style = RPCStyleEthereum
	}
	if style != RPCStyleEthereum && style != RPCStyleSubstrate {
		return NetworkOverlay{}, fmt.Errorf("config: network %s: unknown rpc style %q", network, style)
	}

	return NetworkOverlay{
		RPCStyle:            style,
		ConnectionURL:       os.Getenv(prefix + "CONNECTION_URL"),
		TxSignerID:          os.Getenv(prefix + "TXSIGNER_ID"),
		AttestationSignerID: os.Getenv(prefix + "ATTESTATION_SIGNER_ID"),
	}, nil
}
