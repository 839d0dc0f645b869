package watcher

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/core"
)

// handleDoubleUpdateFailure implements the double-update response
// orchestration of §4.F: call double_update(d) on the home and every
// replica concurrently and await all outcomes, then build a signed
// failure notification and broadcast unenroll_replica to every connection
// manager concurrently. Every outcome is logged; partial success is
// preferred to abort (§7).
func (w *Watcher) handleDoubleUpdateFailure(ctx context.Context, d *core.DoubleUpdate) error {
	contracts := make([]chain.Common, 0, 1+len(w.settings.Replicas))
	contracts = append(contracts, w.settings.Home)
	for _, r := range w.settings.Replicas {
		contracts = append(contracts, r)
	}

	var wg sync.WaitGroup
	for _, c := range contracts {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := c.DoubleUpdate(ctx, *d)
			if err != nil {
				log.Errorf("double_update on %s failed: %v", c.Name(), err)
				return
			}
			log.Infof("double_update on %s included in tx %s", c.Name(), outcome.TxHash)
		}()
	}
	wg.Wait()

	return w.broadcastFailure(ctx)
}

// handleImproperUpdateFailure implements the improper-update response: no
// double_update submissions, straight to building the failure
// notification and broadcasting unenroll_replica.
func (w *Watcher) handleImproperUpdateFailure(ctx context.Context) error {
	return w.broadcastFailure(ctx)
}

// broadcastFailure builds a SignedFailureNotification over the configured
// home domain and updater address, then concurrently calls
// unenroll_replica on every connection manager, logging every outcome.
func (w *Watcher) broadcastFailure(ctx context.Context) error {
	sf, err := BuildFailureNotification(w.settings.AttestationKey, w.settings.Home.LocalDomain(), w.settings.Updater)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, cm := range w.settings.ConnectionManagers {
		cm := cm
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := cm.UnenrollReplica(ctx, sf)
			if err != nil {
				log.Errorf("unenroll_replica on %s failed: %v", cm.Name(), err)
				return
			}
			log.Infof("unenroll_replica on %s included in tx %s", cm.Name(), outcome.TxHash)
		}()
	}
	wg.Wait()
	return nil
}

// BuildFailureNotification signs a FailureNotification for homeDomain and
// updater with key. Exported so a standalone broadcast tool (e.g. a
// killswitch utility) can reuse the exact signing routine the watcher uses
// internally.
func BuildFailureNotification(key *ecdsa.PrivateKey, homeDomain core.Domain, updater core.Address) (core.SignedFailureNotification, error) {
	return core.SignFailureNotification(key, core.FailureNotification{
		HomeDomain: homeDomain,
		Updater:    updater,
	})
}
