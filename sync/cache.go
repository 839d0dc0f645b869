// Package sync implements the caching contract: it joins a chain handle,
// an event indexer, and the indexed store. A background task keeps the
// store current by walking the chain in chunks; the read path answers
// from the store when the datum is indexable and from the chain
// otherwise. See spec.md §4.D.
package sync

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/nomad-xyz/agents/chain"
	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/db"
	"github.com/nomad-xyz/agents/indexer"
	"github.com/nomad-xyz/agents/metrics"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by sync.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Config bounds a CachingContract's background sync task.
type Config struct {
	Network           string
	Contract          string
	FromHeight        uint32
	ChunkSize         uint32
	FinalizationLag   uint32
	PollInterval      time.Duration
}

// CachingContract wraps a chain-abstraction handle and an indexer over a
// shared Store. Read operations on indexable data are answered from the
// store; everything else delegates to the chain.
type CachingContract struct {
	cfg     Config
	chain   chain.Common
	indexer indexer.EventIndexer
	store   *db.Store
	metrics *metrics.Metrics

	cursor uint32
}

// New builds a CachingContract. It does not start the background sync
// task; call Run for that.
func New(cfg Config, c chain.Common, idx indexer.EventIndexer, store *db.Store, m *metrics.Metrics) *CachingContract {
	return &CachingContract{cfg: cfg, chain: c, indexer: idx, store: store, metrics: m}
}

// nextBlockToProcess re-derives the sync cursor as
// max(from_height, latest_seen_block_in_store + 1), so that restarting the
// process never replays more history than necessary but also never skips
// a block whose write completion was not witnessed by a subsequent
// checkpoint.
func (c *CachingContract) nextBlockToProcess(ctx context.Context) (uint32, error) {
	cursor := c.cfg.FromHeight
	root, ok, err := c.store.RetrieveLatestRoot()
	if err != nil {
		return 0, err
	}
	if ok {
		meta, ok, err := c.store.RetrieveUpdateMetadata(root)
		if err != nil {
			return 0, err
		}
		if ok && uint32(meta.BlockNumber)+1 > cursor {
			cursor = uint32(meta.BlockNumber) + 1
		}
	}
	return cursor, nil
}

// Run runs the background sync task until ctx is cancelled. Its invariant
// is: eventually every block in [from_height, head-L) has been processed
// exactly once. On each tick it fetches sorted updates and messages for
// the window [cursor, to) where to = min(cursor+chunk_size, head-L),
// stores them, advances the cursor, and records it and the head-lag in the
// SyncCursor and SyncHeadLag gauges.
func (c *CachingContract) Run(ctx context.Context) error {
	cursor, err := c.nextBlockToProcess(ctx)
	if err != nil {
		return err
	}
	c.cursor = cursor
	log.Infof("%s/%s: sync starting at block %d", c.cfg.Network, c.cfg.Contract, cursor)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *CachingContract) tick(ctx context.Context) error {
	head, err := c.indexer.GetBlockNumber(ctx)
	if err != nil {
		return &core.ChainCommunicationError{Chain: c.cfg.Network, Err: err}
	}
	if head < c.cfg.FinalizationLag {
		return nil
	}
	finalized := head - c.cfg.FinalizationLag
	if c.cursor >= finalized {
		c.recordMetrics(finalized)
		return nil
	}

	to := c.cursor + c.cfg.ChunkSize
	if to > finalized {
		to = finalized
	}

	updates, err := c.indexer.FetchSortedUpdates(ctx, c.cursor, to)
	if err != nil {
		return &core.ChainCommunicationError{Chain: c.cfg.Network, Err: err}
	}
	for _, u := range updates {
		if err := c.store.StoreUpdatesAndMeta(u); err != nil {
			return err
		}
	}

	messages, err := c.indexer.FetchSortedMessages(ctx, c.cursor, to)
	if err != nil {
		return &core.ChainCommunicationError{Chain: c.cfg.Network, Err: err}
	}
	for _, m := range messages {
		if err := c.store.StoreRawCommittedMessage(m); err != nil {
			return err
		}
	}

	c.cursor = to
	c.recordMetrics(finalized)
	return nil
}

func (c *CachingContract) recordMetrics(finalized uint32) {
	if c.metrics == nil {
		return
	}
	c.metrics.SyncCursor.WithLabelValues(c.cfg.Network, c.cfg.Contract).Set(float64(c.cursor))
	lag := int64(finalized) - int64(c.cursor)
	if lag < 0 {
		lag = 0
	}
	c.metrics.SyncHeadLag.WithLabelValues(c.cfg.Network, c.cfg.Contract).Set(float64(lag))
}

// State answers state() from the chain directly: it is not indexable.
func (c *CachingContract) State(ctx context.Context) (core.ChainState, error) {
	return c.chain.State(ctx)
}

// CommittedRoot answers committed_root() from the chain directly.
func (c *CachingContract) CommittedRoot(ctx context.Context) (core.Root, error) {
	return c.chain.CommittedRoot(ctx)
}

// Updater answers updater() from the chain directly.
func (c *CachingContract) Updater(ctx context.Context) (core.Address, error) {
	return c.chain.Updater(ctx)
}

// UpdateByPreviousRoot answers from the store: it is indexable.
func (c *CachingContract) UpdateByPreviousRoot(previousRoot core.Root) (core.SignedUpdate, bool, error) {
	return c.store.UpdateByPreviousRoot(previousRoot)
}

// MessageByLeafIndex answers from the store: it is indexable.
func (c *CachingContract) MessageByLeafIndex(idx uint32) ([]byte, bool, error) {
	return c.store.MessageByLeafIndex(idx)
}
