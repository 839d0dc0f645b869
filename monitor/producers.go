package monitor

import (
	"context"
	"time"

	"github.com/nomad-xyz/agents/core"
	"github.com/nomad-xyz/agents/indexer"
)

// DispatchProducer continuously follows a home's dispatch stream from its
// indexer and emits into Out.
type DispatchProducer struct {
	Network      string
	Indexer      indexer.EventIndexer
	PollInterval time.Duration
	cursor       uint32

	Out DispatchChan
}

func (p *DispatchProducer) Run(ctx context.Context) error {
	return pollLoop(ctx, p.PollInterval, func(ctx context.Context) error {
		head, err := p.Indexer.GetBlockNumber(ctx)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		if head <= p.cursor {
			return nil
		}
		messages, err := p.Indexer.FetchSortedMessages(ctx, p.cursor, head)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		for _, raw := range messages {
			msg, err := core.DecodeMessage(raw.Message)
			if err != nil {
				return err
			}
			select {
			case p.Out <- DispatchEvent{Message: msg, Meta: core.Meta{BlockNumber: raw.BlockNumber}}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p.cursor = head
		return nil
	})
}

// UpdateProducer continuously follows a home's update stream.
type UpdateProducer struct {
	Network      string
	Indexer      indexer.EventIndexer
	PollInterval time.Duration
	cursor       uint32

	Out UpdateChan
}

func (p *UpdateProducer) Run(ctx context.Context) error {
	return pollLoop(ctx, p.PollInterval, func(ctx context.Context) error {
		head, err := p.Indexer.GetBlockNumber(ctx)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		if head <= p.cursor {
			return nil
		}
		updates, err := p.Indexer.FetchSortedUpdates(ctx, p.cursor, head)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		for _, u := range updates {
			select {
			case p.Out <- UpdateEvent{Update: u}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p.cursor = head
		return nil
	})
}

// RelayProducer follows a single replica's update stream (it "relays" the
// home's committed roots).
type RelayProducer struct {
	Network      string
	Indexer      indexer.EventIndexer
	PollInterval time.Duration
	cursor       uint32

	Out RelayChan
}

func (p *RelayProducer) Run(ctx context.Context) error {
	return pollLoop(ctx, p.PollInterval, func(ctx context.Context) error {
		head, err := p.Indexer.GetBlockNumber(ctx)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		if head <= p.cursor {
			return nil
		}
		updates, err := p.Indexer.FetchSortedUpdates(ctx, p.cursor, head)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		for _, u := range updates {
			select {
			case p.Out <- RelayEvent{Update: u}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p.cursor = head
		return nil
	})
}

// ProcessProducer follows a single replica's process stream.
type ProcessProducer struct {
	Network      string
	Indexer      indexer.EventIndexer
	PollInterval time.Duration
	cursor       uint32

	Out ProcessChan
}

func (p *ProcessProducer) Run(ctx context.Context) error {
	return pollLoop(ctx, p.PollInterval, func(ctx context.Context) error {
		head, err := p.Indexer.GetBlockNumber(ctx)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		if head <= p.cursor {
			return nil
		}
		messages, err := p.Indexer.FetchSortedMessages(ctx, p.cursor, head)
		if err != nil {
			return &core.ChainCommunicationError{Chain: p.Network, Err: err}
		}
		for _, raw := range messages {
			msg, err := core.DecodeMessage(raw.Message)
			if err != nil {
				return err
			}
			select {
			case p.Out <- ProcessEvent{Leaf: core.HashLeaf(msg), Meta: core.Meta{BlockNumber: raw.BlockNumber}}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p.cursor = head
		return nil
	})
}

func pollLoop(ctx context.Context, interval time.Duration, tick func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
