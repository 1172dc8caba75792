package pubsub

import (
	"context"
	"sync"

	"github.com/relaymesh/media-cluster/internal/clusterid"
)

// MemoryBus is an in-process Bus: publishes on a channel are delivered
// directly to every MemoryBus instance sharing the same *hub that has
// called SubStart on it. The package tests use it; cmd/edge always
// builds a NatsBus instead.
type MemoryBus struct {
	hub     *memoryHub
	handler Handler
}

type memoryHub struct {
	mu   sync.Mutex
	subs map[clusterid.ChannelId]map[*MemoryBus]struct{}
}

// NewMemoryHub creates a shared hub that multiple MemoryBus instances
// (one per node, in a single-process simulation) can attach to.
func NewMemoryHub() *memoryHub {
	return &memoryHub{subs: make(map[clusterid.ChannelId]map[*MemoryBus]struct{})}
}

// NewMemoryBus attaches a new bus handle to hub. A nil hub creates a
// private one-node hub.
func NewMemoryBus(hub *memoryHub) *MemoryBus {
	if hub == nil {
		hub = NewMemoryHub()
	}
	return &MemoryBus{hub: hub}
}

func (b *MemoryBus) SetHandler(h Handler) { b.handler = h }

func (b *MemoryBus) PubStart(ctx context.Context, channel clusterid.ChannelId) error { return nil }
func (b *MemoryBus) PubStop(ctx context.Context, channel clusterid.ChannelId) error  { return nil }

func (b *MemoryBus) PubData(ctx context.Context, channel clusterid.ChannelId, seq uint64, data []byte) error {
	b.hub.mu.Lock()
	targets := make([]*MemoryBus, 0, len(b.hub.subs[channel]))
	for sub := range b.hub.subs[channel] {
		targets = append(targets, sub)
	}
	b.hub.mu.Unlock()
	for _, sub := range targets {
		if sub.handler != nil {
			sub.handler.OnChannelData(channel, seq, data)
		}
	}
	return nil
}

func (b *MemoryBus) FeedbackAuto(ctx context.Context, channel clusterid.ChannelId, feedback []byte) error {
	b.hub.mu.Lock()
	targets := make([]*MemoryBus, 0, len(b.hub.subs[channel]))
	for sub := range b.hub.subs[channel] {
		targets = append(targets, sub)
	}
	b.hub.mu.Unlock()
	for _, sub := range targets {
		if sub.handler != nil {
			sub.handler.OnChannelFeedback(channel, feedback)
		}
	}
	return nil
}

func (b *MemoryBus) SubStart(ctx context.Context, channel clusterid.ChannelId) error {
	b.hub.mu.Lock()
	set, ok := b.hub.subs[channel]
	if !ok {
		set = make(map[*MemoryBus]struct{})
		b.hub.subs[channel] = set
	}
	set[b] = struct{}{}
	b.hub.mu.Unlock()
	if b.handler != nil {
		b.handler.OnChannelSubscribed(channel)
	}
	return nil
}

func (b *MemoryBus) SubStop(ctx context.Context, channel clusterid.ChannelId) error {
	b.hub.mu.Lock()
	if set, ok := b.hub.subs[channel]; ok {
		delete(set, b)
		if len(set) == 0 {
			delete(b.hub.subs, channel)
		}
	}
	b.hub.mu.Unlock()
	if b.handler != nil {
		b.handler.OnChannelUnsubscribed(channel)
	}
	return nil
}

func (b *MemoryBus) Close() error { return nil }
