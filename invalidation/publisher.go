package invalidation

import (
	"context"

	"github.com/unkn0wn-root/casloader/clock"
)

// Publisher is the producer side spec.md leaves implicit: something has
// to tell the registry a key (or the whole cache) changed. It mirrors how
// the teacher's Invalidate bumps a generation and deletes a key in one
// call.
type Publisher struct {
	registry Registry
	clock    *clock.Service
}

// NewPublisher returns a Publisher writing through registry, minting
// tokens from clk.
func NewPublisher(registry Registry, clk *clock.Service) *Publisher {
	return &Publisher{registry: registry, clock: clk}
}

// InvalidateKey records that key changed under event, at a fresh purge
// token. Subscribed loaders delete key on their next operation.
func (p *Publisher) InvalidateKey(ctx context.Context, event, key string) error {
	token := p.clock.PurgeToken(true)
	return p.registry.PutRecord(ctx, event, key, token)
}

// InvalidateAll records a whole-cache purge under event, at a fresh purge
// token. Subscribed loaders purge entirely on their next operation.
func (p *Publisher) InvalidateAll(ctx context.Context, event string) error {
	token := p.clock.PurgeToken(true)
	return p.registry.PutRecord(ctx, event, PurgedKey, token)
}
