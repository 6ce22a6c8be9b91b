package stream

import (
	"context"
	"sync"

	"tada-core/internal/decoder"
)

// Handler receives every confirmed transaction envelope pulled off the
// chain. Implementations must not block the caller for long; the engine
// schedules work on its own pool.
type Handler func(ctx context.Context, env *decoder.TransactionEnvelope)

// Source feeds transactions into the pipeline until its context ends.
type Source interface {
	Run(ctx context.Context) error
}

// sigCache is a fixed-size ring of recently seen signatures. One
// transaction can mention several monitored programs and arrive once
// per subscription, so the first sighting wins.
type sigCache struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
}

func newSigCache(size int) *sigCache {
	return &sigCache{
		seen: make(map[string]struct{}, size),
		ring: make([]string, size),
	}
}

// Seen marks sig and reports whether it was already present.
func (c *sigCache) Seen(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[sig]; ok {
		return true
	}
	if old := c.ring[c.next]; old != "" {
		delete(c.seen, old)
	}
	c.ring[c.next] = sig
	c.next = (c.next + 1) % len(c.ring)
	c.seen[sig] = struct{}{}
	return false
}
