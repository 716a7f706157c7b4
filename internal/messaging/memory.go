package messaging

import (
	"strings"
	"sync"
)

// Handler receives a published message.
type Handler func(subject string, payload []byte)

// MemoryBus is an in-process stand-in for JetStream used by tests and local
// wiring. Delivery is synchronous and in publish order; subscribers register
// wildcard filters of the form "todo.<topic>.>".
type MemoryBus struct {
	mu   sync.RWMutex
	subs []memorySub
}

type memorySub struct {
	prefix  string
	handler Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a handler for a subject filter. Only the trailing ">"
// wildcard is supported, which is all the services use.
func (b *MemoryBus) Subscribe(filter string, handler Handler) {
	prefix := strings.TrimSuffix(filter, ">")
	b.mu.Lock()
	b.subs = append(b.subs, memorySub{prefix: prefix, handler: handler})
	b.mu.Unlock()
}

// Publish delivers the payload to every matching subscriber before returning.
func (b *MemoryBus) Publish(subject string, payload []byte) error {
	b.mu.RLock()
	subs := make([]memorySub, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if strings.HasPrefix(subject, sub.prefix) {
			sub.handler(subject, payload)
		}
	}
	return nil
}
