package hmr

import (
	"context"
	"sync"
)

// Connection delivers payloads from a dev server and carries client messages
// back to it.
type Connection interface {
	// IsReady reports whether Send can deliver right now.
	IsReady() bool
	// Send delivers a client message.
	Send(ctx context.Context, p Payload) error
	// OnUpdate registers the handler for server payloads. Connections call
	// it sequentially, never concurrently.
	OnUpdate(handler func(Payload))
}

// handlerSlot stores the registered handler and serializes deliveries.
type handlerSlot struct {
	mu      sync.Mutex
	handler func(Payload)
}

func (s *handlerSlot) set(h func(Payload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *handlerSlot) deliver(p Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		s.handler(p)
	}
}
