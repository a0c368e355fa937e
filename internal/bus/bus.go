// Package bus defines the messages the orchestrator exchanges with peer
// emulation servers over the session's control channel, plus an in-memory
// implementation used by tests and single-host runs. The channel transport
// itself (sockets, sessions, retries) belongs to the session layer.
package bus

import (
	"context"
	"fmt"
	"sync"
)

// MessageType discriminates control-channel messages.
type MessageType int

const (
	// MessageConfigUpdate carries a full key/value configuration set for
	// one logical manager, pushed from the authoritative server.
	MessageConfigUpdate MessageType = iota
	// MessageLinkAdded announces a new link between two nodes; the
	// orchestrator uses it solely to track per-server interface counts.
	MessageLinkAdded
)

// ConfigUpdate is the "update configuration" push. Delivery is one-shot:
// no acknowledgment, no retry. A lost update leaves the peer deferred
// until the authoritative side negotiates again.
type ConfigUpdate struct {
	// Source names the logical manager the values belong to.
	Source string
	Values map[string]string
}

// LinkAdded identifies the two endpoints of a newly added link. LinkNode
// is the link-layer endpoint; Servers lists the emulation servers hosting
// the peer endpoint.
type LinkAdded struct {
	LinkNode int
	PeerNode int
	Servers  []string
}

// Message is one control-channel message.
type Message struct {
	Type   MessageType
	Config *ConfigUpdate
	Link   *LinkAdded
}

// Bus sends control messages to a named peer server.
type Bus interface {
	Send(ctx context.Context, server string, msg Message) error
}

// Handler consumes inbound control messages.
type Handler func(msg Message)

// MemoryBus is a loopback Bus for tests and single-host runs: messages
// sent to a registered server name are delivered synchronously to its
// handlers.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewMemoryBus returns an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Register subscribes a handler for messages addressed to server.
func (b *MemoryBus) Register(server string, h Handler) {
	b.mu.Lock()
	b.handlers[server] = append(b.handlers[server], h)
	b.mu.Unlock()
}

// Send delivers msg to every handler registered for server. Unknown
// servers are an error so negotiation failures surface in tests.
func (b *MemoryBus) Send(ctx context.Context, server string, msg Message) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[server]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no handler registered for server %q", server)
	}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}
