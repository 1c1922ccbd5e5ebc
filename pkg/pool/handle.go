package pool

import (
	"context"
	"sync/atomic"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
)

// Broadcaster is the producer-side view of a broadcast server.
type Broadcaster interface {
	// Broadcast publishes message to every client. It never blocks on the
	// network and never returns an error.
	Broadcast(message string)

	// IsListening reports whether the server accepts connections.
	IsListening() bool
}

var _ Broadcaster = (*Handle)(nil)

// Handle is a strong reference to a pooled server. It is safe for
// concurrent use.
type Handle struct {
	pool     *Pool
	sh       *shared
	released atomic.Bool
}

func newHandle(p *Pool, sh *shared) *Handle {
	return &Handle{pool: p, sh: sh}
}

// Broadcast publishes message to every client of the server.
func (h *Handle) Broadcast(message string) {
	h.sh.server.Broadcast(message)
}

// BroadcastPath publishes message to the clients connected on path.
func (h *Handle) BroadcastPath(path, message string) {
	h.sh.server.BroadcastPath(path, message)
}

// IsListening reports whether the server is listening.
func (h *Handle) IsListening() bool {
	return h.sh.server.IsListening()
}

// Port returns the server port.
func (h *Handle) Port() int {
	return h.sh.port
}

// Addr returns the bound listener address.
func (h *Handle) Addr() string {
	return h.sh.server.Addr()
}

// Stats returns the server's counters.
func (h *Handle) Stats() broadcast.Stats {
	return h.sh.server.Stats()
}

// Stop stops the shared server for every holder. The next EnsureServer for
// the port creates a new server; this handle still needs Release.
func (h *Handle) Stop() {
	h.pool.stop(context.Background(), h.sh.server)
}

// Release drops this reference. Releasing the last reference to a server
// stops it and expires its pool entry. Release is idempotent.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.pool.release(h.sh)
}

// Same reports whether h and other refer to the same server instance.
func (h *Handle) Same(other *Handle) bool {
	return other != nil && h.sh == other.sh
}
