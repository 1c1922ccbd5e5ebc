// Package pool keeps at most one live broadcast server per port.
//
// EnsureServer returns a Handle to the server for a port, creating and
// starting it on first use. Handles are the only strong references: the pool
// itself holds a weak pointer per port, so a server lives exactly as long as
// some caller holds an unreleased Handle.
//
//	p := pool.New(pool.WithLogger(logger))
//	defer p.Close()
//
//	h, err := p.EnsureServer(ctx, 9001)
//	if err != nil {
//	    // errors.Is(err, broadcast.ErrBind)
//	}
//	defer h.Release()
//	h.Broadcast("hello")
//
// Releasing the last Handle for a port stops its server and expires the
// entry; the next EnsureServer for that port binds a fresh server. A Handle
// that is dropped without Release has its server stopped once it is garbage
// collected.
package pool
