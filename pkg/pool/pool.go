package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"golang.org/x/sync/errgroup"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
)

// Op names a pool operation passed to interceptors.
type Op string

const (
	OpEnsure  Op = "ensure"
	OpStop    Op = "stop"
	OpStopAll Op = "stop_all"
)

// Interceptor wraps a pool operation. It must call next exactly once and
// return its error, and may decorate ctx (e.g. with a span).
type Interceptor func(ctx context.Context, op Op, port int, next func(context.Context) error) error

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger. Servers inherit it unless the server
// config carries its own.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithServerConfig sets the template config for new servers. Its Port is
// replaced per server.
func WithServerConfig(cfg *broadcast.Config) Option {
	return func(p *Pool) {
		if cfg != nil {
			p.serverCfg = cfg.Clone()
		}
	}
}

// WithObserver sets the observer of every server the pool creates.
func WithObserver(obs broadcast.Observer) Option {
	return func(p *Pool) {
		p.observer = obs
	}
}

// WithInterceptor adds interceptors. The first added is the outermost.
func WithInterceptor(interceptors ...Interceptor) Option {
	return func(p *Pool) {
		p.interceptors = append(p.interceptors, interceptors...)
	}
}

// shared is the strong side of an entry. Only Handles point to it.
type shared struct {
	port   int
	server *broadcast.Server
	refs   atomic.Int64
}

// entry is the pool's non-owning view of a server. server is kept only so
// an expired entry's server can be joined before its port is rebound.
type entry struct {
	ptr    weak.Pointer[shared]
	server *broadcast.Server
}

// upgrade returns the shared server with one more reference, or nil when the
// entry has expired.
func (e *entry) upgrade() *shared {
	sh := e.ptr.Value()
	if sh == nil || sh.server.State().Terminal() {
		return nil
	}
	for {
		n := sh.refs.Load()
		if n <= 0 {
			return nil
		}
		if sh.refs.CompareAndSwap(n, n+1) {
			return sh
		}
	}
}

// Pool maps ports to running broadcast servers. It is safe for concurrent
// use; a nil *Pool is not.
type Pool struct {
	logger       *slog.Logger
	serverCfg    *broadcast.Config
	observer     broadcast.Observer
	interceptors []Interceptor

	// mu serializes EnsureServer, expiry and the StopAll snapshot. Servers
	// are stopped outside it; retiring holds those still being stopped so a
	// re-created port can join its old server before binding.
	mu       sync.Mutex
	entries  map[int]*entry
	retiring map[int]*broadcast.Server
	closed   bool

	created atomic.Uint64
}

// New creates an empty Pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		logger:   slog.Default(),
		entries:  make(map[int]*entry),
		retiring: make(map[int]*broadcast.Server),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.serverCfg == nil {
		p.serverCfg = broadcast.DefaultConfig(0)
	}
	if p.serverCfg.Logger == nil {
		p.serverCfg.Logger = p.logger
	}
	if p.observer != nil {
		p.serverCfg.Observer = p.observer
	}
	p.logger = p.logger.With("component", "pool")
	return p
}

// EnsureServer returns a Handle to the live server for port, creating and
// starting one if there is none.
//
// On the creation path EnsureServer blocks until the bind result is known; a
// bind failure is returned as an *Error matching broadcast.ErrBind and
// registers nothing. Concurrent calls for one port all receive handles to the
// same server.
func (p *Pool) EnsureServer(ctx context.Context, port int) (*Handle, error) {
	var h *Handle
	err := p.intercept(ctx, OpEnsure, port, func(ctx context.Context) error {
		var err error
		h, err = p.ensure(ctx, port)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Pool) ensure(ctx context.Context, port int) (*Handle, error) {
	if port <= 0 || port > 65535 {
		return nil, &Error{Op: OpEnsure, Port: port, Err: ErrInvalidPort}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: OpEnsure, Port: port, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, &Error{Op: OpEnsure, Port: port, Err: ErrClosed}
	}

	if e, ok := p.entries[port]; ok {
		if sh := e.upgrade(); sh != nil {
			p.logger.Debug("reusing broadcast server", "port", port, "refs", sh.refs.Load())
			return newHandle(p, sh), nil
		}
		// Expired, but the last release or a collected handle may still be
		// tearing the old server down.
		p.stop(ctx, e.server)
		delete(p.entries, port)
		p.logger.Debug("pool entry expired", "port", port)
	}
	if old, ok := p.retiring[port]; ok {
		p.logger.Debug("waiting for previous server to stop", "port", port)
		p.stop(ctx, old)
		delete(p.retiring, port)
	}

	srv := broadcast.New(p.serverCfg.WithPort(port))
	if err := srv.Start(); err != nil {
		p.logger.Warn("broadcast server failed to start", "port", port, "error", err)
		return nil, &Error{Op: OpEnsure, Port: port, Err: err}
	}

	sh := &shared{port: port, server: srv}
	sh.refs.Store(1)
	p.entries[port] = &entry{ptr: weak.Make(sh), server: srv}
	p.created.Add(1)

	// Handles dropped without Release still stop the server.
	runtime.AddCleanup(sh, func(srv *broadcast.Server) {
		if srv.State().Terminal() {
			return
		}
		slog.Default().Warn("broadcast server handles leaked, stopping server", "port", srv.Port())
		go srv.Stop()
	}, srv)

	p.logger.Info("broadcast server created", "port", port)
	return newHandle(p, sh), nil
}

// release drops one reference. The last one stops the server and expires the
// entry if it still points to sh.
func (p *Pool) release(sh *shared) {
	if sh.refs.Add(-1) > 0 {
		return
	}

	p.mu.Lock()
	if e, ok := p.entries[sh.port]; ok && e.ptr.Value() == sh {
		delete(p.entries, sh.port)
	}
	p.retire(sh.port, sh.server)
	p.mu.Unlock()

	p.logger.Debug("last handle released, stopping server", "port", sh.port)
	p.stop(context.Background(), sh.server)
	p.retired(sh.port, sh.server)
}

// retire records srv as stopping. The caller holds p.mu.
func (p *Pool) retire(port int, srv *broadcast.Server) {
	select {
	case <-srv.Done():
		// Already joined; nothing to wait for.
	default:
		p.retiring[port] = srv
	}
}

// retired forgets srv once it has been joined.
func (p *Pool) retired(port int, srv *broadcast.Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retiring[port] == srv {
		delete(p.retiring, port)
	}
}

func (p *Pool) stop(ctx context.Context, srv *broadcast.Server) {
	_ = p.intercept(ctx, OpStop, srv.Port(), func(context.Context) error {
		srv.Stop()
		return nil
	})
}

// StopAll stops every live server and empties the pool. Servers are stopped
// concurrently outside the pool lock; StopAll returns once all of them have
// been joined. Outstanding handles stay valid but their server is stopped.
// The pool remains usable.
func (p *Pool) StopAll() {
	ctx := context.Background()
	_ = p.intercept(ctx, OpStopAll, 0, func(ctx context.Context) error {
		p.stopAll(ctx)
		return nil
	})
}

func (p *Pool) stopAll(ctx context.Context) {
	p.mu.Lock()
	servers := make([]*broadcast.Server, 0, len(p.entries))
	for port, e := range p.entries {
		servers = append(servers, e.server)
		p.retire(port, e.server)
	}
	p.entries = make(map[int]*entry)
	p.mu.Unlock()

	if len(servers) == 0 {
		return
	}
	p.logger.Info("stopping all broadcast servers", "count", len(servers))

	var g errgroup.Group
	for _, srv := range servers {
		g.Go(func() error {
			p.stop(ctx, srv)
			p.retired(srv.Port(), srv)
			return nil
		})
	}
	_ = g.Wait()
}

// Close stops every server and makes later EnsureServer calls fail with
// ErrClosed. It is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.StopAll()
	return nil
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if sh := e.ptr.Value(); sh != nil && sh.refs.Load() > 0 {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of every live server, ordered by port.
func (p *Pool) Stats() []broadcast.Stats {
	p.mu.Lock()
	stats := make([]broadcast.Stats, 0, len(p.entries))
	for _, e := range p.entries {
		if sh := e.ptr.Value(); sh != nil && sh.refs.Load() > 0 {
			stats = append(stats, sh.server.Stats())
		}
	}
	p.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Port < stats[j].Port })
	return stats
}

// Created returns the number of servers the pool has started.
func (p *Pool) Created() uint64 {
	return p.created.Load()
}

func (p *Pool) intercept(ctx context.Context, op Op, port int, fn func(context.Context) error) error {
	next := fn
	for i := len(p.interceptors) - 1; i >= 0; i-- {
		ic, inner := p.interceptors[i], next
		next = func(ctx context.Context) error {
			return ic(ctx, op, port, inner)
		}
	}
	return next(ctx)
}
