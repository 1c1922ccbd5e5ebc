package broadcast

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"github.com/livecaption/wsbroadcast/pkg/loop"
)

// Server is a WebSocket broadcast server bound to one port and driven by its
// own event loop.
//
// Every accepted connection is subscribed to TopicBroadcast and to the topic
// of its request path. Messages are fanned out on the loop goroutine; the
// exported methods are safe for concurrent use.
type Server struct {
	cfg      *Config
	logger   *slog.Logger
	observer Observer

	state atomic.Int32
	loop  *loop.Loop
	addr  atomic.Value

	// started is closed when the server leaves StateCreated for good: by
	// Start returning, or by Stop before any Start.
	started chan struct{}

	// app is installed by Bind and only read on the loop goroutine.
	app *app

	connections atomic.Int64
	published   atomic.Uint64
	dropped     atomic.Uint64
	staleCount  atomic.Uint64
}

// Stats is a point-in-time snapshot of a Server's counters.
type Stats struct {
	Port        int
	State       State
	Connections int64
	Published   uint64
	Dropped     uint64
	Stale       uint64
}

// New creates a Server. A nil cfg uses DefaultConfig(0). The config is copied.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig(0)
	} else {
		cfg = cfg.Clone()
	}
	cfg.applyDefaults()

	s := &Server{
		cfg:      cfg,
		started:  make(chan struct{}),
		observer: cfg.Observer,
		logger: cfg.Logger.With(
			"component", "broadcast",
			"port", cfg.Port,
		),
	}
	s.addr.Store("")
	s.loop = loop.New(loop.Config{
		Name:         fmt.Sprintf("port=%d", cfg.Port),
		QueueSize:    cfg.DeferQueueSize,
		LockOSThread: cfg.LockOSThread,
		OnExit:       s.onLoopExit,
		Logger:       cfg.Logger,
	})
	return s
}

// Start binds the listening socket on a new event loop goroutine and blocks
// until the bind attempt has completed.
//
// On failure the loop goroutine has exited, the server is StateFailed and the
// returned error matches ErrBind. Start on a server that was already started
// returns ErrAlreadyStarted, or ErrServerClosed once it has stopped or failed.
func (s *Server) Start() error {
	if !s.transition(StateCreated, StateStarting) {
		if s.State().Terminal() {
			return ErrServerClosed
		}
		return ErrAlreadyStarted
	}
	defer close(s.started)

	err := s.loop.Start(func(l *loop.Loop) loop.App {
		return newApp(s, l)
	})
	if err != nil {
		s.logger.Error("broadcast server failed to start", "error", err)
		return err
	}
	return nil
}

// onLoopExit runs on the loop goroutine once the application is closed.
func (s *Server) onLoopExit(err error) {
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("broadcast server event loop ended", "error", err)
		return
	}
	s.setState(StateStopped)
	s.logger.Info("broadcast server stopped")
}

// Broadcast publishes message to every client of the server.
//
// It may be called from any goroutine and never returns an error: invalid
// UTF-8 and messages sent to a server that is not listening are logged and
// dropped. Messages from one goroutine are delivered in call order.
func (s *Server) Broadcast(message string) {
	s.publish(TopicBroadcast, message)
}

// BroadcastPath publishes message to the clients connected on path.
func (s *Server) BroadcastPath(path, message string) {
	s.publish(PathTopic(path), message)
}

func (s *Server) publish(topic, message string) {
	if !utf8.ValidString(message) {
		s.logger.Warn("dropping message", "error", ErrInvalidText, "topic", topic)
		s.observer.MessageDropped(s.cfg.Port, DropInvalidText)
		return
	}
	if !s.IsListening() {
		s.stale(topic, "server not listening")
		return
	}

	data := []byte(message)
	if !s.loop.Defer(func() { s.app.publish(topic, data) }) {
		s.stale(topic, "event loop not accepting")
	}
}

// stale records a message that arrived after the server stopped listening.
func (s *Server) stale(topic, reason string) {
	s.staleCount.Add(1)
	s.observer.MessageDropped(s.cfg.Port, DropNotListening)
	s.logger.Warn("dropping message",
		"error", ErrNotListening,
		"topic", topic,
		"reason", reason)
}

// IsListening reports whether the server is bound and accepting connections.
// It never blocks.
func (s *Server) IsListening() bool {
	return s.State() == StateListening
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Stop closes every client with a going-away close frame, stops the event
// loop and waits for its goroutine to exit. It is idempotent and safe to call
// from any goroutine, including from the loop itself. A Stop racing Start
// waits for the bind result and then tears the server down.
func (s *Server) Stop() {
	if s.transition(StateCreated, StateStopped) {
		close(s.started)
		return
	}
	<-s.started
	s.loop.Stop()
}

// Done returns a channel closed when the event loop goroutine has exited.
// It is never closed for a server that was never started.
func (s *Server) Done() <-chan struct{} {
	return s.loop.Done()
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Addr returns the bound listener address, or "" before the server listened.
func (s *Server) Addr() string {
	return s.addr.Load().(string)
}

// Stats returns a snapshot of the server's counters.
func (s *Server) Stats() Stats {
	return Stats{
		Port:        s.cfg.Port,
		State:       s.State(),
		Connections: s.connections.Load(),
		Published:   s.published.Load(),
		Dropped:     s.dropped.Load(),
		Stale:       s.staleCount.Load(),
	}
}

// String implements fmt.Stringer.
func (s *Server) String() string {
	return fmt.Sprintf("broadcast.Server(port=%d, %s)", s.cfg.Port, s.State())
}

func (s *Server) transition(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.observer.StateChanged(s.cfg.Port, from, to)
	s.logger.Debug("state changed", "from", from.String(), "to", to.String())
	return true
}

// setState moves the server to to unless it is already terminal. A stopped
// server may still become failed when its loop ended with an error.
func (s *Server) setState(to State) {
	for {
		from := s.State()
		if from == to {
			return
		}
		if from == StateFailed || (from == StateStopped && to != StateFailed) {
			return
		}
		if s.transition(from, to) {
			return
		}
	}
}

// leaveListening is called when teardown begins so IsListening turns false
// before clients are closed.
func (s *Server) leaveListening() {
	s.transition(StateListening, StateStopped)
}
