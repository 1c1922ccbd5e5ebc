package broadcast

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/livecaption/wsbroadcast/pkg/loop"
)

// app is the network application run by a Server's event loop. It is built
// and bound on the loop goroutine; its topic table is only touched there.
type app struct {
	s    *Server
	loop *loop.Loop

	ln       net.Listener
	http     *http.Server
	upgrader websocket.Upgrader

	// topics is owned by the event loop.
	topics *topicTable

	closed atomic.Bool

	// mu guards conns and shut. It exists so teardown, wherever it runs,
	// can close every client; it is never held across I/O.
	mu    sync.Mutex
	conns map[*subscriber]struct{}
	shut  bool

	// wg tracks the accept goroutine and every connection goroutine.
	wg sync.WaitGroup
}

func newApp(s *Server, l *loop.Loop) *app {
	a := &app{
		s:      s,
		loop:   l,
		topics: newTopicTable(),
		conns:  make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: false,
			// No origin or credential checks: any client may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.HandleFunc("/*", a.handleUpgrade)

	a.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	return a
}

// Bind opens the listening socket and starts accepting. It runs on the loop.
func (a *app) Bind() error {
	addr := net.JoinHostPort(a.s.cfg.Host, strconv.Itoa(a.s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Port: a.s.cfg.Port, Addr: addr, Err: err}
	}
	a.ln = ln
	a.s.app = a
	a.s.addr.Store(ln.Addr().String())

	a.wg.Add(1)
	go a.serve()

	a.s.setState(StateListening)
	a.s.logger.Info("broadcast server listening", "addr", ln.Addr().String())
	return nil
}

func (a *app) serve() {
	defer a.wg.Done()
	err := a.http.Serve(a.ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) || a.closed.Load() {
		return
	}
	a.s.logger.Error("accept loop failed", "error", err)
	serveErr := &ServeError{Port: a.s.cfg.Port, Err: err}
	if !a.loop.Defer(func() { a.loop.Fail(serveErr) }) {
		a.s.logger.Warn("event loop gone before accept failure could be reported")
	}
}

// Close stops accepting, closes every client and waits for the connection
// goroutines. It may run on the loop or, as a fallback, on a Stop caller.
func (a *app) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.s.leaveListening()

	if err := a.http.Close(); err != nil {
		a.s.logger.Debug("http server close", "error", err)
	}

	a.mu.Lock()
	a.shut = true
	conns := make([]*subscriber, 0, len(a.conns))
	for sub := range a.conns {
		conns = append(conns, sub)
	}
	a.mu.Unlock()

	// Each close may wait up to CloseTimeout on a slow client.
	var closing sync.WaitGroup
	for _, sub := range conns {
		closing.Add(1)
		go func() {
			defer closing.Done()
			sub.close(websocket.CloseGoingAway)
		}()
	}
	closing.Wait()

	a.wg.Wait()
	a.topics.clear()
	a.s.logger.Debug("broadcast server closed", "clients_closed", len(conns))
}

// track registers sub for teardown. It reports false once Close has begun.
func (a *app) track(sub *subscriber) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shut {
		return false
	}
	a.conns[sub] = struct{}{}
	// handler and writer; the handler releases the writer's count itself
	// when it returns before starting it.
	a.wg.Add(2)
	return true
}

func (a *app) untrack(sub *subscriber) {
	a.mu.Lock()
	delete(a.conns, sub)
	a.mu.Unlock()
}

// handleUpgrade runs on a net/http connection goroutine.
//
// The connection is subscribed on the loop before the 101 response is
// written, so a message broadcast after the client's handshake completes is
// ordered after its subscription.
func (a *app) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sub := newSubscriber(r.URL.Path, a.s.cfg)
	if !a.track(sub) {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	defer a.wg.Done()
	defer a.untrack(sub)

	subscribed := make(chan struct{})
	topics := []string{TopicBroadcast, PathTopic(sub.path)}
	if !a.loop.Defer(func() {
		a.subscribe(sub, topics)
		close(subscribed)
	}) {
		a.wg.Done() // writer never starts
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	select {
	case <-subscribed:
	case <-sub.done:
		// Teardown closed the subscriber before the loop reached it.
		a.wg.Done()
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.s.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		sub.close(websocket.CloseAbnormalClosure)
		a.loop.TryDefer(func() { a.topics.unsubscribe(sub) })
		a.wg.Done()
		return
	}
	conn.SetReadLimit(a.s.cfg.MaxPayloadBytes)
	if !sub.attach(conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(a.s.cfg.CloseTimeout),
		)
		conn.Close()
		a.wg.Done()
		return
	}

	go func() {
		defer a.wg.Done()
		sub.writeLoop()
	}()

	logger := a.s.logger.With("conn_id", sub.id)
	a.s.connections.Add(1)
	a.s.observer.ConnectionOpened(a.s.cfg.Port)
	logger.Info("websocket client connected",
		"path", sub.path,
		"remote", r.RemoteAddr,
		"topic", TopicBroadcast)

	code := sub.readLoop()
	sub.close(websocket.CloseNormalClosure)
	a.loop.TryDefer(func() { a.topics.unsubscribe(sub) })

	a.s.connections.Add(-1)
	a.s.observer.ConnectionClosed(a.s.cfg.Port)
	logger.Info("websocket client disconnected", "code", code)
}

// subscribe runs on the loop.
func (a *app) subscribe(sub *subscriber, topics []string) {
	if a.closed.Load() {
		sub.close(websocket.CloseGoingAway)
		return
	}
	a.topics.subscribe(sub, topics...)
}

// publish runs on the loop.
func (a *app) publish(topic string, data []byte) {
	if a.closed.Load() || !a.s.IsListening() {
		a.s.stale(topic, "server stopped before deferred publish ran")
		return
	}

	delivered, dropped := a.topics.publish(topic, data)
	a.s.published.Add(1)
	a.s.observer.MessagePublished(a.s.cfg.Port, delivered, len(data))
	if dropped > 0 {
		a.s.dropped.Add(uint64(dropped))
		for i := 0; i < dropped; i++ {
			a.s.observer.MessageDropped(a.s.cfg.Port, DropBackpressure)
		}
		a.s.logger.Debug("backpressure limit reached, message dropped",
			"topic", topic,
			"dropped", dropped)
	}
}

// subscribers returns the number of subscribers of topic. It runs on the loop.
func (a *app) subscribers(topic string) int {
	return a.topics.count(topic)
}
