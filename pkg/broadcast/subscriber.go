package broadcast

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// subscriber is one WebSocket connection.
//
// It is subscribed before the handshake completes, so frames published in
// between wait in the send queue. The event loop is the only producer of the
// queue; the writer goroutine is the only consumer and the only goroutine
// calling WriteMessage on conn.
type subscriber struct {
	id   string
	path string

	// mu guards conn between attach and close.
	mu   sync.Mutex
	conn *websocket.Conn

	send        chan []byte
	buffered    atomic.Int64
	maxBuffered int64

	writeTimeout time.Duration
	closeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once

	// topics is owned by the event loop.
	topics []string
}

func newSubscriber(path string, cfg *Config) *subscriber {
	return &subscriber{
		id:           uuid.NewString(),
		path:         path,
		send:         make(chan []byte, cfg.SendQueueLength),
		maxBuffered:  cfg.MaxBackpressureBytes,
		writeTimeout: cfg.WriteTimeout,
		closeTimeout: cfg.CloseTimeout,
		done:         make(chan struct{}),
	}
}

// attach sets the upgraded connection. It reports false, leaving conn to the
// caller, when the subscriber was closed first.
func (s *subscriber) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return false
	}
	s.conn = conn
	return true
}

// enqueue queues a text frame. It reports false when the frame was dropped
// because the connection is closed or over its buffering ceiling.
func (s *subscriber) enqueue(data []byte) bool {
	if s.closed() {
		return false
	}
	if s.buffered.Load() >= s.maxBuffered {
		return false
	}

	s.buffered.Add(int64(len(data)))
	select {
	case s.send <- data:
		return true
	default:
		s.buffered.Add(-int64(len(data)))
		return false
	}
}

// writeLoop drains the send queue until the connection is closed.
func (s *subscriber) writeLoop() {
	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := s.conn.WriteMessage(websocket.TextMessage, data)
			s.buffered.Add(-int64(len(data)))
			if err != nil {
				s.close(websocket.CloseAbnormalClosure)
				return
			}

		case <-s.done:
			return
		}
	}
}

// readLoop discards client messages until the connection fails or closes.
// It returns the close code sent by the client, or CloseNoStatusReceived.
func (s *subscriber) readLoop() int {
	for {
		_, r, err := s.conn.NextReader()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return websocket.CloseMessageTooBig
			}
			return websocket.CloseNoStatusReceived
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return websocket.CloseMessageTooBig
			}
			return websocket.CloseAbnormalClosure
		}
	}
}

// close sends a close frame with code (best effort) and closes the socket,
// if one is attached. It is safe to call from any goroutine more than once.
func (s *subscriber) close(code int) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		if code != websocket.CloseAbnormalClosure {
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, ""),
				time.Now().Add(s.closeTimeout),
			)
		}
		conn.Close()
	})
}

func (s *subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
