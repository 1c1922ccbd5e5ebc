// Package broadcast provides a WebSocket broadcast server driven by a
// single event loop.
//
// A Server binds one TCP port and upgrades requests on every path to a
// WebSocket. Each connection is subscribed to TopicBroadcast and to the topic
// of its request path; client messages are read and discarded.
//
//	s := broadcast.New(broadcast.DefaultConfig(9001))
//	if err := s.Start(); err != nil {
//	    // errors.Is(err, broadcast.ErrBind)
//	}
//	s.Broadcast("hello")          // every client
//	s.BroadcastPath("/a", "only") // clients connected on /a
//	s.Stop()
//
// # Goroutines
//
// The topic table is owned by the server's event loop (see package loop).
// Broadcast may be called from any goroutine; it hands the message to the
// loop, which queues it on each subscriber. A dedicated writer goroutine per
// connection performs the socket writes, and a reader goroutine drains client
// frames.
//
// # Backpressure
//
// Each connection may buffer up to Config.MaxBackpressureBytes. Messages
// published while a connection is over that ceiling are dropped for that
// connection only; the connection stays open.
//
// # Lifecycle
//
// Created → Starting → Listening → Stopped, or Failed when the bind fails or
// the event loop dies. A stopped or failed server is never restarted.
package broadcast
