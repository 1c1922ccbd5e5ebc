package broadcast

// DropReason says why a message did not reach a connection or the loop.
type DropReason string

const (
	// DropBackpressure: the connection was over its buffering ceiling.
	DropBackpressure DropReason = "backpressure"

	// DropNotListening: the server was not listening (stale delivery).
	DropNotListening DropReason = "not_listening"

	// DropInvalidText: the message was not valid UTF-8.
	DropInvalidText DropReason = "invalid_text"
)

// Observer receives notifications from a Server. Implementations must be
// safe for concurrent use; calls come from the event loop, connection
// goroutines and producer goroutines.
type Observer interface {
	StateChanged(port int, from, to State)
	ConnectionOpened(port int)
	ConnectionClosed(port int)
	MessagePublished(port int, recipients int, bytes int)
	MessageDropped(port int, reason DropReason)
}

type nopObserver struct{}

func (nopObserver) StateChanged(int, State, State) {}
func (nopObserver) ConnectionOpened(int)           {}
func (nopObserver) ConnectionClosed(int)           {}
func (nopObserver) MessagePublished(int, int, int) {}
func (nopObserver) MessageDropped(int, DropReason) {}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) StateChanged(port int, from, to State) {
	for _, ob := range o {
		ob.StateChanged(port, from, to)
	}
}

func (o Observers) ConnectionOpened(port int) {
	for _, ob := range o {
		ob.ConnectionOpened(port)
	}
}

func (o Observers) ConnectionClosed(port int) {
	for _, ob := range o {
		ob.ConnectionClosed(port)
	}
}

func (o Observers) MessagePublished(port int, recipients int, bytes int) {
	for _, ob := range o {
		ob.MessagePublished(port, recipients, bytes)
	}
}

func (o Observers) MessageDropped(port int, reason DropReason) {
	for _, ob := range o {
		ob.MessageDropped(port, reason)
	}
}
