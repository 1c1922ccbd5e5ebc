package loop

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the capacity of the deferred-closure queue.
const DefaultQueueSize = 1024

// App is the network application driven by a Loop.
//
// The application is constructed on the loop goroutine by the factory passed
// to Start. Bind is always called on the loop goroutine. Close must be safe to
// call from any goroutine and more than once: it is called on the loop during
// normal teardown and, as a best-effort fallback, from the goroutine calling
// Stop when the loop can no longer accept closures.
type App interface {
	Bind() error
	Close()
}

// Config configures a Loop.
type Config struct {
	// Name identifies the loop in logs (e.g. "port=9001").
	Name string

	// QueueSize is the capacity of the deferred-closure queue.
	// Default: DefaultQueueSize.
	QueueSize int

	// LockOSThread pins the loop goroutine to a dedicated OS thread.
	// Default: false.
	LockOSThread bool

	// OnExit is called on the loop goroutine after the application has been
	// closed and before Stop callers are released. err is nil for a normal
	// stop, the bind error when Bind failed, or a *PanicError.
	OnExit func(err error)

	// Logger is used for lifecycle logging. Default: slog.Default().
	Logger *slog.Logger
}

// Loop runs one event loop on a dedicated goroutine.
//
// Foreign goroutines never touch loop-owned state; they submit closures with
// Defer, which run on the loop goroutine in submission order.
type Loop struct {
	cfg    Config
	logger *slog.Logger

	queue chan func()

	started atomic.Bool
	running atomic.Bool

	// quitting is closed when Stop begins; halted when the run phase has
	// ended; exited when the goroutine is about to return.
	quitting     chan struct{}
	quittingOnce sync.Once
	halted       chan struct{}
	exited       chan struct{}

	// gid is the goroutine id of the loop, set once before Start returns.
	gid atomic.Int64

	// mu guards app. The loop goroutine installs it; teardown on any
	// goroutine may only take it and nil it out.
	mu  sync.Mutex
	app App

	// quit and failErr are only touched on the loop goroutine.
	quit    bool
	failErr error
}

// New creates a Loop. The goroutine is not started until Start is called.
func New(cfg Config) *Loop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name != "" {
		logger = logger.With("loop", cfg.Name)
	}

	return &Loop{
		cfg:      cfg,
		logger:   logger.With("component", "loop"),
		queue:    make(chan func(), cfg.QueueSize),
		quitting: make(chan struct{}),
		halted:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start spawns the loop goroutine, builds the application on it and binds.
//
// Start blocks until the bind attempt has completed. On bind failure the loop
// goroutine has already exited when Start returns and the bind error is
// returned. Start may only be called once; later calls return ErrStarted.
func (l *Loop) Start(newApp func(*Loop) App) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrStarted
	}

	l.running.Store(true)
	ready := make(chan error, 1)
	go l.run(newApp, ready)

	err := <-ready
	if err != nil {
		l.running.Store(false)
		<-l.exited
		return err
	}
	return nil
}

// run is the loop goroutine body.
func (l *Loop) run(newApp func(*Loop) App, ready chan<- error) {
	if l.cfg.LockOSThread {
		// Never unlocked: the thread is discarded with the goroutine.
		runtime.LockOSThread()
	}
	l.gid.Store(curGoroutineID())

	var exitErr error
	bound := false

	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			exitErr = pe
			l.logger.Error("event loop panic",
				"panic", r,
				"stack", string(pe.Stack))
			if !bound {
				ready <- exitErr
			}
		}
		l.markQuitting()
		close(l.halted)
		l.running.Store(false)

		if app := l.detachApp(); app != nil {
			app.Close()
		}
		if l.cfg.OnExit != nil {
			l.cfg.OnExit(exitErr)
		}
		close(l.exited)
	}()

	app := newApp(l)
	if app == nil {
		exitErr = ErrNoApp
		ready <- exitErr
		return
	}

	if err := app.Bind(); err != nil {
		exitErr = err
		l.logger.Error("bind failed, loop exiting", "error", err)
		ready <- err
		return
	}

	l.mu.Lock()
	l.app = app
	l.mu.Unlock()

	bound = true
	ready <- nil

	l.logger.Debug("event loop running")
	for !l.quit {
		fn := <-l.queue
		fn()
	}
	exitErr = l.failErr
	l.logger.Debug("event loop finished", "error", exitErr)
}

// Defer schedules fn to run on the loop goroutine.
//
// Closures submitted by one goroutine run in submission order. Defer blocks
// while the queue is full and returns false, dropping fn, once the loop is
// stopping or stopped.
func (l *Loop) Defer(fn func()) bool {
	if fn == nil || !l.accepting() {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	default:
	}
	if l.OnLoop() {
		// Blocking here would wait on ourselves.
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.quitting:
		return false
	case <-l.halted:
		return false
	}
}

// TryDefer is like Defer but never blocks: fn is dropped when the queue is
// full.
func (l *Loop) TryDefer(fn func()) bool {
	if fn == nil || !l.accepting() {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	default:
		return false
	}
}

func (l *Loop) accepting() bool {
	if !l.started.Load() {
		return false
	}
	select {
	case <-l.quitting:
		return false
	case <-l.halted:
		return false
	default:
		return true
	}
}

// Quit ends the run phase after the current closure returns.
// It must only be called from a closure running on the loop.
func (l *Loop) Quit() {
	l.quit = true
}

// Fail ends the run phase with err, which is reported through Config.OnExit.
// It must only be called from a closure running on the loop.
func (l *Loop) Fail(err error) {
	if l.failErr == nil {
		l.failErr = err
	}
	l.quit = true
}

// Stop tears the loop down and waits for its goroutine to exit.
//
// Stop may be called from any goroutine any number of times. Only the first
// call schedules teardown; every call made from outside the loop returns once
// the goroutine has exited. Called from the loop itself, Stop schedules
// teardown and returns immediately.
func (l *Loop) Stop() {
	if !l.started.Load() {
		return
	}
	onLoop := l.OnLoop()

	if l.running.Swap(false) {
		l.markQuitting()
		l.logger.Debug("stopping event loop")

		teardown := func() {
			if app := l.detachApp(); app != nil {
				app.Close()
			}
			l.Quit()
		}

		if onLoop {
			teardown()
			return
		}

		if !l.deferInternal(teardown) {
			// Best effort only: the loop is already gone or going, so the
			// app may have been detached by the exit path already.
			l.logger.Warn("event loop not accepting teardown, closing directly")
			if app := l.detachApp(); app != nil {
				app.Close()
			}
		}
	}

	if onLoop {
		return
	}
	<-l.exited
}

// deferInternal queues fn even after quitting has been signalled.
func (l *Loop) deferInternal(fn func()) bool {
	select {
	case <-l.halted:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.halted:
		return false
	}
}

func (l *Loop) markQuitting() {
	l.quittingOnce.Do(func() { close(l.quitting) })
}

func (l *Loop) detachApp() App {
	l.mu.Lock()
	defer l.mu.Unlock()
	app := l.app
	l.app = nil
	return app
}

// Running reports whether the loop has been started and not yet stopped.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Done returns a channel that is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.exited
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == curGoroutineID()
}

// String implements fmt.Stringer.
func (l *Loop) String() string {
	return fmt.Sprintf("loop(%s)", l.cfg.Name)
}
