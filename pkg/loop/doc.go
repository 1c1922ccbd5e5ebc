// Package loop provides a single-goroutine event loop with cross-goroutine
// command deferral.
//
// A Loop owns one application (typically a network server) for its whole
// lifetime. The application is constructed and bound on the loop goroutine;
// foreign goroutines interact with it only by submitting closures:
//
//	l := loop.New(loop.Config{Name: "port=9001", LockOSThread: true})
//	if err := l.Start(func(l *loop.Loop) loop.App { return newApp(l) }); err != nil {
//	    // bind failed; the loop goroutine has already exited
//	}
//	l.Defer(func() { /* runs on the loop goroutine */ })
//	l.Stop() // idempotent, joins the loop goroutine
//
// # Ordering
//
// Closures submitted from one goroutine run in submission order. There is no
// ordering between closures submitted from different goroutines. A closure
// submitted once the loop is stopping is dropped and Defer returns false.
//
// # Failure
//
// A bind failure is returned synchronously from Start. A panic on the loop
// goroutine is recovered at the goroutine boundary, logged, closes the
// application and ends the loop; it is reported as a *PanicError through
// Config.OnExit and never reaches the goroutines using the loop.
package loop
