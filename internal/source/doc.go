// Package source feeds messages from producers into broadcast targets.
//
// A Source reads messages from somewhere (standard input, a Redis pub/sub
// subscription) and hands each one to every target through
// pool.Broadcaster. Targets never block, so a slow source only delays its
// own messages.
//
//	src := source.NewLines(os.Stdin)
//	err := src.Run(ctx, []pool.Broadcaster{h1, h2})
package source
