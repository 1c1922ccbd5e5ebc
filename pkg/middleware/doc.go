// Package middleware provides Prometheus metrics and OpenTelemetry tracing
// for broadcast servers and the server pool.
//
// # Prometheus Metrics
//
// Prometheus returns a *Metrics that is both a broadcast.Observer and the
// source of a pool.Interceptor:
//
//	reg := prometheus.NewRegistry()
//	m := middleware.Prometheus(middleware.WithRegistry(reg))
//	p := pool.New(
//	    pool.WithObserver(m),
//	    pool.WithInterceptor(m.Interceptor()),
//	)
//
// # OpenTelemetry
//
// OpenTelemetry returns a pool.Interceptor that wraps EnsureServer, Stop and
// StopAll in spans:
//
//	p := pool.New(pool.WithInterceptor(middleware.OpenTelemetry()))
package middleware
