package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/livecaption/wsbroadcast/pkg/pool"
)

// Default tracer name.
const defaultTracerName = "wsbroadcast"

// OTelConfig configures the OpenTelemetry interceptor.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "wsbroadcast").
	TracerName string

	// TracerProvider supplies the tracer. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which operations to trace.
	// If nil, all operations are traced.
	Filter func(op pool.Op, port int) bool

	// AttributeExtractor adds custom attributes to every span.
	AttributeExtractor func(op pool.Op, port int) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry interceptor.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithOpFilter sets a filter function for operations.
func WithOpFilter(filter func(op pool.Op, port int) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(op pool.Op, port int) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry returns a pool interceptor that wraps every pool operation
// in a span named "wsbroadcast.pool.<op>".
//
// The span carries the port, records errors and is stored in the context
// passed to the operation, so a stop nested in an ensure shows up as a child.
//
// Example:
//
//	p := pool.New(
//	    pool.WithInterceptor(middleware.OpenTelemetry(
//	        middleware.WithTracerName("captions"),
//	    )),
//	)
//
// Without WithTracerProvider the global provider is used; configure it with
// otel.SetTracerProvider before creating the pool.
func OpenTelemetry(opts ...OTelOption) pool.Interceptor {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(ctx context.Context, op pool.Op, port int, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(op, port) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("wsbroadcast.op", string(op)),
		}
		if port > 0 {
			attrs = append(attrs, attribute.Int("wsbroadcast.port", port))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(op, port)...)
		}

		spanCtx, span := tracer.Start(ctx, spanName(op),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(spanCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

func spanName(op pool.Op) string {
	return fmt.Sprintf("wsbroadcast.pool.%s", op)
}
