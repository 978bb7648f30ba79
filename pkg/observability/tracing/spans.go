package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for collection spans.
const InstrumentationName = "github.com/nimburion/bookstore/collection"

// StartCollectionSpan starts a client span named "DB <operation> <collection>".
// A nil tracer falls back to the global provider.
func StartCollectionSpan(ctx context.Context, tracer trace.Tracer, operation string, opts ...CollectionSpanOption) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}

	spanOpts := &collectionSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", operation),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.collection != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.collection)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// CollectionSpanOption configures a collection span.
type CollectionSpanOption func(*collectionSpanOptions)

type collectionSpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithCollection sets the collection name.
func WithCollection(name string) CollectionSpanOption {
	return func(opts *collectionSpanOptions) {
		opts.collection = name
		opts.attributes = append(opts.attributes, attribute.String("db.mongodb.collection", name))
	}
}

// WithDBSystem sets the database system (e.g., "mongodb", "memory").
func WithDBSystem(system string) CollectionSpanOption {
	return func(opts *collectionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithResultCount records how many documents the operation returned or affected.
func WithResultCount(n int) CollectionSpanOption {
	return func(opts *collectionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("db.result_count", n))
	}
}

// End records err (if any) on span, sets its status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
