package document

import (
	"context"
	"time"

	"github.com/nimburion/bookstore/pkg/observability/logger"
	"github.com/nimburion/bookstore/pkg/observability/tracing"
	"go.opentelemetry.io/otel/trace"
)

// OperationObserver records the outcome of a collection operation.
type OperationObserver interface {
	ObserveOperation(collection, operation string, err error, elapsed time.Duration)
}

// InstrumentedCollection decorates a Collection with logging, tracing and an OperationObserver.
type InstrumentedCollection struct {
	next     Collection
	observer OperationObserver
	log      logger.Logger
	tracer   trace.Tracer
	system   string
}

var _ Collection = (*InstrumentedCollection)(nil)

// InstrumentOption configures an InstrumentedCollection.
type InstrumentOption func(*InstrumentedCollection)

// WithTracer sets the tracer used for operation spans. The global provider is used otherwise.
func WithTracer(t trace.Tracer) InstrumentOption {
	return func(c *InstrumentedCollection) { c.tracer = t }
}

// WithSystem names the backend ("memory", "mongodb") on spans.
func WithSystem(system string) InstrumentOption {
	return func(c *InstrumentedCollection) { c.system = system }
}

// NewInstrumentedCollection wraps next. A nil observer or logger is allowed.
func NewInstrumentedCollection(next Collection, observer OperationObserver, log logger.Logger, opts ...InstrumentOption) *InstrumentedCollection {
	if log == nil {
		log = logger.NewNop()
	}
	c := &InstrumentedCollection{next: next, observer: observer, log: log.With("collection", next.Name())}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InstrumentedCollection) start(ctx context.Context, op string) (context.Context, trace.Span) {
	opts := []tracing.CollectionSpanOption{tracing.WithCollection(c.next.Name())}
	if c.system != "" {
		opts = append(opts, tracing.WithDBSystem(c.system))
	}
	return tracing.StartCollectionSpan(ctx, c.tracer, op, opts...)
}

func (c *InstrumentedCollection) observe(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	tracing.End(span, err)
	if c.observer != nil {
		c.observer.ObserveOperation(c.next.Name(), op, err, elapsed)
	}
	log := c.log.WithContext(ctx)
	if err != nil {
		log.Warn("collection operation failed", "operation", op, "error", err)
		return
	}
	log.Debug("collection operation", "operation", op, "elapsed", elapsed)
}

func (c *InstrumentedCollection) Name() string { return c.next.Name() }

func (c *InstrumentedCollection) InsertMany(ctx context.Context, docs []Document) (ids []interface{}, err error) {
	ctx, span := c.start(ctx, "insert_many")
	defer func(start time.Time) { c.observe(ctx, span, "insert_many", start, err) }(time.Now())
	return c.next.InsertMany(ctx, docs)
}

func (c *InstrumentedCollection) Find(ctx context.Context, filter Filter, opts QueryOptions) (docs []Document, err error) {
	ctx, span := c.start(ctx, "find")
	defer func(start time.Time) { c.observe(ctx, span, "find", start, err) }(time.Now())
	return c.next.Find(ctx, filter, opts)
}

func (c *InstrumentedCollection) CountDocuments(ctx context.Context, filter Filter) (n int64, err error) {
	ctx, span := c.start(ctx, "count_documents")
	defer func(start time.Time) { c.observe(ctx, span, "count_documents", start, err) }(time.Now())
	return c.next.CountDocuments(ctx, filter)
}

func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (n int64, err error) {
	ctx, span := c.start(ctx, "update_one")
	defer func(start time.Time) { c.observe(ctx, span, "update_one", start, err) }(time.Now())
	return c.next.UpdateOne(ctx, filter, set)
}

func (c *InstrumentedCollection) DeleteOne(ctx context.Context, filter Filter) (n int64, err error) {
	ctx, span := c.start(ctx, "delete_one")
	defer func(start time.Time) { c.observe(ctx, span, "delete_one", start, err) }(time.Now())
	return c.next.DeleteOne(ctx, filter)
}

func (c *InstrumentedCollection) Aggregate(ctx context.Context, pipeline Pipeline) (docs []Document, err error) {
	ctx, span := c.start(ctx, "aggregate")
	defer func(start time.Time) { c.observe(ctx, span, "aggregate", start, err) }(time.Now())
	return c.next.Aggregate(ctx, pipeline)
}

func (c *InstrumentedCollection) CreateIndex(ctx context.Context, model IndexModel) (name string, err error) {
	ctx, span := c.start(ctx, "create_index")
	defer func(start time.Time) { c.observe(ctx, span, "create_index", start, err) }(time.Now())
	return c.next.CreateIndex(ctx, model)
}

func (c *InstrumentedCollection) ListIndexes(ctx context.Context) (idx []IndexModel, err error) {
	ctx, span := c.start(ctx, "list_indexes")
	defer func(start time.Time) { c.observe(ctx, span, "list_indexes", start, err) }(time.Now())
	return c.next.ListIndexes(ctx)
}

func (c *InstrumentedCollection) Explain(ctx context.Context, filter Filter, opts QueryOptions) (res *ExplainResult, err error) {
	ctx, span := c.start(ctx, "explain")
	defer func(start time.Time) { c.observe(ctx, span, "explain", start, err) }(time.Now())
	return c.next.Explain(ctx, filter, opts)
}

func (c *InstrumentedCollection) Drop(ctx context.Context) (err error) {
	ctx, span := c.start(ctx, "drop")
	defer func(start time.Time) { c.observe(ctx, span, "drop", start, err) }(time.Now())
	return c.next.Drop(ctx)
}
