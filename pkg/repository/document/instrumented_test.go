package document

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type observation struct {
	collection string
	operation  string
	failed     bool
}

type recordingObserver struct {
	mu  sync.Mutex
	got []observation
}

func (r *recordingObserver) ObserveOperation(collection, operation string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, observation{collection: collection, operation: operation, failed: err != nil})
}

func TestInstrumentedCollection_ObservesEveryOperation(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	c := NewInstrumentedCollection(NewMemoryCollection("books"), obs, nil, WithTracer(tracer), WithSystem("memory"))
	assert.Equal(t, "books", c.Name())

	require.NoError(t, c.Drop(ctx))
	_, err := c.InsertMany(ctx, sampleBooks())
	require.NoError(t, err)
	_, err = c.Find(ctx, Filter{"genre": "Fiction"}, QueryOptions{})
	require.NoError(t, err)
	_, err = c.CountDocuments(ctx, nil)
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, Filter{"title": "The Hobbit"}, Document{{Key: "price", Value: 17.99}})
	require.NoError(t, err)
	_, err = c.DeleteOne(ctx, Filter{"title": "Dune"})
	require.NoError(t, err)
	_, err = c.Aggregate(ctx, Pipeline{LimitStage{N: 1}})
	require.NoError(t, err)
	_, err = c.CreateIndex(ctx, IndexModel{Keys: []Sort{Asc("title")}})
	require.NoError(t, err)
	_, err = c.ListIndexes(ctx)
	require.NoError(t, err)
	_, err = c.Explain(ctx, Filter{"title": "1984"}, QueryOptions{})
	require.NoError(t, err)
	_, err = c.Find(ctx, Filter{"price": Condition{Op: "$nope"}}, QueryOptions{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	want := []observation{
		{"books", "drop", false},
		{"books", "insert_many", false},
		{"books", "find", false},
		{"books", "count_documents", false},
		{"books", "update_one", false},
		{"books", "delete_one", false},
		{"books", "aggregate", false},
		{"books", "create_index", false},
		{"books", "list_indexes", false},
		{"books", "explain", false},
		{"books", "find", true},
	}
	assert.Equal(t, want, obs.got)

	spans := recorder.Ended()
	require.Len(t, spans, len(want))
	assert.Equal(t, "DB drop books", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "DB find books", spans[len(spans)-1].Name())
	assert.Equal(t, codes.Error, spans[len(spans)-1].Status().Code)
}

func TestInstrumentedCollection_NilObserver(t *testing.T) {
	c := NewInstrumentedCollection(NewMemoryCollection("books"), nil, nil)
	_, err := c.InsertMany(context.Background(), sampleBooks())
	assert.NoError(t, err)
}
