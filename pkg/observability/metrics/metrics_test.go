package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry == nil || registry.registry == nil {
		t.Fatal("NewRegistry returned an empty registry")
	}

	families, err := registry.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "go_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected Go runtime metrics to be registered")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})

	if err := registry.Register(counter); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := registry.Register(counter); err == nil {
		t.Fatal("expected error registering the same collector twice")
	}
	if !registry.Unregister(counter) {
		t.Fatal("expected Unregister to succeed")
	}
}

func TestCollectionMetrics_ObserveOperation(t *testing.T) {
	registry := NewRegistry()
	m, err := NewCollectionMetrics(registry)
	if err != nil {
		t.Fatalf("NewCollectionMetrics() error = %v", err)
	}

	m.ObserveOperation("books", "find", nil, 2*time.Millisecond)
	m.ObserveOperation("books", "find", nil, 3*time.Millisecond)
	m.ObserveOperation("books", "insert_many", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("books", "find", "ok")); got != 2 {
		t.Errorf("expected 2 successful finds, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("books", "insert_many", "error")); got != 1 {
		t.Errorf("expected 1 failed insert, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestCollectionMetrics_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	if _, err := NewCollectionMetrics(registry); err != nil {
		t.Fatalf("NewCollectionMetrics() error = %v", err)
	}
	if _, err := NewCollectionMetrics(registry); err == nil {
		t.Fatal("expected error when registering collection metrics twice")
	}
}

func TestSummary(t *testing.T) {
	registry := NewRegistry()
	m, err := NewCollectionMetrics(registry)
	if err != nil {
		t.Fatalf("NewCollectionMetrics() error = %v", err)
	}
	m.ObserveOperation("books", "update_one", nil, time.Millisecond)
	m.ObserveOperation("books", "find", nil, time.Millisecond)
	m.ObserveOperation("books", "find", errors.New("bad filter"), time.Millisecond)
	m.ObserveOperation("books", "find", nil, time.Millisecond)

	rows, err := Summary(registry.Gatherer())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := []OperationCount{
		{Operation: "find", Status: "error", Count: 1},
		{Operation: "find", Status: "ok", Count: 2},
		{Operation: "update_one", Status: "ok", Count: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, rows); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "Collection operations:\n") {
		t.Errorf("unexpected summary header: %q", out)
	}
	if !strings.Contains(out, "find") || !strings.Contains(out, "update_one") {
		t.Errorf("summary missing operations: %q", out)
	}
}
