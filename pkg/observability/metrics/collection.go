package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	// OperationsTotalName counts collection operations by outcome.
	OperationsTotalName = "bookstore_collection_operations_total"
	// OperationDurationName observes collection operation latency.
	OperationDurationName = "bookstore_collection_operation_duration_seconds"

	statusOK    = "ok"
	statusError = "error"
)

// CollectionMetrics records collection operations. It satisfies document.OperationObserver.
type CollectionMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollectionMetrics creates the collectors and registers them with reg.
func NewCollectionMetrics(reg *Registry) (*CollectionMetrics, error) {
	m := &CollectionMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: OperationsTotalName,
				Help: "Total number of collection operations",
			},
			[]string{"collection", "operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    OperationDurationName,
				Help:    "Collection operation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"collection", "operation"},
		),
	}
	if reg != nil {
		if err := reg.Register(m.operations); err != nil {
			return nil, fmt.Errorf("register %s: %w", OperationsTotalName, err)
		}
		if err := reg.Register(m.duration); err != nil {
			return nil, fmt.Errorf("register %s: %w", OperationDurationName, err)
		}
	}
	return m, nil
}

// ObserveOperation increments the counter and records the duration.
func (m *CollectionMetrics) ObserveOperation(collection, operation string, err error, elapsed time.Duration) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	m.operations.WithLabelValues(collection, operation, status).Inc()
	m.duration.WithLabelValues(collection, operation).Observe(elapsed.Seconds())
}

// OperationCount is one row of a Summary.
type OperationCount struct {
	Operation string
	Status    string
	Count     float64
}

// Summary gathers the operation counters from g, ordered by operation then status.
func Summary(g prometheus.Gatherer) ([]OperationCount, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	var out []OperationCount
	for _, mf := range families {
		if mf.GetName() != OperationsTotalName {
			continue
		}
		for _, metric := range mf.GetMetric() {
			out = append(out, OperationCount{
				Operation: labelValue(metric, "operation"),
				Status:    labelValue(metric, "status"),
				Count:     metric.GetCounter().GetValue(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// WriteSummary prints one "operation status count" line per counter.
func WriteSummary(w io.Writer, rows []OperationCount) error {
	var b strings.Builder
	b.WriteString("Collection operations:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-16s %-6s %d\n", r.Operation, r.Status, int64(r.Count))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
