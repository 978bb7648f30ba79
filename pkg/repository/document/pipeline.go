package document

import (
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// Stage is one step of an aggregation pipeline.
type Stage interface {
	stageName() string
}

// Pipeline is an ordered list of stages; each consumes the previous stage's output.
type Pipeline []Stage

// MatchStage keeps documents matching Filter.
type MatchStage struct {
	Filter Filter
}

// GroupStage groups documents by Key and computes Accumulators per group.
// Groups are emitted in the order their key is first seen.
type GroupStage struct {
	Key          GroupKey
	Accumulators []Accumulator
}

// SortStage orders documents.
type SortStage struct {
	Sort []Sort
}

// LimitStage keeps the first N documents.
type LimitStage struct {
	N int64
}

func (MatchStage) stageName() string { return "$match" }
func (GroupStage) stageName() string { return "$group" }
func (SortStage) stageName() string  { return "$sort" }
func (LimitStage) stageName() string { return "$limit" }

// GroupKey derives the group identifier of a document.
type GroupKey interface {
	keyOf(doc Document) interface{}
}

type fieldKey struct{ field string }

type decadeKey struct{ field string }

// FieldKey groups by the value of field; a missing field groups under null.
func FieldKey(field string) GroupKey { return fieldKey{field: field} }

// DecadeKey groups by the decade label of an integer year field, e.g. 1813 -> "1810s".
// Missing or non-integer values group under null.
func DecadeKey(field string) GroupKey { return decadeKey{field: field} }

func (k fieldKey) keyOf(doc Document) interface{} {
	v, _ := Lookup(doc, k.field)
	return v
}

func (k decadeKey) keyOf(doc Document) interface{} {
	v, ok := Lookup(doc, k.field)
	if !ok {
		return nil
	}
	year, ok := asWholeNumber(v)
	if !ok {
		return nil
	}
	return DecadeLabel(year)
}

// DecadeLabel returns floor(year/10)*10 followed by "s".
func DecadeLabel(year int64) string {
	return strconv.FormatInt(floorDiv(year, 10)*10, 10) + "s"
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// AccumulatorOp selects what an accumulator computes.
type AccumulatorOp string

const (
	AccCount AccumulatorOp = "count"
	AccSum   AccumulatorOp = "sum"
	AccAvg   AccumulatorOp = "avg"
)

// Accumulator computes one output field per group.
type Accumulator struct {
	Name  string
	Op    AccumulatorOp
	Field string
}

// Count counts the documents of each group.
func Count(name string) Accumulator { return Accumulator{Name: name, Op: AccCount} }

// Sum adds the numeric values of field; non-numeric and missing values are ignored.
func Sum(name, field string) Accumulator { return Accumulator{Name: name, Op: AccSum, Field: field} }

// Avg averages the numeric values of field. A group with no numeric values yields null.
func Avg(name, field string) Accumulator { return Accumulator{Name: name, Op: AccAvg, Field: field} }

// Validate reports malformed stages as ErrInvalidArgument.
func (p Pipeline) Validate() error {
	for i, st := range p {
		if err := validateStage(st); err != nil {
			return fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return nil
}

func validateStage(st Stage) error {
	switch s := st.(type) {
	case MatchStage:
		_, err := compileFilter(s.Filter)
		return err
	case GroupStage:
		if s.Key == nil {
			return fmt.Errorf("%w: $group requires a key", ErrInvalidArgument)
		}
		seen := map[string]bool{IDField: true}
		for _, acc := range s.Accumulators {
			if acc.Name == "" || seen[acc.Name] {
				return fmt.Errorf("%w: invalid or duplicate accumulator name %q", ErrInvalidArgument, acc.Name)
			}
			seen[acc.Name] = true
			switch acc.Op {
			case AccCount:
			case AccSum, AccAvg:
				if acc.Field == "" {
					return fmt.Errorf("%w: accumulator %q requires a field", ErrInvalidArgument, acc.Name)
				}
			default:
				return fmt.Errorf("%w: unknown accumulator %q", ErrInvalidArgument, acc.Op)
			}
		}
		return nil
	case SortStage:
		if len(s.Sort) == 0 {
			return fmt.Errorf("%w: $sort requires at least one field", ErrInvalidArgument)
		}
		return validateSorts(s.Sort)
	case LimitStage:
		if s.N <= 0 {
			return fmt.Errorf("%w: $limit must be positive, got %d", ErrInvalidArgument, s.N)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil stage", ErrInvalidArgument)
	default:
		return fmt.Errorf("%w: unsupported stage %T", ErrInvalidArgument, st)
	}
}

// runPipeline evaluates p over docs, which the caller must own.
func runPipeline(docs []Document, p Pipeline) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := docs
	for _, st := range p {
		switch s := st.(type) {
		case MatchStage:
			f, _ := compileFilter(s.Filter)
			kept := out[:0:0]
			for _, d := range out {
				if f.matches(d) {
					kept = append(kept, d)
				}
			}
			out = kept
		case GroupStage:
			out = s.apply(out)
		case SortStage:
			sortDocuments(out, s.Sort)
		case LimitStage:
			if int64(len(out)) > s.N {
				out = out[:s.N]
			}
		}
	}
	if out == nil {
		out = []Document{}
	}
	return out, nil
}

type accState struct {
	count    int64
	n        int64
	sum      float64
	intSum   int64
	onlyInts bool
}

type group struct {
	key    interface{}
	states []accState
}

func (s GroupStage) apply(docs []Document) []Document {
	var groups []*group
	for _, doc := range docs {
		key := s.Key.keyOf(doc)
		var g *group
		for _, candidate := range groups {
			if valuesEqual(candidate.key, key) {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &group{key: key, states: make([]accState, len(s.Accumulators))}
			for i := range g.states {
				g.states[i].onlyInts = true
			}
			groups = append(groups, g)
		}
		for i, acc := range s.Accumulators {
			st := &g.states[i]
			st.count++
			if acc.Op == AccCount {
				continue
			}
			v, ok := Lookup(doc, acc.Field)
			if !ok {
				continue
			}
			f, ok := asFloat64(v)
			if !ok {
				continue
			}
			st.n++
			st.sum += f
			if iv, isInt := asInt64(v); isInt {
				st.intSum += iv
			} else {
				st.onlyInts = false
			}
		}
	}

	out := make([]Document, 0, len(groups))
	for _, g := range groups {
		doc := Document{{Key: IDField, Value: g.key}}
		for i, acc := range s.Accumulators {
			doc = append(doc, bson.E{Key: acc.Name, Value: g.states[i].result(acc.Op)})
		}
		out = append(out, doc)
	}
	return out
}

func (st accState) result(op AccumulatorOp) interface{} {
	switch op {
	case AccCount:
		return st.count
	case AccSum:
		if st.onlyInts {
			return st.intSum
		}
		return st.sum
	case AccAvg:
		if st.n == 0 {
			return nil
		}
		return st.sum / float64(st.n)
	}
	return nil
}
