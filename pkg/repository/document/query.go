package document

import (
	"context"
	"iter"
	"sort"
)

// Query is a restartable find over a collection. Builder methods return copies, so a
// base query can be reused; every terminal call re-evaluates against current state.
type Query struct {
	coll   Collection
	filter Filter
	opts   QueryOptions
}

// NewQuery starts a query over coll. A nil filter matches every document.
func NewQuery(coll Collection, filter Filter) *Query {
	return &Query{coll: coll, filter: filter}
}

func (q *Query) clone() *Query {
	cp := *q
	cp.opts.Sort = append([]Sort(nil), q.opts.Sort...)
	if q.opts.Projection != nil {
		p := *q.opts.Projection
		p.Fields = append([]string(nil), p.Fields...)
		cp.opts.Projection = &p
	}
	return &cp
}

// Project restricts output fields.
func (q *Query) Project(p Projection) *Query {
	cp := q.clone()
	cp.opts.Projection = &p
	return cp
}

// Sort replaces the sort specification.
func (q *Query) Sort(sorts ...Sort) *Query {
	cp := q.clone()
	cp.opts.Sort = append([]Sort(nil), sorts...)
	return cp
}

// Skip discards the first n matches after sorting.
func (q *Query) Skip(n int64) *Query {
	cp := q.clone()
	cp.opts.Pagination.Skip = n
	return cp
}

// Limit caps the number of results; zero means unlimited.
func (q *Query) Limit(n int64) *Query {
	cp := q.clone()
	cp.opts.Pagination.Limit = n
	return cp
}

// Options returns the accumulated query options.
func (q *Query) Options() QueryOptions { return q.opts }

// All runs the query and returns every result.
func (q *Query) All(ctx context.Context) ([]Document, error) {
	return q.coll.Find(ctx, q.filter, q.opts)
}

// Iter runs the query when iteration starts and yields results in order.
func (q *Query) Iter(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		docs, err := q.All(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, d := range docs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Count returns the number of documents matching the filter, ignoring pagination.
func (q *Query) Count(ctx context.Context) (int64, error) {
	return q.coll.CountDocuments(ctx, q.filter)
}

// Explain reports how the query would execute.
func (q *Query) Explain(ctx context.Context) (*ExplainResult, error) {
	return q.coll.Explain(ctx, q.filter, q.opts)
}

// sortDocuments sorts in place; equal keys keep their input order.
func sortDocuments(docs []Document, sorts []Sort) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return compareBy(docs[i], docs[j], sorts) < 0
	})
}

// compareBy compares on each sort key in turn. Missing fields order as null.
func compareBy(a, b Document, sorts []Sort) int {
	for _, s := range sorts {
		va, _ := Lookup(a, s.Field)
		vb, _ := Lookup(b, s.Field)
		c := compareValues(va, vb)
		if s.Order == SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func paginate(docs []Document, p Pagination) []Document {
	if p.Skip >= int64(len(docs)) {
		return []Document{}
	}
	docs = docs[p.Skip:]
	if p.Limit > 0 && p.Limit < int64(len(docs)) {
		docs = docs[:p.Limit]
	}
	return docs
}

func project(doc Document, p *Projection) Document {
	if p == nil {
		return doc
	}
	keep := make(map[string]bool, len(p.Fields))
	for _, f := range p.Fields {
		keep[f] = true
	}
	out := make(Document, 0, len(doc))
	for _, e := range doc {
		switch {
		case e.Key == IDField:
			if !p.ExcludeID {
				out = append(out, e)
			}
		case len(keep) == 0 || keep[e.Key]:
			out = append(out, e)
		}
	}
	return out
}
