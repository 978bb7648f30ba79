package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryCollection is an in-process Collection. Documents are kept in insertion order,
// which is the order "first match" refers to in UpdateOne and DeleteOne.
type MemoryCollection struct {
	name    string
	opts    collectionOptions
	mu      sync.RWMutex
	docs    []Document
	indexes []IndexModel
}

var _ Collection = (*MemoryCollection)(nil)

// NewMemoryCollection creates an empty collection with only the _id index.
func NewMemoryCollection(name string, opts ...Option) *MemoryCollection {
	return &MemoryCollection{
		name:    name,
		opts:    buildOptions(opts),
		indexes: []IndexModel{idIndex()},
	}
}

// Name returns the collection name.
func (c *MemoryCollection) Name() string { return c.name }

// InsertMany validates every document, then appends them all with fresh ids.
// Nothing is inserted if any document is rejected.
func (c *MemoryCollection) InsertMany(ctx context.Context, docs []Document) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prepared := make([]Document, 0, len(docs))
	ids := make([]interface{}, 0, len(docs))
	for i, doc := range docs {
		id, hasID := Lookup(doc, IDField)
		if !hasID {
			id = c.opts.newID()
		}
		if c.hasID(id) || containsID(ids, id) {
			return nil, fmt.Errorf("%w: document %d: %v", ErrDuplicateID, i, id)
		}
		stored := make(Document, 0, len(doc)+1)
		stored = append(stored, bson.E{Key: IDField, Value: id})
		for _, e := range Clone(doc) {
			if e.Key != IDField {
				stored = append(stored, e)
			}
		}
		if err := c.opts.check(i, stored); err != nil {
			return nil, err
		}
		prepared = append(prepared, stored)
		ids = append(ids, id)
	}
	c.docs = append(c.docs, prepared...)
	return ids, nil
}

func (c *MemoryCollection) hasID(id interface{}) bool {
	for _, d := range c.docs {
		if existing, _ := Lookup(d, IDField); valuesEqual(existing, id) {
			return true
		}
	}
	return false
}

func containsID(ids []interface{}, id interface{}) bool {
	for _, existing := range ids {
		if valuesEqual(existing, id) {
			return true
		}
	}
	return false
}

// Find returns matching documents after sort, skip, limit and projection.
func (c *MemoryCollection) Find(ctx context.Context, filter Filter, opts QueryOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	page := paginate(c.selectSorted(f, opts.Sort), opts.Pagination)
	out := make([]Document, 0, len(page))
	for _, d := range page {
		out = append(out, project(Clone(d), opts.Projection))
	}
	return out, nil
}

// selectSorted returns matching stored documents (not copies) in sorted order.
func (c *MemoryCollection) selectSorted(f compiledFilter, sorts []Sort) []Document {
	matched := make([]Document, 0, len(c.docs))
	for _, d := range c.docs {
		if f.matches(d) {
			matched = append(matched, d)
		}
	}
	sortDocuments(matched, sorts)
	return matched
}

// CountDocuments counts matching documents.
func (c *MemoryCollection) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, d := range c.docs {
		if f.matches(d) {
			n++
		}
	}
	return n, nil
}

// UpdateOne replaces the named fields of the first matching document.
// It never inserts; zero is returned when nothing matches.
func (c *MemoryCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	if err := validateSet(set); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, d := range c.docs {
		if !f.matches(d) {
			continue
		}
		updated := Clone(d)
		for _, e := range set {
			updated = Set(updated, e.Key, cloneValue(e.Value))
		}
		if err := c.opts.check(i, updated); err != nil {
			return 0, err
		}
		c.docs[i] = updated
		return 1, nil
	}
	return 0, nil
}

// DeleteOne removes the first matching document.
func (c *MemoryCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, d := range c.docs {
		if f.matches(d) {
			c.docs = append(c.docs[:i:i], c.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// Aggregate runs pipeline over a snapshot of the collection.
func (c *MemoryCollection) Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	snapshot := make([]Document, len(c.docs))
	for i, d := range c.docs {
		snapshot[i] = Clone(d)
	}
	c.mu.RUnlock()
	return runPipeline(snapshot, pipeline)
}

// CreateIndex registers an index descriptor. It does not change query results.
func (c *MemoryCollection) CreateIndex(ctx context.Context, model IndexModel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := model.normalize()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.indexes {
		if existing.sameKeys(m) {
			return existing.Name, nil
		}
		if existing.Name == m.Name {
			return "", fmt.Errorf("%w: index %q already exists with different keys", ErrInvalidArgument, m.Name)
		}
	}
	c.indexes = append(c.indexes, m)
	return m.Name, nil
}

// ListIndexes returns registered indexes, _id_ first.
func (c *MemoryCollection) ListIndexes(ctx context.Context) ([]IndexModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]IndexModel, len(c.indexes))
	for i, idx := range c.indexes {
		out[i] = IndexModel{Keys: append([]Sort(nil), idx.Keys...), Name: idx.Name}
	}
	return out, nil
}

// Explain reports a synthetic execution plan and statistics for a find.
// An index is used when its leading key is constrained by the filter; keys examined
// are the documents satisfying that leading clause.
func (c *MemoryCollection) Explain(ctx context.Context, filter Filter, opts QueryOptions) (*ExplainResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	f, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, indexed := chooseIndex(c.indexes, f)
	stats := ExecutionStats{IndexUsed: indexed}
	if indexed {
		lead, _ := f.clauseFor(idx.Keys[0].Field)
		for _, d := range c.docs {
			if lead.matches(d) {
				stats.TotalKeysExamined++
			}
		}
		stats.TotalDocsExamined = stats.TotalKeysExamined
	} else {
		stats.TotalDocsExamined = int64(len(c.docs))
	}
	stats.NReturned = int64(len(paginate(c.selectSorted(f, opts.Sort), opts.Pagination)))
	stats.ExecutionTimeMillis = time.Since(start).Milliseconds()

	return &ExplainResult{
		Namespace:      c.name,
		ParsedQuery:    f.toBSON(),
		WinningPlan:    buildPlan(idx, indexed, opts),
		ExecutionStats: stats,
	}, nil
}

// Drop removes every document and every index except _id_.
func (c *MemoryCollection) Drop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = nil
	c.indexes = []IndexModel{idIndex()}
	return nil
}

// Ping always succeeds unless ctx is done.
func (c *MemoryCollection) Ping(ctx context.Context) error {
	return ctx.Err()
}
