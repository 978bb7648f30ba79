package document

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// IDField is the name of the store-assigned identifier field.
const IDField = "_id"

// Document is an ordered BSON document. Any field may be absent.
type Document = bson.D

// Filter represents field-based filtering criteria for document stores.
// Each value is either a literal (exact match), a Condition, Conditions, or a raw
// operator document such as bson.M{"$gt": 1950}. Clauses are combined with AND.
type Filter map[string]interface{}

// Sort specifies field and direction for sorting results.
type Sort struct {
	Field string
	Order SortOrder
}

// SortOrder defines the direction of sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Asc sorts field in ascending order.
func Asc(field string) Sort { return Sort{Field: field, Order: SortAsc} }

// Desc sorts field in descending order.
func Desc(field string) Sort { return Sort{Field: field, Order: SortDesc} }

// direction returns the MongoDB style direction (1 or -1).
func (o SortOrder) direction() int32 {
	if o == SortDesc {
		return -1
	}
	return 1
}

func (o SortOrder) valid() bool {
	return o == "" || o == SortAsc || o == SortDesc
}

// Projection keeps only the listed top-level fields. The _id field is kept unless ExcludeID is set.
// An empty field list keeps every field.
type Projection struct {
	Fields    []string
	ExcludeID bool
}

// Include builds a projection retaining fields (and _id).
func Include(fields ...string) Projection {
	return Projection{Fields: fields}
}

// WithoutID returns a copy of the projection that drops _id.
func (p Projection) WithoutID() Projection {
	p.ExcludeID = true
	return p
}

// Pagination specifies skip/limit pagination. A zero Limit means no limit.
type Pagination struct {
	Skip  int64
	Limit int64
}

// Page returns the pagination for a 1-based page of the given size.
func Page(page, size int64) Pagination {
	if page <= 0 {
		page = 1
	}
	return Pagination{Skip: (page - 1) * size, Limit: size}
}

// QueryOptions encapsulates projection, sorting, and pagination options for document queries.
type QueryOptions struct {
	Projection *Projection
	Sort       []Sort
	Pagination Pagination
}

// Validate reports malformed options as ErrInvalidArgument.
func (o QueryOptions) Validate() error {
	if err := validateSorts(o.Sort); err != nil {
		return err
	}
	if o.Pagination.Skip < 0 {
		return fmt.Errorf("%w: skip must be non-negative, got %d", ErrInvalidArgument, o.Pagination.Skip)
	}
	if o.Pagination.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative, got %d", ErrInvalidArgument, o.Pagination.Limit)
	}
	if o.Projection != nil {
		for _, f := range o.Projection.Fields {
			if f == "" || strings.Contains(f, ".") {
				return fmt.Errorf("%w: unsupported projection field %q", ErrInvalidArgument, f)
			}
		}
	}
	return nil
}

func validateSorts(sorts []Sort) error {
	for _, s := range sorts {
		if s.Field == "" {
			return fmt.Errorf("%w: sort field is required", ErrInvalidArgument)
		}
		if !s.Order.valid() {
			return fmt.Errorf("%w: unknown sort order %q for field %q", ErrInvalidArgument, s.Order, s.Field)
		}
	}
	return nil
}

// Collection is the façade over a single document collection.
// Implementations must evaluate every call against current state.
type Collection interface {
	Name() string
	InsertMany(ctx context.Context, docs []Document) ([]interface{}, error)
	Find(ctx context.Context, filter Filter, opts QueryOptions) ([]Document, error)
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
	UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error)
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
	Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error)
	CreateIndex(ctx context.Context, model IndexModel) (string, error)
	ListIndexes(ctx context.Context) ([]IndexModel, error)
	Explain(ctx context.Context, filter Filter, opts QueryOptions) (*ExplainResult, error)
	Drop(ctx context.Context) error
}

// Validator checks a document before it is stored.
type Validator func(Document) error

type collectionOptions struct {
	validate Validator
	newID    func() interface{}
}

// Option configures a collection backend.
type Option func(*collectionOptions)

// WithValidator installs a validator run on inserted and updated documents.
func WithValidator(v Validator) Option {
	return func(o *collectionOptions) { o.validate = v }
}

// WithIDGenerator overrides the _id generator (ObjectIDs by default).
func WithIDGenerator(gen func() interface{}) Option {
	return func(o *collectionOptions) { o.newID = gen }
}

func buildOptions(opts []Option) collectionOptions {
	o := collectionOptions{newID: newObjectID}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o collectionOptions) check(index int, doc Document) error {
	if o.validate == nil {
		return nil
	}
	if err := o.validate(doc); err != nil {
		return fmt.Errorf("%w: document %d: %w", ErrInvalidRecord, index, err)
	}
	return nil
}

// validateSet rejects empty updates, nested paths, and attempts to change _id.
func validateSet(set Document) error {
	if len(set) == 0 {
		return fmt.Errorf("%w: update requires at least one field", ErrInvalidArgument)
	}
	for _, e := range set {
		if e.Key == IDField {
			return fmt.Errorf("%w: _id is immutable", ErrInvalidArgument)
		}
		if e.Key == "" || strings.HasPrefix(e.Key, "$") || strings.Contains(e.Key, ".") {
			return fmt.Errorf("%w: unsupported update field %q", ErrInvalidArgument, e.Key)
		}
	}
	return nil
}
