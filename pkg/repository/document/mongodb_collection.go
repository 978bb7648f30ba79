package document

import (
	"context"
	"errors"
	"fmt"

	mongostore "github.com/nimburion/bookstore/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection adapts store/mongodb to the Collection contract by translating
// filters, options, pipelines and index specs into BSON.
type MongoCollection struct {
	adapter *mongostore.Adapter
	name    string
	opts    collectionOptions
}

var _ Collection = (*MongoCollection)(nil)

// NewMongoCollection creates a new MongoCollection instance.
func NewMongoCollection(adapter *mongostore.Adapter, name string, opts ...Option) (*MongoCollection, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	return &MongoCollection{adapter: adapter, name: name, opts: buildOptions(opts)}, nil
}

func (c *MongoCollection) Name() string { return c.name }

// InsertMany assigns ids client side so they come back in insertion order.
func (c *MongoCollection) InsertMany(ctx context.Context, docs []Document) ([]interface{}, error) {
	batch := make([]interface{}, 0, len(docs))
	ids := make([]interface{}, 0, len(docs))
	for i, doc := range docs {
		id, ok := Lookup(doc, IDField)
		if !ok {
			id = c.opts.newID()
		}
		stored := Document{{Key: IDField, Value: id}}
		for _, e := range doc {
			if e.Key != IDField {
				stored = append(stored, e)
			}
		}
		if err := c.opts.check(i, stored); err != nil {
			return nil, err
		}
		batch = append(batch, stored)
		ids = append(ids, id)
	}
	if len(batch) == 0 {
		return ids, nil
	}
	if _, err := c.adapter.InsertMany(ctx, c.name, batch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, err)
		}
		return nil, fmt.Errorf("insert many: %w", err)
	}
	return ids, nil
}

// Find appends an _id tiebreak to the sort so equal keys keep insertion order.
func (c *MongoCollection) Find(ctx context.Context, filter Filter, opts QueryOptions) ([]Document, error) {
	f, findOpts, err := c.findArgs(filter, opts)
	if err != nil {
		return nil, err
	}
	docs, err := c.adapter.Find(ctx, c.name, f.toBSON(), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return docs, nil
}

func (c *MongoCollection) findArgs(filter Filter, opts QueryOptions) (compiledFilter, *options.FindOptions, error) {
	f, err := compileFilter(filter)
	if err != nil {
		return nil, nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(stableSortBSON(opts.Sort))
	}
	if opts.Pagination.Skip > 0 {
		findOpts.SetSkip(opts.Pagination.Skip)
	}
	if opts.Pagination.Limit > 0 {
		findOpts.SetLimit(opts.Pagination.Limit)
	}
	if opts.Projection != nil {
		findOpts.SetProjection(projectionBSON(*opts.Projection))
	}
	return f, findOpts, nil
}

func sortBSON(sorts []Sort) bson.D {
	out := make(bson.D, 0, len(sorts))
	for _, s := range sorts {
		out = append(out, bson.E{Key: s.Field, Value: s.Order.direction()})
	}
	return out
}

func stableSortBSON(sorts []Sort) bson.D {
	out := sortBSON(sorts)
	for _, s := range sorts {
		if s.Field == IDField {
			return out
		}
	}
	return append(out, bson.E{Key: IDField, Value: int32(1)})
}

func projectionBSON(p Projection) bson.D {
	out := bson.D{}
	for _, f := range p.Fields {
		if f != IDField {
			out = append(out, bson.E{Key: f, Value: int32(1)})
		}
	}
	if p.ExcludeID {
		out = append(out, bson.E{Key: IDField, Value: int32(0)})
	}
	return out
}

func (c *MongoCollection) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.adapter.CountDocuments(ctx, c.name, f.toBSON())
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// UpdateOne applies set with $set. Only the set fields are validated here, so
// validators must be field-local to behave the same as the memory backend.
func (c *MongoCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (int64, error) {
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	if err := validateSet(set); err != nil {
		return 0, err
	}
	if err := c.opts.check(0, set); err != nil {
		return 0, err
	}
	res, err := c.adapter.UpdateOne(ctx, c.name, f.toBSON(), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return 0, fmt.Errorf("update one: %w", err)
	}
	return res.MatchedCount, nil
}

func (c *MongoCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	f, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	res, err := c.adapter.DeleteOne(ctx, c.name, f.toBSON())
	if err != nil {
		return 0, fmt.Errorf("delete one: %w", err)
	}
	return res.DeletedCount, nil
}

func (c *MongoCollection) Aggregate(ctx context.Context, pipeline Pipeline) ([]Document, error) {
	stages, err := PipelineBSON(pipeline)
	if err != nil {
		return nil, err
	}
	docs, err := c.adapter.Aggregate(ctx, c.name, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return docs, nil
}

// PipelineBSON renders a pipeline as MongoDB aggregation stages.
func PipelineBSON(p Pipeline) (mongo.Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make(mongo.Pipeline, 0, len(p))
	for _, st := range p {
		switch s := st.(type) {
		case MatchStage:
			f, _ := compileFilter(s.Filter)
			out = append(out, bson.D{{Key: "$match", Value: f.toBSON()}})
		case GroupStage:
			group := bson.D{{Key: IDField, Value: groupKeyExpression(s.Key)}}
			for _, acc := range s.Accumulators {
				group = append(group, bson.E{Key: acc.Name, Value: accumulatorExpression(acc)})
			}
			out = append(out, bson.D{{Key: "$group", Value: group}})
		case SortStage:
			out = append(out, bson.D{{Key: "$sort", Value: sortBSON(s.Sort)}})
		case LimitStage:
			out = append(out, bson.D{{Key: "$limit", Value: s.N}})
		}
	}
	return out, nil
}

// groupKeyExpression computes the decade with integer arithmetic on the server:
// toString(toLong(floor(year / 10) * 10)) + "s".
func groupKeyExpression(key GroupKey) interface{} {
	switch k := key.(type) {
	case fieldKey:
		return "$" + k.field
	case decadeKey:
		decade := bson.D{{Key: "$multiply", Value: bson.A{
			bson.D{{Key: "$floor", Value: bson.D{{Key: "$divide", Value: bson.A{"$" + k.field, 10}}}}},
			10,
		}}}
		return bson.D{{Key: "$concat", Value: bson.A{
			bson.D{{Key: "$toString", Value: bson.D{{Key: "$toLong", Value: decade}}}},
			"s",
		}}}
	}
	return nil
}

func accumulatorExpression(acc Accumulator) bson.D {
	switch acc.Op {
	case AccSum:
		return bson.D{{Key: "$sum", Value: "$" + acc.Field}}
	case AccAvg:
		return bson.D{{Key: "$avg", Value: "$" + acc.Field}}
	default:
		return bson.D{{Key: "$sum", Value: 1}}
	}
}

func (c *MongoCollection) CreateIndex(ctx context.Context, model IndexModel) (string, error) {
	m, err := model.normalize()
	if err != nil {
		return "", err
	}
	name, err := c.adapter.CreateIndex(ctx, c.name, mongo.IndexModel{
		Keys:    m.KeyPattern(),
		Options: options.Index().SetName(m.Name),
	})
	if err != nil {
		return "", fmt.Errorf("create index %s: %w", m.Name, err)
	}
	return name, nil
}

func (c *MongoCollection) ListIndexes(ctx context.Context) ([]IndexModel, error) {
	specs, err := c.adapter.ListIndexes(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	out := make([]IndexModel, 0, len(specs))
	for _, spec := range specs {
		name, _ := Lookup(spec, "name")
		model := IndexModel{}
		model.Name, _ = name.(string)
		if keys, ok := Lookup(spec, "key"); ok {
			for _, e := range asDocument(keys) {
				order := SortAsc
				if n, ok := asFloat64(e.Value); ok && n < 0 {
					order = SortDesc
				}
				model.Keys = append(model.Keys, Sort{Field: e.Key, Order: order})
			}
		}
		out = append(out, model)
	}
	return out, nil
}

// Explain runs the explain command with executionStats verbosity.
func (c *MongoCollection) Explain(ctx context.Context, filter Filter, opts QueryOptions) (*ExplainResult, error) {
	f, _, err := c.findArgs(filter, opts)
	if err != nil {
		return nil, err
	}
	find := bson.D{
		{Key: "find", Value: c.name},
		{Key: "filter", Value: f.toBSON()},
	}
	if len(opts.Sort) > 0 {
		find = append(find, bson.E{Key: "sort", Value: stableSortBSON(opts.Sort)})
	}
	if opts.Projection != nil {
		find = append(find, bson.E{Key: "projection", Value: projectionBSON(*opts.Projection)})
	}
	if opts.Pagination.Skip > 0 {
		find = append(find, bson.E{Key: "skip", Value: opts.Pagination.Skip})
	}
	if opts.Pagination.Limit > 0 {
		find = append(find, bson.E{Key: "limit", Value: opts.Pagination.Limit})
	}
	cmd := bson.D{{Key: "explain", Value: find}, {Key: "verbosity", Value: "executionStats"}}

	var raw bson.D
	if err := c.adapter.RunCommand(ctx, cmd, &raw); err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	return parseExplain(c.adapter.Namespace(c.name), f, raw)
}

func parseExplain(namespace string, f compiledFilter, raw bson.D) (*ExplainResult, error) {
	planner, ok := Lookup(raw, "queryPlanner")
	if !ok {
		return nil, errors.New("explain: reply has no queryPlanner")
	}
	winning, _ := Lookup(asDocument(planner), "winningPlan")
	winningDoc := asDocument(winning)
	// Slot-based engine plans nest the classic tree under queryPlan.
	if qp, ok := Lookup(winningDoc, "queryPlan"); ok {
		winningDoc = asDocument(qp)
	}
	plan := parsePlanStage(winningDoc)

	result := &ExplainResult{Namespace: namespace, ParsedQuery: f.toBSON(), WinningPlan: plan}
	if ns, ok := Lookup(asDocument(planner), "namespace"); ok {
		if s, ok := ns.(string); ok {
			result.Namespace = s
		}
	}
	if stats, ok := Lookup(raw, "executionStats"); ok {
		sd := asDocument(stats)
		result.ExecutionStats = ExecutionStats{
			NReturned:           int64Field(sd, "nReturned"),
			ExecutionTimeMillis: int64Field(sd, "executionTimeMillis"),
			TotalKeysExamined:   int64Field(sd, "totalKeysExamined"),
			TotalDocsExamined:   int64Field(sd, "totalDocsExamined"),
		}
	}
	_, result.ExecutionStats.IndexUsed = plan.Find("IXSCAN")
	return result, nil
}

func parsePlanStage(d bson.D) PlanStage {
	stage := PlanStage{}
	if s, ok := Lookup(d, "stage"); ok {
		stage.Stage, _ = s.(string)
	}
	if s, ok := Lookup(d, "indexName"); ok {
		stage.IndexName, _ = s.(string)
	}
	if kp, ok := Lookup(d, "keyPattern"); ok {
		stage.KeyPattern = asDocument(kp)
	}
	if in, ok := Lookup(d, "inputStage"); ok {
		child := parsePlanStage(asDocument(in))
		stage.InputStage = &child
	}
	return stage
}

func int64Field(d bson.D, key string) int64 {
	v, ok := Lookup(d, key)
	if !ok {
		return 0
	}
	n, _ := asWholeNumber(v)
	return n
}

// Drop drops the collection, which also removes its indexes.
func (c *MongoCollection) Drop(ctx context.Context) error {
	if err := c.adapter.DropCollection(ctx, c.name); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (c *MongoCollection) Ping(ctx context.Context) error {
	return c.adapter.Ping(ctx)
}
