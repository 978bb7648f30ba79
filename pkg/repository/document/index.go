package document

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// IDIndexName is the name of the implicit unique index on _id.
const IDIndexName = "_id_"

// IndexModel describes an index. Keys are ordered; Name defaults to the MongoDB
// convention, e.g. "author_1_published_year_-1".
type IndexModel struct {
	Keys []Sort
	Name string
}

// DefaultName returns the generated index name for the key pattern.
func (m IndexModel) DefaultName() string {
	parts := make([]string, 0, len(m.Keys)*2)
	for _, k := range m.Keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Order.direction())))
	}
	return strings.Join(parts, "_")
}

// KeyPattern renders the keys as a {field: 1|-1} document.
func (m IndexModel) KeyPattern() Document {
	out := make(Document, 0, len(m.Keys))
	for _, k := range m.Keys {
		out = append(out, bson.E{Key: k.Field, Value: k.Order.direction()})
	}
	return out
}

func (m IndexModel) sameKeys(other IndexModel) bool {
	if len(m.Keys) != len(other.Keys) {
		return false
	}
	for i := range m.Keys {
		if m.Keys[i].Field != other.Keys[i].Field || m.Keys[i].Order.direction() != other.Keys[i].Order.direction() {
			return false
		}
	}
	return true
}

// normalize validates the model and fills in the default name.
func (m IndexModel) normalize() (IndexModel, error) {
	if len(m.Keys) == 0 {
		return m, fmt.Errorf("%w: index requires at least one key", ErrInvalidArgument)
	}
	if err := validateSorts(m.Keys); err != nil {
		return m, err
	}
	keys := make([]Sort, len(m.Keys))
	for i, k := range m.Keys {
		if k.Order == "" {
			k.Order = SortAsc
		}
		keys[i] = k
	}
	m.Keys = keys
	if m.Name == "" {
		m.Name = m.DefaultName()
	}
	return m, nil
}

func idIndex() IndexModel {
	return IndexModel{Keys: []Sort{Asc(IDField)}, Name: IDIndexName}
}

// ExplainResult mirrors the executionStats verbosity of a MongoDB explain.
type ExplainResult struct {
	Namespace      string         `bson:"namespace" json:"namespace"`
	ParsedQuery    Document       `bson:"parsedQuery" json:"parsedQuery"`
	WinningPlan    PlanStage      `bson:"winningPlan" json:"winningPlan"`
	ExecutionStats ExecutionStats `bson:"executionStats" json:"executionStats"`
}

// PlanStage is one node of a query plan.
type PlanStage struct {
	Stage      string     `bson:"stage" json:"stage"`
	IndexName  string     `bson:"indexName,omitempty" json:"indexName,omitempty"`
	KeyPattern Document   `bson:"keyPattern,omitempty" json:"keyPattern,omitempty"`
	InputStage *PlanStage `bson:"inputStage,omitempty" json:"inputStage,omitempty"`
}

// ExecutionStats reports the work done by a query.
type ExecutionStats struct {
	IndexUsed           bool  `bson:"indexUsed" json:"indexUsed"`
	NReturned           int64 `bson:"nReturned" json:"nReturned"`
	ExecutionTimeMillis int64 `bson:"executionTimeMillis" json:"executionTimeMillis"`
	TotalKeysExamined   int64 `bson:"totalKeysExamined" json:"totalKeysExamined"`
	TotalDocsExamined   int64 `bson:"totalDocsExamined" json:"totalDocsExamined"`
}

// Find returns the first stage named name in the plan tree.
func (p *PlanStage) Find(name string) (*PlanStage, bool) {
	for cur := p; cur != nil; cur = cur.InputStage {
		if cur.Stage == name {
			return cur, true
		}
	}
	return nil, false
}

// chooseIndex picks the index whose longest key prefix is constrained by the filter.
// Ties go to the index registered first.
func chooseIndex(indexes []IndexModel, filter compiledFilter) (IndexModel, bool) {
	var best IndexModel
	bestScore := 0
	for _, idx := range indexes {
		score := 0
		for _, k := range idx.Keys {
			if _, ok := filter.clauseFor(k.Field); !ok {
				break
			}
			score++
		}
		if score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best, bestScore > 0
}

// buildPlan assembles the winning plan bottom-up.
func buildPlan(idx IndexModel, indexed bool, opts QueryOptions) PlanStage {
	var plan PlanStage
	if indexed {
		scan := &PlanStage{Stage: "IXSCAN", IndexName: idx.Name, KeyPattern: idx.KeyPattern()}
		plan = PlanStage{Stage: "FETCH", InputStage: scan}
	} else {
		plan = PlanStage{Stage: "COLLSCAN"}
	}
	wrap := func(stage string) {
		inner := plan
		plan = PlanStage{Stage: stage, InputStage: &inner}
	}
	if len(opts.Sort) > 0 {
		wrap("SORT")
	}
	if opts.Pagination.Skip > 0 {
		wrap("SKIP")
	}
	if opts.Pagination.Limit > 0 {
		wrap("LIMIT")
	}
	if opts.Projection != nil {
		wrap("PROJECTION_SIMPLE")
	}
	return plan
}
