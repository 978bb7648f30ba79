package document

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Operator is a comparison operator usable in a filter clause.
type Operator string

const (
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
)

func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Condition is a single comparison against a field value.
type Condition struct {
	Op    Operator
	Value interface{}
}

// Conditions combines several comparisons on the same field with AND.
type Conditions []Condition

func Eq(v interface{}) Condition  { return Condition{Op: OpEq, Value: v} }
func Ne(v interface{}) Condition  { return Condition{Op: OpNe, Value: v} }
func Gt(v interface{}) Condition  { return Condition{Op: OpGt, Value: v} }
func Gte(v interface{}) Condition { return Condition{Op: OpGte, Value: v} }
func Lt(v interface{}) Condition  { return Condition{Op: OpLt, Value: v} }
func Lte(v interface{}) Condition { return Condition{Op: OpLte, Value: v} }

// And groups conditions applying to one field.
func And(conds ...Condition) Conditions { return Conditions(conds) }

// matches evaluates the condition against a field value; present is false for missing fields.
func (c Condition) matches(v interface{}, present bool) bool {
	switch c.Op {
	case OpEq:
		return equalsAny(v, present, c.Value)
	case OpNe:
		return !equalsAny(v, present, c.Value)
	}
	if !present {
		return false
	}
	if c.compare(v) {
		return true
	}
	if arr, ok := asArray(v); ok {
		for _, x := range arr {
			if c.compare(x) {
				return true
			}
		}
	}
	return false
}

// compare applies an ordering operator; values of different BSON types never match.
func (c Condition) compare(v interface{}) bool {
	if typeRank(v) != typeRank(c.Value) || typeRank(v) == rankNull {
		return false
	}
	r := compareValues(v, c.Value)
	switch c.Op {
	case OpGt:
		return r > 0
	case OpGte:
		return r >= 0
	case OpLt:
		return r < 0
	case OpLte:
		return r <= 0
	}
	return false
}

func equalsAny(v interface{}, present bool, want interface{}) bool {
	if !present {
		return typeRank(want) == rankNull
	}
	if valuesEqual(v, want) {
		return true
	}
	if arr, ok := asArray(v); ok {
		for _, x := range arr {
			if valuesEqual(x, want) {
				return true
			}
		}
	}
	return false
}

// clause is a compiled filter entry: all conditions must hold on field.
type clause struct {
	field string
	conds []Condition
}

func (c clause) matches(doc Document) bool {
	v, ok := Lookup(doc, c.field)
	for _, cond := range c.conds {
		if !cond.matches(v, ok) {
			return false
		}
	}
	return true
}

type compiledFilter []clause

func (f compiledFilter) matches(doc Document) bool {
	for _, c := range f {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (f compiledFilter) clauseFor(field string) (clause, bool) {
	for _, c := range f {
		if c.field == field {
			return c, true
		}
	}
	return clause{}, false
}

// compileFilter validates a filter and orders its clauses by field name.
func compileFilter(f Filter) (compiledFilter, error) {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	out := make(compiledFilter, 0, len(fields))
	for _, field := range fields {
		if field == "" || strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("%w: unsupported filter field %q", ErrInvalidArgument, field)
		}
		conds, err := parseConditions(field, f[field])
		if err != nil {
			return nil, err
		}
		out = append(out, clause{field: field, conds: conds})
	}
	return out, nil
}

func parseConditions(field string, raw interface{}) ([]Condition, error) {
	switch v := raw.(type) {
	case Condition:
		return checkConditions(field, []Condition{v})
	case Conditions:
		return checkConditions(field, v)
	case []Condition:
		return checkConditions(field, v)
	case bson.M:
		return parseOperatorDocument(field, raw, sortedDocument(v))
	case map[string]interface{}:
		return parseOperatorDocument(field, raw, sortedDocument(v))
	case bson.D:
		return parseOperatorDocument(field, raw, v)
	default:
		return []Condition{Eq(raw)}, nil
	}
}

func checkConditions(field string, conds []Condition) ([]Condition, error) {
	if len(conds) == 0 {
		return nil, fmt.Errorf("%w: no conditions for field %q", ErrInvalidArgument, field)
	}
	for _, c := range conds {
		if !c.Op.valid() {
			return nil, fmt.Errorf("%w: unsupported operator %q on field %q", ErrInvalidArgument, c.Op, field)
		}
	}
	return conds, nil
}

// parseOperatorDocument treats a document whose keys all start with "$" as operators
// and any other document as a literal equality value.
func parseOperatorDocument(field string, raw interface{}, d bson.D) ([]Condition, error) {
	operators := 0
	for _, e := range d {
		if strings.HasPrefix(e.Key, "$") {
			operators++
		}
	}
	if operators == 0 {
		return []Condition{Eq(raw)}, nil
	}
	if operators != len(d) {
		return nil, fmt.Errorf("%w: field %q mixes operators and literal keys", ErrInvalidArgument, field)
	}
	conds := make([]Condition, 0, len(d))
	for _, e := range d {
		conds = append(conds, Condition{Op: Operator(e.Key), Value: e.Value})
	}
	return checkConditions(field, conds)
}

// toBSON renders the compiled filter as a MongoDB query document.
func (f compiledFilter) toBSON() bson.D {
	out := bson.D{}
	for _, c := range f {
		if len(c.conds) == 1 && c.conds[0].Op == OpEq && typeRank(c.conds[0].Value) != rankDocument {
			out = append(out, bson.E{Key: c.field, Value: c.conds[0].Value})
			continue
		}
		ops := bson.D{}
		for _, cond := range c.conds {
			ops = append(ops, bson.E{Key: string(cond.Op), Value: cond.Value})
		}
		out = append(out, bson.E{Key: c.field, Value: ops})
	}
	return out
}
