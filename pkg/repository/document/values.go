package document

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newObjectID() interface{} { return primitive.NewObjectID() }

// Lookup resolves a dotted field path inside doc. The boolean is false when the path is absent.
func Lookup(doc Document, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case bson.D:
			found := false
			for _, e := range v {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.M:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]interface{}:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set replaces the top-level field key, appending it when absent.
func Set(doc Document, key string, value interface{}) Document {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// Clone deep-copies a document so callers cannot alias stored state.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		return Clone(t)
	case bson.M:
		out := make(bson.M, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

// BSON comparison order, lowest first.
const (
	rankNull = iota
	rankNumber
	rankString
	rankDocument
	rankArray
	rankBinary
	rankObjectID
	rankBool
	rankDate
	rankOther
)

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return rankNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, primitive.Decimal128:
		return rankNumber
	case string, primitive.Symbol:
		return rankString
	case bson.D, bson.M, map[string]interface{}:
		return rankDocument
	case bson.A, []interface{}:
		return rankArray
	case primitive.Binary, []byte:
		return rankBinary
	case primitive.ObjectID:
		return rankObjectID
	case bool:
		return rankBool
	case time.Time, primitive.DateTime, primitive.Timestamp:
		return rankDate
	default:
		return rankOther
	}
}

// asInt64 returns the value as an int64 when it is an integer type.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	default:
		return 0, false
	}
}

// asFloat64 converts any numeric value to float64.
func asFloat64(v interface{}) (float64, bool) {
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asWholeNumber accepts integers and floats without a fractional part.
func asWholeNumber(v interface{}) (int64, bool) {
	if i, ok := asInt64(v); ok {
		return i, true
	}
	f, ok := asFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func compareNumbers(a, b interface{}) int {
	ia, okA := asInt64(a)
	ib, okB := asInt64(b)
	if okA && okB {
		return cmp.Compare(ia, ib)
	}
	fa, _ := asFloat64(a)
	fb, _ := asFloat64(b)
	return cmp.Compare(fa, fb)
}

func asString(v interface{}) string {
	if s, ok := v.(primitive.Symbol); ok {
		return string(s)
	}
	s, _ := v.(string)
	return s
}

func asDocument(v interface{}) bson.D {
	switch t := v.(type) {
	case bson.D:
		return t
	case bson.M:
		return sortedDocument(t)
	case map[string]interface{}:
		return sortedDocument(t)
	}
	return nil
}

func sortedDocument(m map[string]interface{}) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

func asBytes(v interface{}) []byte {
	switch t := v.(type) {
	case primitive.Binary:
		return t.Data
	case []byte:
		return t
	}
	return nil
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0)
	}
	return time.Time{}
}

// compareValues orders two values by BSON type rank, then by value.
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNull:
		return 0
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(asString(a), asString(b))
	case rankDocument:
		da, db := asDocument(a), asDocument(b)
		for i := 0; i < len(da) && i < len(db); i++ {
			if c := strings.Compare(da[i].Key, db[i].Key); c != 0 {
				return c
			}
			if c := compareValues(da[i].Value, db[i].Value); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(da), len(db))
	case rankArray:
		xa, _ := asArray(a)
		xb, _ := asArray(b)
		for i := 0; i < len(xa) && i < len(xb); i++ {
			if c := compareValues(xa[i], xb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(xa), len(xb))
	case rankBinary:
		return bytes.Compare(asBytes(a), asBytes(b))
	case rankObjectID:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(oa[:], ob[:])
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankDate:
		return asTime(a).Compare(asTime(b))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func valuesEqual(a, b interface{}) bool {
	return compareValues(a, b) == 0 && typeRank(a) == typeRank(b)
}
