package document

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func randomBooks(years []int, prices []int) []Document {
	n := min(len(years), len(prices))
	docs := make([]Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, Document{
			{Key: "title", Value: fmt.Sprintf("book-%d", i)},
			{Key: "genre", Value: []string{"Fiction", "Fantasy", "Romance"}[i%3]},
			{Key: "published_year", Value: years[i]},
			{Key: "price", Value: float64(prices[i]) / 100},
		})
	}
	return docs
}

func loaded(docs []Document) *MemoryCollection {
	c := NewMemoryCollection("books")
	if _, err := c.InsertMany(context.Background(), docs); err != nil {
		panic(err)
	}
	return c
}

// Property: an empty filter returns every inserted document once, in insertion order.
func TestProperty_FindAllReturnsEverything(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("find({}) returns all documents", prop.ForAll(
		func(years, prices []int) bool {
			docs := randomBooks(years, prices)
			got, err := loaded(docs).Find(context.Background(), Filter{}, QueryOptions{})
			if err != nil || len(got) != len(docs) {
				return false
			}
			for i := range docs {
				want, _ := Lookup(docs[i], "title")
				have, _ := Lookup(got[i], "title")
				if want != have {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1800, 2025)),
		gen.SliceOf(gen.IntRange(0, 5000)),
	))

	properties.TestingRun(t)
}

// Property: consecutive pages of a sorted query partition the full sorted result.
func TestProperty_PaginationPartitions(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("pages concatenate to the sorted result", prop.ForAll(
		func(years []int, size int64) bool {
			prices := make([]int, len(years))
			c := loaded(randomBooks(years, prices))
			q := NewQuery(c, nil).Sort(Asc("published_year"))
			ctx := context.Background()

			all, err := q.All(ctx)
			if err != nil {
				return false
			}
			var paged []Document
			for page := int64(1); ; page++ {
				p := Page(page, size)
				docs, err := q.Skip(p.Skip).Limit(p.Limit).All(ctx)
				if err != nil {
					return false
				}
				if len(docs) == 0 {
					break
				}
				if int64(len(docs)) > size {
					return false
				}
				paged = append(paged, docs...)
			}
			if len(paged) != len(all) {
				return false
			}
			for i := range all {
				if compareValues(all[i], paged[i]) != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1800, 2025)),
		gen.Int64Range(1, 7),
	))

	properties.TestingRun(t)
}

// Property: sorted output is ordered and is a permutation of the matches.
func TestProperty_SortOrdersMatches(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("sort by price desc is ordered", prop.ForAll(
		func(years, prices []int) bool {
			docs := randomBooks(years, prices)
			got, err := loaded(docs).Find(context.Background(), nil, QueryOptions{Sort: []Sort{Desc("price")}})
			if err != nil || len(got) != len(docs) {
				return false
			}
			for i := 1; i < len(got); i++ {
				a, _ := Lookup(got[i-1], "price")
				b, _ := Lookup(got[i], "price")
				if compareValues(a, b) < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1800, 2025)),
		gen.SliceOf(gen.IntRange(0, 5000)),
	))

	properties.TestingRun(t)
}

// Property: aggregation is read-only, so running it twice gives the same result,
// and decade counts always sum to the collection size.
func TestProperty_AggregateIsIdempotent(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("decade grouping is stable and complete", prop.ForAll(
		func(years []int) bool {
			prices := make([]int, len(years))
			c := loaded(randomBooks(years, prices))
			p := Pipeline{
				GroupStage{Key: DecadeKey("published_year"), Accumulators: []Accumulator{Count("count")}},
				SortStage{Sort: []Sort{Asc(IDField)}},
			}
			ctx := context.Background()
			first, err := c.Aggregate(ctx, p)
			if err != nil {
				return false
			}
			second, err := c.Aggregate(ctx, p)
			if err != nil || len(first) != len(second) {
				return false
			}
			var total int64
			for i := range first {
				if compareValues(first[i], second[i]) != 0 {
					return false
				}
				n, _ := Lookup(first[i], "count")
				total += n.(int64)
			}
			return total == int64(len(years))
		},
		gen.SliceOf(gen.IntRange(1800, 2025)),
	))

	properties.TestingRun(t)
}

// Property: the decade label is the year rounded down to a multiple of ten.
func TestProperty_DecadeLabel(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("decade contains year", prop.ForAll(
		func(year int64) bool {
			var decade int64
			if _, err := fmt.Sscanf(DecadeLabel(year), "%ds", &decade); err != nil {
				return false
			}
			return decade%10 == 0 && decade <= year && year < decade+10
		},
		gen.Int64Range(-3000, 3000),
	))

	properties.TestingRun(t)
}
