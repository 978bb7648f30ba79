// Package script replays the catalog walkthrough: seed, CRUD, queries,
// pagination, aggregations and indexing, collecting one section per printed heading.
package script

import (
	"context"
	"fmt"

	"github.com/nimburion/bookstore/pkg/catalog"
	"github.com/nimburion/bookstore/pkg/observability/logger"
	"github.com/nimburion/bookstore/pkg/repository/document"
)

// Section headings, in report order.
const (
	HeadingFiction          = "Fiction Books:"
	HeadingAfter1950        = "Books published after 1950:"
	HeadingOrwell           = "Books by George Orwell:"
	HeadingInStockAfter2010 = "Books in stock and published after 2010:"
	HeadingProjection       = "Projection (title, author, price):"
	HeadingPriceAsc         = "Books sorted by price ASC:"
	HeadingPriceDesc        = "Books sorted by price DESC:"
	HeadingPage1            = "Page 1 (first 5):"
	HeadingPage2            = "Page 2 (next 5):"
	HeadingAvgPriceByGenre  = "Average price by genre:"
	HeadingTopAuthor        = "Author with most books:"
	HeadingByDecade         = "Books grouped by decade:"
	HeadingExplain          = "Explain output for indexed query:"

	// CompletedLine closes a text report.
	CompletedLine = "MongoDB Shell script completed!"
)

// PageSize is the page size of the pagination sections.
const PageSize = 5

// Section is one printed block. Explain is set only for the explain section.
type Section struct {
	Heading   string
	Documents []document.Document
	Explain   *document.ExplainResult
}

// Report is the outcome of a full run.
type Report struct {
	Seeded   int
	Updated  int64
	Deleted  int64
	Indexes  []string
	Sections []Section
}

// Section returns the section with the given heading.
func (r *Report) Section(heading string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Heading == heading {
			return s, true
		}
	}
	return Section{}, false
}

// Runner executes the walkthrough against a collection.
type Runner struct {
	coll  document.Collection
	books []catalog.Book
	log   logger.Logger
}

// NewRunner creates a runner seeding the default catalog books.
func NewRunner(coll document.Collection, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{coll: coll, books: catalog.SeedBooks(), log: log}
}

// WithBooks replaces the seed records.
func (r *Runner) WithBooks(books []catalog.Book) *Runner {
	r.books = books
	return r
}

// Run executes every step in order and stops at the first error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	log := r.log.WithContext(ctx)
	rep := &Report{}

	n, err := catalog.Seed(ctx, r.coll, r.books)
	if err != nil {
		return nil, err
	}
	rep.Seeded = n
	log.Info("catalog seeded", "collection", r.coll.Name(), "count", n)

	all := document.NewQuery(r.coll, nil)
	steps := []struct {
		heading string
		query   *document.Query
	}{
		{HeadingFiction, document.NewQuery(r.coll, document.Filter{catalog.FieldGenre: "Fiction"})},
		{HeadingAfter1950, document.NewQuery(r.coll, document.Filter{catalog.FieldPublishedYear: document.Gt(1950)})},
		{HeadingOrwell, document.NewQuery(r.coll, document.Filter{catalog.FieldAuthor: "George Orwell"})},
	}
	for _, st := range steps {
		if err := r.addQuery(ctx, rep, st.heading, st.query); err != nil {
			return nil, err
		}
	}

	if rep.Updated, err = r.coll.UpdateOne(ctx,
		document.Filter{catalog.FieldTitle: "The Hobbit"},
		document.Document{{Key: catalog.FieldPrice, Value: 17.99}},
	); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}
	if rep.Deleted, err = r.coll.DeleteOne(ctx, document.Filter{catalog.FieldTitle: "Moby Dick"}); err != nil {
		return nil, fmt.Errorf("delete book: %w", err)
	}
	log.Info("catalog modified", "updated", rep.Updated, "deleted", rep.Deleted)

	byPrice := all.Sort(document.Asc(catalog.FieldPrice))
	steps = []struct {
		heading string
		query   *document.Query
	}{
		{HeadingInStockAfter2010, document.NewQuery(r.coll, document.Filter{
			catalog.FieldInStock:       true,
			catalog.FieldPublishedYear: document.Gt(2010),
		})},
		{HeadingProjection, all.Project(document.Include(catalog.FieldTitle, catalog.FieldAuthor, catalog.FieldPrice).WithoutID())},
		{HeadingPriceAsc, byPrice},
		{HeadingPriceDesc, all.Sort(document.Desc(catalog.FieldPrice))},
		{HeadingPage1, all.Skip(0).Limit(PageSize)},
		{HeadingPage2, all.Skip(PageSize).Limit(PageSize)},
	}
	for _, st := range steps {
		if err := r.addQuery(ctx, rep, st.heading, st.query); err != nil {
			return nil, err
		}
	}

	aggregations := []struct {
		heading  string
		pipeline document.Pipeline
	}{
		{HeadingAvgPriceByGenre, AvgPriceByGenre()},
		{HeadingTopAuthor, TopAuthor()},
		{HeadingByDecade, BooksByDecade()},
	}
	for _, agg := range aggregations {
		docs, err := r.coll.Aggregate(ctx, agg.pipeline)
		if err != nil {
			return nil, fmt.Errorf("%s %w", agg.heading, err)
		}
		log.Debug("section evaluated", "heading", agg.heading, "count", len(docs))
		rep.Sections = append(rep.Sections, Section{Heading: agg.heading, Documents: docs})
	}

	for _, model := range Indexes() {
		name, err := r.coll.CreateIndex(ctx, model)
		if err != nil {
			return nil, err
		}
		rep.Indexes = append(rep.Indexes, name)
		log.Info("index created", "index", name)
	}

	explain, err := document.NewQuery(r.coll, document.Filter{catalog.FieldTitle: "1984"}).Explain(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %w", HeadingExplain, err)
	}
	rep.Sections = append(rep.Sections, Section{Heading: HeadingExplain, Explain: explain})
	return rep, nil
}

func (r *Runner) addQuery(ctx context.Context, rep *Report, heading string, q *document.Query) error {
	docs, err := q.All(ctx)
	if err != nil {
		return fmt.Errorf("%s %w", heading, err)
	}
	r.log.WithContext(ctx).Debug("section evaluated", "heading", heading, "count", len(docs))
	rep.Sections = append(rep.Sections, Section{Heading: heading, Documents: docs})
	return nil
}

// AvgPriceByGenre averages price per genre.
func AvgPriceByGenre() document.Pipeline {
	return document.Pipeline{
		document.GroupStage{
			Key:          document.FieldKey(catalog.FieldGenre),
			Accumulators: []document.Accumulator{document.Avg("avgPrice", catalog.FieldPrice)},
		},
	}
}

// TopAuthor returns the author with the most books.
func TopAuthor() document.Pipeline {
	return document.Pipeline{
		document.GroupStage{
			Key:          document.FieldKey(catalog.FieldAuthor),
			Accumulators: []document.Accumulator{document.Count("totalBooks")},
		},
		document.SortStage{Sort: []document.Sort{document.Desc("totalBooks")}},
		document.LimitStage{N: 1},
	}
}

// BooksByDecade counts books per publication decade, ordered by decade label.
func BooksByDecade() document.Pipeline {
	return document.Pipeline{
		document.GroupStage{
			Key:          document.DecadeKey(catalog.FieldPublishedYear),
			Accumulators: []document.Accumulator{document.Count("count")},
		},
		document.SortStage{Sort: []document.Sort{document.Asc(document.IDField)}},
	}
}

// Indexes returns the title index and the author/published_year compound index.
func Indexes() []document.IndexModel {
	return []document.IndexModel{
		{Keys: []document.Sort{document.Asc(catalog.FieldTitle)}},
		{Keys: []document.Sort{document.Asc(catalog.FieldAuthor), document.Desc(catalog.FieldPublishedYear)}},
	}
}
