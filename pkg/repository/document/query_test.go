package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_BuilderReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)

	base := NewQuery(c, Filter{"genre": "Fiction"}).Sort(Asc("published_year"))
	limited := base.Limit(1)
	projected := base.Project(Include("title").WithoutID())

	all, err := base.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brave New World", "Animal Farm", "1984"}, titles(all))

	one, err := limited.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brave New World"}, titles(one))

	p, err := projected.All(ctx)
	require.NoError(t, err)
	require.Len(t, p, 3)
	assert.Len(t, p[0], 1)

	assert.Zero(t, base.Options().Pagination.Limit, "Limit must not modify the base query")
	assert.Nil(t, base.Options().Projection, "Project must not modify the base query")
}

func TestQuery_ReevaluatesAgainstCurrentState(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	q := NewQuery(c, Filter{"author": "George Orwell"})

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.DeleteOne(ctx, Filter{"title": "1984"})
	require.NoError(t, err)

	docs, err := q.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Animal Farm"}, titles(docs))
}

func TestQuery_Pagination(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	q := NewQuery(c, nil).Sort(Asc("title"))

	page1, err := q.Skip(0).Limit(4).All(ctx)
	require.NoError(t, err)
	page2, err := q.Skip(4).Limit(4).All(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"1984", "Animal Farm", "Brave New World", "Dune"}, titles(page1))
	assert.Equal(t, []string{"Pride and Prejudice", "The Hobbit"}, titles(page2))
}

func TestQuery_Iter(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	q := NewQuery(c, Filter{"genre": "Fiction"})

	var got []string
	for doc, err := range q.Iter(ctx) {
		require.NoError(t, err)
		got = append(got, titles([]Document{doc})...)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1984", "Animal Farm"}, got)

	bad := NewQuery(c, Filter{"price": Condition{Op: "$bogus"}})
	for _, err := range bad.Iter(ctx) {
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	}
}

func TestQuery_Explain(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)

	res, err := NewQuery(c, Filter{"genre": "Fiction"}).Sort(Desc("price")).Limit(2).Explain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LIMIT", res.WinningPlan.Stage)
	_, sorted := res.WinningPlan.Find("SORT")
	assert.True(t, sorted)
	assert.Equal(t, int64(2), res.ExecutionStats.NReturned)
}
