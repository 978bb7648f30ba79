package document

import (
	"context"
	"errors"
	"testing"
	"time"

	mongostore "github.com/nimburion/bookstore/pkg/store/mongodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockCollection(mt *mtest.T, opts ...Option) *MongoCollection {
	mt.Helper()
	adapter, err := mongostore.NewAdapterFromClient(mt.Client, mt.DB.Name(), time.Second, nil)
	require.NoError(mt, err)
	coll, err := NewMongoCollection(adapter, "books", opts...)
	require.NoError(mt, err)
	return coll
}

func startedCommand(mt *mtest.T) bson.Raw {
	mt.Helper()
	ev := mt.GetStartedEvent()
	require.NotNil(mt, ev, "expected a command to be sent")
	return ev.Command
}

func TestNewMongoCollection_Validation(t *testing.T) {
	_, err := NewMongoCollection(nil, "books")
	assert.Error(t, err)
}

func TestMongoCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert many assigns ids in order", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		ids, err := coll.InsertMany(ctx, []Document{
			{{Key: "title", Value: "1984"}},
			{{Key: "title", Value: "Emma"}},
		})
		require.NoError(mt, err)
		require.Len(mt, ids, 2)
		first := ids[0].(primitive.ObjectID)
		second := ids[1].(primitive.ObjectID)
		assert.NotEqual(mt, first, second)

		cmd := startedCommand(mt)
		docs := cmd.Lookup("documents").Array()
		values, err := docs.Values()
		require.NoError(mt, err)
		require.Len(mt, values, 2)
		firstDoc := values[0].Document()
		elems, err := firstDoc.Elements()
		require.NoError(mt, err)
		assert.Equal(mt, IDField, elems[0].Key(), "_id must lead the stored document")
	})

	mt.Run("insert many maps duplicate key errors", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		_, err := coll.InsertMany(ctx, []Document{{{Key: IDField, Value: 1}}})
		assert.ErrorIs(mt, err, ErrDuplicateID)
	})

	mt.Run("insert many validates before sending", func(mt *mtest.T) {
		reject := errors.New("price must be non-negative")
		coll := newMockCollection(mt, WithValidator(func(d Document) error {
			if v, ok := Lookup(d, "price"); ok && v.(float64) < 0 {
				return reject
			}
			return nil
		}))

		_, err := coll.InsertMany(ctx, []Document{{{Key: "price", Value: -1.0}}})
		assert.ErrorIs(mt, err, ErrInvalidRecord)
		assert.ErrorIs(mt, err, reject)
		assert.Nil(mt, mt.GetStartedEvent(), "nothing should reach the server")
	})

	mt.Run("find sends filter sort and pagination", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		ns := mt.DB.Name() + ".books"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "title", Value: "Brave New World"}},
			bson.D{{Key: "_id", Value: 2}, {Key: "title", Value: "The Great Gatsby"}},
		))

		docs, err := coll.Find(ctx,
			Filter{"published_year": Gt(1950), "genre": "Fiction"},
			QueryOptions{
				Sort:       []Sort{Desc("price")},
				Pagination: Pagination{Skip: 5, Limit: 5},
				Projection: &Projection{Fields: []string{"title"}, ExcludeID: true},
			})
		require.NoError(mt, err)
		require.Len(mt, docs, 2)
		title, _ := Lookup(docs[1], "title")
		assert.Equal(mt, "The Great Gatsby", title)

		cmd := startedCommand(mt)
		assert.Equal(mt, "books", cmd.Lookup("find").StringValue())
		assert.Equal(mt, "Fiction", cmd.Lookup("filter", "genre").StringValue())
		assert.Equal(mt, int32(1950), cmd.Lookup("filter", "published_year", "$gt").Int32())

		sortKeys, err := cmd.Lookup("sort").Document().Elements()
		require.NoError(mt, err)
		require.Len(mt, sortKeys, 2)
		assert.Equal(mt, "price", sortKeys[0].Key())
		assert.Equal(mt, int32(-1), sortKeys[0].Value().Int32())
		assert.Equal(mt, IDField, sortKeys[1].Key(), "sort must end with an _id tiebreak")

		assert.Equal(mt, int64(5), cmd.Lookup("skip").Int64())
		assert.Equal(mt, int64(5), cmd.Lookup("limit").Int64())
		assert.Equal(mt, int32(0), cmd.Lookup("projection", "_id").Int32())
		assert.Equal(mt, int32(1), cmd.Lookup("projection", "title").Int32())
	})

	mt.Run("find rejects bad arguments locally", func(mt *mtest.T) {
		coll := newMockCollection(mt)

		_, err := coll.Find(ctx, Filter{"price": bson.M{"$regex": "x"}}, QueryOptions{})
		assert.ErrorIs(mt, err, ErrInvalidArgument)
		_, err = coll.Find(ctx, nil, QueryOptions{Pagination: Pagination{Limit: -1}})
		assert.ErrorIs(mt, err, ErrInvalidArgument)
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("update one uses $set and reports matches", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		n, err := coll.UpdateOne(ctx, Filter{"title": "The Hobbit"}, Document{{Key: "price", Value: 17.99}})
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), n)

		cmd := startedCommand(mt)
		update := cmd.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "The Hobbit", update.Lookup("q", "title").StringValue())
		assert.Equal(mt, 17.99, update.Lookup("u", "$set", "price").Double())
	})

	mt.Run("update one with no match returns zero", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		n, err := coll.UpdateOne(ctx, Filter{"title": "Missing"}, Document{{Key: "price", Value: 1.0}})
		require.NoError(mt, err)
		assert.Zero(mt, n)
	})

	mt.Run("update one refuses _id", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		_, err := coll.UpdateOne(ctx, Filter{}, Document{{Key: IDField, Value: 1}})
		assert.ErrorIs(mt, err, ErrInvalidArgument)
	})

	mt.Run("delete one", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		n, err := coll.DeleteOne(ctx, Filter{"title": "Moby Dick"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), n)

		cmd := startedCommand(mt)
		del := cmd.Lookup("deletes").Array().Index(0).Value().Document()
		assert.Equal(mt, "Moby Dick", del.Lookup("q", "title").StringValue())
		assert.Equal(mt, int32(1), del.Lookup("limit").Int32())
	})

	mt.Run("count documents", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		ns := mt.DB.Name() + ".books"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(4)}}))

		n, err := coll.CountDocuments(ctx, Filter{"genre": "Fiction"})
		require.NoError(mt, err)
		assert.Equal(mt, int64(4), n)
	})

	mt.Run("aggregate returns server groups", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		ns := mt.DB.Name() + ".books"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "1810s"}, {Key: "count", Value: int32(1)}},
		))

		docs, err := coll.Aggregate(ctx, Pipeline{
			GroupStage{Key: DecadeKey("published_year"), Accumulators: []Accumulator{Count("count")}},
			SortStage{Sort: []Sort{Asc(IDField)}},
		})
		require.NoError(mt, err)
		require.Len(mt, docs, 1)
		id, _ := Lookup(docs[0], IDField)
		assert.Equal(mt, "1810s", id)

		cmd := startedCommand(mt)
		stages, err := cmd.Lookup("pipeline").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, stages, 2)
		_, err = stages[0].Document().LookupErr("$group", "_id", "$concat")
		assert.NoError(mt, err)
	})

	mt.Run("create index uses the default name", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		name, err := coll.CreateIndex(ctx, IndexModel{Keys: []Sort{Asc("author"), Desc("published_year")}})
		require.NoError(mt, err)
		assert.Equal(mt, "author_1_published_year_-1", name)

		cmd := startedCommand(mt)
		idx := cmd.Lookup("indexes").Array().Index(0).Value().Document()
		assert.Equal(mt, "author_1_published_year_-1", idx.Lookup("name").StringValue())
		assert.Equal(mt, int32(-1), idx.Lookup("key", "published_year").Int32())
	})

	mt.Run("list indexes parses key patterns", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		ns := mt.DB.Name() + ".books"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "v", Value: 2}, {Key: "key", Value: bson.D{{Key: "_id", Value: 1}}}, {Key: "name", Value: "_id_"}},
			bson.D{{Key: "v", Value: 2}, {Key: "key", Value: bson.D{{Key: "author", Value: 1}, {Key: "published_year", Value: -1}}}, {Key: "name", Value: "author_1_published_year_-1"}},
		))

		indexes, err := coll.ListIndexes(ctx)
		require.NoError(mt, err)
		require.Len(mt, indexes, 2)
		assert.Equal(mt, IDIndexName, indexes[0].Name)
		assert.Equal(mt, []Sort{Asc("author"), Desc("published_year")}, indexes[1].Keys)
	})

	mt.Run("explain parses the winning plan", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "queryPlanner", Value: bson.D{
				{Key: "namespace", Value: "plp_bookstore.books"},
				{Key: "winningPlan", Value: bson.D{
					{Key: "stage", Value: "FETCH"},
					{Key: "inputStage", Value: bson.D{
						{Key: "stage", Value: "IXSCAN"},
						{Key: "indexName", Value: "title_1"},
						{Key: "keyPattern", Value: bson.D{{Key: "title", Value: 1}}},
					}},
				}},
			}},
			bson.E{Key: "executionStats", Value: bson.D{
				{Key: "nReturned", Value: int32(1)},
				{Key: "executionTimeMillis", Value: int32(0)},
				{Key: "totalKeysExamined", Value: int32(1)},
				{Key: "totalDocsExamined", Value: int32(1)},
			}},
		))

		res, err := coll.Explain(ctx, Filter{"title": "1984"}, QueryOptions{})
		require.NoError(mt, err)
		assert.Equal(mt, "plp_bookstore.books", res.Namespace)
		assert.Equal(mt, "FETCH", res.WinningPlan.Stage)
		scan, ok := res.WinningPlan.Find("IXSCAN")
		require.True(mt, ok)
		assert.Equal(mt, "title_1", scan.IndexName)
		assert.True(mt, res.ExecutionStats.IndexUsed)
		assert.Equal(mt, int64(1), res.ExecutionStats.NReturned)
		assert.Equal(mt, int64(1), res.ExecutionStats.TotalKeysExamined)

		cmd := startedCommand(mt)
		assert.Equal(mt, "executionStats", cmd.Lookup("verbosity").StringValue())
		assert.Equal(mt, "books", cmd.Lookup("explain", "find").StringValue())
	})

	mt.Run("explain unwraps slot based plans", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "queryPlanner", Value: bson.D{
				{Key: "winningPlan", Value: bson.D{
					{Key: "queryPlan", Value: bson.D{{Key: "stage", Value: "COLLSCAN"}}},
				}},
			}},
		))

		res, err := coll.Explain(ctx, Filter{"genre": "Fiction"}, QueryOptions{})
		require.NoError(mt, err)
		assert.Equal(mt, "COLLSCAN", res.WinningPlan.Stage)
		assert.False(mt, res.ExecutionStats.IndexUsed)
	})

	mt.Run("drop", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, coll.Drop(ctx))
		assert.Equal(mt, "books", startedCommand(mt).Lookup("drop").StringValue())
	})

	mt.Run("ping", func(mt *mtest.T) {
		coll := newMockCollection(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, coll.Ping(ctx))
		_, err := startedCommand(mt).LookupErr("ping")
		assert.NoError(mt, err)
	})
}

func TestPipelineBSON(t *testing.T) {
	stages, err := PipelineBSON(Pipeline{
		MatchStage{Filter: Filter{"in_stock": true}},
		GroupStage{Key: FieldKey("genre"), Accumulators: []Accumulator{Avg("avgPrice", "price")}},
		SortStage{Sort: []Sort{Desc("avgPrice")}},
		LimitStage{N: 1},
	})
	require.NoError(t, err)
	require.Len(t, stages, 4)

	assert.Equal(t, bson.D{{Key: "$match", Value: bson.D{{Key: "in_stock", Value: true}}}}, stages[0])
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$genre"},
		{Key: "avgPrice", Value: bson.D{{Key: "$avg", Value: "$price"}}},
	}}}, stages[1])
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "avgPrice", Value: int32(-1)}}}}, stages[2])
	assert.Equal(t, bson.D{{Key: "$limit", Value: int64(1)}}, stages[3])

	_, err = PipelineBSON(Pipeline{LimitStage{N: 0}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
