package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/bookstore/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Adapter provides MongoDB connectivity scoped to one database.
type Adapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL              string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// NewAdapter connects to MongoDB and verifies connectivity with a ping.
// It does not create collections or indexes.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return NewAdapterFromClient(client, cfg.Database, cfg.OperationTimeout, log)
}

// NewAdapterFromClient wraps an already connected client.
func NewAdapterFromClient(client *mongo.Client, database string, operationTimeout time.Duration, log logger.Logger) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("mongodb client is required")
	}
	if database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		client:   client,
		database: database,
		logger:   log,
		timeout:  operationTimeout,
	}, nil
}

func (a *Adapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

// Namespace returns "<database>.<collection>".
func (a *Adapter) Namespace(collection string) string {
	return a.database + "." + collection
}

func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return fmt.Errorf("mongodb adapter is closed")
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []interface{}) (*mongo.InsertManyResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).InsertMany(opCtx, docs)
}

// Find decodes every matching document before the operation deadline expires.
func (a *Adapter) Find(ctx context.Context, collection string, filter interface{}, opts *options.FindOptions) ([]bson.D, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Find(opCtx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []bson.D{}
	if err := cur.All(opCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).CountDocuments(opCtx, filter)
}

func (a *Adapter) UpdateOne(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).UpdateOne(opCtx, filter, update)
}

func (a *Adapter) DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).DeleteOne(opCtx, filter)
}

func (a *Adapter) Aggregate(ctx context.Context, collection string, pipeline interface{}) ([]bson.D, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Aggregate(opCtx, pipeline)
	if err != nil {
		return nil, err
	}
	out := []bson.D{}
	if err := cur.All(opCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) CreateIndex(ctx context.Context, collection string, model mongo.IndexModel) (string, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).Indexes().CreateOne(opCtx, model)
}

func (a *Adapter) ListIndexes(ctx context.Context, collection string) ([]bson.D, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cur, err := a.Collection(collection).Indexes().List(opCtx)
	if err != nil {
		return nil, err
	}
	out := []bson.D{}
	if err := cur.All(opCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunCommand runs a database command and decodes the reply into result.
func (a *Adapter) RunCommand(ctx context.Context, cmd interface{}, result interface{}) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Database().RunCommand(opCtx, cmd).Decode(result)
}

// DropCollection drops the collection; dropping a missing collection is not an error.
func (a *Adapter) DropCollection(ctx context.Context, collection string) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	if err := a.Collection(collection).Drop(opCtx); err != nil {
		return err
	}
	a.logger.Debug("MongoDB collection dropped", "collection", a.Namespace(collection))
	return nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
