// Package store opens the document collection selected by configuration.
package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/bookstore/pkg/config"
	"github.com/nimburion/bookstore/pkg/observability/logger"
	"github.com/nimburion/bookstore/pkg/repository/document"
	"github.com/nimburion/bookstore/pkg/store/mongodb"
)

// Open selects and initializes the collection backend from config. opts apply to
// the collection (validator, id generator) whichever backend is chosen.
func Open(cfg config.StoreConfig, log logger.Logger, opts ...document.Option) (*Handle, error) {
	if log == nil {
		log = logger.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case config.StoreBackendMemory:
		return &Handle{
			Collection: document.NewMemoryCollection(cfg.Collection, opts...),
			Backend:    backend,
		}, nil
	case config.StoreBackendMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.Database,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		coll, err := document.NewMongoCollection(adapter, cfg.Collection, opts...)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &Handle{Collection: coll, Backend: backend, close: adapter.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported store.backend %q (supported: %s, %s)",
			cfg.Backend, config.StoreBackendMemory, config.StoreBackendMongoDB)
	}
}
