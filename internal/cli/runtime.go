package cli

import (
	"context"
	"fmt"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/graph"
	"github.com/lazypower/rapport/internal/ingest"
	"github.com/lazypower/rapport/internal/logging"
	"github.com/lazypower/rapport/internal/store"
	"go.uber.org/zap"
)

// runtime is the wiring shared by every command that touches the journal.
type runtime struct {
	cfg      config.Config
	log      *zap.Logger
	db       *store.DB
	registry *graph.Registry
	ingest   *ingest.Service
}

// openRuntime loads config, opens the journal and rebuilds every user graph
// from it.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry := graph.NewRegistry(graph.WithSampleCapacity(cfg.Graph.SampleCapacity))
	svc := ingest.New(registry, db, log)
	if _, _, err := svc.Replay(ctx); err != nil {
		db.Close()
		log.Sync()
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	return &runtime{cfg: cfg, log: log, db: db, registry: registry, ingest: svc}, nil
}

func (rt *runtime) Close() {
	rt.db.Close()
	rt.log.Sync()
}

// openDB opens the configured journal, defaulting to ~/.rapport/rapport.db.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}
