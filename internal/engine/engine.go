// Package engine wires the Encoder, Persistence Adapter, Vector Store,
// Memory Store, Sparse Router, Learning Engine, Feedback Processor, and
// Ingestion Coordinator into one explicit context, per spec §9's guidance
// to avoid module-level globals. Grounded on the teacher's
// core/echobeats/goakt_cognitive_system.go, which plays the same role for
// its actor system and dependent services.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/config"
	"github.com/echocog/cogrun/internal/encoder"
	"github.com/echocog/cogrun/internal/feedback"
	"github.com/echocog/cogrun/internal/ingest"
	"github.com/echocog/cogrun/internal/learning"
	"github.com/echocog/cogrun/internal/memory"
	"github.com/echocog/cogrun/internal/persistence"
	"github.com/echocog/cogrun/internal/router"
	"github.com/echocog/cogrun/internal/vectorstore"
)

// Engine is the cognitive runtime's explicit dependency context. Every
// subsystem is reachable from here; nothing keeps module-level state.
type Engine struct {
	Config *config.Config
	Log    *zap.Logger

	Persistence persistence.Adapter
	Graph       *persistence.GraphAdapter
	Vectors     *vectorstore.VectorStore

	Encoder  *encoder.Encoder
	Memory   *memory.Store
	Router   *router.Router
	Learning *learning.Engine
	Feedback *feedback.Processor
	Ingest   *ingest.Coordinator
}

// Options lets callers override the default wiring (alternate persistence
// backend, an embedder for the vector store, extra pipeline stages) without
// reaching into the Engine's fields before New returns.
type Options struct {
	Persistence   persistence.Adapter // overrides SQLite when set
	Embedder      vectorstore.Embedder
	Preprocessors []ingest.Preprocessor
	Filters       []ingest.Filter
}

// New builds a fully wired Engine from cfg. The Persistence Adapter is
// Supabase-backed when cfg.SupabaseURL is set, else SQLite at
// cfg.SQLitePath; a Dgraph mirror of the association graph is attached only
// when cfg.DgraphEndpoint is configured, per spec §6's "optional backend"
// framing.
func New(cfg *config.Config, log *zap.Logger, opts Options) (*Engine, error) {
	adapter := opts.Persistence
	if adapter == nil && cfg.SupabaseURL != "" {
		remoteAdapter, err := persistence.NewRemoteAdapter(log, cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("engine: building supabase adapter: %w", err)
		}
		adapter = remoteAdapter
	}
	if adapter == nil {
		sqliteAdapter, err := persistence.NewSQLiteAdapter(log, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("engine: building sqlite adapter: %w", err)
		}
		adapter = sqliteAdapter
	}

	var graph *persistence.GraphAdapter
	if cfg.DgraphEndpoint != "" {
		g, err := persistence.NewGraphAdapter(log, cfg.DgraphEndpoint)
		if err != nil {
			if log != nil {
				log.Warn("dgraph adapter unavailable, association graph stays in-process only", zap.Error(err))
			}
		} else {
			graph = g
		}
	}

	enc, err := encoder.New(log, cfg.PatternCacheMax)
	if err != nil {
		return nil, fmt.Errorf("engine: building encoder: %w", err)
	}

	memStore := memory.New(log, adapter, graph, cfg.MemoryCacheMax)
	if err := memStore.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: hydrating memory store: %w", err)
	}

	rtr := router.New(router.Config{
		TargetSparsity:         cfg.TargetSparsity,
		TargetActivationCount:  cfg.MaxActiveMemories,
		InitialGlobalThreshold: cfg.InitialGlobalThreshold,
		ActivationBudget:       1.0,
	})

	learningEngine := learning.New(learning.Config{
		LearningRate:   cfg.LearningRate,
		ForgettingRate: cfg.ForgettingRate,
		HistoryBound:   cfg.HistoryBound,
		HistoryTrimTo:  cfg.HistoryTrimTo,
	})

	feedbackProc := feedback.New(log, learningEngine, memStore, feedback.Config{
		BatchSize: cfg.FeedbackBatchSize,
		Interval:  time.Duration(cfg.FeedbackIntervalS * float64(time.Second)),
		QueueMax:  cfg.FeedbackQueueMax,
	})

	vectors := vectorstore.New(log, adapter, opts.Embedder, cfg.VectorDimension, cfg.SimilarityThreshold)

	preprocessors := opts.Preprocessors
	if preprocessors == nil {
		preprocessors = ingest.DefaultPreprocessors()
	}
	filters := opts.Filters
	if filters == nil {
		filters = ingest.DefaultFilters()
	}

	coordinator := ingest.New(log, enc, memStore, rtr, adapter, vectors, preprocessors, filters, ingest.Config{
		Timeout: time.Duration(cfg.IngestionTimeoutS * float64(time.Second)),
	})

	return &Engine{
		Config:      cfg,
		Log:         log,
		Persistence: adapter,
		Graph:       graph,
		Vectors:     vectors,
		Encoder:     enc,
		Memory:      memStore,
		Router:      rtr,
		Learning:    learningEngine,
		Feedback:    feedbackProc,
		Ingest:      coordinator,
	}, nil
}

// Start brings up the background actors (feedback batch-drain, ingestion
// event-log sink).
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Feedback.Start(ctx); err != nil {
		return fmt.Errorf("engine: starting feedback processor: %w", err)
	}
	if err := e.Ingest.Start(ctx); err != nil {
		return fmt.Errorf("engine: starting ingestion coordinator: %w", err)
	}
	return nil
}

// Stop tears down background actors and closes the persistence layer.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.Ingest.Stop(ctx); err != nil && e.Log != nil {
		e.Log.Warn("ingestion coordinator stop failed", zap.Error(err))
	}
	if err := e.Feedback.Stop(ctx); err != nil && e.Log != nil {
		e.Log.Warn("feedback processor stop failed", zap.Error(err))
	}
	if e.Graph != nil {
		if err := e.Graph.Close(); err != nil && e.Log != nil {
			e.Log.Warn("graph adapter close failed", zap.Error(err))
		}
	}
	return e.Persistence.Close()
}

// Health aggregates the operator-facing health probe across the
// persistence layer and the in-process subsystems.
type Health struct {
	Persistence  persistence.HealthStatus
	MemoryItems  int
	FeedbackQueue int
}

// Health reports the Engine's current health snapshot.
func (e *Engine) Health(ctx context.Context) Health {
	return Health{
		Persistence:   e.Persistence.Health(ctx),
		MemoryItems:   e.Memory.CacheSize(),
		FeedbackQueue: e.Feedback.QueueLen(),
	}
}
