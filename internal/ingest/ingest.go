// Package ingest implements the Ingestion Coordinator: it chains encode ->
// pre-process -> filter -> store -> retrieve -> activate -> log for a
// single event, and fans batches out preserving order. The event log sink
// is a tochemey/goakt/v2 actor, grounded on the same
// core/echobeats/goakt_cognitive_system.go bootstrap used by the Feedback
// Processor's batch-drain actor. The ordered pre-processor/filter pipeline
// is the supplemented feature recovered from
// original_source/services/ingestion.py.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tochemey/goakt/v2/actors"
	"github.com/tochemey/goakt/v2/goakt"
	"github.com/tochemey/goakt/v2/log"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/encoder"
	"github.com/echocog/cogrun/internal/memory"
	"github.com/echocog/cogrun/internal/model"
	"github.com/echocog/cogrun/internal/persistence"
	"github.com/echocog/cogrun/internal/router"
	"github.com/echocog/cogrun/internal/vectorstore"
)

// Preprocessor mutates or enriches a raw event before encoding, e.g.
// validation/cleaning or metadata enrichment (spec §4.6 step 2).
type Preprocessor interface {
	Name() string
	Apply(event model.RawEvent) (model.RawEvent, error)
}

// Filter decides whether an event should be dropped before it reaches the
// Memory Store (spec §4.6 step 3). Accept returning true means the event
// is filtered out.
type Filter interface {
	Name() string
	Accept(event model.RawEvent) bool
}

// Status tags the outcome of a single ingest() call.
type Status string

const (
	StatusStored   Status = "stored"
	StatusFiltered Status = "filtered"
)

// Result is returned by Ingest.
type Result struct {
	MemoryID       string
	Pattern        model.Pattern
	Context        model.Context
	ActiveMemories []*model.MemoryItem
	Status         Status
	ProcessingTime time.Duration
}

// Coordinator is the Ingestion Coordinator.
type Coordinator struct {
	enc           *encoder.Encoder
	store         *memory.Store
	rtr           *router.Router
	adapter       persistence.Adapter
	vectors       *vectorstore.VectorStore
	preprocessors []Preprocessor
	filters       []Filter
	timeout       time.Duration
	log           *zap.Logger

	actorSystem goakt.ActorSystem
	logActor    actors.PID
	seq         int64
}

// Config parametrizes a new Coordinator.
type Config struct {
	Timeout time.Duration
}

// New builds a Coordinator. Start must be called before Ingest if an event
// log sink actor is desired; Ingest degrades to synchronous logging via
// the adapter directly when the actor system has not been started. vectors
// may be nil; when it has an Embedder configured, Ingest indexes each
// stored event's content into it alongside the Memory Store write.
func New(log *zap.Logger, enc *encoder.Encoder, store *memory.Store, rtr *router.Router, adapter persistence.Adapter, vectors *vectorstore.VectorStore, preprocessors []Preprocessor, filters []Filter, cfg Config) *Coordinator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Coordinator{
		enc:           enc,
		store:         store,
		rtr:           rtr,
		adapter:       adapter,
		vectors:       vectors,
		preprocessors: preprocessors,
		filters:       filters,
		timeout:       cfg.Timeout,
		log:           log,
	}
}

type eventLogMsg struct {
	row persistence.EventLogRow
}

type eventLogActorBody struct {
	adapter persistence.Adapter
	log     *zap.Logger
}

func (a *eventLogActorBody) PreStart(ctx context.Context) error  { return nil }
func (a *eventLogActorBody) PostStop(ctx context.Context) error { return nil }

func (a *eventLogActorBody) Receive(ctx actors.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *eventLogMsg:
		if a.adapter == nil {
			return
		}
		if err := a.adapter.AppendEventLog(context.Background(), msg.row); err != nil && a.log != nil {
			a.log.Warn("event log append failed", zap.Error(err))
		}
	default:
		ctx.Unhandled()
	}
}

// Start spawns the event log sink actor.
func (c *Coordinator) Start(ctx context.Context) error {
	system, err := goakt.NewActorSystem("cogrun-ingest", goakt.WithLogger(log.DefaultLogger))
	if err != nil {
		return fmt.Errorf("ingest: creating actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return fmt.Errorf("ingest: starting actor system: %w", err)
	}
	pid, err := system.Spawn(ctx, "event-log", &eventLogActorBody{adapter: c.adapter, log: c.log})
	if err != nil {
		return fmt.Errorf("ingest: spawning event-log actor: %w", err)
	}
	c.actorSystem = system
	c.logActor = pid
	return nil
}

// Stop tears down the actor system.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.actorSystem == nil {
		return nil
	}
	return c.actorSystem.Stop(ctx)
}

// Ingest runs the full pipeline for one event, per spec §4.6.
func (c *Coordinator) Ingest(ctx context.Context, event model.RawEvent, source string) (Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	encoded := c.enc.Encode(event) // step 1

	processed := event
	for _, p := range c.preprocessors { // step 2
		var err error
		processed, err = p.Apply(processed)
		if err != nil {
			if c.log != nil {
				c.log.Warn("preprocessor failed, event unchanged", zap.String("preprocessor", p.Name()), zap.Error(err))
			}
			continue
		}
	}

	for _, f := range c.filters { // step 3
		if f.Accept(processed) {
			c.emitLog(ctx, "ingestion_event", nil, source, StatusFiltered, time.Since(start))
			return Result{
				Pattern: encoded.Pattern,
				Context: encoded.Context,
				Status:  StatusFiltered,
				ProcessingTime: time.Since(start),
			}, nil
		}
	}

	item := c.store.CreateItem(encoded.Pattern.Signature, map[string]interface{}{ // step 4
		"raw":     processed.Fields,
		"pattern": encoded.Pattern,
	}, encoded.Context, model.MemoryEpisodic, nil, nil, model.Ptr(encoded.Pattern.Confidence))
	id, err := c.store.Store(ctx, item)
	if err != nil {
		return Result{}, err
	}

	c.indexVector(ctx, id, processed) // step 4.5, optional

	candidates := c.store.Retrieve(ctx, encoded.Pattern.Signature, encoded.Context) // step 5
	active := c.rtr.Activate(candidates, encoded.Context)                          // step 6

	c.emitLog(ctx, "ingestion_event", []string{id}, source, StatusStored, time.Since(start)) // step 7

	return Result{ // step 8
		MemoryID:       id,
		Pattern:        encoded.Pattern,
		Context:        encoded.Context,
		ActiveMemories: active,
		Status:         StatusStored,
		ProcessingTime: time.Since(start),
	}, nil
}

// indexVector embeds the stored event's content into the Vector Store when
// one is configured with an Embedder, so the semantic side-index fills in
// step with ordinary ingestion rather than sitting unreachable behind a
// separate CLI path. Failures are non-fatal: the memory write already
// succeeded and the vector index is an optional accelerator.
func (c *Coordinator) indexVector(ctx context.Context, memoryID string, event model.RawEvent) {
	if c.vectors == nil {
		return
	}
	raw, err := json.Marshal(event.Fields)
	if err != nil {
		return
	}
	if _, err := c.vectors.Embed(ctx, string(raw), map[string]string{"memory_id": memoryID}); err != nil {
		if c.log != nil {
			c.log.Debug("vector indexing skipped", zap.Error(err))
		}
	}
}

func (c *Coordinator) emitLog(ctx context.Context, eventType string, ids []string, source string, status Status, elapsed time.Duration) {
	c.seq++
	payload := map[string]interface{}{
		"ids":             ids,
		"source":          source,
		"status":          status,
		"processing_time": elapsed.Seconds(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	row := persistence.EventLogRow{
		EventType: eventType,
		EventData: data,
		Timestamp: time.Now(),
		Source:    source,
	}

	if c.actorSystem != nil {
		_ = c.actorSystem.Tell(ctx, c.logActor, &eventLogMsg{row: row})
		return
	}
	if c.adapter != nil {
		if err := c.adapter.AppendEventLog(ctx, row); err != nil && c.log != nil {
			c.log.Warn("event log append failed", zap.Error(err))
		}
	}
}

// IngestBatch fans single-ingestion out over events, preserving order; no
// global transaction is required (spec §4.6).
func (c *Coordinator) IngestBatch(ctx context.Context, events []model.RawEvent, source string) ([]Result, error) {
	results := make([]Result, 0, len(events))
	for _, ev := range events {
		r, err := c.Ingest(ctx, ev, source)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
