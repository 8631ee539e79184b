// Package feedback implements the Feedback Processor: it queues, quality-
// weights, and batch-applies learning deltas to the Memory Store. The
// batch drain loop is a tochemey/goakt/v2 actor ticked on an interval,
// grounded on the teacher's core/echobeats/orchestrator_actor.go (a
// goroutine driving Tell calls on a ticker) and
// core/echobeats/goakt_cognitive_system.go (ActorSystem bootstrap/spawn).
// Batch retry failures are aggregated with hashicorp/go-multierror, a
// teacher dependency otherwise unused in the original repo.
package feedback

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tochemey/goakt/v2/actors"
	"github.com/tochemey/goakt/v2/goakt"
	"github.com/tochemey/goakt/v2/log"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/errs"
	"github.com/echocog/cogrun/internal/learning"
	"github.com/echocog/cogrun/internal/memory"
	"github.com/echocog/cogrun/internal/model"
)

// Config parametrizes the Feedback Processor from spec §6's knobs.
type Config struct {
	BatchSize int
	Interval  time.Duration
	QueueMax  int
}

// Processor is the Feedback Processor.
type Processor struct {
	mu      sync.Mutex
	queue   []model.FeedbackEvent
	history []model.FeedbackEvent

	cfg Config

	learningEngine *learning.Engine
	memoryStore    *memory.Store
	log            *zap.Logger

	actorSystem goakt.ActorSystem
	drainActor  actors.PID

	lastError error
}

// New builds a Feedback Processor. Start must be called to begin the
// batch drain loop.
func New(log *zap.Logger, learningEngine *learning.Engine, memoryStore *memory.Store, cfg Config) *Processor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.QueueMax == 0 {
		cfg.QueueMax = 1000
	}
	return &Processor{
		cfg:            cfg,
		learningEngine: learningEngine,
		memoryStore:    memoryStore,
		log:            log,
	}
}

type drainTickMsg struct{}

// drainActorBody receives drainTickMsg on an interval and calls back into the
// Processor's batch drain loop; it carries no state of its own, mirroring
// the teacher's thin actor bodies that delegate to shared-state methods.
type drainActorBody struct {
	proc *Processor
}

func (a *drainActorBody) PreStart(ctx context.Context) error  { return nil }
func (a *drainActorBody) PostStop(ctx context.Context) error { return nil }

func (a *drainActorBody) Receive(ctx actors.ReceiveContext) {
	switch ctx.Message().(type) {
	case *drainTickMsg:
		a.proc.drainOnce(context.Background())
	default:
		ctx.Unhandled()
	}
}

// Start spawns the actor system and the interval-driven drain loop.
func (p *Processor) Start(ctx context.Context) error {
	system, err := goakt.NewActorSystem("cogrun-feedback", goakt.WithLogger(log.DefaultLogger))
	if err != nil {
		return fmt.Errorf("feedback: creating actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return fmt.Errorf("feedback: starting actor system: %w", err)
	}

	pid, err := system.Spawn(ctx, "batch-drain", &drainActorBody{proc: p})
	if err != nil {
		return fmt.Errorf("feedback: spawning batch-drain actor: %w", err)
	}

	p.actorSystem = system
	p.drainActor = pid

	go p.tickLoop(ctx)
	return nil
}

func (p *Processor) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.actorSystem != nil {
				_ = p.actorSystem.Tell(ctx, p.drainActor, &drainTickMsg{})
			}
		}
	}
}

// Stop tears down the actor system.
func (p *Processor) Stop(ctx context.Context) error {
	if p.actorSystem == nil {
		return nil
	}
	return p.actorSystem.Stop(ctx)
}

// ProcessFeedback enqueues a FeedbackEvent, quality-weighting its
// confidence, and immediately flushes if the queue reaches batch_size.
func (p *Processor) ProcessFeedback(ctx context.Context, memoryID string, ft model.FeedbackType, outcome map[string]interface{}, source model.FeedbackSource, quality model.FeedbackQuality, qctx model.Context, confidence float64) {
	weight := model.QualityWeights[quality]
	ev := model.FeedbackEvent{
		MemoryID:     memoryID,
		Source:       source,
		FeedbackType: ft,
		Quality:      quality,
		Content:      outcome,
		Timestamp:    time.Now(),
		Confidence:   confidence * weight,
		Context:      qctx,
	}

	p.mu.Lock()
	p.enqueueLocked(ev)
	shouldFlush := len(p.queue) >= p.cfg.BatchSize
	p.mu.Unlock()

	if shouldFlush {
		p.drainOnce(ctx)
	}
}

func (p *Processor) enqueueLocked(ev model.FeedbackEvent) {
	p.queue = append(p.queue, ev)
	if len(p.queue) > p.cfg.QueueMax {
		// Bounded queue: overflow drops oldest (FIFO discard).
		p.queue = p.queue[len(p.queue)-p.cfg.QueueMax:]
	}
}

// ProcessOutcomeFeedback derives a synthetic feedback event from an
// expected/actual discrepancy, per spec §4.5, and enqueues it at HIGH
// quality with confidence 1.0.
func (p *Processor) ProcessOutcomeFeedback(ctx context.Context, memoryID string, expected, actual map[string]interface{}, qctx model.Context) {
	discrepancy, outcomeQuality := OutcomeDiscrepancy(expected, actual)

	var ft model.FeedbackType
	switch {
	case discrepancy <= 0.2:
		ft = model.FeedbackPositive
	case discrepancy >= 0.8:
		ft = model.FeedbackNegative
	default:
		ft = model.FeedbackNeutral
	}

	p.ProcessFeedback(ctx, memoryID, ft, map[string]interface{}{
		"expected":        expected,
		"actual":          actual,
		"discrepancy":     discrepancy,
		"outcome_quality": outcomeQuality,
	}, model.SourceOutcome, model.QualityHigh, qctx, 1.0)
}

// ProcessUserFeedback routes a [0,1] rating into the POSITIVE/NEGATIVE/
// NEUTRAL thresholds of spec §4.5.
func (p *Processor) ProcessUserFeedback(ctx context.Context, memoryID string, rating float64, comment string, qctx model.Context) {
	var ft model.FeedbackType
	var quality model.FeedbackQuality
	switch {
	case rating >= 0.7:
		ft, quality = model.FeedbackPositive, model.QualityHigh
	case rating <= 0.3:
		ft, quality = model.FeedbackNegative, model.QualityHigh
	default:
		ft, quality = model.FeedbackNeutral, model.QualityMedium
	}
	p.ProcessFeedback(ctx, memoryID, ft, map[string]interface{}{"rating": rating, "comment": comment}, model.SourceUser, quality, qctx, rating)
}

// ProcessPerformanceFeedback averages a metrics map and routes it per spec
// §4.5's performance thresholds.
func (p *Processor) ProcessPerformanceFeedback(ctx context.Context, memoryID string, metrics map[string]float64, qctx model.Context) {
	sum := 0.0
	for _, v := range metrics {
		sum += v
	}
	overall := 0.0
	if len(metrics) > 0 {
		overall = sum / float64(len(metrics))
	}

	var ft model.FeedbackType
	var quality model.FeedbackQuality
	switch {
	case overall >= 0.8:
		ft, quality = model.FeedbackPositive, model.QualityHigh
	case overall <= 0.4:
		ft, quality = model.FeedbackNegative, model.QualityMedium
	default:
		ft, quality = model.FeedbackNeutral, model.QualityMedium
	}

	content := make(map[string]interface{}, len(metrics))
	for k, v := range metrics {
		content[k] = v
	}
	p.ProcessFeedback(ctx, memoryID, ft, content, model.SourcePerformance, quality, qctx, overall)
}

// OutcomeDiscrepancy implements spec §4.5's discrepancy formula, recursing
// one level into list-valued fields per SPEC_FULL.md §4's supplemented
// rule, and returns (discrepancy, outcome_quality).
func OutcomeDiscrepancy(expected, actual map[string]interface{}) (discrepancy, outcomeQuality float64) {
	if len(expected) == 0 {
		return 0, 1
	}
	totalDiscrepancy := 0.0
	matching := 0

	for k, e := range expected {
		a, ok := actual[k]
		if !ok {
			totalDiscrepancy += 1
			continue
		}
		d := fieldDiscrepancy(e, a)
		totalDiscrepancy += d
		if d == 0 {
			matching++
		}
	}

	discrepancy = totalDiscrepancy / float64(len(expected))
	outcomeQuality = float64(matching) / float64(len(expected))
	return discrepancy, outcomeQuality
}

func fieldDiscrepancy(e, a interface{}) float64 {
	switch ev := e.(type) {
	case float64:
		av, ok := toFloat(a)
		if !ok {
			return 1
		}
		denom := math.Max(math.Max(math.Abs(ev), math.Abs(av)), 1)
		return math.Abs(ev-av) / denom
	case int:
		return fieldDiscrepancy(float64(ev), a)
	case string:
		av, ok := a.(string)
		if !ok || !strings.EqualFold(ev, av) {
			return 1
		}
		return 0
	case []interface{}:
		av, ok := a.([]interface{})
		if !ok || len(ev) != len(av) {
			return 1
		}
		if len(ev) == 0 {
			return 0
		}
		sum := 0.0
		for i := range ev {
			sum += fieldDiscrepancy(ev[i], av[i])
		}
		return sum / float64(len(ev))
	default:
		if e == a {
			return 0
		}
		return 1
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// drainOnce processes up to batch_size events from the queue head,
// applying deltas to the Memory Store and moving processed events into
// bounded history, retrying the whole batch once on failure before
// isolating per-event failures (spec §4.5 step 5).
func (p *Processor) drainOnce(ctx context.Context) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	n := p.cfg.BatchSize
	if n > len(p.queue) {
		n = len(p.queue)
	}
	batch := append([]model.FeedbackEvent(nil), p.queue[:n]...)
	p.mu.Unlock()

	if err := p.applyBatch(ctx, batch); err != nil {
		if err := p.applyBatch(ctx, batch); err != nil {
			p.applyIndividually(ctx, batch)
			p.mu.Lock()
			p.lastError = errs.FeedbackBatchError
			p.mu.Unlock()
			if p.log != nil {
				p.log.Error("feedback batch failed twice, isolated per-event", zap.Error(err))
			}
		}
	}

	p.mu.Lock()
	p.queue = p.queue[n:]
	p.history = append(p.history, batch...)
	if len(p.history) > 10_000 {
		p.history = p.history[len(p.history)-5_000:]
	}
	p.mu.Unlock()
}

func (p *Processor) applyBatch(ctx context.Context, batch []model.FeedbackEvent) error {
	var merr *multierror.Error
	for _, ev := range batch {
		delta := p.learningEngine.FeedbackDelta(ev.FeedbackType, ev.Confidence, ev.Context)
		if delta == 0 {
			continue
		}
		if _, err := p.memoryStore.UpdateStrength(ctx, ev.MemoryID, delta); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("memory %s: %w", ev.MemoryID, err))
		}
	}
	return merr.ErrorOrNil()
}

func (p *Processor) applyIndividually(ctx context.Context, batch []model.FeedbackEvent) {
	for _, ev := range batch {
		delta := p.learningEngine.FeedbackDelta(ev.FeedbackType, ev.Confidence, ev.Context)
		if delta == 0 {
			continue
		}
		if _, err := p.memoryStore.UpdateStrength(ctx, ev.MemoryID, delta); err != nil && p.log != nil {
			p.log.Warn("dropping failed feedback event after individual retry", zap.String("memory_id", ev.MemoryID), zap.Error(err))
		}
	}
}

// QueueLen returns the current queue depth.
func (p *Processor) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush forces a drain regardless of queue depth; used by tests and the
// CLI's feedback subcommand.
func (p *Processor) Flush(ctx context.Context) {
	for p.QueueLen() > 0 {
		before := p.QueueLen()
		p.drainOnce(ctx)
		if p.QueueLen() == before {
			return
		}
	}
}
