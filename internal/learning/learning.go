// Package learning implements the Learning Engine: a pure, pluggable rule
// set that computes signed strength deltas from feedback, access,
// co-occurrence, and decay events. It performs no persistence itself —
// callers apply the returned deltas through the Memory Store. Grounded on
// the teacher's core/relevance/engine.go, whose Engine combines several
// named sub-scorers (knowing/understanding/wisdom triads) into one
// weighted whole; here the sub-scorers are named rules instead of triads.
package learning

import (
	"math"
	"sync"

	"github.com/echocog/cogrun/internal/model"
)

// RuleName identifies one of the five pluggable rules of spec §4.4.
type RuleName string

const (
	RuleBasicReinforcement     RuleName = "basic_reinforcement"
	RuleFrequencyStrengthening RuleName = "frequency_strengthening"
	RuleContextualReinforcement RuleName = "contextual_reinforcement"
	RuleAssociationFormation   RuleName = "association_formation"
	RuleTimeForgetting         RuleName = "time_forgetting"
)

type rule struct {
	enabled bool
	weight  float64
}

// Engine is the Learning Engine.
type Engine struct {
	mu sync.Mutex

	rules map[RuleName]*rule

	learningRate   float64
	forgettingRate float64

	history     []model.LearningEvent
	historyBound int
	historyTrim  int

	stats Statistics
}

// Config parametrizes a new Engine from spec §6's knobs.
type Config struct {
	LearningRate   float64
	ForgettingRate float64
	HistoryBound   int
	HistoryTrimTo  int
}

// New builds an Engine with every rule enabled at weight 1.0.
func New(cfg Config) *Engine {
	if cfg.HistoryBound == 0 {
		cfg.HistoryBound = 10_000
	}
	if cfg.HistoryTrimTo == 0 {
		cfg.HistoryTrimTo = 5_000
	}
	e := &Engine{
		learningRate:   cfg.LearningRate,
		forgettingRate: cfg.ForgettingRate,
		historyBound:   cfg.HistoryBound,
		historyTrim:    cfg.HistoryTrimTo,
		rules:          map[RuleName]*rule{},
	}
	for _, name := range []RuleName{
		RuleBasicReinforcement, RuleFrequencyStrengthening,
		RuleContextualReinforcement, RuleAssociationFormation, RuleTimeForgetting,
	} {
		e.rules[name] = &rule{enabled: true, weight: 1.0}
	}
	return e
}

// EnableRule turns on a named rule.
func (e *Engine) EnableRule(name RuleName) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[name]; ok {
		r.enabled = true
	}
}

// DisableRule turns off a named rule.
func (e *Engine) DisableRule(name RuleName) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[name]; ok {
		r.enabled = false
	}
}

// SetWeight overrides a rule's contribution weight.
func (e *Engine) SetWeight(name RuleName, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rules[name]; ok {
		r.weight = weight
	}
}

// FeedbackDelta computes the basic_reinforcement + contextual_reinforcement
// contribution for a feedback event against a memory item, per spec §4.4.
func (e *Engine) FeedbackDelta(ft model.FeedbackType, outcomeConfidence float64, ctx model.Context) float64 {
	e.mu.Lock()
	lr := e.learningRate
	basic := e.rules[RuleBasicReinforcement]
	contextual := e.rules[RuleContextualReinforcement]
	e.mu.Unlock()

	var base float64
	switch ft {
	case model.FeedbackPositive:
		base = lr
	case model.FeedbackNegative:
		base = -lr
	case model.FeedbackCorrection:
		base = 0.5 * lr
	case model.FeedbackConfirmation:
		base = 0.3 * lr
	case model.FeedbackNeutral:
		base = 0
	}
	base *= outcomeConfidence

	delta := 0.0
	if basic.enabled {
		delta += basic.weight * base
	}
	if contextual.enabled {
		avgSim := e.averageContextSimilarity(ctx)
		delta += contextual.weight * (base * avgSim)
	}

	e.recordEvent(model.LearningEvent{
		EventType:    model.LearningEventFeedback,
		FeedbackType: ft,
		Context:      ctx,
		Confidence:   outcomeConfidence,
	})
	return delta
}

// AccessDelta implements frequency_strengthening: +0.01*ln(n+1) for access
// count n >= 2.
func (e *Engine) AccessDelta(accessCount int64) float64 {
	e.mu.Lock()
	r := e.rules[RuleFrequencyStrengthening]
	e.mu.Unlock()

	if !r.enabled || accessCount < 2 {
		return 0
	}
	return r.weight * 0.01 * math.Log(float64(accessCount)+1)
}

// AssociationDeltas implements association_formation: for every unordered
// pair among coOccurring memory ids, +0.1*co_occurrence_strength.
func (e *Engine) AssociationDeltas(coOccurring []string, coOccurrenceStrength float64) map[[2]string]float64 {
	e.mu.Lock()
	r := e.rules[RuleAssociationFormation]
	e.mu.Unlock()

	out := map[[2]string]float64{}
	if !r.enabled {
		return out
	}
	for i := 0; i < len(coOccurring); i++ {
		for j := i + 1; j < len(coOccurring); j++ {
			pair := [2]string{coOccurring[i], coOccurring[j]}
			out[pair] = r.weight * 0.1 * coOccurrenceStrength
		}
	}
	return out
}

// DecayDelta implements time_forgetting: (exp(-forgetting_rate*days)-1)*0.1,
// always <= 0.
func (e *Engine) DecayDelta(days float64) float64 {
	e.mu.Lock()
	fr := e.forgettingRate
	r := e.rules[RuleTimeForgetting]
	e.mu.Unlock()

	if !r.enabled {
		return 0
	}
	return r.weight * (math.Exp(-fr*days) - 1) * 0.1
}

func (e *Engine) averageContextSimilarity(ctx model.Context) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if n == 0 {
		return 0
	}
	start := 0
	if n > 100 {
		start = n - 100
	}
	window := e.history[start:]

	sum := 0.0
	for _, ev := range window {
		sum += contextSimilarity(ev.Context, ctx)
	}
	return sum / float64(len(window))
}

func contextSimilarity(a, b model.Context) float64 {
	score := 0.0
	total := 0.0
	if a.State != "" || b.State != "" {
		total++
		if a.State == b.State {
			score++
		}
	}
	if a.Intensity != 0 || b.Intensity != 0 {
		total++
		diff := math.Abs(float64(a.Intensity) - float64(b.Intensity))
		score += math.Max(0, 1-diff)
	}
	if total == 0 {
		return 0
	}
	return score / total
}

func (e *Engine) recordEvent(ev model.LearningEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, ev)
	if len(e.history) > e.historyBound {
		e.history = e.history[len(e.history)-e.historyTrim:]
	}
}

// Feedback is the accuracy/stability signal driving adaptive parameter
// tuning, per spec §4.4.
type Feedback struct {
	Accuracy  float64
	Stability float64
}

// AdaptParameters tunes learning_rate/forgetting_rate from a performance
// feedback signal.
func (e *Engine) AdaptParameters(fb Feedback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case fb.Accuracy < 0.5:
		e.learningRate = math.Min(0.1, e.learningRate*1.2)
	case fb.Accuracy > 0.8:
		e.learningRate = math.Max(0.001, e.learningRate*0.9)
	}

	switch {
	case fb.Stability < 0.3:
		e.forgettingRate = math.Max(1e-4, e.forgettingRate*0.9)
	case fb.Stability > 0.8:
		e.forgettingRate = math.Min(0.01, e.forgettingRate*1.1)
	}
}

// Statistics is the Learning Engine's stats snapshot.
type Statistics struct {
	LearningRate   float64
	ForgettingRate float64
	HistorySize    int
	EnabledRules   []RuleName
}

// Statistics returns a point-in-time snapshot.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	var enabled []RuleName
	for name, r := range e.rules {
		if r.enabled {
			enabled = append(enabled, name)
		}
	}
	return Statistics{
		LearningRate:   e.learningRate,
		ForgettingRate: e.forgettingRate,
		HistorySize:    len(e.history),
		EnabledRules:   enabled,
	}
}
