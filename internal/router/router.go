// Package router implements the Sparse Router: given a candidate list and
// a context, selects a sparse activated subset under one of five
// activation methods, with lateral inhibition, adaptive thresholding, and
// overload telemetry. Grounded on the teacher's core/relevance/engine.go
// for the "mutex-protected struct with a GetStatus snapshot accessor"
// idiom, and on gonum/stat for the ADAPTIVE method's mean/stdev.
package router

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/echocog/cogrun/internal/model"
)

// Method is the tagged-variant activation method, per spec §9's guidance
// to model dynamic dispatch as a sum type.
type Method string

const (
	MethodThreshold       Method = "threshold"
	MethodWinnerTakesAll  Method = "winner_takes_all"
	MethodSparsity        Method = "sparsity"
	MethodAdaptive        Method = "adaptive"
	MethodCompetitive     Method = "competitive"
)

// ActivationState classifies a single activate() call's outcome for
// telemetry and overload detection.
type ActivationState string

const (
	StateDormant        ActivationState = "dormant"
	StateStronglyActive ActivationState = "strongly_active"
	StateActive         ActivationState = "active"
	StateWeaklyActive   ActivationState = "weakly_active"
	StateOverload       ActivationState = "overload"
)

// Router is the Sparse Router. It holds no reference to the Memory Store;
// every call operates on the immutable candidate snapshot it is given.
type Router struct {
	mu sync.Mutex

	targetSparsity       float64
	targetActivationCount int
	activationBudget      float64

	globalThreshold float64

	// sliding window of recent |activated|/|candidates| ratios, used for
	// the sparsity-invariant telemetry of spec §8 property 5.
	window          []float64
	windowCap       int
	totalActivations int64
	overloadEvents   int64
	sparsityViolations int64
}

// Config parametrizes a new Router from spec §6's knobs.
type Config struct {
	TargetSparsity         float64
	TargetActivationCount  int
	InitialGlobalThreshold float64
	ActivationBudget       float64
}

// New builds a Router with the given configuration.
func New(cfg Config) *Router {
	if cfg.ActivationBudget == 0 {
		cfg.ActivationBudget = 1.0
	}
	return &Router{
		targetSparsity:        cfg.TargetSparsity,
		targetActivationCount: cfg.TargetActivationCount,
		activationBudget:      cfg.ActivationBudget,
		globalThreshold:       cfg.InitialGlobalThreshold,
		windowCap:             100,
	}
}

// Activate selects the activated subset from candidates for ctx, following
// the method named by ctx.Method (default THRESHOLD). Any internal error
// degrades to a plain threshold filter against the current global
// threshold, per spec §4.3's failure semantics.
func (r *Router) Activate(candidates []*model.MemoryItem, ctx model.Context) (activated []*model.MemoryItem) {
	defer func() {
		if rec := recover(); rec != nil {
			activated = r.thresholdFallback(candidates, ctx)
		}
	}()

	method := Method(ctx.Method)
	if method == "" {
		method = MethodThreshold
	}

	scores := r.scoreAll(candidates, ctx)

	switch method {
	case MethodThreshold:
		activated = r.activateThreshold(candidates, scores)
	case MethodWinnerTakesAll:
		activated = r.activateTopK(candidates, scores, r.targetActivationCount)
	case MethodSparsity:
		k := int(math.Floor(float64(len(candidates)) * r.targetSparsity))
		if k < 1 {
			k = 1
		}
		activated = r.activateTopK(candidates, scores, k)
	case MethodAdaptive:
		activated = r.activateAdaptive(candidates, scores)
	case MethodCompetitive:
		activated = r.activateCompetitive(candidates, scores)
	default:
		activated = r.activateThreshold(candidates, scores)
	}

	r.recordActivation(len(activated), len(candidates))
	return activated
}

func (r *Router) thresholdFallback(candidates []*model.MemoryItem, ctx model.Context) []*model.MemoryItem {
	scores := r.scoreAll(candidates, ctx)
	r.mu.Lock()
	threshold := r.globalThreshold
	r.mu.Unlock()

	var out []*model.MemoryItem
	for i, c := range candidates {
		if scores[i] >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// scoreAll computes score(m) for every candidate per spec §4.3's
// composition formula, including the competition_factor multiplier.
func (r *Router) scoreAll(candidates []*model.MemoryItem, ctx model.Context) []float64 {
	counts := map[string]int{}
	for _, c := range candidates {
		counts[c.PatternSignature]++
	}

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		base := 0.4*c.Strength +
			0.3*contextRelevance(c, ctx) +
			0.2*recencyBonus(c) +
			0.1*(float64(ctx.Intensity)-1.0)
		factor := 1 - math.Min(0.5, 0.1*float64(counts[c.PatternSignature]-1))
		scores[i] = base * factor
	}
	return scores
}

func contextRelevance(m *model.MemoryItem, ctx model.Context) float64 {
	score := 0.0
	if m.Context.State == ctx.State && ctx.State != "" {
		score += 0.3
	}
	intensityDiff := math.Abs(float64(m.Context.Intensity) - float64(ctx.Intensity))
	if intensityDiff < 0.5 {
		score += 0.2 * (1 - intensityDiff)
	}
	if len(ctx.Tags) > 0 {
		matches := 0
		for _, t := range ctx.Tags {
			if _, ok := m.Tags[t]; ok {
				matches++
			}
		}
		overlap := float64(matches) / float64(len(ctx.Tags))
		if overlap > 0.2 {
			overlap = 0.2
		}
		score += overlap
	}
	return score
}

func recencyBonus(m *model.MemoryItem) float64 {
	d := time.Since(m.LastAccessed)
	days := d.Hours() / 24
	switch {
	case days < 1:
		return 0.5
	case days < 7:
		return 0.3 * math.Exp(-days/7)
	default:
		return 0.1 * math.Exp(-days/30)
	}
}

func (r *Router) activateThreshold(candidates []*model.MemoryItem, scores []float64) []*model.MemoryItem {
	r.mu.Lock()
	threshold := math.Max(qualityThreshold(candidates), r.globalThreshold)
	activeCap := r.targetActivationCount
	r.mu.Unlock()

	type pair struct {
		item  *model.MemoryItem
		score float64
	}
	var matched []pair
	for i, c := range candidates {
		if scores[i] >= threshold {
			matched = append(matched, pair{c, scores[i]})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if activeCap > 0 && len(matched) > activeCap {
		matched = matched[:activeCap]
	}
	out := make([]*model.MemoryItem, len(matched))
	for i, p := range matched {
		out[i] = p.item
	}
	return out
}

// qualityThreshold is a constant floor; the spec names it alongside
// global_threshold without further definition beyond "quality_threshold",
// which this implementation treats as a fixed minimum admissible score.
func qualityThreshold(candidates []*model.MemoryItem) float64 {
	return 0.3
}

func (r *Router) activateTopK(candidates []*model.MemoryItem, scores []float64, k int) []*model.MemoryItem {
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	if k > len(idx) {
		k = len(idx)
	}
	if k < 0 {
		k = 0
	}
	out := make([]*model.MemoryItem, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, candidates[idx[i]])
	}
	return out
}

func (r *Router) activateAdaptive(candidates []*model.MemoryItem, scores []float64) []*model.MemoryItem {
	if len(scores) == 0 {
		return nil
	}
	mean := stat.Mean(scores, nil)
	sd := stat.StdDev(scores, nil)
	threshold := mean + 0.5*sd
	if sd == 0 {
		threshold = mean * 0.8
	}

	r.mu.Lock()
	activeCap := r.targetActivationCount
	r.mu.Unlock()

	type pair struct {
		item  *model.MemoryItem
		score float64
	}
	var matched []pair
	for i, c := range candidates {
		if scores[i] >= threshold {
			matched = append(matched, pair{c, scores[i]})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if activeCap > 0 && len(matched) > activeCap {
		matched = matched[:activeCap]
	}
	out := make([]*model.MemoryItem, len(matched))
	for i, p := range matched {
		out[i] = p.item
	}
	return out
}

func (r *Router) activateCompetitive(candidates []*model.MemoryItem, scores []float64) []*model.MemoryItem {
	type pair struct {
		item  *model.MemoryItem
		score float64
	}
	ranked := make([]pair, len(candidates))
	for i, c := range candidates {
		ranked[i] = pair{c, scores[i]}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	budget := r.activationBudget
	inhibited := map[string]float64{} // pattern_signature -> score reduction

	var out []*model.MemoryItem
	for _, p := range ranked {
		score := p.score
		if reduction, ok := inhibited[p.item.PatternSignature]; ok {
			score -= reduction
		}
		cost := 0.05*p.item.Strength + 0.02*score
		if cost > budget {
			continue
		}
		budget -= cost
		out = append(out, p.item)
		inhibited[p.item.PatternSignature] += 0.1
	}
	return out
}

// recordActivation updates the sliding window, adapts the global
// threshold, and tallies overload/sparsity-violation counters per spec
// §4.3's adaptive-threshold-update rule.
func (r *Router) recordActivation(activeCount, candidateCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalActivations++

	if candidateCount == 0 {
		return
	}
	s := float64(activeCount) / float64(candidateCount)

	r.window = append(r.window, s)
	if len(r.window) > r.windowCap {
		r.window = r.window[len(r.window)-r.windowCap:]
	}

	if s > 1.5*r.targetSparsity {
		r.globalThreshold *= 1.1
		r.sparsityViolations++
	}
	if s < 0.5*r.targetSparsity {
		r.globalThreshold *= 0.9
	}
	if r.globalThreshold < 0.01 {
		r.globalThreshold = 0.01
	}
	if r.globalThreshold > 0.9 {
		r.globalThreshold = 0.9
	}

	if classifyOverload(activeCount, r.targetActivationCount) {
		r.overloadEvents++
	}
}

func classifyOverload(activeCount, capLimit int) bool {
	limit := capLimit
	if limit <= 0 {
		limit = 10
	}
	return activeCount > limit
}

// Classify returns the ActivationState telemetry tag for one activate()
// call's result, per spec §4.3.
func Classify(activated []*model.MemoryItem, capLimit int) ActivationState {
	n := len(activated)
	if n == 0 {
		return StateDormant
	}
	avgStrength := 0.0
	for _, a := range activated {
		avgStrength += a.Strength
	}
	avgStrength /= float64(n)

	switch {
	case n <= 2 && avgStrength > 0.8:
		return StateStronglyActive
	case n <= 5 && avgStrength > 0.5:
		return StateActive
	case capLimit > 0 && n <= capLimit:
		return StateWeaklyActive
	default:
		return StateOverload
	}
}

// Statistics is the snapshot returned by Router.Statistics(), mirroring
// the teacher's GetStatus()-returns-a-snapshot convention.
type Statistics struct {
	TotalActivations   int64
	MeanActive         float64
	Threshold          float64
	OverloadEvents     int64
	SparsityViolations int64
}

// Statistics returns a point-in-time snapshot of the router's telemetry.
func (r *Router) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	mean := 0.0
	if len(r.window) > 0 {
		sum := 0.0
		for _, v := range r.window {
			sum += v
		}
		mean = sum / float64(len(r.window))
	}

	return Statistics{
		TotalActivations:   r.totalActivations,
		MeanActive:         mean,
		Threshold:          r.globalThreshold,
		OverloadEvents:     r.overloadEvents,
		SparsityViolations: r.sparsityViolations,
	}
}

// Threshold returns the router's current global threshold.
func (r *Router) Threshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalThreshold
}
