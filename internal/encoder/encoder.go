// Package encoder implements the deterministic raw-event to (Pattern,
// Context) mapping. It is pure except for a bounded pattern registry kept
// for stats, backed by hashicorp/golang-lru the way the teacher backs its
// node cache in dgraph_hypergraph.go.
package encoder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/model"
)

// PatternStat is the supplemented per-signature statistic recovered from
// original_source/brain_ai/core/encoder.py's _register_pattern.
type PatternStat struct {
	Signature string
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int64
}

// Encoder maps raw events to (Pattern, Context). The only mutable state is
// the bounded registry; encode() itself never returns an error — failures
// degrade to a fallback encoding per spec §4.1.
type Encoder struct {
	log      *zap.Logger
	registry *lru.Cache // signature -> *PatternStat
}

// New builds an Encoder with a registry capped at maxPatterns entries,
// evicting the least-recently-touched signature once full (golang-lru's
// Add already implements this).
func New(log *zap.Logger, maxPatterns int) (*Encoder, error) {
	if maxPatterns <= 0 {
		maxPatterns = 100_000
	}
	cache, err := lru.New(maxPatterns)
	if err != nil {
		return nil, fmt.Errorf("encoder: building pattern registry: %w", err)
	}
	return &Encoder{log: log, registry: cache}, nil
}

// Encoded is the result of Encode: a Pattern, a Context, the instant of
// encoding, and a short human summary.
type Encoded struct {
	Pattern   model.Pattern
	Context   model.Context
	EncodedAt time.Time
	Summary   string
}

// Encode deterministically maps event to (Pattern, Context). It never
// panics outward: any internal failure is caught and converted to a
// fallback encoding carrying the error in Context.Metadata["encoding_error"].
func (e *Encoder) Encode(event model.RawEvent) (enc Encoded) {
	defer func() {
		if r := recover(); r != nil {
			enc = e.fallback(event, fmt.Sprintf("%v", r))
			if e.log != nil {
				e.log.Warn("encoder fallback engaged", zap.Any("recover", r))
			}
		}
	}()

	pattern := e.buildPattern(event)
	ctx := e.buildContext(event, pattern)
	e.registerPattern(pattern.Signature)

	return Encoded{
		Pattern:   pattern,
		Context:   ctx,
		EncodedAt: time.Now(),
		Summary:   fmt.Sprintf("%s (%s)", pattern.Signature, ctx.State),
	}
}

func (e *Encoder) fallback(event model.RawEvent, cause string) Encoded {
	ctx := model.Context{
		State:     model.StateError,
		Intensity: model.IntensityMedium,
		Source:    "unknown",
		Metadata:  map[string]string{"encoding_error": cause},
	}
	pattern := model.Pattern{
		Type:       "unknown",
		Signature:  "unknown:" + contentHash(event),
		Features:   []string{"fallback"},
		Confidence: 0.1,
		Timestamp:  time.Now(),
	}
	return Encoded{Pattern: pattern, Context: ctx, EncodedAt: time.Now(), Summary: "fallback encoding"}
}

// detectType applies the first-match-wins priority list of spec §4.1.
func detectType(event model.RawEvent) model.EventType {
	switch {
	case event.Has("error"), event.Has("exception"):
		return model.EventError
	case event.Has("request"), event.Has("api_call"):
		return model.EventRequest
	case event.Has("response"), event.Has("result"):
		return model.EventResponse
	case event.Has("feedback"), event.Has("rating"):
		return model.EventFeedback
	case event.Has("learning"), event.Has("training"):
		return model.EventLearning
	case event.Has("reasoning"), event.Has("analysis"):
		return model.EventReasoning
	case event.Has("user"), event.Has("action"):
		return model.EventUserAction
	case event.Has("memory"), event.Has("retrieval"):
		return model.EventMemoryAccess
	default:
		return model.EventDataInput
	}
}

func (e *Encoder) buildPattern(event model.RawEvent) model.Pattern {
	t := detectType(event)
	sig := signatureFor(t, event)
	features := featuresFor(t, event)
	confidence := confidenceFor(event, features)

	return model.Pattern{
		Type:       t,
		Signature:  sig,
		Features:   features,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

// signatureFor builds the type-specific "<type>:<discriminator>" key named
// by spec §3, falling back to a stable content hash when no recognized
// discriminator field is present.
func signatureFor(t model.EventType, event model.RawEvent) string {
	switch t {
	case model.EventError:
		if v, ok := stringField(event, "error_type"); ok {
			return fmt.Sprintf("%s:%s", t, v)
		}
	case model.EventRequest:
		method, hasMethod := stringField(event, "method")
		path, hasPath := stringField(event, "path")
		if hasMethod && hasPath {
			return fmt.Sprintf("%s:%s:%s", t, method, path)
		}
	case model.EventResponse:
		if v, ok := event.Get("status_code"); ok {
			return fmt.Sprintf("%s:%v", t, v)
		}
	case model.EventFeedback:
		if v, ok := stringField(event, "rating"); ok {
			return fmt.Sprintf("%s:%s", t, v)
		}
	}
	return fmt.Sprintf("%s:%s", t, contentHash(event))
}

func featuresFor(t model.EventType, event model.RawEvent) []string {
	var features []string
	if event.Has("timestamp") {
		features = append(features, "has_timestamp")
	}
	if event.Has("metadata") {
		features = append(features, "has_metadata")
	}

	switch t {
	case model.EventError:
		if v, ok := stringField(event, "error_type"); ok {
			features = append(features, "error_type_"+v)
		}
	case model.EventRequest:
		if v, ok := stringField(event, "method"); ok {
			features = append(features, "method_"+strings.ToUpper(v))
		}
	case model.EventResponse:
		if v, ok := event.Get("status_code"); ok {
			features = append(features, "status_class_"+statusClass(v))
		}
	}

	features = append(features, sizeBucket(event))
	return features
}

func statusClass(v interface{}) string {
	code := 0
	switch n := v.(type) {
	case int:
		code = n
	case int64:
		code = int(n)
	case float64:
		code = int(n)
	}
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

func sizeBucket(event model.RawEvent) string {
	raw, err := json.Marshal(event.Fields)
	if err != nil {
		return "small"
	}
	n := len(raw)
	switch {
	case n < 100:
		return "small"
	case n < 1000:
		return "medium"
	default:
		return "large"
	}
}

// confidenceFor implements spec §3's confidence formula, clamped to [0,1].
func confidenceFor(event model.RawEvent, features []string) float64 {
	c := 0.5
	n := len(features)
	if n > 3 {
		n = 3
	}
	c += 0.1 * float64(n)

	expectedKeys := []string{"timestamp", "metadata", "source", "context", "user_id"}
	matches := 0
	for _, k := range expectedKeys {
		if event.Has(k) {
			matches++
		}
	}
	c += 0.1 * float64(matches)

	raw, err := json.Marshal(event.Fields)
	if err == nil && len(raw) > 10000 {
		c -= 0.2
	}
	return model.ClampUnit(c)
}

// buildContext implements spec §4.1's state/intensity rules.
func (e *Encoder) buildContext(event model.RawEvent, p model.Pattern) model.Context {
	ctx := model.Context{
		Source:   "unknown",
		Metadata: map[string]string{},
	}
	if v, ok := stringField(event, "source"); ok {
		ctx.Source = v
	}

	switch {
	case p.Type == model.EventError:
		ctx.State = model.StateError
	case statusContainsProcessing(event):
		ctx.State = model.StateProcessing
	case event.Has("learning"):
		ctx.State = model.StateLearning
	case activityIsHigh(event):
		ctx.State = model.StateHighActivity
	default:
		ctx.State = model.StateNormal
	}

	switch {
	case p.Type == model.EventError:
		ctx.Intensity = model.IntensityHigh
	default:
		ctx.Intensity = intensityFromPriority(event)
	}

	for _, key := range []string{"user_id", "session_id", "version", "environment", "tags"} {
		if v, ok := stringField(event, key); ok {
			ctx.Metadata[key] = v
		}
	}
	return ctx
}

func statusContainsProcessing(event model.RawEvent) bool {
	v, ok := stringField(event, "status")
	return ok && strings.Contains(strings.ToLower(v), "processing")
}

func activityIsHigh(event model.RawEvent) bool {
	v, ok := stringField(event, "activity_level")
	return ok && strings.EqualFold(v, "high")
}

func intensityFromPriority(event model.RawEvent) model.IntensityLevel {
	v, ok := stringField(event, "priority")
	if !ok {
		return model.IntensityMedium
	}
	switch strings.ToLower(v) {
	case "critical":
		return model.IntensityCritical
	case "high":
		return model.IntensityHigh
	case "low":
		return model.IntensityLow
	default:
		return model.IntensityMedium
	}
}

func stringField(event model.RawEvent, key string) (string, bool) {
	v, ok := event.Get(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprintf("%v", s), true
	}
}

// contentHash produces a stable discriminator for events with no
// recognized field, sorting keys first so map iteration order never
// affects the hash.
func contentHash(event model.RawEvent) string {
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte("="))
		fmt.Fprintf(h, "%v", event.Fields[k])
		h.Write([]byte(";"))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (e *Encoder) registerPattern(sig string) {
	now := time.Now()
	if v, ok := e.registry.Get(sig); ok {
		stat := v.(*PatternStat)
		stat.LastSeen = now
		stat.Count++
		e.registry.Add(sig, stat)
		return
	}
	e.registry.Add(sig, &PatternStat{Signature: sig, FirstSeen: now, LastSeen: now, Count: 1})
}

// PatternStats returns the registry entry for signature, if present. This
// is the supplemented stats accessor recovered from original_source.
func (e *Encoder) PatternStats(signature string) (PatternStat, bool) {
	v, ok := e.registry.Get(signature)
	if !ok {
		return PatternStat{}, false
	}
	return *v.(*PatternStat), true
}

// RegistrySize returns the number of distinct signatures currently held.
func (e *Encoder) RegistrySize() int {
	return e.registry.Len()
}
