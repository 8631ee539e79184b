// Package model holds the data types shared by every subsystem of the
// cognitive runtime: patterns and contexts produced by the encoder, the
// persisted memory item, the optional vector embedding, and the ephemeral
// learning/feedback events that flow between the learning engine and the
// feedback processor.
package model

import "time"

// EventType classifies a Pattern. Order matters only for readability; type
// detection in the encoder applies its own priority list.
type EventType string

const (
	EventRequest      EventType = "request"
	EventResponse     EventType = "response"
	EventError        EventType = "error"
	EventLearning     EventType = "learning"
	EventMemoryAccess EventType = "memory_access"
	EventReasoning    EventType = "reasoning"
	EventFeedback     EventType = "feedback"
	EventSystem       EventType = "system"
	EventUserAction   EventType = "user_action"
	EventDataInput    EventType = "data_input"
)

// Pattern is produced by the Encoder and never persisted on its own; it is
// folded into a MemoryItem's content/pattern_signature.
type Pattern struct {
	Type        EventType
	Signature   string
	Features    []string
	Confidence  float64
	Timestamp   time.Time
}

// ContextState classifies the operating state the event was observed in.
type ContextState string

const (
	StateNormal       ContextState = "normal"
	StateError        ContextState = "error"
	StateLearning     ContextState = "learning"
	StateHighActivity ContextState = "high_activity"
	StateLowActivity  ContextState = "low_activity"
	StateProcessing   ContextState = "processing"
	StateIdle         ContextState = "idle"
)

// IntensityLevel is a coarse urgency scalar attached to a Context.
type IntensityLevel float64

const (
	IntensityLow      IntensityLevel = 0.5
	IntensityMedium   IntensityLevel = 1.0
	IntensityHigh     IntensityLevel = 1.5
	IntensityCritical IntensityLevel = 2.0
)

// Context is produced alongside a Pattern. Metadata only carries the
// recognized keys named by the spec (user_id, session_id, version,
// environment, tags); anything else is dropped by the encoder.
type Context struct {
	State    ContextState
	Intensity IntensityLevel
	Source   string
	Metadata map[string]string
	// Method selects the Sparse Router activation method for this
	// context; empty means the router's default (THRESHOLD).
	Method string
	// Tags, when set, participate in the Sparse Router's context_relevance
	// tag-overlap scoring and in the Memory Store's Retrieve relevance
	// ordering. retrieve_by_query scores against MemoryQuery.Tags instead
	// and filters on neither.
	Tags []string
}

// MemoryType tags a MemoryItem by cognitive role.
type MemoryType string

const (
	MemoryEpisodic    MemoryType = "episodic"
	MemorySemantic    MemoryType = "semantic"
	MemoryProcedural  MemoryType = "procedural"
	MemoryWorking     MemoryType = "working"
	MemoryAssociative MemoryType = "associative"
)

// MemoryItem is the primary persisted entity owned by the Memory Store.
// Content and Context are never rewritten in place; store/access/
// update_strength/create_association are the only legal mutation paths.
type MemoryItem struct {
	ID               string
	PatternSignature string
	MemoryType       MemoryType
	Content          map[string]interface{}
	Context          Context
	Strength         float64
	AccessCount      int64
	LastAccessed     time.Time
	CreatedAt        time.Time
	Associations     map[string]struct{}
	Tags             map[string]struct{}
	Confidence       float64
	DecayRate        float64
}

// Clone returns a deep-enough copy safe to hand to readers as an immutable
// snapshot (Sparse Router, Learning Engine).
func (m *MemoryItem) Clone() *MemoryItem {
	c := *m
	c.Associations = make(map[string]struct{}, len(m.Associations))
	for k := range m.Associations {
		c.Associations[k] = struct{}{}
	}
	c.Tags = make(map[string]struct{}, len(m.Tags))
	for k := range m.Tags {
		c.Tags[k] = struct{}{}
	}
	c.Content = make(map[string]interface{}, len(m.Content))
	for k, v := range m.Content {
		c.Content[k] = v
	}
	c.Context.Metadata = make(map[string]string, len(m.Context.Metadata))
	for k, v := range m.Context.Metadata {
		c.Context.Metadata[k] = v
	}
	c.Context.Tags = append([]string(nil), m.Context.Tags...)
	return &c
}

// TagSet returns the item's tags as a sorted-free slice; order is not
// meaningful, callers that need stable output should sort.
func (m *MemoryItem) TagSet() []string {
	out := make([]string, 0, len(m.Tags))
	for t := range m.Tags {
		out = append(out, t)
	}
	return out
}

// VectorEmbedding is the optional semantic side-index entry.
type VectorEmbedding struct {
	ID           string
	ContentHash  string
	Vector       []float64
	Metadata     map[string]string
	CreatedAt    time.Time
	AccessCount  int64
	LastAccessed time.Time
}

// LearningEventType tags why a LearningEvent was produced.
type LearningEventType string

const (
	LearningEventFeedback    LearningEventType = "feedback"
	LearningEventAccess      LearningEventType = "access"
	LearningEventAssociation LearningEventType = "association"
	LearningEventDecay       LearningEventType = "decay"
)

// FeedbackType classifies the valence of a feedback or learning event.
type FeedbackType string

const (
	FeedbackPositive     FeedbackType = "positive"
	FeedbackNegative     FeedbackType = "negative"
	FeedbackNeutral      FeedbackType = "neutral"
	FeedbackCorrection   FeedbackType = "correction"
	FeedbackConfirmation FeedbackType = "confirmation"
)

// LearningEvent is ephemeral; kept only in the Learning Engine's bounded
// history for contextual_reinforcement scoring and statistics.
type LearningEvent struct {
	MemoryID     string
	EventType    LearningEventType
	FeedbackType FeedbackType
	Context      Context
	Outcome      map[string]interface{}
	Timestamp    time.Time
	Confidence   float64
}

// FeedbackSource names who produced a FeedbackEvent.
type FeedbackSource string

const (
	SourceUser        FeedbackSource = "user"
	SourceSystem      FeedbackSource = "system"
	SourceOutcome     FeedbackSource = "outcome"
	SourcePerformance FeedbackSource = "performance"
	SourceExternal    FeedbackSource = "external"
	SourceSimulation  FeedbackSource = "simulation"
)

// FeedbackQuality scales a FeedbackEvent's confidence before it reaches the
// Learning Engine.
type FeedbackQuality string

const (
	QualityHigh   FeedbackQuality = "high"
	QualityMedium FeedbackQuality = "medium"
	QualityLow    FeedbackQuality = "low"
	QualityNoise  FeedbackQuality = "noise"
)

// QualityWeights implements spec §4.5's quality-weighting table.
var QualityWeights = map[FeedbackQuality]float64{
	QualityHigh:   1.0,
	QualityMedium: 0.7,
	QualityLow:    0.4,
	QualityNoise:  0.1,
}

// FeedbackEvent is enqueued by the Feedback Processor and later drained in
// arrival-order batches.
type FeedbackEvent struct {
	MemoryID     string
	Source       FeedbackSource
	FeedbackType FeedbackType
	Quality      FeedbackQuality
	Content      map[string]interface{}
	Timestamp    time.Time
	Confidence   float64
	Context      Context
	OutcomeValue float64
	HasOutcome   bool
}

// RawEvent normalizes the duck-typed event dict from the source system into
// a typed record the Encoder can pattern-match without probing arbitrary
// attributes.
type RawEvent struct {
	Kind   string
	Fields map[string]interface{}
}

// Get returns Fields[key] and whether it was present.
func (e RawEvent) Get(key string) (interface{}, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// Has reports whether key is present regardless of value.
func (e RawEvent) Has(key string) bool {
	_, ok := e.Fields[key]
	return ok
}

// MemoryQuery parametrizes Memory Store retrieve_by_query.
type MemoryQuery struct {
	Signature           string
	MemoryType           MemoryType
	HasMemoryType        bool
	Context              Context
	MinStrength          float64
	Tags                 []string
	Limit                int
	IncludeAssociations  bool
}

// Ptr returns a pointer to v, for call sites that need to distinguish an
// explicit zero value from "unset" (e.g. memory.Store.CreateItem's optional
// strength/confidence arguments).
func Ptr[T any](v T) *T {
	return &v
}

// ClampUnit clamps a float to [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
