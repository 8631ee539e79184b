// Package persistence implements the Persistence Adapter: append/replace
// row storage for memories, embeddings, the event log, and system state,
// plus a health probe and a transactional write boundary. The primary
// backend is SQLite (mattn/go-sqlite3), connected with a fixed-delay retry
// loop in the style of core/persistence/dgraph_client.go; optional remote (Supabase)
// and graph (Dgraph) backends live alongside it in this package.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/echocog/cogrun/internal/model"
)

// MemoryRow is the logical row shape of spec §6's memories table.
type MemoryRow struct {
	ID               string
	PatternSignature string
	MemoryType       string
	Content          []byte // JSON
	Context          []byte // JSON
	Strength         float64
	AccessCount      int64
	LastAccessed     time.Time
	CreatedAt        time.Time
	Associations     []string
	Tags             []string
	Confidence       float64
	DecayRate        float64
	UpdatedAt        time.Time
}

// EmbeddingRow is the logical row shape of spec §6's embeddings table.
type EmbeddingRow struct {
	ID           string
	ContentHash  string
	Vector       []float64
	Metadata     []byte
	CreatedAt    time.Time
	AccessCount  int64
	LastAccessed time.Time
}

// EventLogRow is the logical row shape of spec §6's event_log table.
type EventLogRow struct {
	Seq       int64
	EventType string
	EventData []byte
	Timestamp time.Time
	Source    string
}

// Adapter is the Persistence Adapter contract: every subsystem that needs
// durable storage goes through this interface, never touching a concrete
// backend directly.
type Adapter interface {
	// PutMemory upserts a memory row inside a single transactional write
	// boundary.
	PutMemory(ctx context.Context, row MemoryRow) error
	GetMemory(ctx context.Context, id string) (MemoryRow, bool, error)
	DeleteMemory(ctx context.Context, id string) error
	ListMemoriesBySignature(ctx context.Context, signature string) ([]MemoryRow, error)
	ListAllMemories(ctx context.Context) ([]MemoryRow, error)

	PutEmbedding(ctx context.Context, row EmbeddingRow) error
	GetEmbeddingByHash(ctx context.Context, hash string) (EmbeddingRow, bool, error)
	ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error)

	AppendEventLog(ctx context.Context, row EventLogRow) error

	PutSystemState(ctx context.Context, key string, value []byte) error
	GetSystemState(ctx context.Context, key string) ([]byte, bool, error)

	// Health reports persistence connectivity and schema presence, per
	// spec §6's operator-facing health probe.
	Health(ctx context.Context) HealthStatus

	Close() error
}

// HealthStatus is the operator-facing health probe result.
type HealthStatus struct {
	Connected     bool
	SchemaPresent bool
	Backend       string
	Detail        string
	CheckedAt     time.Time
}

// MarshalContext is a small helper the adapters share for serializing
// model.Context into the JSON-shaped BLOB the row schema names.
func MarshalContext(ctx model.Context) map[string]interface{} {
	return map[string]interface{}{
		"state":     string(ctx.State),
		"intensity": float64(ctx.Intensity),
		"source":    ctx.Source,
		"metadata":  ctx.Metadata,
		"method":    ctx.Method,
		"tags":      ctx.Tags,
	}
}

// UnmarshalContext decodes a MemoryRow's Context BLOB back into a
// model.Context, the inverse of MarshalContext. Used by the Memory Store's
// boot-time cache hydration.
func UnmarshalContext(data []byte) (model.Context, error) {
	var wire struct {
		State     string            `json:"state"`
		Intensity float64           `json:"intensity"`
		Source    string            `json:"source"`
		Metadata  map[string]string `json:"metadata"`
		Method    string            `json:"method"`
		Tags      []string          `json:"tags"`
	}
	if len(data) == 0 {
		return model.Context{}, nil
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.Context{}, err
	}
	return model.Context{
		State:     model.ContextState(wire.State),
		Intensity: model.IntensityLevel(wire.Intensity),
		Source:    wire.Source,
		Metadata:  wire.Metadata,
		Method:    wire.Method,
		Tags:      wire.Tags,
	}, nil
}
