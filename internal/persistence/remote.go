package persistence

import (
	"context"
	"encoding/json"
	"time"

	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// remoteMemoryRow is the wire shape stored in Supabase's "memories" table,
// following the teacher's StoreXActual/QueryXActual row-oriented naming
// convention from core/memory/supabase_impl.go, but issued through the
// real supabase-community/supabase-go + postgrest-go client rather than a
// hand-rolled HTTP call.
type remoteMemoryRow struct {
	ID               string   `json:"id"`
	PatternSignature string   `json:"pattern_signature"`
	MemoryType       string   `json:"memory_type"`
	Content          string   `json:"content"`
	Context          string   `json:"context"`
	Strength         float64  `json:"strength"`
	AccessCount      int64    `json:"access_count"`
	LastAccessed     string   `json:"last_accessed"`
	CreatedAt        string   `json:"created_at"`
	Associations     []string `json:"associations"`
	Tags             []string `json:"tags"`
	Confidence       float64  `json:"confidence"`
	DecayRate        float64  `json:"decay_rate"`
	UpdatedAt        string   `json:"updated_at"`
}

// RemoteAdapter is the optional remote Persistence Adapter backend,
// selected when config.SupabaseURL is set. It mirrors
// SQLiteAdapter's contract one-for-one against Postgres-via-REST.
type RemoteAdapter struct {
	client *supabase.Client
	log    *zap.Logger
}

// NewRemoteAdapter dials a Supabase project via the official SDK.
func NewRemoteAdapter(log *zap.Logger, url, key string) (*RemoteAdapter, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, PersistenceErrorf("remote: creating supabase client: %v", err)
	}
	return &RemoteAdapter{client: client, log: log}, nil
}

func (r *RemoteAdapter) PutMemory(ctx context.Context, row MemoryRow) error {
	wire := remoteMemoryRow{
		ID:               row.ID,
		PatternSignature: row.PatternSignature,
		MemoryType:       row.MemoryType,
		Content:          string(row.Content),
		Context:          string(row.Context),
		Strength:         row.Strength,
		AccessCount:      row.AccessCount,
		LastAccessed:     row.LastAccessed.Format(time.RFC3339),
		CreatedAt:        row.CreatedAt.Format(time.RFC3339),
		Associations:     row.Associations,
		Tags:             row.Tags,
		Confidence:       row.Confidence,
		DecayRate:        row.DecayRate,
		UpdatedAt:        time.Now().Format(time.RFC3339),
	}
	_, _, err := r.client.From("memories").Insert(wire, true, "id", "", "").Execute()
	if err != nil {
		return PersistenceErrorf("remote: put memory %s: %v", row.ID, err)
	}
	return nil
}

func (r *RemoteAdapter) GetMemory(ctx context.Context, id string) (MemoryRow, bool, error) {
	data, _, err := r.client.From("memories").Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return MemoryRow{}, false, PersistenceErrorf("remote: get memory %s: %v", id, err)
	}
	var rows []remoteMemoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return MemoryRow{}, false, PersistenceErrorf("remote: decode memory %s: %v", id, err)
	}
	if len(rows) == 0 {
		return MemoryRow{}, false, nil
	}
	return fromRemoteRow(rows[0]), true, nil
}

func (r *RemoteAdapter) DeleteMemory(ctx context.Context, id string) error {
	_, _, err := r.client.From("memories").Delete("", "").Eq("id", id).Execute()
	if err != nil {
		return PersistenceErrorf("remote: delete memory %s: %v", id, err)
	}
	return nil
}

func (r *RemoteAdapter) ListMemoriesBySignature(ctx context.Context, signature string) ([]MemoryRow, error) {
	data, _, err := r.client.From("memories").Select("*", "", false).Eq("pattern_signature", signature).Execute()
	if err != nil {
		return nil, PersistenceErrorf("remote: list by signature %s: %v", signature, err)
	}
	var rows []remoteMemoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, PersistenceErrorf("remote: decode list: %v", err)
	}
	out := make([]MemoryRow, 0, len(rows))
	for _, rr := range rows {
		out = append(out, fromRemoteRow(rr))
	}
	return out, nil
}

func (r *RemoteAdapter) ListAllMemories(ctx context.Context) ([]MemoryRow, error) {
	data, _, err := r.client.From("memories").Select("*", "", false).Execute()
	if err != nil {
		return nil, PersistenceErrorf("remote: list all: %v", err)
	}
	var rows []remoteMemoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, PersistenceErrorf("remote: decode list all: %v", err)
	}
	out := make([]MemoryRow, 0, len(rows))
	for _, rr := range rows {
		out = append(out, fromRemoteRow(rr))
	}
	return out, nil
}

func fromRemoteRow(rr remoteMemoryRow) MemoryRow {
	lastAccessed, _ := time.Parse(time.RFC3339, rr.LastAccessed)
	createdAt, _ := time.Parse(time.RFC3339, rr.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, rr.UpdatedAt)
	return MemoryRow{
		ID:               rr.ID,
		PatternSignature: rr.PatternSignature,
		MemoryType:       rr.MemoryType,
		Content:          []byte(rr.Content),
		Context:          []byte(rr.Context),
		Strength:         rr.Strength,
		AccessCount:      rr.AccessCount,
		LastAccessed:     lastAccessed,
		CreatedAt:        createdAt,
		Associations:     rr.Associations,
		Tags:             rr.Tags,
		Confidence:       rr.Confidence,
		DecayRate:        rr.DecayRate,
		UpdatedAt:        updatedAt,
	}
}

func (r *RemoteAdapter) PutEmbedding(ctx context.Context, row EmbeddingRow) error {
	wire := map[string]interface{}{
		"id":            row.ID,
		"content_hash":  row.ContentHash,
		"vector":        row.Vector,
		"metadata":      string(row.Metadata),
		"created_at":    row.CreatedAt.Format(time.RFC3339),
		"access_count":  row.AccessCount,
		"last_accessed": row.LastAccessed.Format(time.RFC3339),
	}
	_, _, err := r.client.From("embeddings").Insert(wire, true, "id", "", "").Execute()
	if err != nil {
		return PersistenceErrorf("remote: put embedding %s: %v", row.ID, err)
	}
	return nil
}

func (r *RemoteAdapter) GetEmbeddingByHash(ctx context.Context, hash string) (EmbeddingRow, bool, error) {
	data, _, err := r.client.From("embeddings").Select("*", "", false).Eq("content_hash", hash).Execute()
	if err != nil {
		return EmbeddingRow{}, false, PersistenceErrorf("remote: get embedding %s: %v", hash, err)
	}
	var rows []EmbeddingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return EmbeddingRow{}, false, PersistenceErrorf("remote: decode embedding: %v", err)
	}
	if len(rows) == 0 {
		return EmbeddingRow{}, false, nil
	}
	return rows[0], true, nil
}

func (r *RemoteAdapter) ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	data, _, err := r.client.From("embeddings").Select("*", "", false).Execute()
	if err != nil {
		return nil, PersistenceErrorf("remote: list embeddings: %v", err)
	}
	var rows []EmbeddingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, PersistenceErrorf("remote: decode embeddings: %v", err)
	}
	return rows, nil
}

func (r *RemoteAdapter) AppendEventLog(ctx context.Context, row EventLogRow) error {
	wire := map[string]interface{}{
		"event_type": row.EventType,
		"event_data": string(row.EventData),
		"timestamp":  row.Timestamp.Format(time.RFC3339),
		"source":     row.Source,
	}
	_, _, err := r.client.From("event_log").Insert(wire, false, "", "", "").Execute()
	if err != nil {
		return PersistenceErrorf("remote: append event log: %v", err)
	}
	return nil
}

func (r *RemoteAdapter) PutSystemState(ctx context.Context, key string, value []byte) error {
	wire := map[string]interface{}{
		"key":        key,
		"value":      string(value),
		"updated_at": time.Now().Format(time.RFC3339),
	}
	_, _, err := r.client.From("system_state").Insert(wire, true, "key", "", "").Execute()
	if err != nil {
		return PersistenceErrorf("remote: put system state %s: %v", key, err)
	}
	return nil
}

func (r *RemoteAdapter) GetSystemState(ctx context.Context, key string) ([]byte, bool, error) {
	data, _, err := r.client.From("system_state").Select("value", "", false).Eq("key", key).Execute()
	if err != nil {
		return nil, false, PersistenceErrorf("remote: get system state %s: %v", key, err)
	}
	var rows []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, PersistenceErrorf("remote: decode system state: %v", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return []byte(rows[0].Value), true, nil
}

func (r *RemoteAdapter) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Backend: "supabase", CheckedAt: time.Now()}
	_, _, err := r.client.From("system_state").Select("key", "", false).Limit(1, "").Execute()
	if err != nil {
		status.Connected = false
		status.Detail = err.Error()
		return status
	}
	status.Connected = true
	status.SchemaPresent = true
	return status
}

func (r *RemoteAdapter) Close() error {
	return nil
}
