package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/errs"
)

func PersistenceErrorf(format string, args ...interface{}) error {
	return errs.PersistenceErrorf(format, args...)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	pattern_signature TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	content BLOB,
	context BLOB,
	strength REAL NOT NULL,
	access_count INTEGER NOT NULL,
	last_accessed TIMESTAMP,
	created_at TIMESTAMP,
	associations TEXT,
	tags TEXT,
	confidence REAL,
	decay_rate REAL,
	updated_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_signature ON memories(pattern_signature);
CREATE INDEX IF NOT EXISTS idx_memories_strength ON memories(strength);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS system_state (
	key TEXT PRIMARY KEY,
	value BLOB,
	updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS event_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT,
	event_data BLOB,
	timestamp TIMESTAMP,
	source TEXT
);
CREATE INDEX IF NOT EXISTS idx_event_log_timestamp ON event_log(timestamp);

CREATE TABLE IF NOT EXISTS embeddings (
	id TEXT PRIMARY KEY,
	content_hash TEXT,
	vector TEXT,
	metadata BLOB,
	created_at TIMESTAMP,
	access_count INTEGER,
	last_accessed TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_embeddings_content_hash ON embeddings(content_hash);
`

// SQLiteAdapter is the primary Persistence Adapter backend, modeled on the
// teacher's connection retry loop in core/persistence/dgraph_client.go,
// adapted from gRPC dial retries to database/sql open+ping retries with a
// fixed delay between attempts.
type SQLiteAdapter struct {
	mu         sync.Mutex
	db         *sql.DB
	log        *zap.Logger
	path       string
	retryCount int
	retryDelay time.Duration
}

// NewSQLiteAdapter opens (creating if absent) a SQLite database at path and
// applies the schema, retrying the open+ping step retryCount times with
// retryDelay between attempts.
func NewSQLiteAdapter(log *zap.Logger, path string) (*SQLiteAdapter, error) {
	a := &SQLiteAdapter{
		log:        log,
		path:       path,
		retryCount: 3,
		retryDelay: 2 * time.Second,
	}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) connect() error {
	var lastErr error
	for attempt := 0; attempt <= a.retryCount; attempt++ {
		db, err := sql.Open("sqlite3", a.path)
		if err == nil {
			if pingErr := db.Ping(); pingErr == nil {
				if _, execErr := db.Exec(schemaSQL); execErr == nil {
					a.db = db
					return nil
				} else {
					lastErr = execErr
					db.Close()
				}
			} else {
				lastErr = pingErr
				db.Close()
			}
		} else {
			lastErr = err
		}

		if attempt < a.retryCount {
			if a.log != nil {
				a.log.Warn("sqlite connect retrying", zap.Int("attempt", attempt), zap.Error(lastErr))
			}
			time.Sleep(a.retryDelay)
		}
	}
	return PersistenceErrorf("sqlite: failed to connect to %s after %d attempts: %v", a.path, a.retryCount+1, lastErr)
}

func (a *SQLiteAdapter) PutMemory(ctx context.Context, row MemoryRow) error {
	assoc := strings.Join(row.Associations, ",")
	tags := strings.Join(row.Tags, ",")

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return PersistenceErrorf("sqlite: begin tx: %v", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories(id, pattern_signature, memory_type, content, context,
			strength, access_count, last_accessed, created_at, associations, tags,
			confidence, decay_rate, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			pattern_signature=excluded.pattern_signature,
			memory_type=excluded.memory_type,
			content=excluded.content,
			context=excluded.context,
			strength=excluded.strength,
			access_count=excluded.access_count,
			last_accessed=excluded.last_accessed,
			associations=excluded.associations,
			tags=excluded.tags,
			confidence=excluded.confidence,
			decay_rate=excluded.decay_rate,
			updated_at=excluded.updated_at
	`, row.ID, row.PatternSignature, row.MemoryType, row.Content, row.Context,
		row.Strength, row.AccessCount, row.LastAccessed, row.CreatedAt, assoc, tags,
		row.Confidence, row.DecayRate, time.Now())
	if err != nil {
		tx.Rollback()
		return PersistenceErrorf("sqlite: put memory %s: %v", row.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return PersistenceErrorf("sqlite: commit put memory %s: %v", row.ID, err)
	}
	return nil
}

func (a *SQLiteAdapter) GetMemory(ctx context.Context, id string) (MemoryRow, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT id, pattern_signature, memory_type, content, context,
		strength, access_count, last_accessed, created_at, associations, tags, confidence, decay_rate, updated_at
		FROM memories WHERE id = ?`, id)
	m, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return MemoryRow{}, false, nil
	}
	if err != nil {
		return MemoryRow{}, false, PersistenceErrorf("sqlite: get memory %s: %v", id, err)
	}
	return m, true, nil
}

func (a *SQLiteAdapter) DeleteMemory(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return PersistenceErrorf("sqlite: delete memory %s: %v", id, err)
	}
	return nil
}

func (a *SQLiteAdapter) ListMemoriesBySignature(ctx context.Context, signature string) ([]MemoryRow, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, pattern_signature, memory_type, content, context,
		strength, access_count, last_accessed, created_at, associations, tags, confidence, decay_rate, updated_at
		FROM memories WHERE pattern_signature = ?`, signature)
	if err != nil {
		return nil, PersistenceErrorf("sqlite: list by signature %s: %v", signature, err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func (a *SQLiteAdapter) ListAllMemories(ctx context.Context) ([]MemoryRow, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, pattern_signature, memory_type, content, context,
		strength, access_count, last_accessed, created_at, associations, tags, confidence, decay_rate, updated_at
		FROM memories`)
	if err != nil {
		return nil, PersistenceErrorf("sqlite: list all: %v", err)
	}
	defer rows.Close()
	return scanMemoryRows(rows)
}

func scanMemoryRows(rows *sql.Rows) ([]MemoryRow, error) {
	var out []MemoryRow
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryRow(r rowScanner) (MemoryRow, error) {
	var m MemoryRow
	var assoc, tags string
	if err := r.Scan(&m.ID, &m.PatternSignature, &m.MemoryType, &m.Content, &m.Context,
		&m.Strength, &m.AccessCount, &m.LastAccessed, &m.CreatedAt, &assoc, &tags,
		&m.Confidence, &m.DecayRate, &m.UpdatedAt); err != nil {
		return MemoryRow{}, err
	}
	if assoc != "" {
		m.Associations = strings.Split(assoc, ",")
	}
	if tags != "" {
		m.Tags = strings.Split(tags, ",")
	}
	return m, nil
}

func (a *SQLiteAdapter) PutEmbedding(ctx context.Context, row EmbeddingRow) error {
	vec, err := json.Marshal(row.Vector)
	if err != nil {
		return fmt.Errorf("sqlite: marshal vector: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO embeddings(id, content_hash, vector, metadata, created_at, access_count, last_accessed)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash=excluded.content_hash, vector=excluded.vector,
			metadata=excluded.metadata, access_count=excluded.access_count,
			last_accessed=excluded.last_accessed
	`, row.ID, row.ContentHash, string(vec), row.Metadata, row.CreatedAt, row.AccessCount, row.LastAccessed)
	if err != nil {
		return PersistenceErrorf("sqlite: put embedding %s: %v", row.ID, err)
	}
	return nil
}

func (a *SQLiteAdapter) GetEmbeddingByHash(ctx context.Context, hash string) (EmbeddingRow, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT id, content_hash, vector, metadata, created_at, access_count, last_accessed
		FROM embeddings WHERE content_hash = ?`, hash)
	var e EmbeddingRow
	var vec string
	if err := row.Scan(&e.ID, &e.ContentHash, &vec, &e.Metadata, &e.CreatedAt, &e.AccessCount, &e.LastAccessed); err != nil {
		if err == sql.ErrNoRows {
			return EmbeddingRow{}, false, nil
		}
		return EmbeddingRow{}, false, PersistenceErrorf("sqlite: get embedding %s: %v", hash, err)
	}
	if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
		return EmbeddingRow{}, false, fmt.Errorf("sqlite: unmarshal vector: %w", err)
	}
	return e, true, nil
}

func (a *SQLiteAdapter) ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, content_hash, vector, metadata, created_at, access_count, last_accessed FROM embeddings`)
	if err != nil {
		return nil, PersistenceErrorf("sqlite: list embeddings: %v", err)
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var e EmbeddingRow
		var vec string
		if err := rows.Scan(&e.ID, &e.ContentHash, &vec, &e.Metadata, &e.CreatedAt, &e.AccessCount, &e.LastAccessed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vec), &e.Vector); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal vector: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLiteAdapter) AppendEventLog(ctx context.Context, row EventLogRow) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO event_log(event_type, event_data, timestamp, source) VALUES(?,?,?,?)`,
		row.EventType, row.EventData, row.Timestamp, row.Source)
	if err != nil {
		return PersistenceErrorf("sqlite: append event log: %v", err)
	}
	return nil
}

func (a *SQLiteAdapter) PutSystemState(ctx context.Context, key string, value []byte) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO system_state(key, value, updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return PersistenceErrorf("sqlite: put system state %s: %v", key, err)
	}
	return nil
}

func (a *SQLiteAdapter) GetSystemState(ctx context.Context, key string) ([]byte, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT value FROM system_state WHERE key = ?`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, PersistenceErrorf("sqlite: get system state %s: %v", key, err)
	}
	return value, true, nil
}

func (a *SQLiteAdapter) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Backend: "sqlite", CheckedAt: time.Now()}
	if err := a.db.PingContext(ctx); err != nil {
		status.Connected = false
		status.Detail = err.Error()
		return status
	}
	status.Connected = true

	var name string
	err := a.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name='memories'`).Scan(&name)
	status.SchemaPresent = err == nil && name == "memories"
	return status
}

func (a *SQLiteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
