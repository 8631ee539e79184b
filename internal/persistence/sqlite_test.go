package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cogrun.db")
	a, err := NewSQLiteAdapter(nil, path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteAdapterRoundTripsMemory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	row := MemoryRow{
		ID:               "m1",
		PatternSignature: "error:validation_error",
		MemoryType:       "episodic",
		Content:          []byte(`{"raw":true}`),
		Context:          []byte(`{"state":"error"}`),
		Strength:         0.5,
		AccessCount:      0,
		LastAccessed:     time.Now(),
		CreatedAt:        time.Now(),
		Associations:     []string{"m2", "m3"},
		Tags:             []string{"a", "b"},
		Confidence:       0.5,
		DecayRate:        0.001,
	}

	require.NoError(t, a.PutMemory(ctx, row))

	got, ok, err := a.GetMemory(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row.PatternSignature, got.PatternSignature)
	assert.ElementsMatch(t, row.Associations, got.Associations)
	assert.ElementsMatch(t, row.Tags, got.Tags)
}

func TestSQLiteAdapterListBySignature(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, a.PutMemory(ctx, MemoryRow{
			ID:               id,
			PatternSignature: "error:validation_error",
			MemoryType:       "episodic",
			Strength:         0.5,
			LastAccessed:     time.Now(),
			CreatedAt:        time.Now(),
		}))
	}
	require.NoError(t, a.PutMemory(ctx, MemoryRow{
		ID:               "m3",
		PatternSignature: "request:GET:/y",
		MemoryType:       "episodic",
		Strength:         0.5,
		LastAccessed:     time.Now(),
		CreatedAt:        time.Now(),
	}))

	rows, err := a.ListMemoriesBySignature(ctx, "error:validation_error")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteAdapterDeleteMemory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.PutMemory(ctx, MemoryRow{ID: "m1", PatternSignature: "x:y", CreatedAt: time.Now()}))

	require.NoError(t, a.DeleteMemory(ctx, "m1"))

	_, ok, err := a.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteAdapterSystemStateRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.PutSystemState(ctx, "cycle_count", []byte("42")))

	v, ok, err := a.GetSystemState(ctx, "cycle_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "42", string(v))
}

func TestSQLiteAdapterHealth(t *testing.T) {
	a := newTestAdapter(t)
	status := a.Health(context.Background())
	assert.True(t, status.Connected)
	assert.True(t, status.SchemaPresent)
	assert.Equal(t, "sqlite", status.Backend)
}

func TestSQLiteAdapterEventLogAppend(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	err := a.AppendEventLog(ctx, EventLogRow{
		EventType: "ingestion_event",
		EventData: []byte(`{"ids":["m1"]}`),
		Timestamp: time.Now(),
		Source:    "test",
	})
	require.NoError(t, err)
}
