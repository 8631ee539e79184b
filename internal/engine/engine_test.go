package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echocog/cogrun/internal/config"
	"github.com/echocog/cogrun/internal/engine"
	"github.com/echocog/cogrun/internal/ingest"
	"github.com/echocog/cogrun/internal/model"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "engine_test.db")
	cfg.FeedbackBatchSize = 1

	e, err := engine.New(cfg, nil, engine.Options{})
	require.NoError(t, err)
	return e
}

func TestEngineIngestStoresAndActivates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	result, err := e.Ingest.Ingest(ctx, model.RawEvent{
		Kind:   "error",
		Fields: map[string]interface{}{"message": "disk full", "code": 500},
	}, "test")
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusStored, result.Status)
	assert.NotEmpty(t, result.MemoryID)

	got, ok := e.Memory.Get(result.MemoryID)
	require.True(t, ok)
	assert.Equal(t, result.Pattern.Signature, got.PatternSignature)
}

func TestEngineHealthReportsBackend(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	h := e.Health(ctx)
	assert.True(t, h.Persistence.Connected)
	assert.Equal(t, "sqlite", h.Persistence.Backend)
}

func TestEngineFeedbackAffectsStrength(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	result, err := e.Ingest.Ingest(ctx, model.RawEvent{
		Kind:   "request",
		Fields: map[string]interface{}{"endpoint": "/ping"},
	}, "test")
	require.NoError(t, err)

	e.Feedback.ProcessUserFeedback(ctx, result.MemoryID, 0.9, "great", model.Context{})
	e.Feedback.Flush(ctx)

	got, ok := e.Memory.Get(result.MemoryID)
	require.True(t, ok)
	assert.Greater(t, got.Strength, 0.5)
}
