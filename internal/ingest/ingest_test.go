package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echocog/cogrun/internal/encoder"
	"github.com/echocog/cogrun/internal/memory"
	"github.com/echocog/cogrun/internal/model"
	"github.com/echocog/cogrun/internal/router"
)

func newTestCoordinator(t *testing.T, preprocessors []Preprocessor, filters []Filter) *Coordinator {
	t.Helper()
	enc, err := encoder.New(nil, 0)
	require.NoError(t, err)
	store := memory.New(nil, nil, nil, 0)
	rtr := router.New(router.Config{TargetSparsity: 0.1, InitialGlobalThreshold: 0.1})
	return New(nil, enc, store, rtr, nil, nil, preprocessors, filters, Config{})
}

type dropAllFilter struct{}

func (dropAllFilter) Name() string                         { return "drop_all" }
func (dropAllFilter) Accept(event model.RawEvent) bool { return true }

type tagPreprocessor struct{ calls int }

func (p *tagPreprocessor) Name() string { return "tag" }
func (p *tagPreprocessor) Apply(event model.RawEvent) (model.RawEvent, error) {
	p.calls++
	if event.Fields == nil {
		event.Fields = map[string]interface{}{}
	}
	event.Fields["tagged"] = true
	return event, nil
}

func TestIngestFilteredEventReturnsEarly(t *testing.T) {
	c := newTestCoordinator(t, nil, []Filter{dropAllFilter{}})

	result, err := c.Ingest(context.Background(), model.RawEvent{Kind: "data_input", Fields: map[string]interface{}{}}, "test")
	require.NoError(t, err)
	assert.Equal(t, StatusFiltered, result.Status)
	assert.Empty(t, result.MemoryID)
}

func TestIngestStoresAndActivates(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	event := model.RawEvent{Kind: "error", Fields: map[string]interface{}{"message": "boom"}}
	result, err := c.Ingest(context.Background(), event, "test")
	require.NoError(t, err)

	assert.Equal(t, StatusStored, result.Status)
	assert.NotEmpty(t, result.MemoryID)
	assert.NotEmpty(t, result.Pattern.Signature)
}

func TestIngestRunsPreprocessors(t *testing.T) {
	pp := &tagPreprocessor{}
	c := newTestCoordinator(t, []Preprocessor{pp}, nil)

	_, err := c.Ingest(context.Background(), model.RawEvent{Kind: "system", Fields: map[string]interface{}{}}, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, pp.calls)
}

func TestIngestBatchPreservesOrder(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	events := []model.RawEvent{
		{Kind: "request", Fields: map[string]interface{}{"id": "1"}},
		{Kind: "response", Fields: map[string]interface{}{"id": "2"}},
		{Kind: "error", Fields: map[string]interface{}{"id": "3"}},
	}
	results, err := c.IngestBatch(context.Background(), events, "test")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, StatusStored, r.Status)
		stored, ok := c.store.Get(r.MemoryID)
		require.True(t, ok)
		raw := stored.Content["raw"].(map[string]interface{})
		assert.Equal(t, events[i].Fields["id"], raw["id"])
	}
}
