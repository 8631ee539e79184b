package feedback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echocog/cogrun/internal/learning"
	"github.com/echocog/cogrun/internal/memory"
	"github.com/echocog/cogrun/internal/model"
)

func TestScenarioE_OutcomeFeedbackRoutesNegative(t *testing.T) {
	discrepancy, _ := OutcomeDiscrepancy(
		map[string]interface{}{"x": 1.0},
		map[string]interface{}{"x": 10.0},
	)
	assert.InDelta(t, 0.9, discrepancy, 1e-9)
}

func TestProcessOutcomeFeedbackDecreasesStrength(t *testing.T) {
	store := memory.New(nil, nil, nil, 0)
	le := learning.New(learning.Config{LearningRate: 0.01})
	proc := New(nil, le, store, Config{BatchSize: 1})

	item := store.CreateItem("x:a", nil, model.Context{}, "", nil, nil, nil)
	id, err := store.Store(context.Background(), item)
	require.NoError(t, err)

	proc.ProcessOutcomeFeedback(context.Background(), id, map[string]interface{}{"x": 1.0}, map[string]interface{}{"x": 10.0}, model.Context{})
	proc.Flush(context.Background())

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Less(t, got.Strength, 0.5)
}

func TestProcessUserFeedbackThresholds(t *testing.T) {
	store := memory.New(nil, nil, nil, 0)
	le := learning.New(learning.Config{LearningRate: 0.01})
	proc := New(nil, le, store, Config{BatchSize: 1})

	item := store.CreateItem("x:a", nil, model.Context{}, "", nil, nil, nil)
	id, err := store.Store(context.Background(), item)
	require.NoError(t, err)

	proc.ProcessUserFeedback(context.Background(), id, 0.9, "great", model.Context{})
	proc.Flush(context.Background())

	got, ok := store.Get(id)
	require.True(t, ok)
	assert.Greater(t, got.Strength, 0.5)
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	store := memory.New(nil, nil, nil, 0)
	le := learning.New(learning.Config{})
	proc := New(nil, le, store, Config{BatchSize: 1000, QueueMax: 2})

	proc.mu.Lock()
	proc.enqueueLocked(model.FeedbackEvent{MemoryID: "a"})
	proc.enqueueLocked(model.FeedbackEvent{MemoryID: "b"})
	proc.enqueueLocked(model.FeedbackEvent{MemoryID: "c"})
	defer proc.mu.Unlock()

	require.Len(t, proc.queue, 2)
	assert.Equal(t, "b", proc.queue[0].MemoryID)
	assert.Equal(t, "c", proc.queue[1].MemoryID)
}

func TestOutcomeDiscrepancyHandlesListFields(t *testing.T) {
	discrepancy, quality := OutcomeDiscrepancy(
		map[string]interface{}{"vals": []interface{}{1.0, 2.0}},
		map[string]interface{}{"vals": []interface{}{1.0, 4.0}},
	)
	assert.Greater(t, discrepancy, 0.0)
	assert.Less(t, discrepancy, 1.0)
	assert.Equal(t, 0.0, quality)
}
