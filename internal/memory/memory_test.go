package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echocog/cogrun/internal/model"
)

func newTestStore() *Store {
	return New(nil, nil, nil, 0)
}

func TestStoreAndRetrieveBySignature(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	item1 := s.CreateItem("error:validation_error", map[string]interface{}{"n": 1}, model.Context{}, "", nil, nil, nil)
	item2 := s.CreateItem("error:validation_error", map[string]interface{}{"n": 2}, model.Context{}, "", nil, nil, nil)

	id1, err := s.Store(ctx, item1)
	require.NoError(t, err)
	id2, err := s.Store(ctx, item2)
	require.NoError(t, err)

	got := s.Retrieve(ctx, "error:validation_error", model.Context{})
	assert.Len(t, got, 2)

	ids := map[string]bool{}
	for _, g := range got {
		ids[g.ID] = true
		assert.Equal(t, int64(1), g.AccessCount)
	}
	assert.True(t, ids[id1])
	assert.True(t, ids[id2])
}

func TestScenarioA_ErrorMemoryReinforcement(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	item1 := s.CreateItem("error:validation_error", nil, model.Context{}, "", nil, nil, nil)
	item2 := s.CreateItem("error:validation_error", nil, model.Context{}, "", nil, nil, nil)
	id1, err := s.Store(ctx, item1)
	require.NoError(t, err)
	id2, err := s.Store(ctx, item2)
	require.NoError(t, err)

	newStrength, err := s.UpdateStrength(ctx, id1, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, 0.51, newStrength, 1e-9)

	unchanged, ok := s.Get(id2)
	require.True(t, ok)
	assert.InDelta(t, 0.5, unchanged.Strength, 1e-9)
}

func TestScenarioD_AssociationSymmetry(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	a := s.CreateItem("x:a", nil, model.Context{}, "", nil, nil, nil)
	b := s.CreateItem("x:b", nil, model.Context{}, "", nil, nil, nil)
	idA, err := s.Store(ctx, a)
	require.NoError(t, err)
	idB, err := s.Store(ctx, b)
	require.NoError(t, err)

	require.NoError(t, s.CreateAssociation(ctx, idA, idB, 0.8))

	bItem, ok := s.Get(idB)
	require.True(t, ok)
	_, hasA := bItem.Associations[idA]
	assert.True(t, hasA)

	associated, err := s.GetAssociated(ctx, idA)
	require.NoError(t, err)
	require.Len(t, associated, 1)
	assert.Equal(t, idB, associated[0].ID)

	require.NoError(t, s.CheckInvariants())
}

func TestUpdateStrengthClampsToUnitRange(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	item := s.CreateItem("x:a", nil, model.Context{}, "", nil, model.Ptr(0.95), nil)
	id, err := s.Store(ctx, item)
	require.NoError(t, err)

	got, err := s.UpdateStrength(ctx, id, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestUpdateStrengthNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.UpdateStrength(context.Background(), "missing", 0.1)
	assert.Error(t, err)
}

func TestRetrieveByQueryTieBreaksOnStrength(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	low := s.CreateItem("x:a", nil, model.Context{}, "", nil, model.Ptr(0.2), nil)
	high := s.CreateItem("x:a", nil, model.Context{}, "", nil, model.Ptr(0.9), nil)
	_, err := s.Store(ctx, low)
	require.NoError(t, err)
	_, err = s.Store(ctx, high)
	require.NoError(t, err)

	got := s.RetrieveByQuery(ctx, model.MemoryQuery{Signature: "x:a", Limit: 10})
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID)
}

func TestRetentionSweepRemovesDecayedStaleItems(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	item := s.CreateItem("x:a", nil, model.Context{}, "", nil, model.Ptr(0.01), nil)
	item.LastAccessed = item.LastAccessed.Add(-48 * 3600 * 1e9)
	_, err := s.Store(ctx, item)
	require.NoError(t, err)

	removed, err := s.RunRetentionSweep(ctx, 0.02, 3600*1e9)
	require.NoError(t, err)
	assert.Contains(t, removed, item.ID)
	assert.Equal(t, 0, s.CacheSize())
}
