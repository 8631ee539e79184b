package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	dim     int
	vectors map[string][]float64
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, content string) ([]float64, error) {
	if v, ok := f.vectors[content]; ok {
		return v, nil
	}
	return make([]float64, f.dim), nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	embedder := &fakeEmbedder{dim: 4, vectors: map[string][]float64{"x": {1, 2, 3}}}
	vs := New(nil, nil, embedder, 4, 0.5)

	_, err := vs.Embed(context.Background(), "x", nil)
	require.Error(t, err)
}

func TestKNNOrdersByCosineSimilarity(t *testing.T) {
	embedder := &fakeEmbedder{dim: 2}
	vs := New(nil, nil, embedder, 2, 0.0)

	_, err := vs.PutVector(context.Background(), "a", []float64{1, 0}, nil)
	require.NoError(t, err)
	_, err = vs.PutVector(context.Background(), "b", []float64{0, 1}, nil)
	require.NoError(t, err)
	_, err = vs.PutVector(context.Background(), "c", []float64{0.9, 0.1}, nil)
	require.NoError(t, err)

	results := vs.KNN([]float64{1, 0}, 2)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Embedding.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestKNNRespectsSimilarityThreshold(t *testing.T) {
	embedder := &fakeEmbedder{dim: 2}
	vs := New(nil, nil, embedder, 2, 0.95)

	_, err := vs.PutVector(context.Background(), "a", []float64{1, 0}, nil)
	require.NoError(t, err)
	_, err = vs.PutVector(context.Background(), "b", []float64{0, 1}, nil)
	require.NoError(t, err)

	results := vs.KNN([]float64{1, 0}, 10)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Embedding.ID)
}
