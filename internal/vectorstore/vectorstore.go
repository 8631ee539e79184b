// Package vectorstore implements the optional semantic side-index: a
// content-hash-keyed map to embeddings supporting cosine kNN and cluster
// queries, with a pluggable embedding function. Grounded on the teacher's
// core/memory/embeddings/llamacpp_embedder.go (EmbeddingProvider shape)
// and core/memory/milvus/client.go (kNN/index config knobs), implemented
// here over gonum rather than an external vector database since this
// module's scope names an in-process side-index, not a cluster service.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/errs"
	"github.com/echocog/cogrun/internal/model"
	"github.com/echocog/cogrun/internal/persistence"
)

// Embedder is the pluggable embedding function contract, shaped after the
// teacher's memory.EmbeddingProvider interface.
type Embedder interface {
	CreateEmbedding(ctx context.Context, content string) ([]float64, error)
	Dimension() int
}

// VectorStore is the optional semantic side-index keyed by content hash.
type VectorStore struct {
	mu         sync.RWMutex
	embedder   Embedder
	store      persistence.Adapter
	dimension  int
	similarityThreshold float64
	cache      map[string]*model.VectorEmbedding // content_hash -> embedding
	log        *zap.Logger
}

// New builds a VectorStore. embedder may be nil if callers always supply
// pre-computed vectors via PutVector.
func New(log *zap.Logger, store persistence.Adapter, embedder Embedder, dimension int, similarityThreshold float64) *VectorStore {
	return &VectorStore{
		embedder:            embedder,
		store:               store,
		dimension:           dimension,
		similarityThreshold: similarityThreshold,
		cache:               make(map[string]*model.VectorEmbedding),
		log:                 log,
	}
}

// ContentHash derives the stable content_hash key used across the store.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Embed produces a VectorEmbedding for content via the configured Embedder,
// verifying the returned vector's dimension matches configuration (the
// same check the teacher's LlamaCppEmbedder performs before returning).
func (v *VectorStore) Embed(ctx context.Context, content string, metadata map[string]string) (*model.VectorEmbedding, error) {
	if v.embedder == nil {
		return nil, fmt.Errorf("vectorstore: no embedder configured")
	}
	hash := ContentHash(content)

	v.mu.RLock()
	if existing, ok := v.cache[hash]; ok {
		v.mu.RUnlock()
		return existing, nil
	}
	v.mu.RUnlock()

	vec, err := v.embedder.CreateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create embedding: %w", err)
	}
	if len(vec) != v.dimension {
		return nil, fmt.Errorf("vectorstore: embedder returned dimension %d, want %d", len(vec), v.dimension)
	}

	emb := &model.VectorEmbedding{
		ID:           hash,
		ContentHash:  hash,
		Vector:       vec,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}
	if err := v.persist(ctx, emb); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[hash] = emb
	v.mu.Unlock()

	return emb, nil
}

// PutVector stores a precomputed embedding directly, bypassing the
// Embedder; used by callers (tests, alternate embedding pipelines) that
// already have vectors in hand.
func (v *VectorStore) PutVector(ctx context.Context, contentHash string, vec []float64, metadata map[string]string) (*model.VectorEmbedding, error) {
	if len(vec) != v.dimension {
		return nil, fmt.Errorf("vectorstore: vector dimension %d, want %d", len(vec), v.dimension)
	}
	emb := &model.VectorEmbedding{
		ID:           contentHash,
		ContentHash:  contentHash,
		Vector:       vec,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}
	if err := v.persist(ctx, emb); err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.cache[contentHash] = emb
	v.mu.Unlock()
	return emb, nil
}

func (v *VectorStore) persist(ctx context.Context, emb *model.VectorEmbedding) error {
	if v.store == nil {
		return nil
	}
	if err := v.store.PutEmbedding(ctx, persistence.EmbeddingRow{
		ID:           emb.ID,
		ContentHash:  emb.ContentHash,
		Vector:       emb.Vector,
		CreatedAt:    emb.CreatedAt,
		AccessCount:  emb.AccessCount,
		LastAccessed: emb.LastAccessed,
	}); err != nil {
		return errs.PersistenceErrorf("vectorstore: persist embedding %s: %v", emb.ID, err)
	}
	return nil
}

// Scored pairs an embedding with its similarity to a query vector.
type Scored struct {
	Embedding *model.VectorEmbedding
	Score     float64
}

// KNN returns the k embeddings most cosine-similar to query, restricted to
// scores at or above the configured similarity threshold, descending by
// score.
func (v *VectorStore) KNN(query []float64, k int) []Scored {
	v.mu.RLock()
	defer v.mu.RUnlock()

	scored := make([]Scored, 0, len(v.cache))
	for _, emb := range v.cache {
		s := cosineSimilarity(query, emb.Vector)
		if s >= v.similarityThreshold {
			scored = append(scored, Scored{Embedding: emb, Score: s})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Cluster groups cached embeddings in ID order: each not-yet-assigned
// embedding seeds a bucket holding every other unassigned embedding whose
// cosine similarity to the seed is at least threshold (members are not
// compared with each other), a simple single-pass agglomeration
// sufficient for the cluster-query surface named by spec §2's Vector
// Store responsibility (no external clustering library is pulled in for
// this; see DESIGN.md).
func (v *VectorStore) Cluster(threshold float64) [][]*model.VectorEmbedding {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var all []*model.VectorEmbedding
	for _, emb := range v.cache {
		all = append(all, emb)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var clusters [][]*model.VectorEmbedding
	assigned := make(map[string]bool, len(all))
	for _, e := range all {
		if assigned[e.ID] {
			continue
		}
		cluster := []*model.VectorEmbedding{e}
		assigned[e.ID] = true
		for _, other := range all {
			if assigned[other.ID] {
				continue
			}
			if cosineSimilarity(e.Vector, other.Vector) >= threshold {
				cluster = append(cluster, other)
				assigned[other.ID] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}
