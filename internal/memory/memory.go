// Package memory implements the Memory Store: the central entity owning
// the in-memory cache of MemoryItems, the pattern-to-ids inverted index,
// and the bidirectional association graph, all three updated inside the
// same critical section per ingestion operation (spec §5). Grounded on the
// teacher's core/memory/memory.go (CognitiveMemory interface shape) and
// core/memory/dgraph_hypergraph.go (cache-plus-backing-store split,
// uuid-keyed entities); the association graph avoids cyclic owning
// pointers by storing associations as plain sets of uuid string ids on
// each MemoryItem; there is no dense-integer arena or separate adjacency
// map.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/errs"
	"github.com/echocog/cogrun/internal/model"
	"github.com/echocog/cogrun/internal/persistence"
)

// Store is the Memory Store. A single RWMutex serializes all cache/index/
// graph mutation, giving the linearizability spec §5 requires for
// store/access/update_strength/associate without per-item lock bookkeeping;
// readers (such as the Sparse Router) receive Clone copies, never the
// cached pointers.
type Store struct {
	mu           sync.RWMutex
	cache        map[string]*model.MemoryItem
	patternIndex map[string]map[string]struct{} // signature -> ids
	adapter      persistence.Adapter
	graph        *persistence.GraphAdapter // optional, mirrors associations
	cacheMax     int
	log          *zap.Logger
}

// New builds an empty Memory Store backed by adapter. graph may be nil.
func New(log *zap.Logger, adapter persistence.Adapter, graph *persistence.GraphAdapter, cacheMax int) *Store {
	return &Store{
		cache:        make(map[string]*model.MemoryItem),
		patternIndex: make(map[string]map[string]struct{}),
		adapter:      adapter,
		graph:        graph,
		cacheMax:     cacheMax,
		log:          log,
	}
}

// Load hydrates the cache and pattern index from every row the Persistence
// Adapter holds, rebuilding the association graph from each row's persisted
// id set. Intended to run once at boot (engine.New), before any ingestion
// or query reaches the Store, so a process restarted against an existing
// database serves the memories it already wrote rather than an empty cache.
func (s *Store) Load(ctx context.Context) error {
	if s.adapter == nil {
		return nil
	}
	rows, err := s.adapter.ListAllMemories(ctx)
	if err != nil {
		return errs.PersistenceErrorf("memory: load: %v", err)
	}

	items := make([]*model.MemoryItem, 0, len(rows))
	for _, row := range rows {
		item, err := itemFromRow(row)
		if err != nil {
			if s.log != nil {
				s.log.Warn("memory: skipping unreadable row on load", zap.String("id", row.ID), zap.Error(err))
			}
			continue
		}
		items = append(items, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.cache[item.ID] = item
		s.indexInsert(item.PatternSignature, item.ID)
	}
	if s.log != nil {
		s.log.Info("memory: hydrated cache from persistence", zap.Int("items", len(items)))
	}
	return nil
}

func itemFromRow(row persistence.MemoryRow) (*model.MemoryItem, error) {
	var content map[string]interface{}
	if len(row.Content) > 0 {
		if err := json.Unmarshal(row.Content, &content); err != nil {
			return nil, err
		}
	}
	ctx, err := persistence.UnmarshalContext(row.Context)
	if err != nil {
		return nil, err
	}

	assoc := make(map[string]struct{}, len(row.Associations))
	for _, id := range row.Associations {
		assoc[id] = struct{}{}
	}
	tags := make(map[string]struct{}, len(row.Tags))
	for _, t := range row.Tags {
		if t != "" {
			tags[t] = struct{}{}
		}
	}

	return &model.MemoryItem{
		ID:               row.ID,
		PatternSignature: row.PatternSignature,
		MemoryType:       model.MemoryType(row.MemoryType),
		Content:          content,
		Context:          ctx,
		Strength:         model.ClampUnit(row.Strength),
		AccessCount:      row.AccessCount,
		LastAccessed:     row.LastAccessed,
		CreatedAt:        row.CreatedAt,
		Associations:     assoc,
		Tags:             tags,
		Confidence:       model.ClampUnit(row.Confidence),
		DecayRate:        row.DecayRate,
	}, nil
}

// CreateItem builds a new, not-yet-stored MemoryItem per spec §4.2. strength
// and confidence are optional (nil means "use the spec default of 0.5");
// unlike a bare float64 this lets a caller deliberately create a
// zero-strength or zero-confidence item instead of having 0 silently
// rewritten to the default.
func (s *Store) CreateItem(signature string, content map[string]interface{}, ctx model.Context, memType model.MemoryType, tags []string, strength, confidence *float64) *model.MemoryItem {
	if memType == "" {
		memType = model.MemoryEpisodic
	}
	st := 0.5
	if strength != nil {
		st = *strength
	}
	conf := 0.5
	if confidence != nil {
		conf = *confidence
	}
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	now := time.Now()
	return &model.MemoryItem{
		ID:               uuid.NewString(),
		PatternSignature: signature,
		MemoryType:       memType,
		Content:          content,
		Context:          ctx,
		Strength:         model.ClampUnit(st),
		AccessCount:      0,
		LastAccessed:     now,
		CreatedAt:        now,
		Associations:     make(map[string]struct{}),
		Tags:             tagSet,
		Confidence:       model.ClampUnit(conf),
		DecayRate:        0.001,
	}
}

// Store inserts item into the cache and pattern index inside a single
// critical section, satisfying spec §5's no-reader-sees-cache-without-index
// invariant, then writes it to the persistence layer after releasing the
// lock. A persistence error is returned, but the item stays cached.
func (s *Store) Store(ctx context.Context, item *model.MemoryItem) (string, error) {
	s.mu.Lock()
	s.cache[item.ID] = item
	s.indexInsert(item.PatternSignature, item.ID)
	s.mu.Unlock()

	if err := s.persist(ctx, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (s *Store) indexInsert(signature, id string) {
	ids, ok := s.patternIndex[signature]
	if !ok {
		ids = make(map[string]struct{})
		s.patternIndex[signature] = ids
	}
	ids[id] = struct{}{}
}

func (s *Store) indexRemove(signature, id string) {
	if ids, ok := s.patternIndex[signature]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.patternIndex, signature)
		}
	}
}

func (s *Store) persist(ctx context.Context, item *model.MemoryItem) error {
	if s.adapter == nil {
		return nil
	}
	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return err
	}
	ctxJSON, err := json.Marshal(persistence.MarshalContext(item.Context))
	if err != nil {
		return err
	}
	row := persistence.MemoryRow{
		ID:               item.ID,
		PatternSignature: item.PatternSignature,
		MemoryType:       string(item.MemoryType),
		Content:          contentJSON,
		Context:          ctxJSON,
		Strength:         item.Strength,
		AccessCount:      item.AccessCount,
		LastAccessed:     item.LastAccessed,
		CreatedAt:        item.CreatedAt,
		Associations:     idSet(item.Associations),
		Tags:             item.TagSet(),
		Confidence:       item.Confidence,
		DecayRate:        item.DecayRate,
	}

	if err := s.adapter.PutMemory(ctx, row); err != nil {
		if s.log != nil {
			s.log.Error("persist memory failed", zap.String("id", item.ID), zap.Error(err))
		}
		return errs.PersistenceErrorf("memory: persisting %s: %v", item.ID, err)
	}
	return nil
}

func idSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Retrieve returns items matching signature, ordered by relevance desc
// then strength desc, each access()'d atomically within the same critical
// section as the read (spec §4.2/§5).
func (s *Store) Retrieve(ctx context.Context, signature string, qctx model.Context) []*model.MemoryItem {
	s.mu.Lock()
	ids := s.patternIndex[signature]
	items := make([]*model.MemoryItem, 0, len(ids))
	for id := range ids {
		item := s.cache[id]
		if item == nil {
			continue
		}
		s.accessLocked(item)
		items = append(items, item.Clone())
	}
	s.mu.Unlock()

	s.persistAccessed(ctx, items)

	sort.Slice(items, func(i, j int) bool {
		return tieBreakLess(items[j], items[i], relevanceFor(items[j], signature, qctx), relevanceFor(items[i], signature, qctx))
	})
	return items
}

// RetrieveByQuery implements retrieve_by_query with the relevance scoring
// and tie-break rules of spec §4.2.
func (s *Store) RetrieveByQuery(ctx context.Context, q model.MemoryQuery) []*model.MemoryItem {
	s.mu.Lock()
	var candidates []*model.MemoryItem
	for _, item := range s.cache {
		if q.Signature != "" && item.PatternSignature != q.Signature {
			continue
		}
		if q.HasMemoryType && item.MemoryType != q.MemoryType {
			continue
		}
		if item.Strength < q.MinStrength {
			continue
		}
		candidates = append(candidates, item)
	}

	type scored struct {
		item  *model.MemoryItem
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, item := range candidates {
		ranked = append(ranked, scored{item: item, score: relevanceScore(item, q.Signature, q.Context, q.Tags, q.HasMemoryType, q.MemoryType)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return lessByTieBreak(ranked[i].item, ranked[j].item, ranked[i].score, ranked[j].score)
	})

	limit := q.Limit
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]*model.MemoryItem, 0, limit)
	for i := 0; i < limit; i++ {
		item := ranked[i].item
		s.accessLocked(item)
		out = append(out, item.Clone())
	}
	s.mu.Unlock()

	s.persistAccessed(ctx, out)
	return out
}

// lessByTieBreak orders (a,scoreA) before (b,scoreB) when a should sort
// first: higher score, then higher strength, then more recent
// last_accessed, then lexicographically smaller id.
func lessByTieBreak(a, b *model.MemoryItem, scoreA, scoreB float64) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if a.Strength != b.Strength {
		return a.Strength > b.Strength
	}
	if !a.LastAccessed.Equal(b.LastAccessed) {
		return a.LastAccessed.After(b.LastAccessed)
	}
	return a.ID < b.ID
}

func tieBreakLess(a, b *model.MemoryItem, scoreA, scoreB float64) bool {
	return lessByTieBreak(b, a, scoreB, scoreA)
}

func relevanceFor(item *model.MemoryItem, signature string, ctx model.Context) float64 {
	return relevanceScore(item, signature, ctx, ctx.Tags, false, "")
}

// relevanceScore implements spec §4.2's weighted relevance sum, clamped to
// [0,1].
func relevanceScore(item *model.MemoryItem, signature string, qctx model.Context, qtags []string, hasType bool, qtype model.MemoryType) float64 {
	score := 0.0
	if signature != "" && item.PatternSignature == signature {
		score += 0.4
	}

	score += 0.3 * contextOverlap(item.Context, qctx)
	score += 0.2 * tagOverlap(item.Tags, qtags)

	if hasType && item.MemoryType == qtype {
		score += 0.1
	}
	return model.ClampUnit(score)
}

func contextOverlap(item, query model.Context) float64 {
	matches := 0
	total := 0

	compare := func(a, b string) {
		total++
		if a == b {
			matches++
		}
	}
	if query.State != "" {
		compare(string(item.State), string(query.State))
	}
	if query.Source != "" {
		compare(item.Source, query.Source)
	}
	for k, v := range query.Metadata {
		total++
		if item.Metadata[k] == v {
			matches++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}

func tagOverlap(itemTags map[string]struct{}, queryTags []string) float64 {
	if len(queryTags) == 0 {
		return 0
	}
	matches := 0
	for _, t := range queryTags {
		if _, ok := itemTags[t]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTags))
}

// accessLocked performs the atomic access() side effect; caller must hold
// s.mu.
func (s *Store) accessLocked(item *model.MemoryItem) {
	item.AccessCount++
	item.LastAccessed = time.Now()
	item.Strength = model.ClampUnit(item.Strength + 0.01)
}

func (s *Store) persistAccessed(ctx context.Context, items []*model.MemoryItem) {
	if s.adapter == nil {
		return
	}
	for _, item := range items {
		if err := s.persist(ctx, item); err != nil && s.log != nil {
			s.log.Warn("persist on access failed", zap.String("id", item.ID), zap.Error(err))
		}
	}
}

// UpdateStrength applies delta to the item's strength, clamps, and
// persists.
func (s *Store) UpdateStrength(ctx context.Context, id string, delta float64) (float64, error) {
	s.mu.Lock()
	item, ok := s.cache[id]
	if !ok {
		s.mu.Unlock()
		return 0, errs.NotFoundf("memory: update_strength %s", id)
	}
	item.Strength = model.ClampUnit(item.Strength + delta)
	newStrength := item.Strength
	snapshot := item.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return newStrength, err
	}
	return newStrength, nil
}

// CreateAssociation adds a symmetric association between id1 and id2 with
// the given strength, updating both items' graph entries in one critical
// section before persisting both.
func (s *Store) CreateAssociation(ctx context.Context, id1, id2 string, strength float64) error {
	s.mu.Lock()
	a, ok1 := s.cache[id1]
	b, ok2 := s.cache[id2]
	if !ok1 || !ok2 {
		s.mu.Unlock()
		return errs.NotFoundf("memory: create_association %s/%s", id1, id2)
	}
	a.Associations[id2] = struct{}{}
	b.Associations[id1] = struct{}{}
	aSnap, bSnap := a.Clone(), b.Clone()
	s.mu.Unlock()

	if err := s.persist(ctx, aSnap); err != nil {
		return err
	}
	if err := s.persist(ctx, bSnap); err != nil {
		return err
	}
	if s.graph != nil {
		if err := s.graph.PutAssociation(ctx, id1, id2, strength); err != nil && s.log != nil {
			s.log.Warn("graph mirror of association failed", zap.Error(err))
		}
	}
	return nil
}

// GetAssociated returns the items directly associated with id.
func (s *Store) GetAssociated(ctx context.Context, id string) ([]*model.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.cache[id]
	if !ok {
		return nil, errs.NotFoundf("memory: get_associated %s", id)
	}
	out := make([]*model.MemoryItem, 0, len(item.Associations))
	for aid := range item.Associations {
		if assoc, ok := s.cache[aid]; ok {
			out = append(out, assoc.Clone())
		}
	}
	return out, nil
}

// Get returns a cloned snapshot of item id without the access() side
// effect, a non-mutating "peek" resolving spec §9's open question while
// keeping the mutating Retrieve/RetrieveByQuery paths available.
func (s *Store) Get(id string) (*model.MemoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.cache[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// ApplyTimeDecay subtracts decay_rate * days_since_last_access from every
// cached item's strength, persisting only items whose strength changed.
func (s *Store) ApplyTimeDecay(ctx context.Context) error {
	now := time.Now()

	s.mu.Lock()
	var changed []*model.MemoryItem
	for _, item := range s.cache {
		days := now.Sub(item.LastAccessed).Hours() / 24
		if days <= 0 {
			continue
		}
		newStrength := model.ClampUnit(item.Strength - item.DecayRate*days)
		if newStrength != item.Strength {
			item.Strength = newStrength
			changed = append(changed, item.Clone())
		}
	}
	s.mu.Unlock()

	for _, item := range changed {
		if err := s.persist(ctx, item); err != nil {
			return errs.PersistenceErrorf("memory: apply_time_decay: %v", err)
		}
	}
	return nil
}

// RunRetentionSweep removes items whose strength has decayed below epsilon
// and whose last access is older than staleAfter, the supplemented
// retention operation named by SPEC_FULL.md §4.
func (s *Store) RunRetentionSweep(ctx context.Context, epsilon float64, staleAfter time.Duration) (removed []string, err error) {
	now := time.Now()

	s.mu.Lock()
	var toRemove []*model.MemoryItem
	for _, item := range s.cache {
		if item.Strength < epsilon && now.Sub(item.LastAccessed) > staleAfter {
			toRemove = append(toRemove, item)
		}
	}
	for _, item := range toRemove {
		delete(s.cache, item.ID)
		s.indexRemove(item.PatternSignature, item.ID)
		for aid := range item.Associations {
			if peer, ok := s.cache[aid]; ok {
				delete(peer.Associations, item.ID)
			}
		}
		removed = append(removed, item.ID)
	}
	s.mu.Unlock()

	if s.adapter != nil {
		for _, id := range removed {
			if derr := s.adapter.DeleteMemory(ctx, id); derr != nil {
				err = errs.PersistenceErrorf("memory: retention sweep delete %s: %v", id, derr)
			}
		}
	}
	return removed, err
}

// CacheSize returns the number of items currently cached.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// CheckInvariants verifies the pattern-index/cache correspondence and
// association symmetry named by spec §8's universal invariants; intended
// for tests and the health/statistics probe, not the hot path.
func (s *Store) CheckInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sig, ids := range s.patternIndex {
		for id := range ids {
			item, ok := s.cache[id]
			if !ok || item.PatternSignature != sig {
				return errs.InvariantViolatedf("memory: pattern index entry %s/%s has no matching cache item", sig, id)
			}
		}
	}
	for id, item := range s.cache {
		if _, ok := s.patternIndex[item.PatternSignature][id]; !ok {
			return errs.InvariantViolatedf("memory: cache item %s missing from pattern index", id)
		}
		if item.Strength < 0 || item.Strength > 1 {
			return errs.InvariantViolatedf("memory: item %s strength out of range", id)
		}
		if item.Confidence < 0 || item.Confidence > 1 {
			return errs.InvariantViolatedf("memory: item %s confidence out of range", id)
		}
		for aid := range item.Associations {
			peer, ok := s.cache[aid]
			if !ok {
				continue
			}
			if _, ok := peer.Associations[id]; !ok {
				return errs.InvariantViolatedf("memory: association %s->%s is not symmetric", id, aid)
			}
		}
	}
	return nil
}
