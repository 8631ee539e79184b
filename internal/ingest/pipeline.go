package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/echocog/cogrun/internal/model"
)

// DefaultPreprocessors returns the named pre-processor set recovered from
// services/ingestion.py's validate_data/enrich_metadata pair as a plain
// slice; stages have no individual enable/disable switch.
func DefaultPreprocessors() []Preprocessor {
	return []Preprocessor{&ValidatePreprocessor{}, &EnrichMetadataPreprocessor{}}
}

// DefaultFilters returns the named filter set: duplicate and low-quality
// rejection.
func DefaultFilters() []Filter {
	return []Filter{NewDuplicateFilter(4096), &LowQualityFilter{MinFieldCount: 1}}
}

// ValidatePreprocessor fills a missing timestamp field so every event the
// pipeline handles carries one.
type ValidatePreprocessor struct{}

func (p *ValidatePreprocessor) Name() string { return "validate_data" }

func (p *ValidatePreprocessor) Apply(event model.RawEvent) (model.RawEvent, error) {
	if _, ok := event.Fields["timestamp"]; !ok {
		if event.Fields == nil {
			event.Fields = map[string]interface{}{}
		}
		event.Fields["timestamp"] = time.Now().Format(time.RFC3339)
	}
	return event, nil
}

// EnrichMetadataPreprocessor stamps an _ingestion sub-object recording when
// the pipeline touched the event.
type EnrichMetadataPreprocessor struct{}

func (p *EnrichMetadataPreprocessor) Name() string { return "enrich_metadata" }

func (p *EnrichMetadataPreprocessor) Apply(event model.RawEvent) (model.RawEvent, error) {
	if event.Fields == nil {
		event.Fields = map[string]interface{}{}
	}
	event.Fields["_ingestion"] = map[string]interface{}{
		"ingested_at": time.Now().Format(time.RFC3339),
		"kind":        event.Kind,
	}
	return event, nil
}

// DuplicateFilter rejects events whose canonicalized field content matches
// one seen within the last `capacity` events, an md5-over-sorted-keys
// digest in place of the original's best-effort module scan.
type DuplicateFilter struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewDuplicateFilter builds a DuplicateFilter remembering up to capacity
// digests.
func NewDuplicateFilter(capacity int) *DuplicateFilter {
	if capacity <= 0 {
		capacity = 1024
	}
	return &DuplicateFilter{seen: map[string]struct{}{}, capacity: capacity}
}

func (f *DuplicateFilter) Name() string { return "duplicate" }

func (f *DuplicateFilter) Accept(event model.RawEvent) bool {
	digest := digestFields(event.Fields)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[digest]; ok {
		return true
	}
	f.seen[digest] = struct{}{}
	f.order = append(f.order, digest)
	if len(f.order) > f.capacity {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.seen, oldest)
	}
	return false
}

func digestFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]interface{}, len(fields))
	for _, k := range keys {
		ordered[k] = fields[k]
	}
	data, _ := json.Marshal(ordered)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// LowQualityFilter rejects events whose field set, after excluding
// bookkeeping keys, falls below MinFieldCount.
type LowQualityFilter struct {
	MinFieldCount int
}

var lowQualityExcludeKeys = map[string]struct{}{
	"timestamp":  {},
	"source":     {},
	"_ingestion": {},
	"metadata":   {},
}

func (f *LowQualityFilter) Name() string { return "low_quality" }

func (f *LowQualityFilter) Accept(event model.RawEvent) bool {
	meaningful := 0
	for k := range event.Fields {
		if _, excluded := lowQualityExcludeKeys[k]; excluded {
			continue
		}
		meaningful++
	}
	return meaningful < f.MinFieldCount
}
