// Package config loads the runtime's tunable parameters from defaults, an
// optional YAML file, and environment variable overrides, following the
// same default-then-env-override convention as the teacher's
// DefaultDgraphConfig.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec §6.
type Config struct {
	LearningRate    float64 `yaml:"learning_rate"`
	ForgettingRate  float64 `yaml:"forgetting_rate"`

	TargetSparsity         float64 `yaml:"target_sparsity"`
	MaxActiveMemories      int     `yaml:"max_active_memories"`
	InitialGlobalThreshold float64 `yaml:"initial_global_threshold"`

	FeedbackBatchSize  int     `yaml:"feedback_batch_size"`
	FeedbackIntervalS  float64 `yaml:"feedback_interval_s"`
	FeedbackQueueMax   int     `yaml:"feedback_queue_max"`

	MemoryCacheMax int `yaml:"memory_cache_max"`
	HistoryBound   int `yaml:"history_bound"`
	HistoryTrimTo  int `yaml:"history_trim_to"`

	VectorDimension     int     `yaml:"vector_dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	IngestionTimeoutS float64 `yaml:"ingestion_timeout_s"`

	// Ambient knobs not named numerically by the spec but required to run.
	Debug          bool   `yaml:"debug"`
	SQLitePath     string `yaml:"sqlite_path"`
	PatternCacheMax int   `yaml:"pattern_cache_max"`

	// Remote/graph persistence backends, all optional.
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	DgraphEndpoint string `yaml:"dgraph_endpoint"`
}

// Default returns the configuration with every value from spec §6's default
// column, plus the ambient defaults this implementation needs to run.
func Default() *Config {
	return &Config{
		LearningRate:   0.01,
		ForgettingRate: 0.001,

		TargetSparsity:         0.05,
		MaxActiveMemories:      10,
		InitialGlobalThreshold: 0.1,

		FeedbackBatchSize: 10,
		FeedbackIntervalS: 1.0,
		FeedbackQueueMax:  1000,

		MemoryCacheMax: 1_000_000,
		HistoryBound:   10_000,
		HistoryTrimTo:  5_000,

		VectorDimension:     384,
		SimilarityThreshold: 0.7,

		IngestionTimeoutS: 30,

		Debug:           false,
		SQLitePath:      "cogrun.db",
		PatternCacheMax: 100_000,
	}
}

// Load builds a Config from defaults, then an optional YAML file at path
// (ignored if path is empty or the file does not exist), then environment
// variable overrides. Mirrors the teacher's DefaultDgraphConfig pattern of
// defaulting first and letting os.Getenv win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envFloat("COGRUN_LEARNING_RATE", &cfg.LearningRate)
	envFloat("COGRUN_FORGETTING_RATE", &cfg.ForgettingRate)
	envFloat("COGRUN_TARGET_SPARSITY", &cfg.TargetSparsity)
	envInt("COGRUN_MAX_ACTIVE_MEMORIES", &cfg.MaxActiveMemories)
	envFloat("COGRUN_INITIAL_GLOBAL_THRESHOLD", &cfg.InitialGlobalThreshold)
	envInt("COGRUN_FEEDBACK_BATCH_SIZE", &cfg.FeedbackBatchSize)
	envFloat("COGRUN_FEEDBACK_INTERVAL_S", &cfg.FeedbackIntervalS)
	envInt("COGRUN_FEEDBACK_QUEUE_MAX", &cfg.FeedbackQueueMax)
	envInt("COGRUN_MEMORY_CACHE_MAX", &cfg.MemoryCacheMax)
	envInt("COGRUN_HISTORY_BOUND", &cfg.HistoryBound)
	envInt("COGRUN_HISTORY_TRIM_TO", &cfg.HistoryTrimTo)
	envInt("COGRUN_VECTOR_DIMENSION", &cfg.VectorDimension)
	envFloat("COGRUN_SIMILARITY_THRESHOLD", &cfg.SimilarityThreshold)
	envFloat("COGRUN_INGESTION_TIMEOUT_S", &cfg.IngestionTimeoutS)
	envBool("COGRUN_DEBUG", &cfg.Debug)
	envString("COGRUN_SQLITE_PATH", &cfg.SQLitePath)
	envInt("COGRUN_PATTERN_CACHE_MAX", &cfg.PatternCacheMax)
	envString("COGRUN_SUPABASE_URL", &cfg.SupabaseURL)
	envString("COGRUN_SUPABASE_KEY", &cfg.SupabaseKey)
	envString("COGRUN_DGRAPH_ENDPOINT", &cfg.DgraphEndpoint)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
