// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"MUVERA_HOST" yaml:"host"`
	Port int    `envconfig:"MUVERA_PORT" yaml:"port"`

	// Engines
	Vespa  VespaConfig  `yaml:"vespa"`
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Evaluation run
	Eval EvalConfig `yaml:"eval"`

	// Query embeddings
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Local keyword baseline
	Keyword KeywordConfig `yaml:"keyword"`

	// Client-side fusion strategy
	Fusion FusionConfig `yaml:"fusion"`

	// Progress events
	Bus BusConfig `yaml:"bus"`

	// Report output
	Report ReportConfig `yaml:"report"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// VespaConfig holds Vespa connection settings.
type VespaConfig struct {
	URL          string        `envconfig:"MUVERA_VESPA_URL" yaml:"url"`
	Timeout      time.Duration `envconfig:"MUVERA_VESPA_TIMEOUT" yaml:"timeout"`
	SingleSchema string        `envconfig:"MUVERA_VESPA_SINGLE_SCHEMA" yaml:"single_schema"`
	MultiSchema  string        `envconfig:"MUVERA_VESPA_MULTI_SCHEMA" yaml:"multi_schema"`
	RankProfile  string        `envconfig:"MUVERA_VESPA_RANK_PROFILE" yaml:"rank_profile"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL         string        `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey      string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	Collection  string        `envconfig:"MUVERA_QDRANT_COLLECTION" yaml:"collection"`
	DenseVector string        `envconfig:"MUVERA_QDRANT_DENSE_VECTOR" yaml:"dense_vector"`
	MultiVector string        `envconfig:"MUVERA_QDRANT_MULTI_VECTOR" yaml:"multi_vector"`
	Timeout     time.Duration `envconfig:"MUVERA_QDRANT_TIMEOUT" yaml:"timeout"`
}

// EvalConfig holds evaluation run settings.
type EvalConfig struct {
	QueriesPath        string        `envconfig:"MUVERA_QUERIES" yaml:"queries"`
	JudgmentsPath      string        `envconfig:"MUVERA_JUDGMENTS" yaml:"judgments"`
	Strategies         []string      `envconfig:"MUVERA_STRATEGIES" yaml:"strategies"`
	Ks                 []int         `envconfig:"MUVERA_KS" yaml:"ks"`
	MaxResults         int           `envconfig:"MUVERA_MAX_RESULTS" yaml:"max_results"`
	MaxQueries         int           `envconfig:"MUVERA_MAX_QUERIES" yaml:"max_queries"` // 0 = all
	CallTimeout        time.Duration `envconfig:"MUVERA_CALL_TIMEOUT" yaml:"call_timeout"`
	RunTimeout         time.Duration `envconfig:"MUVERA_RUN_TIMEOUT" yaml:"run_timeout"` // 0 = none
	Workers            int           `envconfig:"MUVERA_WORKERS" yaml:"workers"`
	RateLimit          float64       `envconfig:"MUVERA_ENGINE_RATE_LIMIT" yaml:"rate_limit"` // calls/s, 0 = disabled
	RateBurst          int           `envconfig:"MUVERA_ENGINE_RATE_BURST" yaml:"rate_burst"`
	RelevanceThreshold int           `envconfig:"MUVERA_RELEVANCE_THRESHOLD" yaml:"relevance_threshold"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Source    string `envconfig:"MUVERA_EMBEDDING_SOURCE" yaml:"source"` // hash or precomputed
	Path      string `envconfig:"MUVERA_EMBEDDINGS" yaml:"path"`
	Dim       int    `envconfig:"MUVERA_EMBED_DIM" yaml:"dim"`
	CacheType string `envconfig:"MUVERA_CACHE_TYPE" yaml:"cache_type"` // none, memory or redis
	CacheSize int    `envconfig:"MUVERA_CACHE_SIZE" yaml:"cache_size"`
	CacheTTL  int    `envconfig:"MUVERA_CACHE_TTL" yaml:"cache_ttl"` // seconds, 0 = no expiry
	RedisURL  string `envconfig:"MUVERA_REDIS_URL" yaml:"redis_url"`
}

// KeywordConfig holds settings for the in-process keyword index.
type KeywordConfig struct {
	PassagesPath string `envconfig:"MUVERA_PASSAGES" yaml:"passages"`
}

// FusionConfig holds settings for the client-side fusion strategy.
type FusionConfig struct {
	Semantic       string  `envconfig:"MUVERA_FUSION_SEMANTIC" yaml:"semantic"`
	Keyword        string  `envconfig:"MUVERA_FUSION_KEYWORD" yaml:"keyword"`
	Method         string  `envconfig:"MUVERA_FUSION_METHOD" yaml:"method"` // weighted or rrf
	SemanticWeight float64 `envconfig:"MUVERA_FUSION_SEMANTIC_WEIGHT" yaml:"semantic_weight"`
	KeywordWeight  float64 `envconfig:"MUVERA_FUSION_KEYWORD_WEIGHT" yaml:"keyword_weight"`
	RRFK           int     `envconfig:"MUVERA_FUSION_RRF_K" yaml:"rrf_k"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"MUVERA_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"MUVERA_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"MUVERA_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"MUVERA_EVENT_LOG" yaml:"event_log"` // JSONL file, empty = disabled
}

// ReportConfig holds report output settings.
type ReportConfig struct {
	Output   string `envconfig:"MUVERA_OUTPUT" yaml:"output"`
	Format   string `envconfig:"MUVERA_FORMAT" yaml:"format"` // empty = infer from extension
	PerQuery bool   `envconfig:"MUVERA_PER_QUERY" yaml:"per_query"`
	TopHits  int    `envconfig:"MUVERA_TOP_HITS" yaml:"top_hits"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"MUVERA_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"MUVERA_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit float64 `envconfig:"MUVERA_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	RateBurst int     `envconfig:"MUVERA_RATE_BURST" yaml:"rate_burst"`
}

// Load loads configuration from an optional config file, an optional .env
// file and environment variables, in increasing priority.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// .env never overrides variables already set in the process.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090

	cfg.Vespa = VespaConfig{
		URL:          "http://localhost:8080",
		Timeout:      10 * time.Second,
		SingleSchema: "single_vector_document",
		MultiSchema:  "multi_vector_document",
		RankProfile:  "default",
	}

	cfg.Qdrant = QdrantConfig{
		URL:         "http://localhost:6333",
		Collection:  "muvera_documents",
		DenseVector: "dense",
		MultiVector: "colbert",
		Timeout:     10 * time.Second,
	}

	cfg.Eval = EvalConfig{
		QueriesPath:        "data/queries.jsonl",
		JudgmentsPath:      "data/qrels.jsonl",
		Strategies:         []string{"single_vector", "multi_vector", "text_only", "hybrid"},
		Ks:                 []int{1, 5, 10},
		MaxResults:         10,
		CallTimeout:        10 * time.Second,
		Workers:            1,
		RateBurst:          1,
		RelevanceThreshold: 1,
	}

	cfg.Embedding = EmbeddingConfig{
		Source:    "hash",
		Dim:       128,
		CacheType: "memory",
		CacheSize: 10000,
		RedisURL:  "redis://localhost:6379",
	}

	cfg.Keyword = KeywordConfig{
		PassagesPath: "data/passages.jsonl",
	}

	cfg.Fusion = FusionConfig{
		Semantic:       "single_vector",
		Keyword:        "text_only",
		Method:         "weighted",
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		RRFK:           60,
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "muvera-eval",
	}

	cfg.Report = ReportConfig{
		Output:   "evaluation_results.json",
		PerQuery: true,
		TopHits:  5,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
		RateBurst: 10,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Vespa.Timeout <= 0 {
		errs = append(errs, "vespa timeout must be positive")
	}
	if c.Vespa.SingleSchema == "" || c.Vespa.MultiSchema == "" {
		errs = append(errs, "vespa schemas are required")
	}
	if c.Qdrant.Collection == "" {
		errs = append(errs, "qdrant collection is required")
	}

	// Eval validation
	if len(c.Eval.Strategies) == 0 {
		errs = append(errs, "at least one strategy is required")
	}
	if len(c.Eval.Ks) == 0 {
		errs = append(errs, "at least one cutoff k is required")
	}
	for _, k := range c.Eval.Ks {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("cutoff k must be positive, got %d", k))
		}
	}
	if maxK := c.MaxK(); c.Eval.MaxResults < maxK {
		errs = append(errs, fmt.Sprintf("max_results (%d) must be at least the largest k (%d)", c.Eval.MaxResults, maxK))
	}
	if c.Eval.MaxQueries < 0 {
		errs = append(errs, "max_queries must not be negative")
	}
	if c.Eval.CallTimeout <= 0 {
		errs = append(errs, "call_timeout must be positive")
	}
	if c.Eval.RunTimeout < 0 {
		errs = append(errs, "run_timeout must not be negative")
	}
	if c.Eval.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}
	if c.Eval.RateLimit < 0 {
		errs = append(errs, "engine rate_limit must not be negative")
	}
	if c.Eval.RelevanceThreshold < 1 {
		errs = append(errs, "relevance_threshold must be at least 1")
	}

	// Embedding validation
	validSources := map[string]bool{"hash": true, "precomputed": true}
	if !validSources[c.Embedding.Source] {
		errs = append(errs, fmt.Sprintf("invalid embedding source: %s (must be hash or precomputed)", c.Embedding.Source))
	}
	if c.Embedding.Source == "precomputed" && c.Embedding.Path == "" {
		errs = append(errs, "embedding path is required for precomputed source")
	}
	if c.Embedding.Dim < 1 {
		errs = append(errs, "embed dim must be positive")
	}
	validCacheTypes := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCacheTypes[c.Embedding.CacheType] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be none, memory, or redis)", c.Embedding.CacheType))
	}

	// Fusion validation
	validMethods := map[string]bool{"weighted": true, "rrf": true}
	if !validMethods[c.Fusion.Method] {
		errs = append(errs, fmt.Sprintf("invalid fusion method: %s (must be weighted or rrf)", c.Fusion.Method))
	}
	if c.Fusion.SemanticWeight < 0 || c.Fusion.SemanticWeight > 1 {
		errs = append(errs, "fusion semantic_weight must be between 0 and 1")
	}
	if c.Fusion.KeywordWeight < 0 || c.Fusion.KeywordWeight > 1 {
		errs = append(errs, "fusion keyword_weight must be between 0 and 1")
	}
	if c.Fusion.RRFK < 1 {
		errs = append(errs, "fusion rrf_k must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}

	// Report validation
	validReportFormats := map[string]bool{"": true, "json": true, "yaml": true, "yml": true, "markdown": true, "md": true, "csv": true}
	if !validReportFormats[c.Report.Format] {
		errs = append(errs, fmt.Sprintf("invalid report format: %s (must be json, yaml, markdown, or csv)", c.Report.Format))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxK returns the largest configured cutoff.
func (c *Config) MaxK() int {
	maxK := 0
	for _, k := range c.Eval.Ks {
		if k > maxK {
			maxK = k
		}
	}
	return maxK
}
