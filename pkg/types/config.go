package types

import (
	"path/filepath"
	"time"
)

// HTTPConfig holds shared HTTP settings for the registry fetchers.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "papersearch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Email is sent as the mailto parameter for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// MaxRetries bounds retries on 429 and 5xx responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig locates the SQLite database holding raw bundles, canonical
// records and embeddings.
type StoreConfig struct {
	// DataDir is the base directory for the database and exports.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// DBFile is the database file name inside DataDir.
	DBFile string `json:"db_file" yaml:"db_file" mapstructure:"db_file"`
}

// DBPath returns the full path to the database file.
func (c StoreConfig) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// LexicalConfig holds BM25 parameters.
type LexicalConfig struct {
	K1 float64 `json:"k1" yaml:"k1" mapstructure:"k1"`
	B  float64 `json:"b" yaml:"b" mapstructure:"b"`

	// SynonymsFile optionally replaces the built-in synonym table.
	SynonymsFile string `json:"synonyms_file,omitempty" yaml:"synonyms_file,omitempty" mapstructure:"synonyms_file"`
}

// EmbedProvider selects the embedding collaborator.
type EmbedProvider string

const (
	EmbedHash   EmbedProvider = "hash"
	EmbedOpenAI EmbedProvider = "openai"
)

// EmbedConfig holds settings for the embedding collaborator.
type EmbedConfig struct {
	Provider EmbedProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Host is the base URL of an OpenAI-compatible embedding server.
	Host string `json:"host,omitempty" yaml:"host,omitempty" mapstructure:"host"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey authenticates against hosted servers. Local servers accept "none".
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Dimensions is the vector length the semantic index is built with.
	Dimensions int `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`

	// CacheSize is the number of query embeddings kept in memory.
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// SemanticConfig holds settings for building the semantic index.
type SemanticConfig struct {
	// Workers is the size of the embedding worker pool.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// M and EfSearch tune the neighbour graph used by similar-work lookups.
	M        int `json:"m" yaml:"m" mapstructure:"m"`
	EfSearch int `json:"ef_search" yaml:"ef_search" mapstructure:"ef_search"`
}

// RankerConfig holds the hybrid ranker's fusion settings.
type RankerConfig struct {
	TextWeight     float64 `json:"text_weight" yaml:"text_weight" mapstructure:"text_weight"`
	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight" mapstructure:"semantic_weight"`

	// OverFetch multiplies topK to size the lexical candidate window.
	OverFetch int `json:"over_fetch" yaml:"over_fetch" mapstructure:"over_fetch"`

	// Normalize min-max scales lexical and semantic scores before fusing.
	Normalize bool `json:"normalize" yaml:"normalize" mapstructure:"normalize"`
}

// Config groups every component configuration.
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Lexical  LexicalConfig  `json:"lexical" yaml:"lexical" mapstructure:"lexical"`
	Embed    EmbedConfig    `json:"embed" yaml:"embed" mapstructure:"embed"`
	Semantic SemanticConfig `json:"semantic" yaml:"semantic" mapstructure:"semantic"`
	Ranker   RankerConfig   `json:"ranker" yaml:"ranker" mapstructure:"ranker"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" mapstructure:"http"`
}

// DefaultLexicalConfig returns the standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.5, B: 0.75}
}

// DefaultRankerConfig returns 0.6/0.4 text/semantic weights with a 5x
// over-fetch and normalisation enabled.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{TextWeight: 0.6, SemanticWeight: 0.4, OverFetch: 5, Normalize: true}
}

// DefaultConfig returns a configuration that works offline.
func DefaultConfig() Config {
	return Config{
		Store:   StoreConfig{DataDir: "data", DBFile: "papersearch.db"},
		Lexical: DefaultLexicalConfig(),
		Embed: EmbedConfig{
			Provider:   EmbedHash,
			Model:      "hash-256",
			Dimensions: 256,
			CacheSize:  1024,
		},
		Semantic: SemanticConfig{Workers: 4, M: 16, EfSearch: 20},
		Ranker:   DefaultRankerConfig(),
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			UserAgent:  "papersearch/0.1",
			MaxRetries: 5,
		},
	}
}
