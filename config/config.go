// Package config loads the service configuration once at startup from
// defaults, an optional YAML file and environment variables (in that order
// of precedence, last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragbridge/types"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Loader    LoaderConfig    `yaml:"loader" json:"loader"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" json:"addr" validate:"required"`
	UploadLimitMB  int           `yaml:"upload_limit_mb" json:"upload_limit_mb" validate:"min=1"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

type ChunkingConfig struct {
	Mode     string `yaml:"mode" json:"mode" validate:"oneof=token character word"`
	Size     int    `yaml:"size" json:"size" validate:"min=1"`
	Overlap  int    `yaml:"overlap" json:"overlap" validate:"min=0"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

type EmbeddingConfig struct {
	Provider    string        `yaml:"provider" json:"provider" validate:"oneof=openai ollama"`
	Dimension   int           `yaml:"dimension" json:"dimension" validate:"min=1"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" validate:"min=1"`
	RPS         float64       `yaml:"rps" json:"rps" validate:"min=0"`
	OllamaURL   string        `yaml:"ollama_url" json:"ollama_url" validate:"required_if=Provider ollama"`
	OllamaModel string        `yaml:"ollama_model" json:"ollama_model" validate:"required_if=Provider ollama"`
	OpenAIURL   string        `yaml:"openai_url" json:"openai_url" validate:"required_if=Provider openai"`
	OpenAIKey   string        `yaml:"openai_api_key" json:"openai_api_key"`
	OpenAIModel string        `yaml:"openai_model" json:"openai_model"`
}

type LLMConfig struct {
	Provider        string        `yaml:"provider" json:"provider" validate:"oneof=openai ollama"`
	URL             string        `yaml:"url" json:"url" validate:"required_if=Provider ollama"`
	Model           string        `yaml:"model" json:"model" validate:"required_if=Provider ollama"`
	OpenAIURL       string        `yaml:"openai_url" json:"openai_url" validate:"required_if=Provider openai"`
	OpenAIKey       string        `yaml:"openai_api_key" json:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model" json:"openai_model"`
	Temperature     float64       `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	Preamble        string        `yaml:"preamble" json:"preamble"`
	AnswerCharLimit int           `yaml:"answer_char_limit" json:"answer_char_limit" validate:"min=0"`
}

type StoreConfig struct {
	Type          string         `yaml:"type" json:"type" validate:"oneof=qdrant postgres sqlite memory"`
	Distance      types.Distance `yaml:"distance" json:"distance" validate:"oneof=Cosine Dot Euclid"`
	BatchSize     int            `yaml:"batch_size" json:"batch_size" validate:"min=1"`
	QdrantURL     string         `yaml:"qdrant_url" json:"qdrant_url" validate:"required_if=Type qdrant"`
	QdrantAPIKey  string         `yaml:"qdrant_api_key" json:"qdrant_api_key"`
	QdrantTimeout time.Duration  `yaml:"qdrant_timeout" json:"qdrant_timeout"`
	PGHost        string         `yaml:"pg_host" json:"pg_host" validate:"required_if=Type postgres"`
	PGPort        int            `yaml:"pg_port" json:"pg_port"`
	PGUser        string         `yaml:"pg_user" json:"pg_user"`
	PGPass        string         `yaml:"pg_pass" json:"pg_pass"`
	PGDBName      string         `yaml:"pg_db_name" json:"pg_db_name" validate:"required_if=Type postgres"`
	SQLitePath    string         `yaml:"sqlite_path" json:"sqlite_path" validate:"required_if=Type sqlite"`
}

type RetrievalConfig struct {
	SearchTopK      int `yaml:"search_top_k" json:"search_top_k" validate:"min=1"`
	AnswerTopK      int `yaml:"answer_top_k" json:"answer_top_k" validate:"min=1"`
	MaxContextChars int `yaml:"max_context_chars" json:"max_context_chars" validate:"min=0"`
}

type LoaderConfig struct {
	SourceDir      string        `yaml:"source_dir" json:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir" json:"archive_dir"`
	BadDir         string        `yaml:"bad_dir" json:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time" json:"monitoring_time"`
	Collection     string        `yaml:"collection" json:"collection"`
	Pattern        string        `yaml:"pattern" json:"pattern"`
	CropTop        float64       `yaml:"crop_top" json:"crop_top" validate:"min=0"`
	CropBottom     float64       `yaml:"crop_bottom" json:"crop_bottom" validate:"min=0"`
}

// PostgresDSN builds the connection string the same way the loader and the
// server always did.
func (s StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		s.PGHost, s.PGPort, s.PGUser, s.PGPass, s.PGDBName)
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":3000", UploadLimitMB: 50, RequestTimeout: 10 * time.Minute},
		Log:    LogConfig{Level: "info", Format: "text"},
		Chunking: ChunkingConfig{
			Mode:     "token",
			Size:     200,
			Overlap:  50,
			Encoding: "cl100k_base",
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Dimension:   1536,
			Timeout:     30 * time.Second,
			Concurrency: 1,
			OpenAIURL:   "https://api.openai.com/v1",
			OpenAIModel: "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider:        "openai",
			OpenAIURL:       "https://api.openai.com/v1",
			OpenAIModel:     "gpt-4o-mini",
			Temperature:     0.7,
			Timeout:         2 * time.Minute,
			AnswerCharLimit: 450,
		},
		Store: StoreConfig{
			Type:          "qdrant",
			Distance:      types.DistanceCosine,
			BatchSize:     64,
			QdrantURL:     "http://localhost:6333",
			QdrantTimeout: 5 * time.Minute,
			PGPort:        5432,
			SQLitePath:    "ragbridge.db",
		},
		Retrieval: RetrievalConfig{SearchTopK: 3, AnswerTopK: 2, MaxContextChars: 20000},
		Loader: LoaderConfig{
			SourceDir:      "data/source",
			ArchiveDir:     "data/archive",
			BadDir:         "data/bad",
			MonitoringTime: 10 * time.Second,
			Collection:     "documents_collection",
			Pattern:        "**/*.{pdf,txt,md}",
		},
	}
}

// Load reads .env (if present), the YAML file named by RAG_CONFIG_FILE (if
// set) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.Getenv("RAG_CONFIG_FILE"), os.LookupEnv)
}

// LoadFrom is Load without the .env side effect; lookup stands in for
// os.LookupEnv.
func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	e := envReader{lookup: lookup}
	e.apply(&cfg)
	if e.err != nil {
		return nil, e.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return types.NewConfigError(fmt.Errorf("invalid configuration: %w", err))
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return types.NewConfigError(fmt.Errorf("%w: CHUNK_SIZE=%d CHUNK_OVERLAP=%d",
			types.ErrInvalidChunkParams, c.Chunking.Size, c.Chunking.Overlap))
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) apply(c *Config) {
	e.str("SERVER_ADDR", &c.Server.Addr)
	e.integer("UPLOAD_LIMIT_MB", &c.Server.UploadLimitMB)
	e.duration("REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	e.str("CHUNK_MODE", &c.Chunking.Mode)
	e.integer("CHUNK_SIZE", &c.Chunking.Size)
	e.integer("CHUNK_OVERLAP", &c.Chunking.Overlap)
	e.str("TOKEN_ENCODING", &c.Chunking.Encoding)

	e.str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.integer("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	e.duration("EMBEDDING_TIMEOUT", &c.Embedding.Timeout)
	e.integer("EMBED_CONCURRENCY", &c.Embedding.Concurrency)
	e.float("EMBED_RPS", &c.Embedding.RPS)
	e.str("OLLAMA_EMBEDDING_URL", &c.Embedding.OllamaURL)
	e.str("OLLAMA_EMBEDDING_MODEL", &c.Embedding.OllamaModel)
	e.str("OPENAI_URL", &c.Embedding.OpenAIURL)
	e.str("OPENAI_API_KEY", &c.Embedding.OpenAIKey)
	e.str("OPENAI_EMBEDDING_MODEL", &c.Embedding.OpenAIModel)

	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("LLM_URL", &c.LLM.URL)
	e.str("LLM_MODEL", &c.LLM.Model)
	e.str("OPENAI_URL", &c.LLM.OpenAIURL)
	e.str("OPENAI_API_KEY", &c.LLM.OpenAIKey)
	e.str("OPENAI_CHAT_MODEL", &c.LLM.OpenAIModel)
	e.float("LLM_TEMPERATURE", &c.LLM.Temperature)
	e.duration("LLM_TIMEOUT", &c.LLM.Timeout)
	e.str("PROMPT_PREAMBLE", &c.LLM.Preamble)
	e.integer("ANSWER_CHAR_LIMIT", &c.LLM.AnswerCharLimit)

	var distance string
	if e.str("VECTOR_DISTANCE", &distance) {
		c.Store.Distance = types.Distance(distance)
	}
	e.str("VECTOR_STORE", &c.Store.Type)
	e.integer("UPSERT_BATCH_SIZE", &c.Store.BatchSize)
	e.str("QDRANT_URL", &c.Store.QdrantURL)
	e.str("QDRANT_API_KEY", &c.Store.QdrantAPIKey)
	e.duration("QDRANT_TIMEOUT", &c.Store.QdrantTimeout)
	e.str("PG_HOST", &c.Store.PGHost)
	e.integer("PG_PORT", &c.Store.PGPort)
	e.str("PG_USER", &c.Store.PGUser)
	e.str("PG_PASS", &c.Store.PGPass)
	e.str("PG_DB_NAME", &c.Store.PGDBName)
	e.str("SQLITE_PATH", &c.Store.SQLitePath)

	e.integer("SEARCH_TOP_K", &c.Retrieval.SearchTopK)
	e.integer("ANSWER_TOP_K", &c.Retrieval.AnswerTopK)
	e.integer("MAX_CONTEXT_CHARS", &c.Retrieval.MaxContextChars)

	e.str("LOADER_SOURCE_DIR", &c.Loader.SourceDir)
	e.str("LOADER_ARCHIVE_DIR", &c.Loader.ArchiveDir)
	e.str("LOADER_BAD_DIR", &c.Loader.BadDir)
	e.duration("LOADER_MONITORING_TIME", &c.Loader.MonitoringTime)
	e.str("LOADER_COLLECTION", &c.Loader.Collection)
	e.str("LOADER_PATTERN", &c.Loader.Pattern)
	e.float("LOADER_CROP_TOP", &c.Loader.CropTop)
	e.float("LOADER_CROP_BOTTOM", &c.Loader.CropBottom)
}

func (e *envReader) str(key string, dst *string) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return false
	}
	*dst = v
	return true
}

func (e *envReader) integer(key string, dst *int) {
	var v string
	if !e.str(key, &v) {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	var v string
	if !e.str(key, &v) {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = f
}

// duration accepts Go durations ("90s", "5m") or a bare number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	var v string
	if !e.str(key, &v) {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = types.NewConfigError(fmt.Errorf("%s: %w", key, err))
	}
}
