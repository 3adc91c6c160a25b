package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported store drivers.
const (
	StoreDriverPostgres  = "postgres"
	StoreDriverFirestore = "firestore"
)

// Supported identity strategies for content keys.
const (
	IdentityFilename = "filename"
	IdentityContent  = "content"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	DB        DBConfig
	Firestore FirestoreConfig
	S3        S3Config
	Log       LogConfig
	CORS      CORSConfig
	Loader    LoaderConfig
	Extractor ExtractorConfig
	Identity  IdentityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// FirestoreConfig holds Cloud Firestore settings.
type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

// S3Config holds settings for archiving source documents to S3.
type S3Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LlamaParseConfig holds settings for the remote layout-aware parsing service.
type LlamaParseConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TimeoutSecs  int           `mapstructure:"timeout_secs"`
}

// LoaderConfig holds document loading settings.
type LoaderConfig struct {
	StagingDir    string           `mapstructure:"staging_dir"`
	MaxFileSizeMB int64            `mapstructure:"max_file_size_mb"`
	LlamaParse    LlamaParseConfig `mapstructure:"llama_parse"`
}

// MaxFileSizeBytes returns the upload limit in bytes.
func (l *LoaderConfig) MaxFileSizeBytes() int64 {
	return l.MaxFileSizeMB * 1024 * 1024
}

// BackendConfig holds credentials for one model family.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// GeminiConfig holds Vertex AI settings.
type GeminiConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Region    string `mapstructure:"region"`
}

// ExtractorConfig holds language-model backend settings.
type ExtractorConfig struct {
	OpenAI      BackendConfig `mapstructure:"openai"`
	Groq        BackendConfig `mapstructure:"groq"`
	Anthropic   BackendConfig `mapstructure:"anthropic"`
	Gemini      GeminiConfig  `mapstructure:"gemini"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	TimeoutSecs int           `mapstructure:"timeout_secs"`
}

// Timeout returns the per-call backend timeout.
func (e *ExtractorConfig) Timeout() time.Duration {
	if e.TimeoutSecs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(e.TimeoutSecs) * time.Second
}

// requestMargin covers staging, persistence and response encoding on top of
// the remote calls.
const requestMargin = 30 * time.Second

// RequestBudget is the longest a single upload request can legitimately
// take: one remote parse followed by one extraction call.
func (c *Config) RequestBudget() time.Duration {
	parse := time.Duration(c.Loader.LlamaParse.TimeoutSecs) * time.Second
	return parse + c.Extractor.Timeout() + requestMargin
}

// IdentityConfig selects how content keys are derived.
type IdentityConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// Validate checks settings that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverFirestore:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Identity.Strategy {
	case IdentityFilename, IdentityContent:
	default:
		return fmt.Errorf("config: unknown identity strategy %q", c.Identity.Strategy)
	}
	if c.Loader.MaxFileSizeMB <= 0 {
		return fmt.Errorf("config: loader.max_file_size_mb must be positive")
	}
	if c.Store.Driver == StoreDriverFirestore && c.Firestore.ProjectID == "" {
		return fmt.Errorf("config: firestore.project_id is required for the firestore store")
	}
	return nil
}

// Load reads configuration from environment variables with the DOCAI_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "450s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.environment", "development")

	v.SetDefault("store.driver", StoreDriverPostgres)

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "docai")
	v.SetDefault("db.password", "docai_secret")
	v.SetDefault("db.name", "docai")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.collection", "bill_of_lading")

	// S3 defaults
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "docai-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.key_prefix", "documents")
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Loader defaults
	v.SetDefault("loader.staging_dir", "./uploads")
	v.SetDefault("loader.max_file_size_mb", 25)
	v.SetDefault("loader.llama_parse.api_key", "")
	v.SetDefault("loader.llama_parse.base_url", "https://api.cloud.llamaindex.ai")
	v.SetDefault("loader.llama_parse.poll_interval", "2s")
	v.SetDefault("loader.llama_parse.timeout_secs", 300)

	// Extractor defaults
	v.SetDefault("extractor.openai.api_key", "")
	v.SetDefault("extractor.openai.base_url", "")
	v.SetDefault("extractor.groq.api_key", "")
	v.SetDefault("extractor.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("extractor.groq.model", "llama-3.1-70b-versatile")
	v.SetDefault("extractor.anthropic.api_key", "")
	v.SetDefault("extractor.anthropic.base_url", "")
	v.SetDefault("extractor.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("extractor.gemini.project_id", "")
	v.SetDefault("extractor.gemini.region", "us-central1")
	v.SetDefault("extractor.temperature", 0.0)
	v.SetDefault("extractor.max_tokens", 4096)
	v.SetDefault("extractor.timeout_secs", 120)

	v.SetDefault("identity.strategy", IdentityFilename)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                      "DOCAI_SERVER_PORT",
		"server.read_timeout":              "DOCAI_SERVER_READ_TIMEOUT",
		"server.write_timeout":             "DOCAI_SERVER_WRITE_TIMEOUT",
		"server.shutdown_timeout":          "DOCAI_SERVER_SHUTDOWN_TIMEOUT",
		"server.environment":               "DOCAI_SERVER_ENVIRONMENT",
		"store.driver":                     "DOCAI_STORE_DRIVER",
		"db.host":                          "DOCAI_DB_HOST",
		"db.port":                          "DOCAI_DB_PORT",
		"db.user":                          "DOCAI_DB_USER",
		"db.password":                      "DOCAI_DB_PASSWORD",
		"db.name":                          "DOCAI_DB_NAME",
		"db.sslmode":                       "DOCAI_DB_SSLMODE",
		"db.max_open":                      "DOCAI_DB_MAX_OPEN",
		"db.max_idle":                      "DOCAI_DB_MAX_IDLE",
		"firestore.project_id":             "DOCAI_FIRESTORE_PROJECT_ID",
		"firestore.collection":             "DOCAI_FIRESTORE_COLLECTION",
		"s3.enabled":                       "DOCAI_S3_ENABLED",
		"s3.region":                        "DOCAI_S3_REGION",
		"s3.bucket":                        "DOCAI_S3_BUCKET",
		"s3.endpoint":                      "DOCAI_S3_ENDPOINT",
		"s3.access_key":                    "DOCAI_S3_ACCESS_KEY",
		"s3.secret_key":                    "DOCAI_S3_SECRET_KEY",
		"s3.key_prefix":                    "DOCAI_S3_KEY_PREFIX",
		"s3.presign_expiry":                "DOCAI_S3_PRESIGN_EXPIRY",
		"log.level":                        "DOCAI_LOG_LEVEL",
		"log.format":                       "DOCAI_LOG_FORMAT",
		"cors.allowed_origins":             "DOCAI_CORS_ALLOWED_ORIGINS",
		"loader.staging_dir":               "DOCAI_LOADER_STAGING_DIR",
		"loader.max_file_size_mb":          "DOCAI_LOADER_MAX_FILE_SIZE_MB",
		"loader.llama_parse.api_key":       "DOCAI_LOADER_LLAMA_PARSE_API_KEY",
		"loader.llama_parse.base_url":      "DOCAI_LOADER_LLAMA_PARSE_BASE_URL",
		"loader.llama_parse.poll_interval": "DOCAI_LOADER_LLAMA_PARSE_POLL_INTERVAL",
		"loader.llama_parse.timeout_secs":  "DOCAI_LOADER_LLAMA_PARSE_TIMEOUT_SECS",
		"extractor.openai.api_key":         "DOCAI_EXTRACTOR_OPENAI_API_KEY",
		"extractor.openai.base_url":        "DOCAI_EXTRACTOR_OPENAI_BASE_URL",
		"extractor.groq.api_key":           "DOCAI_EXTRACTOR_GROQ_API_KEY",
		"extractor.groq.base_url":          "DOCAI_EXTRACTOR_GROQ_BASE_URL",
		"extractor.groq.model":             "DOCAI_EXTRACTOR_GROQ_MODEL",
		"extractor.anthropic.api_key":      "DOCAI_EXTRACTOR_ANTHROPIC_API_KEY",
		"extractor.anthropic.base_url":     "DOCAI_EXTRACTOR_ANTHROPIC_BASE_URL",
		"extractor.anthropic.model":        "DOCAI_EXTRACTOR_ANTHROPIC_MODEL",
		"extractor.gemini.project_id":      "DOCAI_EXTRACTOR_GEMINI_PROJECT_ID",
		"extractor.gemini.region":          "DOCAI_EXTRACTOR_GEMINI_REGION",
		"extractor.temperature":            "DOCAI_EXTRACTOR_TEMPERATURE",
		"extractor.max_tokens":             "DOCAI_EXTRACTOR_MAX_TOKENS",
		"extractor.timeout_secs":           "DOCAI_EXTRACTOR_TIMEOUT_SECS",
		"identity.strategy":                "DOCAI_IDENTITY_STRATEGY",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if DOCAI_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCAI_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:            serverPort,
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		Environment:     v.GetString("server.environment"),
	}
	cfg.Store = StoreConfig{
		Driver: strings.ToLower(v.GetString("store.driver")),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Firestore = FirestoreConfig{
		ProjectID:  v.GetString("firestore.project_id"),
		Collection: v.GetString("firestore.collection"),
	}
	cfg.S3 = S3Config{
		Enabled:       v.GetBool("s3.enabled"),
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		KeyPrefix:     v.GetString("s3.key_prefix"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}

	cfg.Loader = LoaderConfig{
		StagingDir:    v.GetString("loader.staging_dir"),
		MaxFileSizeMB: v.GetInt64("loader.max_file_size_mb"),
		LlamaParse: LlamaParseConfig{
			APIKey:       v.GetString("loader.llama_parse.api_key"),
			BaseURL:      v.GetString("loader.llama_parse.base_url"),
			PollInterval: v.GetDuration("loader.llama_parse.poll_interval"),
			TimeoutSecs:  v.GetInt("loader.llama_parse.timeout_secs"),
		},
	}

	cfg.Extractor = ExtractorConfig{
		OpenAI: BackendConfig{
			APIKey:  v.GetString("extractor.openai.api_key"),
			BaseURL: v.GetString("extractor.openai.base_url"),
		},
		Groq: BackendConfig{
			APIKey:  v.GetString("extractor.groq.api_key"),
			BaseURL: v.GetString("extractor.groq.base_url"),
			Model:   v.GetString("extractor.groq.model"),
		},
		Anthropic: BackendConfig{
			APIKey:  v.GetString("extractor.anthropic.api_key"),
			BaseURL: v.GetString("extractor.anthropic.base_url"),
			Model:   v.GetString("extractor.anthropic.model"),
		},
		Gemini: GeminiConfig{
			ProjectID: v.GetString("extractor.gemini.project_id"),
			Region:    v.GetString("extractor.gemini.region"),
		},
		Temperature: v.GetFloat64("extractor.temperature"),
		MaxTokens:   v.GetInt("extractor.max_tokens"),
		TimeoutSecs: v.GetInt("extractor.timeout_secs"),
	}

	cfg.Identity = IdentityConfig{
		Strategy: strings.ToLower(v.GetString("identity.strategy")),
	}

	if budget := cfg.RequestBudget(); cfg.Server.WriteTimeout < budget {
		cfg.Server.WriteTimeout = budget
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
