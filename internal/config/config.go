package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Auth        AuthConfig                `json:"auth"`
	RateLimit   RateLimitConfig           `json:"rate_limit"`
	Redis       RedisConfig               `json:"redis"`
	Store       StoreConfig               `json:"store"`
	Batch       BatchConfig               `json:"batch"`
	Workers     WorkerConfig              `json:"workers"`
	Providers   map[string]ProviderConfig `json:"providers"`

	Transcription PipelineConfig `json:"transcription"`
	Extraction    PipelineConfig `json:"extraction"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// PipelineConfig selects the provider used by one stage of the pipeline.
type PipelineConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// RequestsPerMinute caps local calls to the provider; 0 means unlimited.
	RequestsPerMinute int `json:"requests_per_minute"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address"`
	Mode           string   `json:"mode"`
	LogLevel       string   `json:"log_level"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
}

type AuthConfig struct {
	JWTSecret  string   `json:"jwt_secret"`
	TokenTTL   Duration `json:"token_ttl"`
	BcryptCost int      `json:"bcrypt_cost"`
}

type RateLimitConfig struct {
	Window      Duration `json:"window"`
	MaxRequests int      `json:"max_requests"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type BatchConfig struct {
	MaxItems   int      `json:"max_items"`
	ChunkSize  int      `json:"chunk_size"`
	ChunkDelay Duration `json:"chunk_delay"`
}

type WorkerConfig struct {
	MinWorkers  int      `json:"min_workers"`
	MaxWorkers  int      `json:"max_workers"`
	QueueSize   int      `json:"queue_size"`
	IdleTimeout Duration `json:"idle_timeout"`
}

const (
	DefaultPort           = "8080"
	DefaultTokenTTL       = 24 * time.Hour
	DefaultBcryptCost     = 12
	DefaultMaxUploadBytes = 50 << 20
	DefaultRateWindow     = 60 * time.Second
	DefaultRateMax        = 5
	DefaultBatchMaxItems  = 10
	DefaultBatchChunkSize = 3
	DefaultBatchDelay     = time.Second
)

// Load reads configuration from the optional JSON file at path, overlays the
// process environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := newConfig()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		file, err := os.Open(absPath)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", absPath, err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newConfig seeds the settings where an explicit zero is meaningful, so
// later layers can set them to zero without the default coming back.
func newConfig() *Config {
	return &Config{
		Batch: BatchConfig{ChunkDelay: Duration(DefaultBatchDelay)},
	}
}

type lookupFunc func(string) (string, bool)

func (cfg *Config) applyEnv(lookup lookupFunc) error {
	get := func(key string) string {
		if v, ok := lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}
	var errs []error
	setInt := func(key string, dst *int) {
		if v := get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setMillis := func(key string, dst *Duration) {
		if v := get(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = Duration(time.Duration(n) * time.Millisecond)
		}
	}
	setDuration := func(key string, dst *Duration) {
		if v := get(key); v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	if v := get("PORT"); v != "" {
		cfg.BasicConfig.ServerAddress = ":" + strings.TrimPrefix(v, ":")
	}
	if v := get("GIN_MODE"); v != "" {
		cfg.BasicConfig.Mode = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.BasicConfig.LogLevel = v
	}
	if v := get("CORS_ORIGINS"); v != "" {
		cfg.BasicConfig.AllowedOrigins = splitList(v)
	}
	if v := get("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err))
		} else {
			cfg.BasicConfig.MaxUploadBytes = mb << 20
		}
	}
	if v := get("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse MAX_FILE_SIZE: %w", err))
		} else {
			cfg.BasicConfig.MaxUploadBytes = n
		}
	}

	if v := get("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	setDuration("JWT_EXPIRES_IN", &cfg.Auth.TokenTTL)
	setInt("BCRYPT_COST", &cfg.Auth.BcryptCost)

	setMillis("RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.Window)
	setInt("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)

	if v := get("REDIS_ADDR"); v != "" {
		host, port, err := splitHostPort(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse REDIS_ADDR: %w", err))
		} else {
			cfg.Redis.Host, cfg.Redis.Port = host, port
		}
	}
	if v := get("REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}
	if v := get("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	setInt("REDIS_DB", &cfg.Redis.DB)

	if v := get("USER_STORE"); v != "" {
		cfg.Store.Driver = v
	}
	if v := get("DATABASE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	setInt("BATCH_MAX_ITEMS", &cfg.Batch.MaxItems)
	setInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)
	setMillis("BATCH_CHUNK_DELAY_MS", &cfg.Batch.ChunkDelay)

	setInt("WORKER_MIN", &cfg.Workers.MinWorkers)
	setInt("WORKER_MAX", &cfg.Workers.MaxWorkers)
	setInt("WORKER_QUEUE_SIZE", &cfg.Workers.QueueSize)
	setDuration("WORKER_IDLE_TIMEOUT", &cfg.Workers.IdleTimeout)

	if v := get("TRANSCRIPTION_PROVIDER"); v != "" {
		cfg.Transcription.Provider = strings.ToLower(v)
	}
	if v := get("TRANSCRIPTION_MODEL"); v != "" {
		cfg.Transcription.Model = v
	}
	if v := get("EXTRACTION_PROVIDER"); v != "" {
		cfg.Extraction.Provider = strings.ToLower(v)
	}
	if v := get("EXTRACTION_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}
	setInt("EXTRACTION_RPM", &cfg.Extraction.RequestsPerMinute)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for name, keys := range providerEnv {
		p := cfg.Providers[name]
		if v := get(keys.apiKey); v != "" {
			p.APIKey = v
		}
		if v := get(keys.baseURL); v != "" {
			p.BaseURL = v
		}
		cfg.Providers[name] = p
	}

	return errors.Join(errs...)
}

var providerEnv = map[string]struct{ apiKey, baseURL string }{
	"openai": {"OPENAI_API_KEY", "OPENAI_BASE_URL"},
	"claude": {"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	"gemini": {"GEMINI_API_KEY", "GEMINI_BASE_URL"},
}

func (cfg *Config) applyDefaults() {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":" + DefaultPort
	}
	if b.MaxUploadBytes <= 0 {
		b.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = Duration(DefaultTokenTTL)
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = DefaultBcryptCost
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = Duration(DefaultRateWindow)
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = DefaultRateMax
	}
	if cfg.Redis.Enabled() && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Batch.MaxItems <= 0 {
		cfg.Batch.MaxItems = DefaultBatchMaxItems
	}
	if cfg.Batch.ChunkSize <= 0 {
		cfg.Batch.ChunkSize = DefaultBatchChunkSize
	}
	if cfg.Batch.ChunkDelay < 0 {
		cfg.Batch.ChunkDelay = 0
	}
	w := &cfg.Workers
	if w.MinWorkers <= 0 {
		w.MinWorkers = cfg.Batch.ChunkSize
	}
	if w.MaxWorkers < w.MinWorkers {
		w.MaxWorkers = 4 * w.MinWorkers
	}
	if w.QueueSize <= 0 {
		w.QueueSize = 64
	}
	if w.IdleTimeout <= 0 {
		w.IdleTimeout = Duration(time.Minute)
	}
	if cfg.Transcription.Provider == "" {
		cfg.Transcription.Provider = "openai"
	}
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "openai"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = defaultModel("transcription", cfg.Transcription.Provider, cfg.Providers)
	}
	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = defaultModel("extraction", cfg.Extraction.Provider, cfg.Providers)
	}
}

func defaultModel(stage, provider string, providers map[string]ProviderConfig) string {
	switch {
	case stage == "transcription" && provider == "openai":
		return "whisper-1"
	case stage == "transcription" && provider == "gemini":
		return "gemini-2.0-flash"
	}
	if p, ok := providers[provider]; ok && p.Model != "" {
		return p.Model
	}
	switch provider {
	case "claude":
		return "claude-3-5-haiku-latest"
	case "gemini":
		return "gemini-2.0-flash"
	default:
		return "gpt-4o-mini"
	}
}

var (
	transcriptionProviders = map[string]bool{"openai": true, "gemini": true}
	extractionProviders    = map[string]bool{"openai": true, "claude": true, "gemini": true}
)

// Validate reports configuration that must stop the process at startup.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be configured"))
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range", cfg.Auth.BcryptCost))
	}
	if !transcriptionProviders[cfg.Transcription.Provider] {
		errs = append(errs, fmt.Errorf("unsupported transcription provider %q", cfg.Transcription.Provider))
	} else if cfg.Providers[cfg.Transcription.Provider].APIKey == "" {
		errs = append(errs, fmt.Errorf("api key for transcription provider %q must be configured", cfg.Transcription.Provider))
	}
	if !extractionProviders[cfg.Extraction.Provider] {
		errs = append(errs, fmt.Errorf("unsupported extraction provider %q", cfg.Extraction.Provider))
	} else if cfg.Providers[cfg.Extraction.Provider].APIKey == "" {
		errs = append(errs, fmt.Errorf("api key for extraction provider %q must be configured", cfg.Extraction.Provider))
	}
	switch cfg.Store.Driver {
	case "memory", "sqlite", "sqlite3", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported user store %q", cfg.Store.Driver))
	}
	if cfg.Store.Driver == "mysql" && cfg.Store.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be configured for mysql"))
	}
	return errors.Join(errs...)
}

// Provider returns the credentials configured for name.
func (cfg *Config) Provider(name string) ProviderConfig {
	return cfg.Providers[name]
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 0, nil
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return addr[:idx], port, nil
}
