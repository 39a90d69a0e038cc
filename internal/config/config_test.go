package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envFrom(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnvAndDefaults(t *testing.T) {
	cfg := newConfig()
	err := cfg.applyEnv(envFrom(map[string]string{
		"PORT":                    "9090",
		"JWT_SECRET":              "s3cret",
		"JWT_EXPIRES_IN":          "7d",
		"RATE_LIMIT_WINDOW_MS":    "1000",
		"RATE_LIMIT_MAX_REQUESTS": "2",
		"MAX_UPLOAD_MB":           "10",
		"OPENAI_API_KEY":          "sk-test",
		"REDIS_ADDR":              "cache.local:6380",
		"CORS_ORIGINS":            "http://a.test, http://b.test",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.BasicConfig.ServerAddress != ":9090" {
		t.Fatalf("address = %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Auth.TokenTTL.Std() != 7*24*time.Hour {
		t.Fatalf("ttl = %v", cfg.Auth.TokenTTL.Std())
	}
	if cfg.RateLimit.Window.Std() != time.Second || cfg.RateLimit.MaxRequests != 2 {
		t.Fatalf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.BasicConfig.MaxUploadBytes != 10<<20 {
		t.Fatalf("max upload = %d", cfg.BasicConfig.MaxUploadBytes)
	}
	if cfg.Redis.Host != "cache.local" || cfg.Redis.Port != 6380 || !cfg.Redis.Enabled() {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if len(cfg.BasicConfig.AllowedOrigins) != 2 || cfg.BasicConfig.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins = %v", cfg.BasicConfig.AllowedOrigins)
	}
	if cfg.Transcription.Model != "whisper-1" || cfg.Extraction.Model != "gpt-4o-mini" {
		t.Fatalf("models = %q / %q", cfg.Transcription.Model, cfg.Extraction.Model)
	}
	if cfg.Batch.ChunkSize != 3 || cfg.Batch.MaxItems != 10 || cfg.Batch.ChunkDelay.Std() != time.Second {
		t.Fatalf("batch = %+v", cfg.Batch)
	}
	if cfg.Store.Driver != "memory" || cfg.Auth.BcryptCost != 12 {
		t.Fatalf("store/cost = %q/%d", cfg.Store.Driver, cfg.Auth.BcryptCost)
	}
}

func TestValidateRequiresSecretsAndKeys(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"JWT_SECRET", "transcription provider", "extraction provider"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := &Config{
		Auth:       AuthConfig{JWTSecret: "x"},
		Extraction: PipelineConfig{Provider: "mystery"},
		Providers:  map[string]ProviderConfig{"openai": {APIKey: "k"}},
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mystery") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := &Config{}
	err := cfg.applyEnv(envFrom(map[string]string{"RATE_LIMIT_MAX_REQUESTS": "many"}))
	if err == nil || !strings.Contains(err.Error(), "RATE_LIMIT_MAX_REQUESTS") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	for _, key := range []string{"JWT_EXPIRES_IN", "BCRYPT_COST", "EXTRACTION_PROVIDER", "EXTRACTION_MODEL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"server_address": ":7000"},
		"auth": {"jwt_secret": "file-secret", "token_ttl": "2h", "bcrypt_cost": 4},
		"extraction": {"provider": "claude"},
		"providers": {
			"openai": {"api_key": "sk-file"},
			"claude": {"api_key": "ant-file", "model": "claude-custom"}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.TokenTTL.Std() != 2*time.Hour || cfg.Auth.BcryptCost != 4 {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if cfg.Extraction.Model != "claude-custom" {
		t.Fatalf("extraction model = %q", cfg.Extraction.Model)
	}
}

func TestChunkDelayZeroDisablesPacing(t *testing.T) {
	cfg := newConfig()
	if err := cfg.applyEnv(envFrom(map[string]string{"BATCH_CHUNK_DELAY_MS": "0"})); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	cfg.applyDefaults()
	if cfg.Batch.ChunkDelay != 0 {
		t.Fatalf("chunk delay = %v, want 0", cfg.Batch.ChunkDelay.Std())
	}

	cfg = newConfig()
	if err := cfg.applyEnv(envFrom(map[string]string{"BATCH_CHUNK_DELAY_MS": "-5"})); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	cfg.applyDefaults()
	if cfg.Batch.ChunkDelay != 0 {
		t.Fatalf("negative chunk delay = %v, want 0", cfg.Batch.ChunkDelay.Std())
	}
}

func TestLoadKeepsZeroChunkDelayFromFile(t *testing.T) {
	for _, key := range []string{"BATCH_CHUNK_DELAY_MS", "TRANSCRIPTION_PROVIDER", "EXTRACTION_PROVIDER"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"auth": {"jwt_secret": "file-secret"},
		"batch": {"chunk_delay": 0},
		"providers": {"openai": {"api_key": "sk-file"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.ChunkDelay != 0 {
		t.Fatalf("chunk delay = %v, want 0", cfg.Batch.ChunkDelay.Std())
	}

	path = filepath.Join(dir, "default.json")
	if err := os.WriteFile(path, []byte(`{"auth": {"jwt_secret": "s"}, "providers": {"openai": {"api_key": "k"}}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if cfg, err = Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch.ChunkDelay.Std() != time.Second {
		t.Fatalf("default chunk delay = %v, want 1s", cfg.Batch.ChunkDelay.Std())
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"24h": 24 * time.Hour,
		"1d":  24 * time.Hour,
		"90":  90 * time.Second,
		"15m": 15 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Fatalf("ParseDuration(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDuration("soon"); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}
