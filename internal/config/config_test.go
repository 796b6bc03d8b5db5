package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Index:     IndexConfig{Redis: RedisConfig{Addrs: []string{"localhost:6379"}}},
		Embedding: EmbeddingConfig{APIKey: "test-key"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr string
	}{
		{DriverRedis, "index.redis.addrs is required"},
		{DriverValkey, "index.redis.addrs is required"},
		{DriverPostgres, "index.postgres.dsn is required"},
		{DriverQdrant, "index.qdrant.host is required"},
		{"milvus", `index.driver must be one of redis, valkey, postgres, qdrant, got "milvus"`},
	}
	for _, tc := range tests {
		t.Run(tc.driver, func(t *testing.T) {
			cfg := validConfig()
			cfg.Index = IndexConfig{Driver: tc.driver}

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tc.wantErr {
				t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.APIKey = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "ollama"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `"ollama"`) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Index.Driver != DriverRedis {
		t.Errorf("expected driver redis, got %q", cfg.Index.Driver)
	}
	if cfg.Index.Redis.KeyPrefix != "kb:" {
		t.Errorf("expected KeyPrefix='kb:', got %q", cfg.Index.Redis.KeyPrefix)
	}
	if cfg.Index.Postgres.Schema != "vecs" {
		t.Errorf("expected schema vecs, got %q", cfg.Index.Postgres.Schema)
	}
	if cfg.Index.Qdrant.Port != 6334 {
		t.Errorf("expected qdrant port 6334, got %d", cfg.Index.Qdrant.Port)
	}
	if cfg.Embedding.Provider != ProviderOpenAI || cfg.Embedding.Model != "embed-english-v3.0" {
		t.Errorf("unexpected embedding defaults %+v", cfg.Embedding)
	}
	if cfg.Vector.Dimensions != 1024 {
		t.Errorf("expected Dimensions=1024, got %d", cfg.Vector.Dimensions)
	}
	if cfg.Vector.Collection != "embeddings" {
		t.Errorf("expected collection embeddings, got %q", cfg.Vector.Collection)
	}
}

func TestApplyDefaults_Fastembed(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{Provider: ProviderFastembed}}
	cfg.ApplyDefaults()

	if cfg.Embedding.Model != "BAAI/bge-small-en-v1.5" {
		t.Errorf("unexpected model %q", cfg.Embedding.Model)
	}
	if cfg.Vector.Dimensions != 384 {
		t.Errorf("expected Dimensions=384, got %d", cfg.Vector.Dimensions)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:  IndexConfig{Driver: DriverQdrant, Redis: RedisConfig{KeyPrefix: "custom:", HNSWM: 32}},
		Vector: VectorConfig{Dimensions: 768, Collection: "docs"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.Driver != DriverQdrant {
		t.Errorf("expected driver qdrant, got %q", cfg.Index.Driver)
	}
	if cfg.Index.Redis.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.Redis.HNSWM)
	}
	if cfg.Index.Redis.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Index.Redis.KeyPrefix)
	}
	if cfg.Vector.Dimensions != 768 || cfg.Vector.Collection != "docs" {
		t.Errorf("unexpected vector config %+v", cfg.Vector)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("KB_TEST_API_KEY", "from-env")
	t.Setenv("KB_TEST_DSN", "")
	path := writeConfig(t, `
http:
  port: 9090
index:
  driver: postgres
  postgres:
    dsn: ${KB_TEST_DSN:-postgres://localhost/kb}
embedding:
  api_key: ${KB_TEST_API_KEY}
vector:
  dimensions: 1024
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Embedding.APIKey != "from-env" {
		t.Errorf("api_key = %q, want from-env", cfg.Embedding.APIKey)
	}
	if cfg.Index.Postgres.DSN != "postgres://localhost/kb" {
		t.Errorf("dsn = %q, want default", cfg.Index.Postgres.DSN)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 8080\n")

	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_LocalConfigParses(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "k")
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load(local): %v", err)
	}
	if cfg.Vector.Collection != "embeddings" {
		t.Errorf("collection = %q", cfg.Vector.Collection)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("KB_DOTENV_TEST=loaded\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("KB_DOTENV_TEST", "")
	os.Unsetenv("KB_DOTENV_TEST")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("KB_DOTENV_TEST"); got != "loaded" {
		t.Errorf("KB_DOTENV_TEST = %q, want loaded", got)
	}
}
