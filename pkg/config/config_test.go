package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func TestConfigTOMLOmitsEmptySecrets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Normalize()
	b, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "api_key = ''") {
		t.Fatalf("found blank api_key in TOML:\n%s", s)
	}
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genrelay.toml")
	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:3000" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" || cfg.DeepSeek.Model != "deepseek-chat" {
		t.Fatalf("default models = %q / %q", cfg.Gemini.Model, cfg.DeepSeek.Model)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestLoadParsesFileAndEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genrelay.toml")
	body := `listen_addr = ":9000"

[deepseek]
base_url = "https://file.example/v1/"
api_key = "file-key"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEEPSEEK_API_KEY", "env-key")
	t.Setenv("DEEPSEEK_BASE_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.DeepSeek.BaseURL != "https://file.example/v1" {
		t.Fatalf("base_url = %q, want trailing slash trimmed", cfg.DeepSeek.BaseURL)
	}
	if cfg.DeepSeek.APIKey != "env-key" {
		t.Fatalf("api_key = %q, want env override", cfg.DeepSeek.APIKey)
	}
}

func TestValidateRejectsRelativeBaseURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Ark.BaseURL = "ark.example/api"
	cfg.Normalize()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for relative base_url")
	}
}

func TestValidateRequiresTLSDomain(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.TLS.Enabled = true
	cfg.Normalize()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for tls without domain")
	}
}
