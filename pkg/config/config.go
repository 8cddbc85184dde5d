package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const defaultConfigFileName = "genrelay.toml"

type GeminiConfig struct {
	APIKey string `toml:"api_key,omitempty" json:"api_key,omitempty"`
	Model  string `toml:"model" json:"model"`
}

type DeepSeekConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`
	APIKey  string `toml:"api_key,omitempty" json:"api_key,omitempty"`
	Model   string `toml:"model" json:"model"`
}

type ArkConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`
	APIKey  string `toml:"api_key,omitempty" json:"api_key,omitempty"`
}

type MastraConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`
	Agent   string `toml:"agent" json:"agent"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"`
	Email      string `toml:"email"`
	CacheDir   string `toml:"cache_dir"`
}

type Config struct {
	ListenAddr string         `toml:"listen_addr"`
	Gemini     GeminiConfig   `toml:"gemini"`
	DeepSeek   DeepSeekConfig `toml:"deepseek"`
	Ark        ArkConfig      `toml:"ark"`
	Mastra     MastraConfig   `toml:"mastra"`
	TLS        TLSConfig      `toml:"tls"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "genrelay", defaultConfigFileName)
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "genrelay", "tls-autocert")
}

func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:3000",
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		DeepSeek: DeepSeekConfig{
			BaseURL: "https://api.deepseek.com",
			Model:   "deepseek-chat",
		},
		Ark: ArkConfig{
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		},
		Mastra: MastraConfig{
			BaseURL: "http://localhost:4111",
			Agent:   "weatherAgent",
		},
		TLS: TLSConfig{
			Enabled:    false,
			ListenAddr: ":443",
			CacheDir:   DefaultTLSCacheDir(),
		},
	}
}

// LoadOrCreate reads the TOML config at path, writing the defaults first if
// the file does not exist, then layers environment overrides on top.
func LoadOrCreate(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads an existing config without creating one.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadOrCreate(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, v); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse toml: %w", err)
	}
	return nil
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := marshalTOML(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// ApplyEnv layers process environment overrides over file values. Empty
// variables are ignored.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"GEMINI_MODEL", &c.Gemini.Model},
		{"DEEPSEEK_BASE_URL", &c.DeepSeek.BaseURL},
		{"DEEPSEEK_API_KEY", &c.DeepSeek.APIKey},
		{"DEEPSEEK_MODEL", &c.DeepSeek.Model},
		{"ARK_BASE_URL", &c.Ark.BaseURL},
		{"ARK_API_KEY", &c.Ark.APIKey},
		{"MASTRA_BASE_URL", &c.Mastra.BaseURL},
		{"MASTRA_AGENT", &c.Mastra.Agent},
		{"GENRELAY_LISTEN_ADDR", &c.ListenAddr},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:3000"
	}
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	c.DeepSeek.BaseURL = trimBaseURL(c.DeepSeek.BaseURL, "https://api.deepseek.com")
	c.DeepSeek.APIKey = strings.TrimSpace(c.DeepSeek.APIKey)
	c.DeepSeek.Model = strings.TrimSpace(c.DeepSeek.Model)
	if c.DeepSeek.Model == "" {
		c.DeepSeek.Model = "deepseek-chat"
	}
	c.Ark.BaseURL = trimBaseURL(c.Ark.BaseURL, "https://ark.cn-beijing.volces.com/api/v3")
	c.Ark.APIKey = strings.TrimSpace(c.Ark.APIKey)
	c.Mastra.BaseURL = trimBaseURL(c.Mastra.BaseURL, "http://localhost:4111")
	c.Mastra.Agent = strings.TrimSpace(c.Mastra.Agent)
	if c.Mastra.Agent == "" {
		c.Mastra.Agent = "weatherAgent"
	}
	c.TLS.ListenAddr = strings.TrimSpace(c.TLS.ListenAddr)
	if c.TLS.ListenAddr == "" {
		c.TLS.ListenAddr = ":443"
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
}

func (c *Config) Validate() error {
	for name, base := range map[string]string{
		"deepseek": c.DeepSeek.BaseURL,
		"ark":      c.Ark.BaseURL,
		"mastra":   c.Mastra.BaseURL,
	} {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s base_url %q is not an absolute URL", name, base)
		}
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return errors.New("tls enabled but no domain configured")
	}
	return nil
}

func trimBaseURL(s, fallback string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if s == "" {
		return fallback
	}
	return s
}
