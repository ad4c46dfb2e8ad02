package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskmaster.yml.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Worker WorkerConfig `yaml:"worker"`
	Server ServerConfig `yaml:"server"`
}

// LLMConfig holds the default model endpoint plus optional per-role overrides.
type LLMConfig struct {
	Default Endpoint            `yaml:"default"`
	Roles   map[string]Endpoint `yaml:"roles"`
}

// Endpoint describes one logical model role (task processor, secretary,
// organizer, prioritizer). Empty fields fall back to the default endpoint.
type Endpoint struct {
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WorkerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	StaleClaimMins  int `yaml:"stale_claim_minutes"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	BasePath   string `yaml:"base_path"`
	AuthSecret string `yaml:"auth_secret"`
}

// Role resolves the endpoint for a logical role, falling back to the
// default endpoint for any unset field.
func (c *Config) Role(name string) Endpoint {
	ep := c.LLM.Default
	role, ok := c.LLM.Roles[name]
	if !ok {
		return ep
	}
	if role.Model != "" {
		ep.Model = role.Model
	}
	if role.BaseURL != "" {
		ep.BaseURL = role.BaseURL
	}
	if role.APIKey != "" {
		ep.APIKey = role.APIKey
	}
	if role.TimeoutSeconds > 0 {
		ep.TimeoutSeconds = role.TimeoutSeconds
	}
	return ep
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.LLM.Default.Model == "" {
		return fmt.Errorf("config.llm.default.model is required")
	}
	if c.LLM.Default.BaseURL == "" {
		return fmt.Errorf("config.llm.default.base_url is required")
	}
	if c.LLM.Default.TimeoutSeconds < 0 {
		return fmt.Errorf("config.llm.default.timeout_seconds must be >= 0")
	}
	for name, role := range c.LLM.Roles {
		if name == "" {
			return fmt.Errorf("config.llm.roles contains empty role name")
		}
		if role.TimeoutSeconds < 0 {
			return fmt.Errorf("role %s timeout_seconds must be >= 0", name)
		}
	}
	if c.Worker.IntervalSeconds < 0 {
		return fmt.Errorf("config.worker.interval_seconds must be >= 0")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskmaster.yml")
}

// Load reads and validates config from workspace, seeding defaults for any
// section the file omits.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Default: Endpoint{
				Model:          "gpt-oss-20b-assistant:latest",
				BaseURL:        "http://localhost:11434",
				TimeoutSeconds: 120,
			},
		},
		Worker: WorkerConfig{
			IntervalSeconds: 120,
			StaleClaimMins:  10,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8080",
			BasePath: "/api",
		},
	}
}

// GenerateDefault returns default config YAML for `tm config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `llm:
  default:
    model: gpt-oss-20b-assistant:latest
    base_url: http://localhost:11434
    timeout_seconds: 120

  # Optional per-role overrides; unset fields inherit the default endpoint.
  roles:
    secretary:
      model: qwen2.5:7b
    organizer:
      model: granite-code:8b
    prioritizer:
      model: mistral:7b-instruct

worker:
  interval_seconds: 120
  stale_claim_minutes: 10

server:
  addr: 127.0.0.1:8080
  base_path: /api
  # auth_secret: set to require JWT bearer auth on the API
`
