package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models harvestlink.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		JWTSecret   string   `yaml:"jwt_secret"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Session struct {
		Backend       string        `yaml:"backend"`
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		RedisURL      string        `yaml:"redis_url"`
	} `yaml:"session"`
	Oracle struct {
		Timeout   time.Duration `yaml:"timeout"`
		DaysAhead int           `yaml:"days_ahead"`
		MaxBuyers int           `yaml:"max_buyers"`
	} `yaml:"oracle"`
	USSD struct {
		ServiceCode    string `yaml:"service_code"`
		MaxScreenChars int    `yaml:"max_screen_chars"`
	} `yaml:"ussd"`
	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
		Output   string `yaml:"output"`
	} `yaml:"log"`
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Session.Backend {
	case BackendSQLite:
	case BackendRedis:
		if strings.TrimSpace(c.Session.RedisURL) == "" {
			return fmt.Errorf("config.session.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.session.backend must be 'sqlite' or 'redis', got %q", c.Session.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config.session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("config.session.sweep_interval must be positive")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("config.oracle.timeout must be positive")
	}
	if c.Oracle.DaysAhead < 0 {
		return fmt.Errorf("config.oracle.days_ahead must not be negative")
	}
	if c.Oracle.MaxBuyers <= 0 {
		return fmt.Errorf("config.oracle.max_buyers must be positive")
	}
	if c.USSD.MaxScreenChars < 40 {
		return fmt.Errorf("config.ussd.max_screen_chars must be at least 40")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "harvestlink.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with hl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// the document keep their default values.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  cors_origins: ["http://localhost:*", "http://127.0.0.1:*"]

session:
  backend: sqlite
  ttl: 5m
  sweep_interval: 1m
  redis_url: ""

oracle:
  timeout: 3s
  days_ahead: 7
  max_buyers: 3

ussd:
  service_code: "*123#"
  max_screen_chars: 182

log:
  level: info
  encoding: json
  output: stdout
`
