package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/csvanalyst/internal/domain/agent"
)

const (
	DefaultAPIKeyEnv  = "ANTHROPIC_API_KEY"
	DefaultOutputPath = "output/analysis_report.txt"
	DefaultOutputDir  = "output"
)

type Config struct {
	Agent struct {
		Binary         string        `yaml:"binary"`
		APIKeyEnv      string        `yaml:"apiKeyEnv"`
		Model          string        `yaml:"model"`
		MaxTurns       int           `yaml:"maxTurns"`
		PermissionMode string        `yaml:"permissionMode"`
		AllowedTools   []string      `yaml:"allowedTools"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"agent"`

	Output struct {
		// Path dipakai oleh CLI, Dir dipakai oleh server (per tenant/analysis)
		Path string `yaml:"path"`
		Dir  string `yaml:"dir"`
	} `yaml:"output"`

	Server struct {
		Port        int               `yaml:"port"`
		APIKeys     map[string]string `yaml:"apiKeys"`
		RateLimit   int               `yaml:"rateLimit"`
		RateBurst   int               `yaml:"rateBurst"`
		CORSOrigins []string          `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | "" (disabled)
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Default config tanpa file
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load baca file config.yaml. File yang tidak ada berarti pakai default.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.APIKeyEnv == "" {
		c.Agent.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = agent.DefaultMaxTurns
	}
	if c.Agent.PermissionMode == "" {
		c.Agent.PermissionMode = agent.PermissionAcceptEdits
	}
	if len(c.Agent.AllowedTools) == 0 {
		c.Agent.AllowedTools = append([]string(nil), agent.DefaultAllowedTools...)
	}
	if c.Output.Path == "" {
		c.Output.Path = DefaultOutputPath
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "analysis-reports"
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("agent.maxTurns must not be negative")
	}
	return nil
}

// AgentOptions build opsi query dari config. SystemPrompt diisi oleh caller.
func (c *Config) AgentOptions() agent.Options {
	return agent.Options{
		AllowedTools:   append([]string(nil), c.Agent.AllowedTools...),
		PermissionMode: c.Agent.PermissionMode,
		MaxTurns:       c.Agent.MaxTurns,
		Model:          c.Agent.Model,
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// DatabaseEnabled reports whether analyses should be persisted.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Driver != ""
}

// MinioEnabled reports whether reports should be archived.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != ""
}
