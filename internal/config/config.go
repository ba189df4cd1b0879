package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "BPSTAGE_CONFIG"

// Config holds process settings. Values come from defaults, then the optional YAML file,
// then the environment (including a .env file).
type Config struct {
	Port     string      `yaml:"port"`
	GinMode  string      `yaml:"ginMode"`
	LogLevel string      `yaml:"logLevel"`
	Model    ModelConfig `yaml:"model"`
	Database DBConfig    `yaml:"database"`
}

// ModelConfig describes where the classifier comes from.
type ModelConfig struct {
	Source       string        `yaml:"source"`
	Path         string        `yaml:"path"`
	Name         string        `yaml:"name"`
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DBConfig enables the optional Postgres pool.
type DBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

func defaultConfig() Config {
	return Config{
		Port:     "8080",
		GinMode:  "release",
		LogLevel: "info",
		Model: ModelConfig{
			Source:  "file",
			Path:    "model/forest.json",
			Name:    "bp-stage",
			Timeout: 10 * time.Second,
		},
	}
}

// Load resolves the configuration and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.GinMode, "GIN_MODE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Model.Source, "MODEL_SOURCE")
	setString(&c.Model.Path, "MODEL_PATH")
	setString(&c.Model.Name, "MODEL_NAME")
	setString(&c.Model.InferenceURL, "ML_INFERENCE_URL")
	setString(&c.Model.APIKey, "ML_API_KEY")
	setString(&c.Database.URL, "DATABASE_URL")

	if v := os.Getenv("ENABLE_DB"); v != "" {
		c.Database.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ML_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ML_TIMEOUT: %w", err)
		}
		c.Model.Timeout = d
	}
	return nil
}

func (c *Config) validate() error {
	c.Model.Source = strings.ToLower(c.Model.Source)
	switch c.Model.Source {
	case "file":
		if c.Model.Path == "" {
			return errors.New("MODEL_PATH is required when MODEL_SOURCE=file")
		}
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when MODEL_SOURCE=postgres")
		}
		c.Database.Enabled = true
	case "remote":
		if c.Model.InferenceURL == "" {
			return errors.New("ML_INFERENCE_URL is required when MODEL_SOURCE=remote")
		}
	default:
		return fmt.Errorf("unknown MODEL_SOURCE %q", c.Model.Source)
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return errors.New("DATABASE_URL is required when ENABLE_DB=true")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
