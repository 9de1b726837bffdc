// Package config loads server configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/graph"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config is the full server configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Thresholds graph.Thresholds `yaml:"thresholds"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" validate:"oneof=sqlite badger neo4j memory"`
	Path    string      `yaml:"path" validate:"required_if=Backend sqlite,required_if=Backend badger"`
	Neo4j   Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Port            string        `yaml:"port" validate:"required,numeric"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "knowledge_graph.db",
			Neo4j: Neo4jConfig{
				URI:      "bolt://localhost:7687",
				Username: "neo4j",
				Password: "password",
				Database: "neo4j",
			},
		},
		HTTP: HTTPConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Thresholds: graph.DefaultThresholds(),
	}
}

// Load starts from Default, applies the YAML file at path (if path is set
// and the file exists), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	return core.Validate(c)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	cfg.Store.Backend = getEnv("KG_STORE", cfg.Store.Backend)
	cfg.Store.Path = getEnv("KG_DB_PATH", cfg.Store.Path)
	cfg.Store.Neo4j.URI = getEnv("NEO4J_URI", cfg.Store.Neo4j.URI)
	cfg.Store.Neo4j.Username = getEnv("NEO4J_USER", cfg.Store.Neo4j.Username)
	cfg.Store.Neo4j.Password = getEnv("NEO4J_PASSWORD", cfg.Store.Neo4j.Password)
	cfg.HTTP.Port = getEnv("PORT", cfg.HTTP.Port)
	cfg.Log.Level = getEnv("KG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("KG_LOG_FORMAT", cfg.Log.Format)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
