// Package ops loads the engine's JSON runtime configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/internal/account"
	"main/internal/engine"
	"main/internal/eventlog"
	"main/internal/registry"
	"main/internal/shard"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// FileConfig mirrors the JSON config layout. Durations are nanoseconds.
type FileConfig struct {
	Engine    EngineConfig    `json:"engine"`
	Storage   StorageConfig   `json:"storage"`
	Server    ServerConfig    `json:"server"`
	Profiling ProfilingConfig `json:"profiling"`
}

// EngineConfig tunes sharding, mailboxes, and tiering.
type EngineConfig struct {
	ActorShards       int           `json:"actorShards"`
	RegistryShards    int           `json:"registryShards"`
	MailboxSize       int           `json:"mailboxSize"`
	HotCutoffDays     int           `json:"hotCutoffDays"`
	MigrateInterval   time.Duration `json:"migrateInterval"`
	IdleTimeout       time.Duration `json:"idleTimeout"`
	IdleCheckInterval time.Duration `json:"idleCheckInterval"`
	EventLogPath      string        `json:"eventLogPath"`
}

// StorageConfig selects the cold-tier backend.
type StorageConfig struct {
	Backend  string         `json:"backend"`
	FilePath string         `json:"filePath"`
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig describes the postgres cold tier connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// ServerConfig describes the TCP listener.
type ServerConfig struct {
	Bind           string `json:"bind"`
	MaxConnections int    `json:"maxConnections"`
}

// ProfilingConfig enables pyroscope when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `json:"serverAddress"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Engine    engine.Config
	Storage   StorageConfig
	Server    ServerConfig
	Profiling ProfilingConfig
}

const (
	defaultHotCutoffDays  = 90
	defaultIdleTimeout    = time.Hour
	defaultBind           = "0.0.0.0:8080"
	defaultMaxConnections = 1000
)

// Load reads a JSON config file and resolves defaults. An empty path yields
// the pure-default configuration.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg), nil
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Engine.ActorShards <= 0 {
		c.Engine.ActorShards = shard.DefaultShards
	}
	if c.Engine.RegistryShards <= 0 {
		c.Engine.RegistryShards = registry.DefaultShards
	}
	if c.Engine.HotCutoffDays <= 0 {
		c.Engine.HotCutoffDays = defaultHotCutoffDays
	}
	if c.Engine.IdleTimeout == 0 {
		c.Engine.IdleTimeout = defaultIdleTimeout
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.MaxConnections <= 0 {
		c.Server.MaxConnections = defaultMaxConnections
	}
	return c
}

// Validate checks if the configuration is usable.
func (c FileConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	case BackendFile:
		if c.Storage.FilePath == "" {
			return fmt.Errorf("invalid storage config: filePath is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage config: unknown backend %q", c.Storage.Backend)
	}
	if c.Engine.MailboxSize < 0 {
		return fmt.Errorf("invalid engine config: mailboxSize must be >= 0")
	}
	if c.Engine.MigrateInterval < 0 || c.Engine.IdleTimeout < 0 || c.Engine.IdleCheckInterval < 0 {
		return fmt.Errorf("invalid engine config: intervals must be >= 0")
	}
	return nil
}

func resolve(cfg FileConfig) Loaded {
	return Loaded{
		Engine: engine.Config{
			RegistryShards: cfg.Engine.RegistryShards,
			Shard: shard.Config{
				Shards: cfg.Engine.ActorShards,
				Actor: account.Config{
					MailboxSize:       cfg.Engine.MailboxSize,
					HotCutoff:         time.Duration(cfg.Engine.HotCutoffDays) * 24 * time.Hour,
					MigrateInterval:   cfg.Engine.MigrateInterval,
					IdleTimeout:       cfg.Engine.IdleTimeout,
					IdleCheckInterval: cfg.Engine.IdleCheckInterval,
				},
			},
			EventLog: eventlog.Config{Path: cfg.Engine.EventLogPath},
		},
		Storage:   cfg.Storage,
		Server:    cfg.Server,
		Profiling: cfg.Profiling,
	}
}
