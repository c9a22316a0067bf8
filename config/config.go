package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"

	"github.com/smallnest/stategraph/graph"
	"github.com/smallnest/stategraph/log"
	"github.com/smallnest/stategraph/store"
	"github.com/smallnest/stategraph/store/file"
	"github.com/smallnest/stategraph/store/memory"
	"github.com/smallnest/stategraph/store/postgres"
	"github.com/smallnest/stategraph/store/redis"
	"github.com/smallnest/stategraph/store/sqlite"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Store backend names.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSqlite   = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the engine configuration file.
type Config struct {
	// Name is added to the log prefix of the engine.
	Name           string         `yaml:"name"`
	MaxSteps       int            `yaml:"max_steps"`
	InterruptAfter []string       `yaml:"interrupt_after"`
	LogLevel       string         `yaml:"log_level"`
	Metadata       map[string]any `yaml:"metadata"`
	Store          StoreConfig    `yaml:"store"`
}

// StoreConfig selects and configures the checkpoint backend.
type StoreConfig struct {
	Type string `yaml:"type"`

	// file and sqlite
	Path string `yaml:"path"`

	// redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"`

	// postgres
	ConnString string `yaml:"conn_string"`

	// postgres and sqlite
	Table string `yaml:"table"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxSteps: graph.DefaultMaxSteps,
		LogLevel: "info",
		Store:    StoreConfig{Type: StoreMemory},
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the configuration schema and decodes it.
// Environment variables written as $VAR or ${VAR} are expanded first.
// Settings missing from data keep their Default values.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}

	doc, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate(doc); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.MaxSteps == 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Store.Type == "" {
		c.Store.Type = def.Store.Type
	}
}

func validate(doc []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Logger returns a logger writing to stderr at the configured level.
func (c *Config) Logger() (*log.GologLogger, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	logger := log.NewDefaultLogger(level)
	if c.Name != "" {
		return logger.Named(c.Name), nil
	}
	return logger, nil
}

// RunOptions returns the run options the configuration describes. The checkpoint
// store is not included; open it with OpenStore.
func (c *Config) RunOptions() ([]graph.Option, error) {
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}

	opts := []graph.Option{graph.WithLogger(logger)}
	if c.MaxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps(c.MaxSteps))
	}
	if len(c.InterruptAfter) > 0 {
		opts = append(opts, graph.WithInterruptAfter(c.InterruptAfter...))
	}
	if len(c.Metadata) > 0 {
		opts = append(opts, graph.WithMetadata(c.Metadata))
	}
	return opts, nil
}

// OpenStore opens the configured checkpoint backend. Release it with CloseStore.
func (c *Config) OpenStore(ctx context.Context) (store.CheckpointStore, error) {
	sc := c.Store
	switch sc.Type {
	case "", StoreMemory:
		return memory.NewMemoryCheckpointStore(), nil

	case StoreFile:
		s, err := file.NewFileCheckpointStore(sc.Path)
		if err != nil {
			return nil, err
		}
		return s, nil

	case StoreSqlite:
		s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
			Path:      sc.Path,
			TableName: sc.Table,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case StoreRedis:
		var ttl time.Duration
		if sc.TTL != "" {
			d, err := time.ParseDuration(sc.TTL)
			if err != nil {
				return nil, fmt.Errorf("%w: store.ttl: %v", ErrInvalid, err)
			}
			ttl = d
		}
		s := redis.NewRedisCheckpointStore(redis.RedisOptions{
			Addr:     sc.Addr,
			Password: sc.Password,
			DB:       sc.DB,
			Prefix:   sc.Prefix,
			TTL:      ttl,
		})
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil

	case StorePostgres:
		s, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
			ConnString: sc.ConnString,
			TableName:  sc.Table,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown store type %q", ErrInvalid, sc.Type)
	}
}

// CloseStore releases the connections held by s, if any.
func CloseStore(s store.CheckpointStore) error {
	switch c := s.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
