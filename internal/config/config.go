package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tordrt/schemamap/internal/db"
	"github.com/tordrt/schemamap/internal/formatter"
)

// DefaultPath is the configuration file read when no --config flag is given
const DefaultPath = "config.json"

// Config is the configuration of one run. The file may be JSON or YAML.
type Config struct {
	Database Database `yaml:"database"`
	Output   Output   `yaml:"output"`
	Options  Options  `yaml:"options"`

	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`

	// Observability.
	OTelEnabled bool `yaml:"otel_enabled"` // enable OpenTelemetry tracing and metrics
}

// Database holds connection settings. Timeout is in seconds.
type Database struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // file path for SQLite
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	Timeout  int    `yaml:"timeout"`
}

// Output selects the serialization and the artifact names
type Output struct {
	Format            string `yaml:"format"`
	Directory         string `yaml:"directory"`
	StructureFile     string `yaml:"structure_file"`
	RelationshipsFile string `yaml:"relationships_file"`
	StatsFile         string `yaml:"stats_file"`
}

// Options holds analysis options
type Options struct {
	IgnoredTables []string `yaml:"ignored_tables"`
}

// Overrides holds CLI flag values that override the file and environment.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	Format      *string
	OutputDir   *string
	Schema      *string
	LogLevel    *string
	Ignore      []string // appended to the configured list
	OTelEnabled bool
}

// Load builds a Config from the file at path (skipped when path is empty),
// then environment variables, then CLI overrides, and validates the result.
func Load(path string, overrides Overrides) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	applyOverrides(cfg, overrides)

	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding the
// process environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		Database: Database{
			Timeout: 60,
		},
		Output: Output{
			Format:            string(formatter.FormatJSON),
			Directory:         ".",
			StructureFile:     formatter.DefaultStructureFile,
			RelationshipsFile: formatter.DefaultRelationshipsFile,
			StatsFile:         formatter.DefaultStatsFile,
		},
		LogLevelName: "info",
	}
}

// decode parses JSON or YAML (JSON is a subset of YAML) and rejects unknown keys
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"SCHEMAMAP_DB_TYPE", &cfg.Database.Type},
		{"SCHEMAMAP_DB_HOST", &cfg.Database.Host},
		{"SCHEMAMAP_DB_NAME", &cfg.Database.Database},
		{"SCHEMAMAP_DB_USER", &cfg.Database.User},
		{"SCHEMAMAP_DB_PASSWORD", &cfg.Database.Password},
		{"SCHEMAMAP_DB_SCHEMA", &cfg.Database.Schema},
		{"SCHEMAMAP_OUTPUT_FORMAT", &cfg.Output.Format},
		{"SCHEMAMAP_OUTPUT_DIR", &cfg.Output.Directory},
		{"LOG_LEVEL", &cfg.LogLevelName},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("SCHEMAMAP_DB_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCHEMAMAP_DB_PORT value %q: must be an integer", v)
		}
		cfg.Database.Port = n
	}

	if v := os.Getenv("SCHEMAMAP_DB_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid SCHEMAMAP_DB_TIMEOUT value %q: must be a positive number of seconds", v)
		}
		cfg.Database.Timeout = n
	}

	if v := os.Getenv("SCHEMAMAP_IGNORED_TABLES"); v != "" {
		cfg.Options.IgnoredTables = append(cfg.Options.IgnoredTables, splitList(v)...)
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) {
	if o.Format != nil {
		cfg.Output.Format = *o.Format
	}
	if o.OutputDir != nil {
		cfg.Output.Directory = *o.OutputDir
	}
	if o.Schema != nil {
		cfg.Database.Schema = *o.Schema
	}
	if o.LogLevel != nil {
		cfg.LogLevelName = *o.LogLevel
	}
	cfg.Options.IgnoredTables = append(cfg.Options.IgnoredTables, o.Ignore...)
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.Database.Type == "" {
		return fmt.Errorf("database type is required (set database.type or SCHEMAMAP_DB_TYPE)")
	}
	dialect, err := db.ParseDialect(cfg.Database.Type)
	if err != nil {
		return err
	}

	if dialect == db.DialectSQLite {
		if cfg.Database.Database == "" {
			return fmt.Errorf("database.database must name the SQLite file")
		}
	} else if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required (set database.host or SCHEMAMAP_DB_HOST)")
	}

	if cfg.Database.Port < 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("invalid database port %d: must be between 1 and 65535", cfg.Database.Port)
	}
	if cfg.Database.Timeout <= 0 {
		return fmt.Errorf("invalid database timeout %d: must be a positive number of seconds", cfg.Database.Timeout)
	}

	return nil
}

// ConnConfig returns the connection settings for db.Open
func (d Database) ConnConfig() db.ConnConfig {
	return db.ConnConfig{
		Type:     d.Type,
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
		Schema:   d.Schema,
		Timeout:  time.Duration(d.Timeout) * time.Second,
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitList parses a comma separated flag value, dropping blanks
func SplitList(v string) []string {
	return splitList(v)
}
