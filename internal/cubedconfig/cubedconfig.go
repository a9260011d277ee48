// Package cubedconfig loads the process-wide settings the CLI and
// library entry points need at startup: schema directory, backend
// DSN, cache backend/TTL, and log level. Layering (defaults, then
// cubed.yaml, then CUBED_* env vars) follows github.com/spf13/viper's
// own precedence rules, the same library the teacher's
// internal/labelmutex package reads per-project config.yaml with.
package cubedconfig

import (
	"errors"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/cubedlayer/cubed/internal/cubederr"
)

// Config is the resolved set of global settings one cubed process runs
// with.
type Config struct {
	SchemaDir    string        `toml:"schema_dir"`
	Backend      string        `toml:"backend"`       // "mysql" or "dolt"
	DSN          string        `toml:"dsn"`
	CacheBackend string        `toml:"cache_backend"` // "memory" or "redis"
	CacheAddress string        `toml:"cache_address"`
	CacheTTL     time.Duration `toml:"cache_ttl"`
	LogLevel     string        `toml:"log_level"`
}

// Load reads path (a cubed.yaml) layered under defaults and CUBED_*
// environment variables. A missing file is not an error — defaults and
// env vars alone are a valid configuration for tests and quick starts.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CUBED")
	v.AutomaticEnv()

	v.SetDefault("schema_dir", "./schema")
	v.SetDefault("backend", "mysql")
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, cubederr.Configuration("reading %q: %v", path, err)
		}
	}

	return &Config{
		SchemaDir:    v.GetString("schema_dir"),
		Backend:      v.GetString("backend"),
		DSN:          v.GetString("dsn"),
		CacheBackend: v.GetString("cache_backend"),
		CacheAddress: v.GetString("cache_address"),
		CacheTTL:     time.Duration(v.GetInt("cache_ttl_seconds")) * time.Second,
		LogLevel:     v.GetString("log_level"),
	}, nil
}

// WriteSnapshot dumps the resolved configuration to a TOML file at
// path, an audit trail of what a process actually ran with — the same
// profile-snapshot idea as internal/config/decision.go's settings
// structs, rendered through the teacher's other config format
// (BurntSushi/toml, used elsewhere for formula and hook files).
func WriteSnapshot(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return cubederr.Configuration("creating snapshot %q: %v", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return cubederr.Configuration("writing snapshot %q: %v", path, err)
	}
	return nil
}
