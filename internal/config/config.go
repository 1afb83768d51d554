// Package config loads babil settings from a YAML file, BABIL_* environment
// variables and built-in defaults, in that order of precedence after flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "babil"
	configFileType = "yaml"
	envPrefix      = "BABIL"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Audio engines.
const (
	EngineEspeak = "espeak"
	EngineTone   = "tone"
	EngineNone   = "none"
)

var (
	ErrBackendUnknown   = errors.New("unknown storage backend")
	ErrEngineUnknown    = errors.New("unknown audio engine")
	ErrSessionKeyShort  = errors.New("server.session_key must be at least 32 characters")
	ErrWorkersInvalid   = errors.New("audio.workers must be positive")
	ErrLogFormatUnknown = errors.New("unknown log format")
)

type Server struct {
	Addr       string `mapstructure:"addr"`
	SessionKey string `mapstructure:"session_key"`
}

type Storage struct {
	Backend   string `mapstructure:"backend"`
	DSN       string `mapstructure:"dsn"`
	BadgerDir string `mapstructure:"badger_dir"`
}

type Audio struct {
	Dir     string        `mapstructure:"dir"`
	Engine  string        `mapstructure:"engine"`
	Binary  string        `mapstructure:"binary"`
	Voice   string        `mapstructure:"voice"`
	Async   bool          `mapstructure:"async"`
	Workers int           `mapstructure:"workers"`
	Queue   int           `mapstructure:"queue"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Identity struct {
	HashTokens bool `mapstructure:"hash_tokens"`
}

// Limit caps a list view.
type Limit struct {
	Limit int `mapstructure:"limit"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full application configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Storage  Storage  `mapstructure:"storage"`
	Audio    Audio    `mapstructure:"audio"`
	Identity Identity `mapstructure:"identity"`
	Feed     Limit    `mapstructure:"feed"`
	Profile  Limit    `mapstructure:"profile"`
	Log      Log      `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.session_key", "")
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.dsn", "babil.db")
	v.SetDefault("storage.badger_dir", "babil-data")
	v.SetDefault("audio.dir", "audio")
	v.SetDefault("audio.engine", EngineEspeak)
	v.SetDefault("audio.binary", "espeak")
	v.SetDefault("audio.voice", "fr")
	v.SetDefault("audio.async", true)
	v.SetDefault("audio.workers", 2)
	v.SetDefault("audio.queue", 64)
	v.SetDefault("audio.timeout", 30*time.Second)
	v.SetDefault("identity.hash_tokens", false)
	v.SetDefault("feed.limit", 10)
	v.SetDefault("profile.limit", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. With an empty path it looks for babil.yaml
// in the working directory and /etc/babil; a missing file there is not an
// error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/babil")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and bounds. The session key is checked
// by the serve command, which is the only one that needs it.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrBackendUnknown, c.Storage.Backend)
	}
	switch c.Audio.Engine {
	case EngineEspeak, EngineTone, EngineNone:
	default:
		return fmt.Errorf("%w: %q", ErrEngineUnknown, c.Audio.Engine)
	}
	if c.Audio.Async && c.Audio.Workers <= 0 {
		return ErrWorkersInvalid
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrLogFormatUnknown, c.Log.Format)
	}
	return nil
}

// CheckSessionKey reports whether the session key can sign cookies.
func (c *Config) CheckSessionKey() error {
	if len(c.Server.SessionKey) < 32 {
		return ErrSessionKeyShort
	}
	return nil
}
