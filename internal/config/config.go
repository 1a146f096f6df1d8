// Package config loads examwatch settings from defaults, an optional config
// file, a .env file and EXAMWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXAMWATCH_TRACKING_HORIZON.
const EnvPrefix = "EXAMWATCH"

// Config is the full set of settings.
type Config struct {
	Store     Store     `mapstructure:"store"`
	LMS       LMS       `mapstructure:"lms"`
	Tracking  Tracking  `mapstructure:"tracking"`
	Reporting Reporting `mapstructure:"reporting"`
	Cache     Cache     `mapstructure:"cache"`
	Indexer   Indexer   `mapstructure:"indexer"`
	Log       Log       `mapstructure:"log"`
}

// Store is the engine's own database. An empty DSN uses the default path.
type Store struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"`
}

// LMS is the host LMS database, read only.
type LMS struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"`
	Prefix string `mapstructure:"prefix" validate:"required"`
}

type Tracking struct {
	Horizon         time.Duration `mapstructure:"horizon" validate:"gt=0"`
	UpcomingBuckets int           `mapstructure:"upcoming_buckets" validate:"gte=0"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout" validate:"gt=0"`
	ProctoredModule string        `mapstructure:"proctored_module" validate:"oneof=quiz assign"`
	Capabilities    []string      `mapstructure:"capabilities"`
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	Workers         int           `mapstructure:"workers" validate:"min=1,max=64"`
}

// RequiredCapabilities returns the configured capabilities, or the attempt
// capability of the proctored module.
func (t Tracking) RequiredCapabilities() []string {
	if len(t.Capabilities) > 0 {
		return t.Capabilities
	}
	if t.ProctoredModule == "assign" {
		return []string{"mod/assign:submit"}
	}
	return []string{"mod/quiz:attempt"}
}

type Reporting struct {
	ShowHiddenCourses bool `mapstructure:"show_hidden_courses"`
}

type Cache struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type Indexer struct {
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

var defaults = map[string]any{
	"store.driver":                  "sqlite",
	"store.dsn":                     "",
	"lms.driver":                    "postgres",
	"lms.dsn":                       "",
	"lms.prefix":                    "mdl_",
	"tracking.horizon":              time.Hour,
	"tracking.upcoming_buckets":     2,
	"tracking.session_timeout":      2 * time.Hour,
	"tracking.proctored_module":     "quiz",
	"tracking.capabilities":         []string{},
	"tracking.interval":             5 * time.Minute,
	"tracking.workers":              4,
	"reporting.show_hidden_courses": false,
	"cache.ttl":                     time.Hour,
	"indexer.batch_size":            100,
	"log.level":                     "info",
	"log.pretty":                    false,
}

// ValidationError reports every invalid setting.
type ValidationError struct {
	Errs validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, fe := range e.Errs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Errs
}

var validate = validator.New()

// Validate checks every setting.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return &ValidationError{Errs: ve}
		}
		return err
	}
	return nil
}

// Loader reads configuration and optionally watches the config file.
type Loader struct {
	v    *viper.Viper
	file string
}

// NewLoader prepares a loader. file may be empty. A .env file in the working
// directory is loaded first; variables already set win.
func NewLoader(file string) (*Loader, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return &Loader{v: v, file: file}, nil
}

// Load decodes and validates the current settings.
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls fn with the reloaded settings each time the config file
// changes. Invalid reloads are logged and skipped. Without a config file
// Watch does nothing.
func (l *Loader) Watch(log zerolog.Logger, fn func(*Config)) {
	if l.file == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config reload")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

// Load is a shorthand for NewLoader(file).Load().
func Load(file string) (*Config, error) {
	l, err := NewLoader(file)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
