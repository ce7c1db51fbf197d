package runtime

import (
	"bytes"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/com-runtime/errors"
)

// DefaultApartment is the apartment used when none is named.
const DefaultApartment = "main"

// DefaultShutdownTimeout bounds how long Close waits for live objects
// before releasing them forcibly.
const DefaultShutdownTimeout = 5 * time.Second

// Config configures a Runtime. The zero value is valid.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Apartment ApartmentConfig `yaml:"apartment"`
	// Declarations lists YAML interface declaration files loaded into the
	// registry by New.
	Declarations []string `yaml:"declarations"`
}

// LogConfig selects the zap logger New builds.
type LogConfig struct {
	// Level is a zap level name. Empty disables logging.
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ApartmentConfig configures apartment threads.
type ApartmentConfig struct {
	// Default names the apartment Wrap uses for an empty name.
	Default string `yaml:"default"`
	// IdleTimeout lets an unused thread exit. Zero keeps threads running
	// until Close.
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config")
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Apartment.IdleTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "apartment.idle_timeout must not be negative")
	}
	if c.Apartment.ShutdownTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "apartment.shutdown_timeout must not be negative")
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
		}
	}
	return nil
}

func (c Config) defaultApartment() string {
	if c.Apartment.Default != "" {
		return c.Apartment.Default
	}
	return DefaultApartment
}

func (c Config) shutdownTimeout() time.Duration {
	if c.Apartment.ShutdownTimeout > 0 {
		return c.Apartment.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// NewLogger builds the logger described by c. An empty level returns a
// no-op logger.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	if c.Level == "" {
		return zap.NewNop(), nil
	}
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
