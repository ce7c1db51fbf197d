package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/com-runtime/errors"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
log:
  level: debug
  development: true
apartment:
  default: ui
  idle_timeout: 30s
  shutdown_timeout: 250ms
declarations:
  - a.yaml
  - b.yaml
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "ui", cfg.defaultApartment())
	assert.Equal(t, 30*time.Second, cfg.Apartment.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.shutdownTimeout())
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Declarations)
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultApartment, cfg.defaultApartment())
	assert.Equal(t, DefaultShutdownTimeout, cfg.shutdownTimeout())
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "apartments: {}\n",
		"bad level":        "log: {level: loud}\n",
		"negative timeout": "apartment: {idle_timeout: -1s}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: {level: warn}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindNotFound})
}

func TestNewLogger(t *testing.T) {
	l, err := LogConfig{}.NewLogger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))

	l, err = LogConfig{Level: "warn"}.NewLogger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(1))
	assert.False(t, l.Core().Enabled(0))
}
