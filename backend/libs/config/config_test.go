package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title string `yaml:"title"`
	Queue struct {
		URL     string        `yaml:"url" env:"SAMPLE_QUEUE_URL"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"queue"`
	Stations []string `yaml:"stations" env:"SAMPLE_STATIONS"`
	Enabled  bool     `yaml:"enabled"`
	Ignored  string   `env:"-"`
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: file\nqueue:\n  url: nats://file:4222\nenabled: false\n"), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("SAMPLE_QUEUE_URL", "nats://env:4222")
	t.Setenv("QUEUE_TIMEOUT", "3s")
	t.Setenv("SAMPLE_STATIONS", "CS1, CS2,,")
	t.Setenv("ENABLED", "true")
	t.Setenv("IGNORED", "nope")

	var cfg sample
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "file", cfg.Title)
	assert.Equal(t, "nats://env:4222", cfg.Queue.URL)
	assert.Equal(t, 3*time.Second, cfg.Queue.Timeout)
	assert.Equal(t, []string{"CS1", "CS2"}, cfg.Stations)
	assert.True(t, cfg.Enabled)
	assert.Empty(t, cfg.Ignored)
}

func TestLoadConfigRejectsBadTargets(t *testing.T) {
	assert.Error(t, LoadConfig(nil))

	var s sample
	assert.Error(t, LoadConfig(s))
}

func TestLoadConfigReportsParseErrors(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ENABLED", "maybe")

	var cfg sample
	err := LoadConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENABLED")
}
