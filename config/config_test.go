package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
http:
  port: 9090
  timeout: 5s
database:
  path: /tmp/ll97.db
models:
  fined:
    type: decision_tree
    path: fined.json
  paid:
    type: onnx
    path: paid.onnx
    schema: paid.schema.json
  watch: true
catalog:
  property_types: [Office, Hotel]
  years: [2023]
events:
  brokers: [localhost:9092]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Http.Port)
	assert.Equal(t, 5*time.Second, cfg.Http.Timeout)
	assert.Equal(t, "/tmp/ll97.db", cfg.Database.Path)
	assert.Equal(t, ModelConfig{Type: "decision_tree", Path: "fined.json"}, cfg.Models.Fined)
	assert.Equal(t, "paid.schema.json", cfg.Models.Paid.Schema)
	assert.True(t, cfg.Models.Watch)
	assert.Equal(t, []string{"Office", "Hotel"}, cfg.Catalog.PropertyTypes)
	assert.Equal(t, []int{2023}, cfg.Catalog.Years)
	assert.Equal(t, "ll97.predictions", cfg.Events.Topic)
	// untouched sections keep defaults
	assert.Equal(t, 1024, cfg.Cache.Size)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LL97_PORT", "7070")
	t.Setenv("LL97_LOG_LEVEL", "debug")
	t.Setenv("LL97_FINED_MODEL", "/models/f.json")
	t.Setenv("LL97_KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Http.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/models/f.json", cfg.Models.Fined.Path)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Brokers)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "http: [\n"},
		{"port", "http:\n  port: 70000\n"},
		{"model type", "models:\n  fined:\n    type: svm\n    path: x\n"},
		{"missing path", "models:\n  paid:\n    type: onnx\n    path: \"\"\n"},
		{"negative cache", "cache:\n  size: -1\n"},
		{"brokers without topic", "events:\n  brokers: [x]\n  topic: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadPortEnv(t *testing.T) {
	t.Setenv("LL97_PORT", "eighty")
	_, err := Load("")
	assert.Error(t, err)
}
