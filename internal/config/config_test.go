package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tcpedit/internal/tcpedit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
tcpedit:
  log:
    level: "debug"
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
  dlt:
    decoder: en10mb
    encoder: chdlc
    skip_broadcast: true
    force_align: "on"
    plugins:
      en10mb:
        dmac: "00:00:00:00:00:01"
        vlan: del
      chdlc:
        address: 143
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "en10mb", cfg.DLT.Decoder)
	assert.Equal(t, "chdlc", cfg.DLT.Encoder)
	assert.True(t, cfg.DLT.SkipBroadcast)
	assert.Equal(t, "00:00:00:00:00:01", cfg.DLT.Plugins["en10mb"]["dmac"])
	assert.EqualValues(t, 143, cfg.DLT.Plugins["chdlc"]["address"])

	sc := cfg.DLT.SessionConfig()
	assert.Equal(t, tcpedit.AlignOn, sc.ForceAlign)
	assert.True(t, sc.SkipBroadcast)
	assert.Equal(t, "del", sc.Options["en10mb"]["vlan"])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.File.Enabled)
	assert.Equal(t, 100, cfg.Log.File.MaxSizeMB)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, string(tcpedit.AlignAuto), cfg.DLT.ForceAlign)
	assert.Empty(t, cfg.DLT.Decoder)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TCPEDIT_DLT_DECODER", "linuxsll")
	t.Setenv("TCPEDIT_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "tcpedit:\n  dlt:\n    decoder: en10mb\n"))
	require.NoError(t, err)
	assert.Equal(t, "linuxsll", cfg.DLT.Decoder)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"log level":   "tcpedit:\n  log:\n    level: loud\n",
		"force align": "tcpedit:\n  dlt:\n    force_align: sometimes\n",
		"file path":   "tcpedit:\n  log:\n    file:\n      enabled: true\n      path: \"\"\n",
		"listen":      "tcpedit:\n  metrics:\n    enabled: true\n    listen: \"\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}
