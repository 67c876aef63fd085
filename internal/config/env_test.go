package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvLogFormat, "text")

	dir := t.TempDir()
	file := filepath.Join(dir, "tester.env")
	require.NoError(t, os.WriteFile(file, []byte(
		"STREAM_TESTER_LOG_LEVEL=debug\nSTREAM_TESTER_LOG_FORMAT=json\n",
	), 0o644))
	t.Cleanup(func() { os.Unsetenv(EnvLogLevel) })

	env, err := LoadEnv(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", env.LogLevel)
	assert.Equal(t, "text", env.LogFormat, "process environment wins over the dotenv file")
}

func TestLoadEnvMissingFileIgnored(t *testing.T) {
	_, err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestApplyEnvCreatesRTSPSection(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(Env{RTSPHost: "media.local"}))
	require.NotNil(t, cfg.Protocols.RTSP)
	assert.Equal(t, "media.local", cfg.Host())

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(Env{}))
	assert.Nil(t, cfg.Protocols.RTSP)
}

func TestApplyEnvRejectsInvalidHost(t *testing.T) {
	tests := []struct {
		name string
		host string
	}{
		{"space", "media host"},
		{"slash", "media.local/path"},
		{"tab", "media\tlocal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Protocols.RTSP = &RTSPServerConfig{Host: "kept.local"}

			err := cfg.ApplyEnv(Env{RTSPHost: tt.host})
			require.Error(t, err)
			assert.Contains(t, err.Error(), EnvRTSPHost)
			assert.Equal(t, "kept.local", cfg.Host())
		})
	}
}
