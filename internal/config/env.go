package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvConfigPath = "STREAM_TESTER_CONFIG"
	EnvLogLevel   = "STREAM_TESTER_LOG_LEVEL"
	EnvLogFormat  = "STREAM_TESTER_LOG_FORMAT"
	EnvRTSPHost   = "STREAM_TESTER_RTSP_HOST"
)

// Env holds overrides read from the environment.
type Env struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	RTSPHost   string
}

// LoadEnv loads the given dotenv files, or .env when none are given, and
// reads the overrides. Missing files are ignored; variables already set in
// the process environment take precedence.
func LoadEnv(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return Env{
		ConfigPath: os.Getenv(EnvConfigPath),
		LogLevel:   os.Getenv(EnvLogLevel),
		LogFormat:  os.Getenv(EnvLogFormat),
		RTSPHost:   os.Getenv(EnvRTSPHost),
	}, nil
}

// ApplyEnv overrides configuration values from env. An invalid override is
// rejected and leaves c unchanged.
func (c *Config) ApplyEnv(env Env) error {
	if env.RTSPHost == "" {
		return nil
	}
	if err := checkHost(EnvRTSPHost, env.RTSPHost); err != nil {
		return err
	}
	if c.Protocols.RTSP == nil {
		c.Protocols.RTSP = &RTSPServerConfig{}
	}
	c.Protocols.RTSP.Host = env.RTSPHost
	return nil
}
