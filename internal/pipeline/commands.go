package pipeline

import (
	"os"
	"strconv"
	"time"

	"github.com/e7canasta/orion-stream-tester/internal/supervisor"
)

const (
	// LaunchBinary runs a pipeline description from the command line.
	LaunchBinary = "gst-launch-1.0"
	// ServerFallbackBinary serves a single test mount when no server binary is configured.
	ServerFallbackBinary = "gst-rtsp-server-launch-1.0"
	// DefaultServerPort is used when the configuration has no port range.
	DefaultServerPort = 8554
)

// TestToneLaunchLine is the media factory served by the fallback server: a
// live 440 Hz sine encoded as Opus.
const TestToneLaunchLine = "( audiotestsrc is-live=true wave=sine frequency=440 ! audioconvert ! audioresample ! opusenc ! rtpopuspay name=pay0 )"

// LaunchCommand returns the command that runs d with gst-launch. An empty
// binary selects LaunchBinary.
func LaunchCommand(name, binary string, d Description) supervisor.CommandSpec {
	if binary == "" {
		binary = LaunchBinary
	}
	return supervisor.CommandSpec{
		Name: name,
		Path: binary,
		Args: d.Args(),
	}
}

// ServerParams selects how the RTSP server is started.
type ServerParams struct {
	// Binary is the configured server executable.
	Binary string
	// ConfigFile is passed as the only argument to Binary when set.
	ConfigFile string
	// FallbackBinary replaces ServerFallbackBinary.
	FallbackBinary string
	// Port is the fallback server port. Zero selects DefaultServerPort.
	Port int
	// StartupGrace is how long the server must stay up to count as started.
	StartupGrace time.Duration
}

// FileExists reports whether path names an existing file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ServerCommand returns the configured server command when its binary
// exists, and the fallback test-tone server otherwise.
func ServerCommand(p ServerParams, exists func(string) bool) supervisor.CommandSpec {
	if exists == nil {
		exists = FileExists
	}
	if p.Binary != "" && exists(p.Binary) {
		spec := supervisor.CommandSpec{Name: "rtsp-server", Path: p.Binary, StartupGrace: p.StartupGrace}
		if p.ConfigFile != "" {
			spec.Args = []string{p.ConfigFile}
		}
		return spec
	}

	binary := p.FallbackBinary
	if binary == "" {
		binary = ServerFallbackBinary
	}
	port := p.Port
	if port == 0 {
		port = DefaultServerPort
	}
	return supervisor.CommandSpec{
		Name:         "rtsp-server",
		Path:         binary,
		Args:         []string{"--port=" + strconv.Itoa(port), TestToneLaunchLine},
		StartupGrace: p.StartupGrace,
	}
}
