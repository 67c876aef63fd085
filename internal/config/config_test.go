package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
protocols:
  rtsp:
    server_binary: /usr/local/bin/mediamtx
    config_file: /etc/mediamtx.yml
    default_port_range: [9554, 9600]
audio_devices:
  - id: mic-1
    source: alsa_input.usb
    protocols:
      - type: rtsp
        enabled: true
        port: 8554
      - type: webrtc
        enabled: true
        port: 8889
  - id: mic-2
    protocols:
      - type: rtsp
        enabled: false
        port: 8555
video_devices:
  - id: cam-1
    protocols:
      - type: rtsp
        enabled: true
        port: 8556
        path: /live/cam
monitor:
  level_interval: 250ms
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_streams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.AudioDevices, 2)
	assert.Len(t, cfg.VideoDevices, 1)
	require.NotNil(t, cfg.Protocols.RTSP)
	assert.Equal(t, "/usr/local/bin/mediamtx", cfg.Protocols.RTSP.ServerBinary)
	assert.Equal(t, 9554, cfg.ServerPort())
	assert.Equal(t, DefaultHost, cfg.Host())
	assert.Equal(t, DefaultStartupGrace, cfg.StartupGrace())
	assert.Equal(t, DefaultStopGrace, cfg.StopGrace())

	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.LevelInterval)
	assert.Equal(t, DefaultLatencyMS, cfg.Monitor.LatencyMS)
	assert.Equal(t, DefaultFloorDB, cfg.Monitor.FloorDB)
	assert.Equal(t, DefaultMeterWidth, cfg.Monitor.MeterWidth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Protocols.RTSP)
	assert.Equal(t, DefaultServerPort, cfg.ServerPort())
	assert.Equal(t, DefaultLevelInterval, cfg.Monitor.LevelInterval)
}

func TestResolve(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	t.Run("default path", func(t *testing.T) {
		ep, err := cfg.Resolve("mic-1", "audio", "rtsp")
		require.NoError(t, err)
		assert.Equal(t, "rtsp://localhost:8554/mic-1", ep.URL())
		assert.Equal(t, "alsa_input.usb", ep.Source)
		assert.Equal(t, "audio", ep.DeviceType)
	})

	t.Run("explicit path", func(t *testing.T) {
		ep, err := cfg.Resolve("cam-1", "video", "rtsp")
		require.NoError(t, err)
		assert.Equal(t, "rtsp://localhost:8556/live/cam", ep.URL())
	})

	t.Run("env host override", func(t *testing.T) {
		local, err := Parse([]byte(sampleConfig))
		require.NoError(t, err)
		require.NoError(t, local.ApplyEnv(Env{RTSPHost: "10.1.2.3"}))
		ep, err := local.Resolve("mic-1", "audio", "rtsp")
		require.NoError(t, err)
		assert.Equal(t, "rtsp://10.1.2.3:8554/mic-1", ep.URL())
	})

	errCases := []struct {
		name       string
		id         string
		deviceType string
		protocol   string
		want       error
	}{
		{"unknown device", "mic-9", "audio", "rtsp", ErrDeviceNotFound},
		{"wrong type list", "cam-1", "audio", "rtsp", ErrDeviceNotFound},
		{"disabled protocol", "mic-2", "audio", "rtsp", ErrProtocolDisabled},
		{"absent protocol", "cam-1", "video", "hls", ErrProtocolDisabled},
		{"enabled but unsupported", "mic-1", "audio", "webrtc", ErrUnsupportedProtocol},
		{"bad device type", "mic-1", "midi", "rtsp", ErrUnknownDeviceType},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cfg.Resolve(tt.id, tt.deviceType, tt.protocol)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing id",
			yaml:    "audio_devices:\n  - protocols: []\n",
			wantErr: "audio_devices[0].id is required",
		},
		{
			name:    "duplicate id",
			yaml:    "video_devices:\n  - id: a\n  - id: a\n",
			wantErr: "duplicate id",
		},
		{
			name:    "unknown protocol",
			yaml:    "audio_devices:\n  - id: a\n    protocols:\n      - type: srt\n",
			wantErr: "is not one of",
		},
		{
			name:    "enabled without port",
			yaml:    "audio_devices:\n  - id: a\n    protocols:\n      - type: rtsp\n        enabled: true\n",
			wantErr: "port 0 out of range",
		},
		{
			name:    "relative path",
			yaml:    "audio_devices:\n  - id: a\n    protocols:\n      - type: rtsp\n        enabled: true\n        port: 8554\n        path: live\n",
			wantErr: "must start with /",
		},
		{
			name:    "inverted port range",
			yaml:    "protocols:\n  rtsp:\n    default_port_range: [9000, 8000]\n",
			wantErr: "not a valid range",
		},
		{
			name:    "positive floor",
			yaml:    "monitor:\n  floor_db: 6\n",
			wantErr: "floor_db must be negative",
		},
		{
			name:    "bad transport",
			yaml:    "monitor:\n  transport: quic\n",
			wantErr: "monitor.transport",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSampleConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "device_streams.yaml"))
	require.NoError(t, err)

	ep, err := cfg.Resolve("default-mic", "audio", "rtsp")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://localhost:8554/default-mic", ep.URL())
}
