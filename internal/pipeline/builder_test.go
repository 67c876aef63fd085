package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlayback(t *testing.T) {
	t.Run("audio defaults", func(t *testing.T) {
		d, err := Build(RolePlayback, DeviceAudio, Transport{URL: "rtsp://localhost:8554/mic"})
		require.NoError(t, err)
		assert.Equal(t,
			"rtspsrc location=rtsp://localhost:8554/mic latency=100 ! rtpjitterbuffer ! rtpopusdepay ! opusdec ! audioconvert ! level name=meter interval=100000000 post-messages=true ! autoaudiosink",
			d.String())
	})

	t.Run("audio tuned", func(t *testing.T) {
		d, err := Build(RolePlayback, DeviceAudio, Transport{
			URL:           "rtsp://cam:554/a",
			LatencyMS:     250,
			LevelInterval: 50 * time.Millisecond,
			Protocols:     "tcp",
		})
		require.NoError(t, err)
		assert.Contains(t, d.String(), "rtspsrc location=rtsp://cam:554/a latency=250 protocols=tcp")
		assert.Contains(t, d.String(), "interval=50000000")
	})

	t.Run("video", func(t *testing.T) {
		d, err := Build(RolePlayback, DeviceVideo, Transport{URL: "rtsp://cam/v"})
		require.NoError(t, err)
		assert.Contains(t, d.String(), "rtph264depay ! avdec_h264")
		assert.NotContains(t, d.String(), "level")
	})
}

func TestBuildCapture(t *testing.T) {
	tests := []struct {
		name   string
		device DeviceType
		t      Transport
		want   string
	}{
		{
			name:   "audio",
			device: DeviceAudio,
			t:      Transport{Port: 8554},
			want:   "pulsesrc device=default ! audioconvert ! audioresample ! opusenc ! rtpopuspay ! udpsink host=localhost port=8554",
		},
		{
			name:   "audio with source",
			device: DeviceAudio,
			t:      Transport{Host: "10.0.0.5", Port: 5004, Source: "alsa_input.usb-mic"},
			want:   "pulsesrc device=alsa_input.usb-mic ! audioconvert ! audioresample ! opusenc ! rtpopuspay ! udpsink host=10.0.0.5 port=5004",
		},
		{
			name:   "video",
			device: DeviceVideo,
			t:      Transport{Port: 8556},
			want:   "videotestsrc is-live=true ! videoconvert ! x264enc tune=zerolatency ! rtph264pay ! udpsink host=localhost port=8556",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Build(RoleCapture, tt.device, tt.t)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestBuildProbe(t *testing.T) {
	d, err := Build(RoleProbe, DeviceAudio, Transport{URL: "rtsp://localhost:8554/x"})
	require.NoError(t, err)
	assert.Equal(t, "rtspsrc location=rtsp://localhost:8554/x latency=100 ! fakesink sync=false", d.String())
}

func TestBuildRejectsInvalidTransport(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		device DeviceType
		t      Transport
	}{
		{"missing url", RolePlayback, DeviceAudio, Transport{}},
		{"url with link", RolePlayback, DeviceAudio, Transport{URL: "rtsp://a/b ! fakesink"}},
		{"url with space", RoleProbe, DeviceAudio, Transport{URL: "rtsp://a/b c"}},
		{"port zero", RoleCapture, DeviceAudio, Transport{}},
		{"port too large", RoleCapture, DeviceVideo, Transport{Port: 70000}},
		{"source with quote", RoleCapture, DeviceAudio, Transport{Port: 1, Source: `a"b`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.role, tt.device, tt.t)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransport), "got %v", err)
		})
	}

	_, err := Build(RolePlayback, DeviceType("midi"), Transport{URL: "rtsp://a/b"})
	assert.Error(t, err)
}

func TestParseDeviceType(t *testing.T) {
	got, err := ParseDeviceType(" Audio ")
	require.NoError(t, err)
	assert.Equal(t, DeviceAudio, got)

	_, err = ParseDeviceType("midi")
	assert.Error(t, err)
}

func TestLaunchCommand(t *testing.T) {
	d, err := Build(RoleCapture, DeviceAudio, Transport{Port: 8554})
	require.NoError(t, err)

	spec := LaunchCommand("mic-1", "", d)
	assert.Equal(t, LaunchBinary, spec.Path)
	assert.Equal(t, "mic-1", spec.Name)
	assert.Equal(t, d.String(), strings.Join(spec.Args, " "))
	assert.Contains(t, spec.Args, "!")
}

func TestServerCommand(t *testing.T) {
	t.Run("configured binary present", func(t *testing.T) {
		spec := ServerCommand(ServerParams{Binary: "/opt/rtsp/server", ConfigFile: "/etc/rtsp.yml"},
			func(string) bool { return true })
		assert.Equal(t, "/opt/rtsp/server", spec.Path)
		assert.Equal(t, []string{"/etc/rtsp.yml"}, spec.Args)
	})

	t.Run("configured binary missing falls back", func(t *testing.T) {
		spec := ServerCommand(ServerParams{Binary: "/opt/rtsp/server", Port: 9554},
			func(string) bool { return false })
		assert.Equal(t, ServerFallbackBinary, spec.Path)
		assert.Equal(t, []string{"--port=9554", TestToneLaunchLine}, spec.Args)
	})

	t.Run("no binary uses default port", func(t *testing.T) {
		spec := ServerCommand(ServerParams{}, nil)
		assert.Equal(t, "--port=8554", spec.Args[0])
	})
}
