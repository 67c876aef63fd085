package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol names accepted in device entries.
const (
	ProtocolRTSP   = "rtsp"
	ProtocolWebRTC = "webrtc"
	ProtocolHLS    = "hls"
)

// Device types.
const (
	DeviceTypeAudio = "audio"
	DeviceTypeVideo = "video"
)

const (
	DefaultHost          = "localhost"
	DefaultServerPort    = 8554
	DefaultLevelInterval = 100 * time.Millisecond
	DefaultLatencyMS     = 100
	DefaultFloorDB       = -60.0
	DefaultMeterWidth    = 40
	DefaultStartupGrace  = 2 * time.Second
	DefaultStopGrace     = 5 * time.Second
)

var (
	ErrDeviceNotFound      = errors.New("config: device not found")
	ErrProtocolDisabled    = errors.New("config: protocol not enabled for device")
	ErrUnsupportedProtocol = errors.New("config: protocol not supported")
	ErrUnknownDeviceType   = errors.New("config: unknown device type")
	ErrNoRTSPServer        = errors.New("config: no rtsp server configured")
)

// Config is the device stream configuration file.
type Config struct {
	Protocols    ProtocolsConfig `yaml:"protocols"`
	AudioDevices []Device        `yaml:"audio_devices"`
	VideoDevices []Device        `yaml:"video_devices"`
	Monitor      MonitorConfig   `yaml:"monitor"`
}

// ProtocolsConfig holds per-protocol server settings.
type ProtocolsConfig struct {
	RTSP *RTSPServerConfig `yaml:"rtsp,omitempty"`
}

// RTSPServerConfig describes the local RTSP server.
type RTSPServerConfig struct {
	ServerBinary     string        `yaml:"server_binary"`
	ConfigFile       string        `yaml:"config_file"`
	DefaultPortRange []int         `yaml:"default_port_range"` // [low, high]; low is the server port
	Host             string        `yaml:"host"`               // host used in stream URLs (default: localhost)
	StartupGrace     time.Duration `yaml:"startup_grace"`      // time the server must stay up (default: 2s)
	StopGrace        time.Duration `yaml:"stop_grace"`         // SIGTERM → SIGKILL grace (default: 5s)
}

// Device is an audio or video source.
type Device struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Source    string           `yaml:"source"` // capture device name, e.g. a pulse source
	Protocols []DeviceProtocol `yaml:"protocols"`
}

// DeviceProtocol is one way a device is published.
type DeviceProtocol struct {
	Type    string `yaml:"type"` // rtsp, webrtc, hls
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"` // mount path (default: /<device id>)
}

// MonitorConfig tunes the level monitor.
type MonitorConfig struct {
	LevelInterval time.Duration `yaml:"level_interval"`
	LatencyMS     int           `yaml:"latency_ms"`
	FloorDB       float64       `yaml:"floor_db"`
	MeterWidth    int           `yaml:"meter_width"`
	Transport     string        `yaml:"transport"` // rtspsrc protocols: tcp, udp or empty
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with monitor defaults and no devices.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			LevelInterval: DefaultLevelInterval,
			LatencyMS:     DefaultLatencyMS,
			FloorDB:       DefaultFloorDB,
			MeterWidth:    DefaultMeterWidth,
		},
	}
}

// Devices returns the device list for deviceType.
func (c *Config) Devices(deviceType string) ([]Device, error) {
	switch strings.ToLower(deviceType) {
	case DeviceTypeAudio:
		return c.AudioDevices, nil
	case DeviceTypeVideo:
		return c.VideoDevices, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, deviceType)
	}
}

// Endpoint is a resolved stream address.
type Endpoint struct {
	DeviceID   string
	DeviceType string
	Protocol   string
	Host       string
	Port       int
	Path       string
	Source     string
}

// URL returns the rtsp:// address of the endpoint.
func (e Endpoint) URL() string {
	return "rtsp://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + e.Path
}

// Resolve finds the enabled protocol entry of a device and returns its
// endpoint. Only rtsp endpoints resolve; other protocols report
// ErrUnsupportedProtocol.
func (c *Config) Resolve(deviceID, deviceType, protocol string) (Endpoint, error) {
	devices, err := c.Devices(deviceType)
	if err != nil {
		return Endpoint{}, err
	}

	var device *Device
	for i := range devices {
		if devices[i].ID == deviceID {
			device = &devices[i]
			break
		}
	}
	if device == nil {
		return Endpoint{}, fmt.Errorf("%w: %s device %q", ErrDeviceNotFound, deviceType, deviceID)
	}

	var entry *DeviceProtocol
	for i := range device.Protocols {
		p := &device.Protocols[i]
		if p.Type == protocol && p.Enabled {
			entry = p
			break
		}
	}
	if entry == nil {
		return Endpoint{}, fmt.Errorf("%w: %s on %q", ErrProtocolDisabled, protocol, deviceID)
	}
	if protocol != ProtocolRTSP {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}

	path := entry.Path
	if path == "" {
		path = "/" + device.ID
	}
	return Endpoint{
		DeviceID:   device.ID,
		DeviceType: strings.ToLower(deviceType),
		Protocol:   protocol,
		Host:       c.Host(),
		Port:       entry.Port,
		Path:       path,
		Source:     device.Source,
	}, nil
}

// Host returns the host used in stream URLs.
func (c *Config) Host() string {
	if c.Protocols.RTSP != nil && c.Protocols.RTSP.Host != "" {
		return c.Protocols.RTSP.Host
	}
	return DefaultHost
}

// ServerPort returns the port the local RTSP server listens on.
func (c *Config) ServerPort() int {
	if c.Protocols.RTSP != nil && len(c.Protocols.RTSP.DefaultPortRange) > 0 {
		return c.Protocols.RTSP.DefaultPortRange[0]
	}
	return DefaultServerPort
}

// StartupGrace returns the server startup grace period.
func (c *Config) StartupGrace() time.Duration {
	if c.Protocols.RTSP != nil && c.Protocols.RTSP.StartupGrace > 0 {
		return c.Protocols.RTSP.StartupGrace
	}
	return DefaultStartupGrace
}

// StopGrace returns the SIGTERM grace period for helper processes.
func (c *Config) StopGrace() time.Duration {
	if c.Protocols.RTSP != nil && c.Protocols.RTSP.StopGrace > 0 {
		return c.Protocols.RTSP.StopGrace
	}
	return DefaultStopGrace
}
