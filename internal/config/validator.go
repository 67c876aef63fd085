package config

import (
	"fmt"
	"regexp"
	"strings"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

var knownProtocols = map[string]bool{
	ProtocolRTSP:   true,
	ProtocolWebRTC: true,
	ProtocolHLS:    true,
}

// Validate checks cfg and fills unset monitor values.
func Validate(cfg *Config) error {
	if rtsp := cfg.Protocols.RTSP; rtsp != nil {
		if r := rtsp.DefaultPortRange; len(r) > 0 {
			if len(r) != 2 {
				return fmt.Errorf("protocols.rtsp.default_port_range must have two entries, got %d", len(r))
			}
			if !validPort(r[0]) || !validPort(r[1]) || r[0] > r[1] {
				return fmt.Errorf("protocols.rtsp.default_port_range %v is not a valid range", r)
			}
		}
		if err := checkHost("protocols.rtsp.host", rtsp.Host); err != nil {
			return err
		}
	}

	for _, group := range []struct {
		key     string
		devices []Device
	}{
		{"audio_devices", cfg.AudioDevices},
		{"video_devices", cfg.VideoDevices},
	} {
		seen := make(map[string]bool, len(group.devices))
		for i, d := range group.devices {
			if d.ID == "" {
				return fmt.Errorf("%s[%d].id is required", group.key, i)
			}
			if !deviceIDPattern.MatchString(d.ID) {
				return fmt.Errorf("%s[%d].id %q must match %s", group.key, i, d.ID, deviceIDPattern)
			}
			if seen[d.ID] {
				return fmt.Errorf("%s: duplicate id %q", group.key, d.ID)
			}
			seen[d.ID] = true

			for j, p := range d.Protocols {
				if !knownProtocols[p.Type] {
					return fmt.Errorf("%s[%d].protocols[%d].type %q is not one of rtsp, webrtc, hls", group.key, i, j, p.Type)
				}
				if !p.Enabled {
					continue
				}
				if !validPort(p.Port) {
					return fmt.Errorf("%s[%d].protocols[%d].port %d out of range", group.key, i, j, p.Port)
				}
				if p.Path != "" && !strings.HasPrefix(p.Path, "/") {
					return fmt.Errorf("%s[%d].protocols[%d].path %q must start with /", group.key, i, j, p.Path)
				}
			}
		}
	}

	m := &cfg.Monitor
	if m.LevelInterval <= 0 {
		m.LevelInterval = DefaultLevelInterval
	}
	if m.LatencyMS <= 0 {
		m.LatencyMS = DefaultLatencyMS
	}
	if m.FloorDB == 0 {
		m.FloorDB = DefaultFloorDB
	}
	if m.FloorDB > 0 {
		return fmt.Errorf("monitor.floor_db must be negative, got %.1f", m.FloorDB)
	}
	if m.MeterWidth <= 0 {
		m.MeterWidth = DefaultMeterWidth
	}
	switch m.Transport {
	case "", "tcp", "udp":
	default:
		return fmt.Errorf("monitor.transport %q must be tcp or udp", m.Transport)
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func checkHost(key, host string) error {
	if strings.ContainsAny(host, " \t/") {
		return fmt.Errorf("%s %q is not a host name", key, host)
	}
	return nil
}
