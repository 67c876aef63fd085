// Package pipeline builds GStreamer launch descriptions for the tester.
package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLatencyMS     = 100
	DefaultLevelInterval = 100 * time.Millisecond
	DefaultCaptureHost   = "localhost"

	// LevelElementName is the name given to the level element in playback pipelines.
	LevelElementName = "meter"
)

var ErrInvalidTransport = errors.New("pipeline: invalid transport")

// Role selects which pipeline to build.
type Role int

const (
	// RoleCapture publishes a local source as RTP over UDP.
	RoleCapture Role = iota
	// RolePlayback decodes an RTSP stream and posts level messages.
	RolePlayback
	// RoleProbe connects to an RTSP stream and discards the media.
	RoleProbe
)

// String returns a human-readable representation of the role
func (r Role) String() string {
	switch r {
	case RoleCapture:
		return "capture"
	case RolePlayback:
		return "playback"
	case RoleProbe:
		return "probe"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// DeviceType is the kind of media a device produces.
type DeviceType string

const (
	DeviceAudio DeviceType = "audio"
	DeviceVideo DeviceType = "video"
)

// ParseDeviceType validates a device type name.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceAudio:
		return DeviceAudio, nil
	case DeviceVideo:
		return DeviceVideo, nil
	default:
		return "", fmt.Errorf("pipeline: unknown device type %q (want audio or video)", s)
	}
}

// Transport carries the addressing and tuning for a pipeline.
type Transport struct {
	// URL is the RTSP address for playback and probe pipelines.
	URL string
	// Host and Port are the UDP destination of capture pipelines.
	Host string
	Port int
	// Source overrides the capture source device (pulsesrc device name).
	Source string
	// LatencyMS is the rtspsrc latency.
	LatencyMS int
	// LevelInterval is the level message period.
	LevelInterval time.Duration
	// Protocols restricts the rtspsrc lower transport.
	Protocols string
}

// Description is a launch description split into elements.
type Description struct {
	Role     Role
	Device   DeviceType
	Elements []string
}

// String joins the elements with links.
func (d Description) String() string {
	return strings.Join(d.Elements, " ! ")
}

// Args returns the description as gst-launch argv tokens.
func (d Description) Args() []string {
	return strings.Fields(d.String())
}

// Build returns the launch description for role and device.
func Build(role Role, device DeviceType, t Transport) (Description, error) {
	d := Description{Role: role, Device: device}
	switch role {
	case RoleCapture:
		elems, err := captureElements(device, t)
		if err != nil {
			return Description{}, err
		}
		d.Elements = elems
	case RolePlayback:
		src, err := rtspSource(t)
		if err != nil {
			return Description{}, err
		}
		switch device {
		case DeviceAudio:
			interval := t.LevelInterval
			if interval <= 0 {
				interval = DefaultLevelInterval
			}
			d.Elements = []string{
				src,
				"rtpjitterbuffer",
				"rtpopusdepay",
				"opusdec",
				"audioconvert",
				fmt.Sprintf("level name=%s interval=%d post-messages=true", LevelElementName, interval.Nanoseconds()),
				"autoaudiosink",
			}
		case DeviceVideo:
			d.Elements = []string{
				src,
				"rtpjitterbuffer",
				"rtph264depay",
				"avdec_h264",
				"videoconvert",
				"autovideosink",
			}
		default:
			return Description{}, fmt.Errorf("pipeline: unknown device type %q", device)
		}
	case RoleProbe:
		src, err := rtspSource(t)
		if err != nil {
			return Description{}, err
		}
		d.Elements = []string{src, "fakesink sync=false"}
	default:
		return Description{}, fmt.Errorf("pipeline: unknown role %d", int(role))
	}
	return d, nil
}

func rtspSource(t Transport) (string, error) {
	if t.URL == "" {
		return "", fmt.Errorf("%w: missing URL", ErrInvalidTransport)
	}
	if err := checkToken("url", t.URL); err != nil {
		return "", err
	}
	latency := t.LatencyMS
	if latency <= 0 {
		latency = DefaultLatencyMS
	}
	src := fmt.Sprintf("rtspsrc location=%s latency=%d", t.URL, latency)
	if t.Protocols != "" {
		if err := checkToken("protocols", t.Protocols); err != nil {
			return "", err
		}
		src += " protocols=" + t.Protocols
	}
	return src, nil
}

func captureElements(device DeviceType, t Transport) ([]string, error) {
	host := t.Host
	if host == "" {
		host = DefaultCaptureHost
	}
	if err := checkToken("host", host); err != nil {
		return nil, err
	}
	if t.Port < 1 || t.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidTransport, t.Port)
	}
	sink := "udpsink host=" + host + " port=" + strconv.Itoa(t.Port)

	switch device {
	case DeviceAudio:
		source := "pulsesrc device=default"
		if t.Source != "" {
			if err := checkToken("source", t.Source); err != nil {
				return nil, err
			}
			source = "pulsesrc device=" + t.Source
		}
		return []string{source, "audioconvert", "audioresample", "opusenc", "rtpopuspay", sink}, nil
	case DeviceVideo:
		return []string{
			"videotestsrc is-live=true",
			"videoconvert",
			"x264enc tune=zerolatency",
			"rtph264pay",
			sink,
		}, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown device type %q", device)
	}
}

// checkToken rejects values that would change the structure of a launch line.
func checkToken(field, v string) error {
	if strings.ContainsAny(v, " \t\r\n!\"'()") {
		return fmt.Errorf("%w: %s %q contains reserved characters", ErrInvalidTransport, field, v)
	}
	return nil
}
