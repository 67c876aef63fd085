package gstengine

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	streamtester "github.com/e7canasta/orion-stream-tester"
)

// LevelStructureName is the structure name of messages posted by the level element.
const LevelStructureName = "level"

var errNoPeak = errors.New("gstengine: level message has no peak field")

// peakField matches the serialized peak list, e.g.
// "peak=(GValueArray)< -17.5, -18.1 >" or "peak=(double){ -17.5, -18.1 }".
var peakField = regexp.MustCompile(`peak=\([A-Za-z]+\)\s*[<{]([^>}]*)[>}]`)

// translate converts a bus message into an Event. Messages that carry
// nothing the controller needs report false.
func (p *Pipeline) translate(msg *gst.Message) (streamtester.Event, bool) {
	now := time.Now()
	switch msg.Type() {
	case gst.MessageEOS:
		return streamtester.Event{Kind: streamtester.EventEOS, At: now, Source: msg.Source()}, true

	case gst.MessageError:
		gerr := msg.ParseError()
		return streamtester.Event{
			Kind:   streamtester.EventError,
			At:     now,
			Source: msg.Source(),
			Err:    pipelineError(gerr, msg.Source()),
		}, true

	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		return streamtester.Event{
			Kind:   streamtester.EventWarning,
			At:     now,
			Source: msg.Source(),
			Err:    pipelineError(gerr, msg.Source()),
		}, true

	case gst.MessageStateChanged:
		if msg.Source() != p.name {
			return streamtester.Event{}, false
		}
		_, newState := msg.ParseStateChanged()
		return streamtester.Event{
			Kind:   streamtester.EventStateChanged,
			At:     now,
			Source: msg.Source(),
			State:  fromGstState(newState),
		}, true

	case gst.MessageElement:
		structure := msg.GetStructure()
		if structure == nil || structure.Name() != LevelStructureName {
			return streamtester.Event{}, false
		}
		peak, err := structurePeak(structure)
		if err != nil {
			p.logger.Debug("gst: dropping level message", "error", err)
			return streamtester.Event{}, false
		}
		return streamtester.Event{Kind: streamtester.EventLevel, At: now, Source: msg.Source(), Peak: peak}, true
	}
	return streamtester.Event{}, false
}

func pipelineError(gerr *gst.GError, source string) *streamtester.PipelineError {
	if gerr == nil {
		return &streamtester.PipelineError{Category: ErrCategoryUnknown.String(), Message: "unknown error", Source: source}
	}
	return &streamtester.PipelineError{
		Category: Classify(gerr.Error(), gerr.DebugString()).String(),
		Message:  gerr.Error(),
		Debug:    gerr.DebugString(),
		Source:   source,
	}
}

// structurePeak reads the per-channel peak list and returns the loudest channel.
func structurePeak(s *gst.Structure) (float64, error) {
	if v, err := s.GetValue("peak"); err == nil {
		if peaks, ok := peaksFromValue(v); ok {
			return MaxPeak(peaks)
		}
	}
	peaks, err := ParsePeaks(s.String())
	if err != nil {
		return 0, err
	}
	return MaxPeak(peaks)
}

// peaksFromValue accepts the Go shapes a peak GValue may convert to.
func peaksFromValue(v interface{}) ([]float64, bool) {
	switch t := v.(type) {
	case float64:
		return []float64{t}, true
	case []float64:
		return t, len(t) > 0
	case []interface{}:
		out := make([]float64, 0, len(t))
		for _, e := range t {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, len(out) > 0
	}
	return nil, false
}

// ParsePeaks extracts the peak list from a serialized level structure.
func ParsePeaks(serialized string) ([]float64, error) {
	m := peakField.FindStringSubmatch(serialized)
	if m == nil {
		return nil, errNoPeak
	}
	var out []float64
	for _, field := range strings.Split(m[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		f, err := parseDB(field)
		if err != nil {
			return nil, fmt.Errorf("gstengine: bad peak value %q: %w", field, err)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errNoPeak
	}
	return out, nil
}

func parseDB(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	case "inf", "infinity", "+inf":
		return math.Inf(1), nil
	case "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// MaxPeak returns the loudest channel, ignoring NaN channels.
func MaxPeak(peaks []float64) (float64, error) {
	if len(peaks) == 0 {
		return 0, errNoPeak
	}
	loudest := math.Inf(-1)
	for _, p := range peaks {
		if p > loudest {
			loudest = p
		}
	}
	return loudest, nil
}

func fromGstState(s gst.State) streamtester.PipelineState {
	switch s {
	case gst.StatePlaying:
		return streamtester.PipelinePlaying
	case gst.StatePaused:
		return streamtester.PipelinePaused
	case gst.StateReady:
		return streamtester.PipelineReady
	default:
		return streamtester.PipelineNull
	}
}

func toGstState(s streamtester.PipelineState) (gst.State, error) {
	switch s {
	case streamtester.PipelinePlaying:
		return gst.StatePlaying, nil
	case streamtester.PipelinePaused:
		return gst.StatePaused, nil
	case streamtester.PipelineReady:
		return gst.StateReady, nil
	case streamtester.PipelineNull:
		return gst.StateNull, nil
	default:
		return gst.StateNull, fmt.Errorf("gstengine: unknown pipeline state %d", int(s))
	}
}
