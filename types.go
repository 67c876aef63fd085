package streamtester

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/e7canasta/orion-stream-tester/internal/levelstats"
)

// DefaultFloorDB is the fixed lower bound of the level meter.
const DefaultFloorDB = -60.0

var (
	// ErrSessionNotIdle is returned when Start is called on a session that already ran.
	ErrSessionNotIdle = errors.New("streamtester: session is not idle")
	// ErrPipelineConstruction wraps engine failures while building or starting a pipeline.
	ErrPipelineConstruction = errors.New("streamtester: pipeline construction failed")
	// ErrInvalidSession is returned by NewSession for malformed configuration.
	ErrInvalidSession = errors.New("streamtester: invalid session config")
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle means the session was created but not started.
	StateIdle State = iota
	// StateRunning means the pipeline is playing and events are being processed.
	StateRunning
	// StateStopped is terminal.
	StateStopped
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome records why a session stopped.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeTimedOut
	OutcomeCancelled
	OutcomeFailed
)

// String returns a human-readable representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Success reports whether the outcome is a clean stop.
func (o Outcome) Success() bool {
	return o != OutcomeFailed && o != OutcomeNone
}

// PipelineState is an engine pipeline state.
type PipelineState int

const (
	PipelineNull PipelineState = iota
	PipelineReady
	PipelinePaused
	PipelinePlaying
)

// String returns a human-readable representation of the pipeline state
func (p PipelineState) String() string {
	switch p {
	case PipelineNull:
		return "null"
	case PipelineReady:
		return "ready"
	case PipelinePaused:
		return "paused"
	case PipelinePlaying:
		return "playing"
	default:
		return fmt.Sprintf("pipeline_state(%d)", int(p))
	}
}

// EventKind classifies pipeline bus events.
type EventKind int

const (
	EventLevel EventKind = iota
	EventError
	EventEOS
	EventStateChanged
	EventWarning
)

// String returns a human-readable representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventLevel:
		return "level"
	case EventError:
		return "error"
	case EventEOS:
		return "eos"
	case EventStateChanged:
		return "state_changed"
	case EventWarning:
		return "warning"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a message delivered by a Pipeline.
type Event struct {
	Kind EventKind
	// At is when the engine observed the event. Zero means unknown.
	At time.Time
	// Peak is the loudest channel peak in dB (EventLevel).
	Peak float64
	// Err describes the failure (EventError, EventWarning).
	Err *PipelineError
	// State is the new pipeline state (EventStateChanged).
	State PipelineState
	// Source names the element that posted the message.
	Source string
}

// PipelineError is an error reported by the engine while the pipeline runs.
type PipelineError struct {
	// Category is a coarse classification such as "network", "codec" or "auth".
	Category string
	Message  string
	Debug    string
	Source   string
}

func (e *PipelineError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("pipeline error [%s]: %s", e.Category, e.Message)
	}
	return "pipeline error: " + e.Message
}

// LevelMeterState holds the meter scaling bounds for a session.
type LevelMeterState struct {
	// ObservedMax is the loudest finite peak seen so far. It starts at -Inf.
	ObservedMax float64
	// FixedMin is the constant lower bound of the meter.
	FixedMin float64
}

func newLevelMeterState(floor float64) LevelMeterState {
	return LevelMeterState{ObservedMax: math.Inf(-1), FixedMin: floor}
}

// Observe folds peak into the running maximum. NaN is ignored.
func (m *LevelMeterState) Observe(peak float64) {
	if peak > m.ObservedMax {
		m.ObservedMax = peak
	}
}

// LevelSample is one level reading kept in the session history.
type LevelSample struct {
	Peak float64
	At   time.Time
}

// Result summarizes a finished session.
type Result struct {
	SessionID   string
	DeviceID    string
	Outcome     Outcome
	Err         error // set only for OutcomeFailed
	Samples     int
	ObservedMax float64
	Elapsed     time.Duration
	Stats       levelstats.Summary
}
