package streamtester

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionConfig describes one monitoring run.
type SessionConfig struct {
	// DeviceID identifies the device being monitored (informational).
	DeviceID string
	// EndpointURL is the rtsp:// or rtsps:// address to monitor (required).
	EndpointURL string
	// DurationLimit bounds the session. Zero means unbounded.
	DurationLimit time.Duration
	// FloorDB is the meter lower bound. Zero selects DefaultFloorDB.
	FloorDB float64
}

// Session is one monitoring run. A session runs at most once: after it
// leaves Running it stays Stopped.
type Session struct {
	ID            string
	DeviceID      string
	EndpointURL   string
	DurationLimit time.Duration

	mu       sync.Mutex
	claimed  bool
	state    State
	pipeline Pipeline
	timer    Timer
	done     chan struct{}
	outcome  Outcome
	cause    error
	meter    LevelMeterState
	history  []LevelSample
	logger   *slog.Logger
}

// NewSession validates cfg and returns an Idle session.
func NewSession(cfg SessionConfig) (*Session, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.EndpointURL))
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint: %v", ErrInvalidSession, err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("%w: endpoint scheme must be rtsp or rtsps, got %q", ErrInvalidSession, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint has no host", ErrInvalidSession)
	}
	if cfg.DurationLimit < 0 {
		return nil, fmt.Errorf("%w: duration limit must be >= 0, got %v", ErrInvalidSession, cfg.DurationLimit)
	}
	floor := cfg.FloorDB
	if floor == 0 {
		floor = DefaultFloorDB
	}

	return &Session{
		ID:            uuid.NewString(),
		DeviceID:      cfg.DeviceID,
		EndpointURL:   u.String(),
		DurationLimit: cfg.DurationLimit,
		state:         StateIdle,
		done:          make(chan struct{}),
		meter:         newLevelMeterState(floor),
		logger:        slog.Default(),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome returns why the session stopped, or OutcomeNone while it has not.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Meter returns a copy of the meter scaling state.
func (s *Session) Meter() LevelMeterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meter
}

// History returns a copy of the level readings processed so far.
func (s *Session) History() []LevelSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LevelSample, len(s.history))
	copy(out, s.history)
	return out
}

// Stop halts a Running session with OutcomeCancelled. It reports whether
// this call performed the transition; calls on a session that is not Running
// are no-ops.
func (s *Session) Stop() bool {
	return s.stop(OutcomeCancelled, nil)
}

func (s *Session) stop(outcome Outcome, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(outcome, cause)
}

// stopLocked is the single stop checkpoint. s.mu must be held.
func (s *Session) stopLocked(outcome Outcome, cause error) bool {
	if s.state != StateRunning {
		return false
	}
	if err := s.pipeline.SetState(PipelineNull); err != nil {
		s.logger.Warn("session: failed to halt pipeline", "error", err)
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateStopped
	s.outcome = outcome
	s.cause = cause
	close(s.done)
	return true
}
