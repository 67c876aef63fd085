package streamtester

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-stream-tester/internal/levelstats"
	"github.com/e7canasta/orion-stream-tester/internal/logging"
	"github.com/e7canasta/orion-stream-tester/internal/meter"
	"github.com/e7canasta/orion-stream-tester/internal/pipeline"
)

// MonitorParams are the pipeline parameters fixed when the controller is built.
type MonitorParams struct {
	// LatencyMS is the rtspsrc jitter latency. Zero selects the builder default.
	LatencyMS int
	// LevelInterval is the period between level messages. Zero selects the builder default.
	LevelInterval time.Duration
	// Protocols restricts the RTSP lower transport ("tcp", "udp"). Empty lets the source negotiate.
	Protocols string
}

// Controller runs sessions against an Engine.
type Controller struct {
	engine Engine
	clock  Clock
	out    io.Writer
	styler meter.Styler
	width  int
	params MonitorParams
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithDisplay sets the writer the meter is drawn on. Nil disables drawing.
func WithDisplay(w io.Writer) Option {
	return func(c *Controller) { c.out = w }
}

// WithStyler sets the meter styler. Nil keeps the current styler.
func WithStyler(s meter.Styler) Option {
	return func(c *Controller) {
		if s != nil {
			c.styler = s
		}
	}
}

// WithMeterWidth sets the number of meter cells.
func WithMeterWidth(width int) Option {
	return func(c *Controller) {
		if width > 0 {
			c.width = width
		}
	}
}

// WithClock replaces the wall clock. Nil keeps the current clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger. Nil keeps the current logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMonitorParams sets the pipeline parameters.
func WithMonitorParams(p MonitorParams) Option {
	return func(c *Controller) { c.params = p }
}

// NewController creates a controller that builds pipelines with engine.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		clock:  SystemClock{},
		styler: meter.PlainStyler{},
		width:  meter.DefaultWidth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs s until it stops and returns the result.
//
// Start blocks. It returns an error only when the session was not Idle or the
// pipeline could not be built or started; in that case the session stays Idle
// and nothing is left running. Every other way a session can end, including
// pipeline errors, is reported through Result.Outcome with a nil error.
//
// Stopping conditions:
//   - end-of-stream → OutcomeCompleted
//   - DurationLimit elapsed → OutcomeTimedOut
//   - ctx cancelled or Session.Stop → OutcomeCancelled
//   - pipeline error → OutcomeFailed
//
// The first condition to reach the stop checkpoint wins; later ones are no-ops.
func (c *Controller) Start(ctx context.Context, s *Session) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if !s.claim() {
		return Result{}, ErrSessionNotIdle
	}
	if _, ok := logging.SessionIDFromContext(ctx); !ok {
		ctx = logging.ContextWithSessionID(ctx, s.ID)
	}
	logger := logging.WithContext(ctx, c.logger).With("device", s.DeviceID, "url", s.EndpointURL)

	desc, err := pipeline.Build(pipeline.RolePlayback, pipeline.DeviceAudio, pipeline.Transport{
		URL:           s.EndpointURL,
		LatencyMS:     c.params.LatencyMS,
		LevelInterval: c.params.LevelInterval,
		Protocols:     c.params.Protocols,
	})
	if err != nil {
		s.release()
		return Result{}, fmt.Errorf("%w: %v", ErrPipelineConstruction, err)
	}

	handle, err := c.engine.Open(desc.String())
	if err != nil {
		s.release()
		return Result{}, fmt.Errorf("%w: %v", ErrPipelineConstruction, err)
	}

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()
	events := handle.Subscribe(pumpCtx)

	if err := handle.SetState(PipelinePlaying); err != nil {
		cancelPump()
		if closeErr := handle.Close(); closeErr != nil {
			logger.Warn("session: failed to release pipeline", "error", closeErr)
		}
		s.release()
		return Result{}, fmt.Errorf("%w: set playing: %v", ErrPipelineConstruction, err)
	}

	started := c.clock.Now()
	timerC := s.begin(handle, c.clock, logger)
	logger.Info("session: session running", "duration_limit", s.DurationLimit, "pipeline", desc.String())

	c.loop(ctx, s, events, timerC)

	cancelPump()
	if err := handle.Close(); err != nil {
		logger.Warn("session: failed to release pipeline", "error", err)
	}
	if c.out != nil {
		fmt.Fprintln(c.out)
	}

	result := s.result(c.clock.Now().Sub(started))
	logger.Info("session: session stopped",
		"outcome", result.Outcome.String(),
		"samples", result.Samples,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (c *Controller) loop(ctx context.Context, s *Session, events <-chan Event, timerC <-chan time.Time) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop(OutcomeCancelled, nil)
		case <-timerC:
			s.stop(OutcomeTimedOut, nil)
		case ev, ok := <-events:
			if !ok {
				events = nil
				s.stop(OutcomeFailed, &PipelineError{Message: "event stream closed unexpectedly"})
				continue
			}
			c.handle(s, ev)
		}
	}
}

// handle processes one event. The state check and the work happen under the
// session lock, so an event that races a stop is dropped.
func (c *Controller) handle(s *Session, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}

	switch ev.Kind {
	case EventLevel:
		at := ev.At
		if at.IsZero() {
			at = c.clock.Now()
		}
		s.meter.Observe(ev.Peak)
		s.history = append(s.history, LevelSample{Peak: ev.Peak, At: at})
		if c.out != nil {
			bar := meter.Render(ev.Peak, s.meter.FixedMin, s.meter.ObservedMax, c.width)
			fmt.Fprintf(c.out, "\r%s", meter.Line(bar, c.styler))
		}

	case EventError:
		perr := ev.Err
		if perr == nil {
			perr = &PipelineError{Message: "unknown pipeline error", Source: ev.Source}
		}
		s.logger.Error("session: pipeline error",
			"category", perr.Category,
			"source", perr.Source,
			"error", perr.Message,
			"debug", perr.Debug,
		)
		s.stopLocked(OutcomeFailed, perr)

	case EventEOS:
		s.logger.Info("session: end of stream")
		s.stopLocked(OutcomeCompleted, nil)

	case EventWarning:
		if ev.Err != nil {
			s.logger.Warn("session: pipeline warning", "source", ev.Err.Source, "warning", ev.Err.Message)
		}

	case EventStateChanged:
		s.logger.Debug("session: pipeline state changed", "state", ev.State.String())

	default:
		s.logger.Debug("session: ignoring event", "kind", ev.Kind.String())
	}
}

// claim reserves an Idle session for one Start call.
func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle || s.claimed {
		return false
	}
	s.claimed = true
	return true
}

// release returns a claimed session to Idle after a construction failure.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimed = false
}

// begin moves the session to Running and arms the duration timer.
func (s *Session) begin(p Pipeline, clock Clock, logger *slog.Logger) <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = p
	s.logger = logger
	s.state = StateRunning
	if s.DurationLimit <= 0 {
		return nil
	}
	s.timer = clock.NewTimer(s.DurationLimit)
	return s.timer.C()
}

func (s *Session) result(elapsed time.Duration) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := make([]levelstats.Sample, len(s.history))
	for i, h := range s.history {
		samples[i] = levelstats.Sample{Peak: h.Peak, At: h.At}
	}
	res := Result{
		SessionID:   s.ID,
		DeviceID:    s.DeviceID,
		Outcome:     s.outcome,
		Samples:     len(s.history),
		ObservedMax: s.meter.ObservedMax,
		Elapsed:     elapsed,
		Stats:       levelstats.Summarize(samples, elapsed),
	}
	if s.outcome == OutcomeFailed {
		res.Err = s.cause
	}
	return res
}
