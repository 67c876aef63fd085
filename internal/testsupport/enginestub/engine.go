// Package enginestub provides in-memory Engine, Pipeline and Clock
// implementations for tests.
package enginestub

import (
	"context"
	"sync"
	"time"

	streamtester "github.com/e7canasta/orion-stream-tester"
)

// Engine records every pipeline it opens.
type Engine struct {
	// OpenErr fails Open when set.
	OpenErr error
	// OnOpen runs for each new pipeline before it is returned.
	OnOpen func(p *Pipeline)

	mu        sync.Mutex
	pipelines []*Pipeline
	inits     int
	deinits   int
}

// NewEngine creates an empty engine.
func NewEngine() *Engine { return &Engine{} }

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inits++
	return nil
}

func (e *Engine) Deinit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deinits++
}

func (e *Engine) Open(description string) (streamtester.Pipeline, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	p := NewPipeline(description)
	if e.OnOpen != nil {
		e.OnOpen(p)
	}
	e.mu.Lock()
	e.pipelines = append(e.pipelines, p)
	e.mu.Unlock()
	return p, nil
}

// Pipelines returns the pipelines opened so far.
func (e *Engine) Pipelines() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Pipeline, len(e.pipelines))
	copy(out, e.pipelines)
	return out
}

// Last returns the most recently opened pipeline or nil.
func (e *Engine) Last() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pipelines) == 0 {
		return nil
	}
	return e.pipelines[len(e.pipelines)-1]
}

// Lifecycle returns the Init and Deinit call counts.
func (e *Engine) Lifecycle() (inits, deinits int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inits, e.deinits
}

// Pipeline is a scripted pipeline. Events emitted before Subscribe are buffered.
type Pipeline struct {
	Description string
	// SetStateErr fails SetState when set.
	SetStateErr error

	events chan streamtester.Event

	mu     sync.Mutex
	states []streamtester.PipelineState
	closes int
}

// NewPipeline creates a pipeline with a buffered event channel.
func NewPipeline(description string) *Pipeline {
	return &Pipeline{Description: description, events: make(chan streamtester.Event, 64)}
}

func (p *Pipeline) SetState(state streamtester.PipelineState) error {
	if p.SetStateErr != nil {
		return p.SetStateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

func (p *Pipeline) Subscribe(ctx context.Context) <-chan streamtester.Event {
	return p.events
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// Emit queues ev for delivery.
func (p *Pipeline) Emit(ev streamtester.Event) {
	p.events <- ev
}

// EmitLevel queues a level event.
func (p *Pipeline) EmitLevel(peak float64) {
	p.Emit(streamtester.Event{Kind: streamtester.EventLevel, Peak: peak})
}

// EmitError queues an error event.
func (p *Pipeline) EmitError(message string) {
	p.Emit(streamtester.Event{
		Kind: streamtester.EventError,
		Err:  &streamtester.PipelineError{Category: "network", Message: message, Source: "rtspsrc0"},
	})
}

// EmitEOS queues an end-of-stream event.
func (p *Pipeline) EmitEOS() {
	p.Emit(streamtester.Event{Kind: streamtester.EventEOS})
}

// EmitState queues a state change event.
func (p *Pipeline) EmitState(state streamtester.PipelineState) {
	p.Emit(streamtester.Event{Kind: streamtester.EventStateChanged, State: state})
}

// CloseEvents closes the event channel, simulating a dead engine.
func (p *Pipeline) CloseEvents() {
	close(p.events)
}

// States returns the requested state transitions in order.
func (p *Pipeline) States() []streamtester.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]streamtester.PipelineState, len(p.states))
	copy(out, p.states)
	return out
}

// CloseCount returns how many times Close was called.
func (p *Pipeline) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// Pending returns the number of undelivered events.
func (p *Pipeline) Pending() int {
	return len(p.events)
}

var _ streamtester.Engine = (*Engine)(nil)
var _ streamtester.Pipeline = (*Pipeline)(nil)

// Clock is a manually advanced clock.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*Timer
	created chan *Timer
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, created: make(chan *Timer, 16)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) NewTimer(d time.Duration) streamtester.Timer {
	c.mu.Lock()
	t := &Timer{Duration: d, deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	c.mu.Unlock()

	select {
	case c.created <- t:
	default:
	}
	return t
}

// TimerCreated delivers each timer as it is created.
func (c *Clock) TimerCreated() <-chan *Timer { return c.created }

// Advance moves the clock forward and fires due timers.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := append([]*Timer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.fireIfDue(now)
	}
}

// Timer is a Clock timer.
type Timer struct {
	Duration time.Duration

	mu       sync.Mutex
	deadline time.Time
	ch       chan time.Time
	fired    bool
	stopped  bool
}

func (t *Timer) C() <-chan time.Time { return t.ch }

func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.fired && !t.stopped
	t.stopped = true
	return active
}

// Stopped reports whether Stop was called.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Timer) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped || now.Before(t.deadline) {
		return
	}
	t.fired = true
	t.ch <- now
}
