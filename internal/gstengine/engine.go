// Package gstengine implements the tester's Engine on GStreamer.
package gstengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	streamtester "github.com/e7canasta/orion-stream-tester"
)

// busPollInterval bounds how long the bus pump blocks before checking for shutdown.
const busPollInterval = 50 * time.Millisecond

// Engine opens GStreamer pipelines from launch descriptions.
type Engine struct {
	logger *slog.Logger
	once   sync.Once
}

// New creates an engine. Call Init before Open.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Init initializes GStreamer. Repeated calls are no-ops.
func (e *Engine) Init() error {
	e.once.Do(func() {
		gst.Init(nil)
		e.logger.Debug("gst: gstreamer initialized")
	})
	return nil
}

// Deinit releases GStreamer global state. No pipeline may be used afterwards.
func (e *Engine) Deinit() {
	gst.Deinit()
}

// Open parses description into a pipeline left in the null state.
func (e *Engine) Open(description string) (streamtester.Pipeline, error) {
	if err := e.Init(); err != nil {
		return nil, err
	}
	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("gstengine: parse pipeline: %w", err)
	}
	name := pipeline.GetName()
	return &Pipeline{
		pipeline: pipeline,
		name:     name,
		closing:  make(chan struct{}),
		logger:   e.logger.With("pipeline", name),
	}, nil
}

// Pipeline wraps a gst.Pipeline and pumps its bus into events.
type Pipeline struct {
	pipeline *gst.Pipeline
	name     string
	logger   *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// SetState requests a state change.
func (p *Pipeline) SetState(state streamtester.PipelineState) error {
	gs, err := toGstState(state)
	if err != nil {
		return err
	}
	if err := p.pipeline.SetState(gs); err != nil {
		return fmt.Errorf("gstengine: set state %s: %w", state, err)
	}
	return nil
}

// Subscribe starts the bus pump. The channel closes when ctx is cancelled or
// the pipeline is closed.
func (p *Pipeline) Subscribe(ctx context.Context) <-chan streamtester.Event {
	out := make(chan streamtester.Event, 16)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)

		bus := p.pipeline.GetPipelineBus()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			default:
			}

			msg := bus.TimedPop(busPollInterval)
			if msg == nil {
				continue
			}
			ev, ok := p.translate(msg)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-p.closing:
				return
			}
		}
	}()
	return out
}

// Close stops the bus pump and sets the pipeline to null.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.wg.Wait()
		if err := p.pipeline.SetState(gst.StateNull); err != nil {
			p.closeErr = fmt.Errorf("gstengine: release pipeline: %w", err)
			return
		}
		p.logger.Debug("gst: pipeline released")
	})
	return p.closeErr
}
