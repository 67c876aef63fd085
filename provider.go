package streamtester

import (
	"context"
	"time"
)

// Engine builds media pipelines from a textual description.
//
// Implementations must guarantee:
//   - Open does not start media flow; the pipeline starts in the null state
//   - a construction failure returns an error and no pipeline
type Engine interface {
	Open(description string) (Pipeline, error)
}

// Pipeline is a running media pipeline handle.
//
// Implementations must guarantee:
//   - SetState is safe to call from any goroutine
//   - Subscribe is called at most once; the channel closes after Close
//   - Close is idempotent and releases all engine resources
type Pipeline interface {
	// SetState requests a state transition.
	SetState(state PipelineState) error

	// Subscribe returns the stream of bus events. Delivery stops when ctx is
	// cancelled or the pipeline is closed.
	Subscribe(ctx context.Context) <-chan Event

	// Close halts the pipeline and releases it.
	Close() error
}

// Clock supplies time and timers to the controller.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTimer(d time.Duration) Timer { return systemTimer{time.NewTimer(d)} }

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }
