// Package probe checks whether an RTSP endpoint is serving media.
//
// Handshake talks RTSP directly (OPTIONS then DESCRIBE) and reports the
// advertised media. Pipeline builds a throwaway engine pipeline and waits for
// it to reach PLAYING, which also proves the media path works.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"

	streamtester "github.com/e7canasta/orion-stream-tester"
	"github.com/e7canasta/orion-stream-tester/internal/pipeline"
)

// DefaultTimeout bounds a probe when the caller passes zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when the endpoint does not answer in time.
	ErrTimeout = errors.New("probe: timed out")
	// ErrNoStream is returned when the stream ends before it starts playing.
	ErrNoStream = errors.New("probe: stream ended before playing")
)

// Media is one media section advertised by the server.
type Media struct {
	Type   string
	Codecs []string
}

// HandshakeResult is what the server advertised.
type HandshakeResult struct {
	URL        string
	StatusCode int
	Methods    []string
	Medias     []Media
	Elapsed    time.Duration
}

// HasAudio reports whether an audio media section was advertised.
func (r *HandshakeResult) HasAudio() bool {
	for _, m := range r.Medias {
		if m.Type == "audio" {
			return true
		}
	}
	return false
}

// Handshake runs OPTIONS and DESCRIBE against rawURL.
func Handshake(ctx context.Context, rawURL string, timeout time.Duration) (*HandshakeResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("probe: parse url: %w", err)
	}

	type outcome struct {
		res *HandshakeResult
		err error
	}
	ch := make(chan outcome, 1)
	start := time.Now()

	go func() {
		c := gortsplib.Client{ReadTimeout: timeout, WriteTimeout: timeout}
		if err := c.Start(u.Scheme, u.Host); err != nil {
			ch <- outcome{err: fmt.Errorf("probe: connect %s: %w", u.Host, err)}
			return
		}
		defer c.Close()

		res := &HandshakeResult{URL: rawURL}
		opts, err := c.Options(u)
		if err != nil {
			ch <- outcome{err: fmt.Errorf("probe: OPTIONS: %w", err)}
			return
		}
		for _, v := range opts.Header["Public"] {
			for _, m := range strings.Split(v, ",") {
				if m = strings.TrimSpace(m); m != "" {
					res.Methods = append(res.Methods, m)
				}
			}
		}

		desc, resp, err := c.Describe(u)
		if err != nil {
			ch <- outcome{err: fmt.Errorf("probe: DESCRIBE: %w", err)}
			return
		}
		res.StatusCode = int(resp.StatusCode)
		for _, medi := range desc.Medias {
			m := Media{Type: string(medi.Type)}
			for _, f := range medi.Formats {
				m.Codecs = append(m.Codecs, f.Codec())
			}
			res.Medias = append(res.Medias, m)
		}
		res.Elapsed = time.Since(start)
		ch <- outcome{res: res}
	}()

	// The client's own timeouts bound the goroutine after an early return.
	timer := time.NewTimer(timeout*2 + time.Second)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: handshake with %s", ErrTimeout, u.Host)
	}
}

// PipelineResult reports a successful pipeline probe.
type PipelineResult struct {
	URL     string
	Elapsed time.Duration
}

// Pipeline opens a probe pipeline for rawURL and waits until it plays,
// fails, ends or times out. The pipeline is always released.
func Pipeline(ctx context.Context, engine streamtester.Engine, rawURL string, timeout time.Duration) (*PipelineResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	desc, err := pipeline.Build(pipeline.RoleProbe, pipeline.DeviceAudio, pipeline.Transport{URL: rawURL})
	if err != nil {
		return nil, err
	}
	handle, err := engine.Open(desc.String())
	if err != nil {
		return nil, fmt.Errorf("probe: open pipeline: %w", err)
	}
	defer handle.Close()

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	events := handle.Subscribe(pctx)

	start := time.Now()
	if err := handle.SetState(streamtester.PipelinePlaying); err != nil {
		return nil, fmt.Errorf("probe: start pipeline: %w", err)
	}

	for {
		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s did not play within %v", ErrTimeout, rawURL, timeout)
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: %s did not play within %v", ErrTimeout, rawURL, timeout)
			}
			switch ev.Kind {
			case streamtester.EventStateChanged:
				if ev.State == streamtester.PipelinePlaying {
					return &PipelineResult{URL: rawURL, Elapsed: time.Since(start)}, nil
				}
			case streamtester.EventError:
				if ev.Err != nil {
					return nil, ev.Err
				}
				return nil, &streamtester.PipelineError{Message: "unknown pipeline error"}
			case streamtester.EventEOS:
				return nil, ErrNoStream
			}
		}
	}
}
