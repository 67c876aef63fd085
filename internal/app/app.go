// Package app sequences the tester's operations for the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	streamtester "github.com/e7canasta/orion-stream-tester"
	"github.com/e7canasta/orion-stream-tester/internal/config"
	"github.com/e7canasta/orion-stream-tester/internal/logging"
	"github.com/e7canasta/orion-stream-tester/internal/meter"
	"github.com/e7canasta/orion-stream-tester/internal/pipeline"
	"github.com/e7canasta/orion-stream-tester/internal/probe"
	"github.com/e7canasta/orion-stream-tester/internal/report"
	"github.com/e7canasta/orion-stream-tester/internal/supervisor"
)

const (
	ExitOK      = 0
	ExitFailure = 1

	streamStartupGrace = 500 * time.Millisecond
)

// Engine is the media engine with its global lifecycle.
type Engine interface {
	streamtester.Engine
	Init() error
	Deinit()
}

// Spawner starts and stops helper processes.
type Spawner interface {
	Spawn(ctx context.Context, spec supervisor.CommandSpec) (*supervisor.Process, error)
	TerminateAll(ctx context.Context, grace time.Duration) error
}

// Options are the resolved command-line choices.
type Options struct {
	ConfigPath   string
	Env          config.Env
	StartServer  bool
	StreamDevice string
	DeviceType   string
	Protocol     string
	Monitor      bool
	// Duration bounds the monitor session; zero runs until interrupted.
	Duration    time.Duration
	TestURL     string
	TestTimeout time.Duration
	NoColor     bool
	// LaunchBinary replaces gst-launch-1.0 for device streams.
	LaunchBinary string
	// ReportPath appends each monitor result to a MsgPack report file.
	ReportPath string
	// ReadyBackoff tunes the server readiness check. Zero selects the defaults.
	ReadyBackoff supervisor.BackoffConfig

	Stdout io.Writer
	Logger *slog.Logger
}

type runner struct {
	opts    Options
	cfg     *config.Config
	engine  Engine
	spawner Spawner
	out     io.Writer
	logger  *slog.Logger
	procs   []*supervisor.Process
}

// Run executes the operations selected in opts and returns the process exit
// code. Only configuration, engine or server startup failures are fatal;
// every other failure is reported and the run continues.
func Run(ctx context.Context, opts Options, engine Engine, spawner Spawner) int {
	r := &runner{opts: opts, engine: engine, spawner: spawner, out: opts.Stdout, logger: opts.Logger}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		r.logger.Error("app: failed to load configuration", "path", opts.ConfigPath, "error", err)
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return ExitFailure
	}
	if err := cfg.ApplyEnv(opts.Env); err != nil {
		r.logger.Error("app: invalid environment override", "error", err)
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return ExitFailure
	}
	r.cfg = cfg

	if err := engine.Init(); err != nil {
		r.logger.Error("app: failed to initialize media engine", "error", err)
		return ExitFailure
	}
	defer engine.Deinit()
	defer r.teardown()

	running := false
	if opts.StartServer && ctx.Err() == nil {
		if err := r.startServer(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				r.interrupted()
				return ExitOK
			}
			fmt.Fprintf(r.out, "Failed to start RTSP server: %v\n", err)
			return ExitFailure
		}
		running = true
	}

	if opts.TestURL != "" && ctx.Err() == nil {
		r.testURL(ctx, opts.TestURL)
	}

	var streamURL string
	if opts.StreamDevice != "" && ctx.Err() == nil {
		url, spawned := r.streamDevice(ctx)
		streamURL = url
		running = running || spawned
	}

	if ctx.Err() != nil {
		r.interrupted()
		return ExitOK
	}

	switch {
	case opts.Monitor && streamURL != "":
		r.monitor(ctx, streamURL)
	case opts.Monitor:
		fmt.Fprintf(r.out, "Monitoring needs a resolvable --stream-device; nothing to monitor\n")
	case running:
		fmt.Fprintf(r.out, "Press Ctrl+C to stop\n")
		<-ctx.Done()
	}
	if ctx.Err() != nil {
		r.interrupted()
	}
	return ExitOK
}

func (r *runner) interrupted() {
	fmt.Fprintf(r.out, "\nReceived interrupt signal, shutting down...\n")
}

func (r *runner) startServer(ctx context.Context) error {
	rtsp := r.cfg.Protocols.RTSP
	if rtsp == nil {
		return config.ErrNoRTSPServer
	}
	port := r.cfg.ServerPort()
	spec := pipeline.ServerCommand(pipeline.ServerParams{
		Binary:       rtsp.ServerBinary,
		ConfigFile:   rtsp.ConfigFile,
		Port:         port,
		StartupGrace: r.cfg.StartupGrace(),
	}, nil)

	proc, err := r.spawner.Spawn(ctx, spec)
	if err != nil {
		return err
	}
	r.procs = append(r.procs, proc)
	fmt.Fprintf(r.out, "RTSP server started (pid %d, %s)\n", proc.Pid, spec.Path)

	backoff := r.opts.ReadyBackoff
	if backoff == (supervisor.BackoffConfig{}) {
		backoff = supervisor.DefaultBackoffConfig()
	}
	addr := net.JoinHostPort(r.cfg.Host(), strconv.Itoa(port))
	if err := supervisor.WaitReady(ctx, addr, backoff); err != nil {
		r.logger.Warn("app: RTSP server is not accepting connections yet", "addr", addr, "error", err)
	}
	return nil
}

func (r *runner) testURL(ctx context.Context, url string) {
	timeout := r.opts.TestTimeout
	fmt.Fprintf(r.out, "Testing RTSP URL: %s\n", url)

	hs, err := probe.Handshake(ctx, url, timeout)
	if err != nil {
		fmt.Fprintf(r.out, "  Handshake:  FAILED (%v)\n", err)
	} else {
		fmt.Fprintf(r.out, "  Handshake:  OK (status %d, %d media, %s)\n", hs.StatusCode, len(hs.Medias), hs.Elapsed.Round(time.Millisecond))
		r.printHandshake(hs)
	}

	res, err := probe.Pipeline(ctx, r.engine, url, timeout)
	if err != nil {
		fmt.Fprintf(r.out, "  Pipeline:   FAILED (%v)\n", err)
		return
	}
	fmt.Fprintf(r.out, "  Pipeline:   PLAYING after %s\n", res.Elapsed.Round(time.Millisecond))
}

func (r *runner) printHandshake(hs *probe.HandshakeResult) {
	for _, m := range hs.Medias {
		fmt.Fprintf(r.out, "    %-6s %v\n", m.Type, m.Codecs)
	}
	if !hs.HasAudio() {
		r.logger.Warn("app: stream advertises no audio media", "url", hs.URL, "medias", len(hs.Medias))
		fmt.Fprintf(r.out, "  Warning:    no audio media advertised; the level monitor needs an audio track\n")
	}
}

// streamDevice resolves the device endpoint and publishes the device to it.
// The URL is returned whenever resolution succeeds, even if the publisher
// failed to start, so that an externally served endpoint can still be monitored.
func (r *runner) streamDevice(ctx context.Context) (string, bool) {
	o := r.opts
	deviceType, err := pipeline.ParseDeviceType(o.DeviceType)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return "", false
	}
	ep, err := r.cfg.Resolve(o.StreamDevice, string(deviceType), o.Protocol)
	if err != nil {
		fmt.Fprintf(r.out, "Cannot stream %s device %s: %v\n", deviceType, o.StreamDevice, err)
		return "", false
	}
	url := ep.URL()

	desc, err := pipeline.Build(pipeline.RoleCapture, deviceType, pipeline.Transport{
		Host:   ep.Host,
		Port:   ep.Port,
		Source: ep.Source,
	})
	if err != nil {
		fmt.Fprintf(r.out, "Cannot build capture pipeline for %s: %v\n", o.StreamDevice, err)
		return url, false
	}
	spec := pipeline.LaunchCommand(o.StreamDevice, o.LaunchBinary, desc)
	spec.StartupGrace = streamStartupGrace

	proc, err := r.spawner.Spawn(ctx, spec)
	if err != nil {
		r.logger.Error("app: failed to start device stream", "device", o.StreamDevice, "error", err)
		fmt.Fprintf(r.out, "Failed to stream %s: %v\n", o.StreamDevice, err)
		return url, false
	}
	r.procs = append(r.procs, proc)
	fmt.Fprintf(r.out, "Streaming %s device %s at %s (pid %d)\n", deviceType, o.StreamDevice, url, proc.Pid)
	return url, true
}

func (r *runner) monitor(ctx context.Context, url string) {
	session, err := streamtester.NewSession(streamtester.SessionConfig{
		DeviceID:      r.opts.StreamDevice,
		EndpointURL:   url,
		DurationLimit: r.opts.Duration,
		FloorDB:       r.cfg.Monitor.FloorDB,
	})
	if err != nil {
		fmt.Fprintf(r.out, "Cannot monitor %s: %v\n", url, err)
		return
	}

	var styler meter.Styler = meter.PlainStyler{}
	if !r.opts.NoColor {
		styler = meter.NewColorStyler(r.out)
	}
	ctrl := streamtester.NewController(r.engine,
		streamtester.WithDisplay(r.out),
		streamtester.WithStyler(styler),
		streamtester.WithMeterWidth(r.cfg.Monitor.MeterWidth),
		streamtester.WithLogger(r.logger),
		streamtester.WithMonitorParams(streamtester.MonitorParams{
			LatencyMS:     r.cfg.Monitor.LatencyMS,
			LevelInterval: r.cfg.Monitor.LevelInterval,
			Protocols:     r.cfg.Monitor.Transport,
		}),
	)

	if r.opts.Duration > 0 {
		fmt.Fprintf(r.out, "Monitoring %s for %s\n", url, r.opts.Duration)
	} else {
		fmt.Fprintf(r.out, "Monitoring %s until interrupted\n", url)
	}
	ctx = logging.ContextWithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, r.logger)
	res, err := ctrl.Start(ctx, session)
	if err != nil {
		fmt.Fprintf(r.out, "Cannot monitor %s: %v\n", url, err)
		return
	}
	r.printSummary(res)

	if r.opts.ReportPath != "" {
		rec := report.FromResult(res, url, time.Now())
		if err := report.Append(r.opts.ReportPath, rec); err != nil {
			logger.Warn("app: failed to write session report", "path", r.opts.ReportPath, "error", err)
		} else {
			fmt.Fprintf(r.out, "Report appended to %s\n", r.opts.ReportPath)
		}
	}
}

func (r *runner) printSummary(res streamtester.Result) {
	peak := "n/a"
	if !math.IsInf(res.ObservedMax, -1) {
		peak = fmt.Sprintf("%.2f dB", res.ObservedMax)
	}
	fmt.Fprintf(r.out, "\n")
	fmt.Fprintf(r.out, "╭─────────────────────────────────────────────────────────╮\n")
	fmt.Fprintf(r.out, "│ Monitor Session %s\n", res.SessionID)
	fmt.Fprintf(r.out, "├─────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(r.out, "│ Outcome:            %s\n", res.Outcome)
	fmt.Fprintf(r.out, "│ Duration:           %6.1f seconds\n", res.Elapsed.Seconds())
	fmt.Fprintf(r.out, "│ Level Messages:     %6d\n", res.Samples)
	fmt.Fprintf(r.out, "│ Message Rate:       %6.2f Hz\n", res.Stats.RateMean)
	fmt.Fprintf(r.out, "│ Jitter Mean:        %6.3f s\n", res.Stats.JitterMean)
	fmt.Fprintf(r.out, "│ Peak Max:           %s\n", peak)
	fmt.Fprintf(r.out, "│ Stable:             %6v\n", res.Stats.IsStable)
	if res.Err != nil {
		fmt.Fprintf(r.out, "│ Error:              %v\n", res.Err)
	}
	fmt.Fprintf(r.out, "╰─────────────────────────────────────────────────────────╯\n")

	var perr *streamtester.PipelineError
	if errors.As(res.Err, &perr) && perr.Debug != "" {
		r.logger.Debug("app: pipeline error detail", "debug", perr.Debug)
	}
}

func (r *runner) teardown() {
	r.logProcesses()
	if err := r.spawner.TerminateAll(context.Background(), r.cfg.StopGrace()); err != nil {
		r.logger.Warn("app: failed to stop helper processes", "error", err)
	}
}

// logProcesses records the resource usage of each helper before it is stopped.
func (r *runner) logProcesses() {
	for _, p := range r.procs {
		snap, err := p.Snapshot()
		if errors.Is(err, supervisor.ErrNotRunning) {
			r.logger.Warn("app: helper process already exited", "name", p.Name, "pid", p.Pid)
			continue
		}
		if err != nil {
			r.logger.Debug("app: helper process snapshot failed", "name", p.Name, "error", err)
			continue
		}
		r.logger.Info("app: helper process status",
			"name", p.Name,
			"pid", snap.Pid,
			"cpu_percent", snap.CPUPercent,
			"rss_bytes", snap.RSSBytes,
		)
	}
}
