package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/orion-stream-tester/internal/app"
	"github.com/e7canasta/orion-stream-tester/internal/config"
	"github.com/e7canasta/orion-stream-tester/internal/gstengine"
	"github.com/e7canasta/orion-stream-tester/internal/logging"
	"github.com/e7canasta/orion-stream-tester/internal/supervisor"
)

// Version information
const version = "v0.1.0"

const defaultConfigPath = "config/device_streams.yaml"

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitFailure)
	}

	configPath := defaultConfigPath
	if env.ConfigPath != "" {
		configPath = env.ConfigPath
	}
	logLevel := env.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := env.LogFormat
	if logFormat == "" {
		logFormat = "text"
	}

	// Parse command-line flags
	cfgPath := flag.String("config", configPath, "Path to the device stream configuration")
	startServer := flag.Bool("start-server", false, "Start the RTSP server")
	streamDevice := flag.String("stream-device", "", "Device ID to stream")
	deviceType := flag.String("device-type", "audio", "Device type: audio, video")
	protocol := flag.String("protocol", "rtsp", "Streaming protocol: rtsp, webrtc, hls")
	monitor := flag.Bool("monitor", false, "Monitor audio levels of the streamed device")
	duration := flag.Int("duration", 30, "Monitoring duration in seconds (0 = until interrupted)")
	testURL := flag.String("test-url", "", "Probe an RTSP URL")
	testTimeout := flag.Duration("test-timeout", 5*time.Second, "Timeout for --test-url probes")
	launchBinary := flag.String("gst-launch", "", "Override the gst-launch-1.0 binary used for device streams")
	debug := flag.Bool("debug", false, "Enable debug logging")
	format := flag.String("log-format", logFormat, "Log format: text, json")
	reportPath := flag.String("report", "", "Append monitor results to a MsgPack report file")
	noColor := flag.Bool("no-color", false, "Disable colored level meter")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("stream-tester %s\n", version)
		os.Exit(app.ExitOK)
	}

	if *duration < 0 {
		fmt.Fprintf(os.Stderr, "Error: --duration must be >= 0\n\n")
		flag.PrintDefaults()
		os.Exit(app.ExitFailure)
	}
	if !*startServer && *streamDevice == "" && *testURL == "" {
		fmt.Fprintf(os.Stderr, "Error: nothing to do\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  stream-tester --start-server --stream-device default-mic --monitor\n")
		fmt.Fprintf(os.Stderr, "  stream-tester --test-url rtsp://localhost:8554/default-mic\n\n")
		flag.PrintDefaults()
		os.Exit(app.ExitFailure)
	}

	if *debug {
		logLevel = "debug"
	}
	logger := logging.Init(logging.Config{Level: logLevel, Format: *format})

	// Print banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║              RTSP Stream Tester - Orion                   ║\n")
	fmt.Printf("║                      Version %s                       ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := gstengine.New(logging.WithComponent(logger, "gstengine"))
	sup := supervisor.New(logging.WithComponent(logger, "supervisor"))

	code := app.Run(ctx, app.Options{
		ConfigPath:   *cfgPath,
		Env:          env,
		StartServer:  *startServer,
		StreamDevice: *streamDevice,
		DeviceType:   *deviceType,
		Protocol:     *protocol,
		Monitor:      *monitor,
		Duration:     time.Duration(*duration) * time.Second,
		TestURL:      *testURL,
		TestTimeout:  *testTimeout,
		NoColor:      *noColor,
		LaunchBinary: *launchBinary,
		ReportPath:   *reportPath,
		Stdout:       os.Stdout,
		Logger:       logging.WithComponent(logger, "app"),
	}, engine, sup)

	stop()
	os.Exit(code)
}
