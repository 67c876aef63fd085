// Package streamtester monitors RTSP audio streams and renders their level as
// a live text meter.
//
// A Session describes one monitoring run against one endpoint. A Controller
// drives the session through Idle → Running → Stopped using an Engine that
// builds the media pipeline. The controller owns a single event loop; every
// terminating condition (error, end-of-stream, duration limit, cancellation,
// explicit Stop) goes through the same mutex-guarded stop checkpoint, so the
// pipeline is halted once and released once no matter how many conditions fire.
//
// # Quick Start
//
//	engine := gstengine.New(logger)
//	if err := engine.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Deinit()
//
//	session, err := streamtester.NewSession(streamtester.SessionConfig{
//	    DeviceID:      "mic-1",
//	    EndpointURL:   "rtsp://localhost:8554/mic-1",
//	    DurationLimit: 30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctrl := streamtester.NewController(engine, streamtester.WithDisplay(os.Stdout))
//	result, err := ctrl.Start(ctx, session)
//	if err != nil {
//	    log.Fatal(err) // pipeline could not be built; session is still Idle
//	}
//	log.Printf("outcome=%s samples=%d", result.Outcome, result.Samples)
//
// # Level Meter
//
// Each level message updates the running maximum and redraws a 40-cell bar
// scaled between a fixed floor (-60 dB by default) and the loudest peak seen
// so far. See package internal/meter for the rendering rules.
//
// # Outcomes
//
//   - OutcomeCompleted: the stream signalled end-of-stream
//   - OutcomeTimedOut: the duration limit elapsed
//   - OutcomeCancelled: Stop was called or the context was cancelled
//   - OutcomeFailed: the pipeline reported an error
//
// Only OutcomeFailed carries an error in Result.Err.
package streamtester
