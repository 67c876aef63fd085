package supervisor

import (
	"bytes"
	"log/slog"
	"sync"
)

// logWriter forwards child output to the logger one line at a time.
type logWriter struct {
	logger *slog.Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

func newLogWriter(logger *slog.Logger, stream string) *logWriter {
	return &logWriter{logger: logger, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		line := bytes.TrimSpace(w.buf[:idx])
		w.buf = w.buf[idx+1:]
		if len(line) == 0 {
			continue
		}
		w.logger.Debug(string(line), "stream", w.stream)
	}
	return len(p), nil
}

// flush logs any trailing output that did not end with a newline.
func (w *logWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := bytes.TrimSpace(w.buf)
	w.buf = nil
	if len(line) == 0 {
		return
	}
	w.logger.Debug(string(line), "stream", w.stream)
}
