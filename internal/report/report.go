// Package report persists monitor session results as MsgPack records.
//
// A report file is a sequence of frames. Each frame is a 4 byte big-endian
// length followed by one MsgPack encoded Record, so several sessions can be
// appended to the same file and read back in order.
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	streamtester "github.com/e7canasta/orion-stream-tester"
)

// MaxRecordSize bounds a single frame when reading.
const MaxRecordSize = 1 << 20

var ErrRecordTooLarge = errors.New("report: record too large")

// Record is the persisted form of a monitor session.
type Record struct {
	SessionID  string    `msgpack:"session_id"`
	DeviceID   string    `msgpack:"device_id"`
	URL        string    `msgpack:"url"`
	Outcome    string    `msgpack:"outcome"`
	Error      string    `msgpack:"error,omitempty"`
	FinishedAt time.Time `msgpack:"finished_at"`
	ElapsedMS  int64     `msgpack:"elapsed_ms"`
	Samples    int       `msgpack:"samples"`

	// PeakMax is nil when no finite level was observed.
	PeakMax *float64 `msgpack:"peak_max"`

	RateMean   float64 `msgpack:"rate_mean_hz"`
	RateStdDev float64 `msgpack:"rate_stddev_hz"`
	JitterMean float64 `msgpack:"jitter_mean_s"`
	JitterMax  float64 `msgpack:"jitter_max_s"`
	Stable     bool    `msgpack:"stable"`
}

// FromResult converts a session result into a record.
func FromResult(res streamtester.Result, url string, finishedAt time.Time) Record {
	rec := Record{
		SessionID:  res.SessionID,
		DeviceID:   res.DeviceID,
		URL:        url,
		Outcome:    res.Outcome.String(),
		FinishedAt: finishedAt.UTC(),
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Samples:    res.Samples,
		RateMean:   res.Stats.RateMean,
		RateStdDev: res.Stats.RateStdDev,
		JitterMean: res.Stats.JitterMean,
		JitterMax:  res.Stats.JitterMax,
		Stable:     res.Stats.IsStable,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if !math.IsInf(res.ObservedMax, 0) && !math.IsNaN(res.ObservedMax) {
		peak := res.ObservedMax
		rec.PeakMax = &peak
	}
	return rec
}

// Write encodes rec as one length-prefixed frame.
func Write(w io.Writer, rec Record) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal report record: %w", err)
	}
	if len(data) > MaxRecordSize {
		return ErrRecordTooLarge
	}

	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(data)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report record: %w", err)
	}
	return nil
}

// ReadAll decodes every frame until a clean end of stream.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	lengthBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, lengthBuf); err != nil {
			if err == io.EOF {
				return records, nil
			}
			return records, fmt.Errorf("failed to read length prefix: %w", err)
		}

		n := binary.BigEndian.Uint32(lengthBuf)
		if n > MaxRecordSize {
			return records, ErrRecordTooLarge
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return records, fmt.Errorf("failed to read report record: %w", err)
		}

		var rec Record
		if err := msgpack.Unmarshal(data, &rec); err != nil {
			return records, fmt.Errorf("failed to unmarshal report record: %w", err)
		}
		records = append(records, rec)
	}
}

// Append adds rec to the report file at path, creating it if needed.
func Append(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	if err := Write(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads every record from the report file at path.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}
