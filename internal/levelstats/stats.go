// Package levelstats summarizes the level messages received during a session.
package levelstats

import (
	"math"
	"time"
)

const (
	// rateStabilityThreshold is the maximum instantaneous-rate standard deviation
	// as a fraction of the mean rate.
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of the
	// expected interval between level messages.
	jitterStabilityThreshold = 0.20
)

// Sample is one level reading.
type Sample struct {
	Peak float64
	At   time.Time
}

// Summary describes the cadence and loudness of a sample series.
type Summary struct {
	Samples  int
	Duration time.Duration

	// Message rate in Hz.
	RateMean   float64
	RateStdDev float64
	RateMin    float64
	RateMax    float64

	// Jitter in seconds against the expected interval.
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64

	// Peak loudness in dB over finite readings.
	PeakMin  float64
	PeakMax  float64
	PeakMean float64

	IsStable bool
}

// Summarize computes cadence and loudness statistics. The stream is stable
// when the rate deviation stays under 15% of the mean rate and the mean jitter
// stays under 20% of the expected interval. Fewer than three samples are never
// stable.
func Summarize(samples []Sample, total time.Duration) Summary {
	n := len(samples)
	out := Summary{Samples: n, Duration: total}
	if n == 0 {
		return out
	}
	out.PeakMin, out.PeakMax, out.PeakMean = peakStats(samples)

	if total > 0 {
		out.RateMean = float64(n) / total.Seconds()
	}

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := samples[i].At.Sub(samples[i-1].At).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 || out.RateMean == 0 {
		return out
	}

	rates := make([]float64, len(intervals))
	for i, d := range intervals {
		rates[i] = 1.0 / d
	}
	out.RateMin, out.RateMax = rates[0], rates[0]
	var sumSquares float64
	for _, r := range rates {
		out.RateMin = math.Min(out.RateMin, r)
		out.RateMax = math.Max(out.RateMax, r)
		diff := r - out.RateMean
		sumSquares += diff * diff
	}
	out.RateStdDev = math.Sqrt(sumSquares / float64(len(rates)))

	expected := 1.0 / out.RateMean
	jitters := make([]float64, len(intervals))
	var jitterSum float64
	for i, d := range intervals {
		jitters[i] = math.Abs(d - expected)
		jitterSum += jitters[i]
		out.JitterMax = math.Max(out.JitterMax, jitters[i])
	}
	out.JitterMean = jitterSum / float64(len(jitters))
	var jitterSquares float64
	for _, j := range jitters {
		diff := j - out.JitterMean
		jitterSquares += diff * diff
	}
	out.JitterStdDev = math.Sqrt(jitterSquares / float64(len(jitters)))

	if n >= 3 {
		rateStable := out.RateStdDev < out.RateMean*rateStabilityThreshold
		jitterStable := out.JitterMean < expected*jitterStabilityThreshold
		out.IsStable = rateStable && jitterStable
	}
	return out
}

func peakStats(samples []Sample) (lo, hi, mean float64) {
	var sum float64
	var count int
	for _, s := range samples {
		if math.IsNaN(s.Peak) || math.IsInf(s.Peak, 0) {
			continue
		}
		if count == 0 {
			lo, hi = s.Peak, s.Peak
		}
		lo = math.Min(lo, s.Peak)
		hi = math.Max(hi, s.Peak)
		sum += s.Peak
		count++
	}
	if count == 0 {
		return 0, 0, 0
	}
	return lo, hi, sum / float64(count)
}
