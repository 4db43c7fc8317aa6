// Session metrics: compose timings and mask coverage
package metrics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of most recent frames kept for statistics
const DefaultWindow = 1000

// Summary describes the composed frames of one session
type Summary struct {
	Frames        int
	FPS           float64
	MeanComposeMs float64
	StdComposeMs  float64
	MeanCoverage  float64
	MaxCoverage   float64
}

// Fields renders the summary for structured logging
func (s Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"frames":          s.Frames,
		"fps":             s.FPS,
		"mean_compose_ms": s.MeanComposeMs,
		"std_compose_ms":  s.StdComposeMs,
		"mean_coverage":   s.MeanCoverage,
		"max_coverage":    s.MaxCoverage,
	}
}

// Recorder accumulates per-frame samples. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	window   int
	frames   int
	first    time.Time
	last     time.Time
	compose  []float64
	coverage []float64
}

func NewRecorder(window int) *Recorder {
	if window < 1 {
		window = DefaultWindow
	}
	return &Recorder{window: window}
}

// Record adds one composed frame observed now
func (r *Recorder) Record(compose time.Duration, coverage float64) {
	r.RecordAt(time.Now(), compose, coverage)
}

// RecordAt adds one composed frame observed at ts
func (r *Recorder) RecordAt(ts time.Time, compose time.Duration, coverage float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frames == 0 {
		r.first = ts
	}
	r.last = ts
	r.frames++

	r.compose = appendWindow(r.compose, float64(compose)/float64(time.Millisecond), r.window)
	r.coverage = appendWindow(r.coverage, coverage, r.window)
}

// Summary computes statistics over the retained window; Frames and FPS
// cover the whole session.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Frames: r.frames}
	if r.frames == 0 {
		return s
	}

	if elapsed := r.last.Sub(r.first).Seconds(); elapsed > 0 {
		s.FPS = float64(r.frames-1) / elapsed
	}

	s.MeanComposeMs, s.StdComposeMs = stat.MeanStdDev(r.compose, nil)
	if len(r.compose) < 2 {
		s.StdComposeMs = 0
	}
	s.MeanCoverage = stat.Mean(r.coverage, nil)
	s.MaxCoverage = floats.Max(r.coverage)

	return s
}

func appendWindow(samples []float64, v float64, window int) []float64 {
	if len(samples) == window {
		copy(samples, samples[1:])
		samples = samples[:window-1]
	}
	return append(samples, v)
}
