// Background estimation: per-pixel median over a run of captured frames
package core

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// FrameSource yields frames; Read reports false on a failed acquisition.
type FrameSource interface {
	Read(dst *gocv.Mat) bool
}

// Estimator collects Frames good frames and reduces them to a background plate.
type Estimator struct {
	Frames int
	Mirror bool

	// Stall budget: consecutive failed reads, and time since the last good
	// frame (or since the start). Both reset on every good frame, so a long
	// capture from a healthy source never trips them. A zero value disables
	// that limit; at least one should be set for sources that can stop
	// yielding frames.
	MaxAttempts int
	MaxDuration time.Duration

	// Progress is called every ProgressEvery captured frames.
	ProgressEvery int
	Progress      func(captured, total int)

	Logger logrus.FieldLogger

	now func() time.Time
}

// NewEstimator returns an estimator with the default progress granularity
func NewEstimator(frames int, logger logrus.FieldLogger) *Estimator {
	return &Estimator{
		Frames:        frames,
		Mirror:        true,
		ProgressEvery: 10,
		Logger:        logger,
	}
}

// Estimate reads from src until Frames good frames are collected, then
// returns their median. stopped is polled before every read; once it
// reports true the capture is abandoned with ErrCaptureCancelled. The
// caller owns src and the returned plate.
func (e *Estimator) Estimate(src FrameSource, stopped func() bool) (gocv.Mat, error) {
	if e.Frames < 1 {
		return gocv.NewMat(), fmt.Errorf("background frame count must be positive, got %d", e.Frames)
	}

	now := e.now
	if now == nil {
		now = time.Now
	}

	frames := make([]gocv.Mat, 0, e.Frames)
	defer func() {
		for i := range frames {
			frames[i].Close()
		}
	}()

	raw := gocv.NewMat()
	defer raw.Close()

	start := now()
	lastGood := start
	attempts, failures := 0, 0

	for len(frames) < e.Frames {
		if stopped != nil && stopped() {
			e.log().WithField("captured", len(frames)).Info("Background capture cancelled")
			return gocv.NewMat(), ErrCaptureCancelled
		}

		if t := now(); e.exhausted(failures, t.Sub(lastGood)) {
			return gocv.NewMat(), &CaptureStalledError{
				Captured: len(frames),
				Wanted:   e.Frames,
				Attempts: attempts,
				Failures: failures,
				Elapsed:  t.Sub(start),
			}
		}

		attempts++
		if ok := src.Read(&raw); !ok || raw.Empty() {
			failures++
			continue
		}
		failures = 0
		lastGood = now()

		frame := gocv.NewMat()
		if e.Mirror {
			Mirror(raw, &frame)
		} else {
			raw.CopyTo(&frame)
		}

		if len(frames) > 0 {
			if err := SameGeometry(frame, frames[0]); err != nil {
				frame.Close()
				return gocv.NewMat(), fmt.Errorf("capture source changed geometry: %w", err)
			}
		}
		frames = append(frames, frame)

		captured := len(frames)
		if e.ProgressEvery > 0 && captured%e.ProgressEvery == 0 && e.Progress != nil {
			e.Progress(captured, e.Frames)
		}
	}

	e.log().WithFields(logrus.Fields{
		"frames":   len(frames),
		"attempts": attempts,
		"elapsed":  now().Sub(start).String(),
	}).Debug("Background frames collected, computing median")

	return MedianPlate(frames)
}

func (e *Estimator) exhausted(failures int, idle time.Duration) bool {
	if e.MaxAttempts > 0 && failures >= e.MaxAttempts {
		return true
	}
	if e.MaxDuration > 0 && idle >= e.MaxDuration {
		return true
	}
	return false
}

func (e *Estimator) log() logrus.FieldLogger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

// MedianPlate computes the per-pixel, per-channel median of frames,
// rounded to the nearest channel value. All frames must share geometry.
func MedianPlate(frames []gocv.Mat) (gocv.Mat, error) {
	if len(frames) == 0 {
		return gocv.NewMat(), fmt.Errorf("no frames to reduce")
	}
	for i := range frames {
		if err := ValidateFrame(frames[i]); err != nil {
			return gocv.NewMat(), fmt.Errorf("frame %d: %w", i, err)
		}
		if err := SameGeometry(frames[i], frames[0]); err != nil {
			return gocv.NewMat(), fmt.Errorf("frame %d: %w", i, err)
		}
	}

	data := make([][]byte, len(frames))
	for i := range frames {
		data[i] = frames[i].ToBytes()
	}

	n := len(data)
	out := make([]byte, len(data[0]))
	samples := make([]byte, n)

	for px := range out {
		for i := 0; i < n; i++ {
			samples[i] = data[i][px]
		}
		slices.Sort(samples)

		if n%2 == 1 {
			out[px] = samples[n/2]
			continue
		}
		mid := (float64(samples[n/2-1]) + float64(samples[n/2])) / 2
		out[px] = uint8(math.Round(mid))
	}

	return gocv.NewMatFromBytes(frames[0].Rows(), frames[0].Cols(), frames[0].Type(), out)
}
