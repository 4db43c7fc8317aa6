package core

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrCaptureCancelled is returned when a stop signal aborts background capture.
var ErrCaptureCancelled = errors.New("background capture cancelled")

// DimensionMismatchError reports a plate whose geometry differs from the live frame
type DimensionMismatchError struct {
	Frame         image.Point
	Plate         image.Point
	FrameChannels int
	PlateChannels int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: frame %dx%dx%d, plate %dx%dx%d",
		e.Frame.X, e.Frame.Y, e.FrameChannels, e.Plate.X, e.Plate.Y, e.PlateChannels)
}

// CaptureStalledError is returned when the source stops yielding readable
// frames for longer than the stall budget allows.
type CaptureStalledError struct {
	Captured int
	Wanted   int
	Attempts int // all reads
	Failures int // consecutive failed reads at the point of giving up
	Elapsed  time.Duration
}

func (e *CaptureStalledError) Error() string {
	return fmt.Sprintf("capture stalled: %d/%d frames, %d failed reads in a row (%d reads in %s)",
		e.Captured, e.Wanted, e.Failures, e.Attempts, e.Elapsed.Round(time.Millisecond))
}
