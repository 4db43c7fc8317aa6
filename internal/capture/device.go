// Package capture wraps gocv video capture devices and the HighGUI display window.
package capture

import (
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Device is an opened capture handle
type Device interface {
	// Read fills dst with the next frame and reports whether it succeeded.
	Read(dst *gocv.Mat) bool
	// Size is the frame size reported by the device after opening.
	Size() image.Point
	Close() error
}

// Opener opens capture devices
type Opener interface {
	Open(index, width, height int) (Device, error)
}

// DeviceUnavailableError is returned when a capture device cannot be opened
type DeviceUnavailableError struct {
	Device string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot open capture device %s: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("cannot open capture device %s", e.Device)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}

// VideoOpener opens cameras by index, or a video file when Source is set
type VideoOpener struct {
	Source string
	Logger logrus.FieldLogger
}

func NewVideoOpener(source string, logger logrus.FieldLogger) *VideoOpener {
	return &VideoOpener{Source: source, Logger: logger}
}

// Open requests width x height; the device may pick another size, which
// Size reports.
func (o *VideoOpener) Open(index, width, height int) (Device, error) {
	var target interface{} = index
	name := fmt.Sprintf("#%d", index)
	if o.Source != "" {
		target = o.Source
		name = o.Source
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, &DeviceUnavailableError{Device: name, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &DeviceUnavailableError{Device: name}
	}

	if o.Source == "" {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	dev := &videoDevice{vc: vc, name: name}
	size := dev.Size()
	o.Logger.WithFields(logrus.Fields{
		"device":           name,
		"requested_width":  width,
		"requested_height": height,
		"width":            size.X,
		"height":           size.Y,
	}).Info("Capture device opened")

	return dev, nil
}

type videoDevice struct {
	vc   *gocv.VideoCapture
	name string
}

func (d *videoDevice) Read(dst *gocv.Mat) bool {
	return d.vc.Read(dst)
}

func (d *videoDevice) Size() image.Point {
	return image.Pt(
		int(d.vc.Get(gocv.VideoCaptureFrameWidth)),
		int(d.vc.Get(gocv.VideoCaptureFrameHeight)),
	)
}

func (d *videoDevice) Close() error {
	return d.vc.Close()
}
