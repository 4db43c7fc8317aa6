// Frame geometry checks shared by the estimator and compositor
package core

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const maxDimension = 16384

// ValidateFrame checks that mat is a usable 8-bit, 3-channel frame
func ValidateFrame(mat gocv.Mat) error {
	if mat.Empty() {
		return fmt.Errorf("frame is empty")
	}

	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", mat.Cols(), mat.Rows())
	}

	if mat.Cols() > maxDimension || mat.Rows() > maxDimension {
		return fmt.Errorf("frame too large: %dx%d (max: %d)", mat.Cols(), mat.Rows(), maxDimension)
	}

	if mat.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("unsupported frame type %v, want 8-bit 3-channel", mat.Type())
	}

	return nil
}

// FrameSize returns the width/height of mat
func FrameSize(mat gocv.Mat) image.Point {
	return image.Pt(mat.Cols(), mat.Rows())
}

// SameGeometry fails with DimensionMismatchError unless frame and plate
// share width, height and channel count.
func SameGeometry(frame, plate gocv.Mat) error {
	if frame.Cols() == plate.Cols() && frame.Rows() == plate.Rows() && frame.Channels() == plate.Channels() {
		return nil
	}
	return &DimensionMismatchError{
		Frame:         FrameSize(frame),
		Plate:         FrameSize(plate),
		FrameChannels: frame.Channels(),
		PlateChannels: plate.Channels(),
	}
}

// Mirror flips src around the vertical axis into dst.
func Mirror(src gocv.Mat, dst *gocv.Mat) {
	gocv.Flip(src, dst, 1)
}
