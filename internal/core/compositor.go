// Frame compositor: substitutes cloak-colored pixels with the background plate
package core

import (
	"fmt"

	"gocv.io/x/gocv"

	"invisible-cloak/internal/algorithms"
	"invisible-cloak/internal/palette"
)

const (
	kernelSize       = 3
	openIterations   = 2
	dilateIterations = 1
)

// Composite is one composed output frame plus the share of pixels taken from the plate
type Composite struct {
	Output   gocv.Mat
	Coverage float64
}

func (c *Composite) Close() {
	c.Output.Close()
}

type hsvBounds struct {
	lower gocv.Scalar
	upper gocv.Scalar
}

// Compositor holds the active color ranges and structuring elements.
// It is not safe for concurrent use.
type Compositor struct {
	ranges  []hsvBounds
	opening *algorithms.Morphology
	dilate  *algorithms.Morphology
}

// NewCompositor builds a compositor for a non-empty sequence of ranges
func NewCompositor(ranges []palette.Range) (*Compositor, error) {
	if len(ranges) == 0 {
		return nil, fmt.Errorf("compositor needs at least one color range")
	}

	opening, err := algorithms.NewOpening(kernelSize, openIterations)
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	dilate, err := algorithms.NewDilation(kernelSize, dilateIterations)
	if err != nil {
		opening.Close()
		return nil, fmt.Errorf("dilation: %w", err)
	}

	c := &Compositor{opening: opening, dilate: dilate}
	for _, r := range ranges {
		c.ranges = append(c.ranges, hsvBounds{
			lower: gocv.NewScalar(float64(r.Lower[0]), float64(r.Lower[1]), float64(r.Lower[2]), 0),
			upper: gocv.NewScalar(float64(r.Upper[0]), float64(r.Upper[1]), float64(r.Upper[2]), 0),
		})
	}
	return c, nil
}

// Mask returns the cleaned single-channel mask of frame: 255 where the
// pixel matches any active range after opening and dilation, 0 elsewhere.
func (c *Compositor) Mask(frame gocv.Mat) (gocv.Mat, error) {
	if err := ValidateFrame(frame); err != nil {
		return gocv.NewMat(), fmt.Errorf("live frame: %w", err)
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	raw := gocv.NewMat()
	defer raw.Close()

	part := gocv.NewMat()
	defer part.Close()

	for i, r := range c.ranges {
		if i == 0 {
			gocv.InRangeWithScalar(hsv, r.lower, r.upper, &raw)
			continue
		}
		gocv.InRangeWithScalar(hsv, r.lower, r.upper, &part)
		gocv.BitwiseOr(raw, part, &raw)
	}

	opened, err := c.opening.Apply(raw)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("mask %s: %w", c.opening.Name(), err)
	}
	defer opened.Close()

	mask, err := c.dilate.Apply(opened)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("mask %s: %w", c.dilate.Name(), err)
	}
	return mask, nil
}

// Compose builds the output frame: plate pixels where the mask is set,
// live pixels elsewhere. frame and plate must share geometry.
func (c *Compositor) Compose(frame, plate gocv.Mat) (Composite, error) {
	if err := SameGeometry(frame, plate); err != nil {
		return Composite{Output: gocv.NewMat()}, err
	}

	mask, err := c.Mask(frame)
	if err != nil {
		return Composite{Output: gocv.NewMat()}, err
	}
	defer mask.Close()

	inverse := gocv.NewMat()
	defer inverse.Close()
	gocv.BitwiseNot(mask, &inverse)

	// mask and inverse partition the frame, so each output pixel is
	// written exactly once.
	output := gocv.NewMatWithSize(frame.Rows(), frame.Cols(), frame.Type())
	frame.CopyToWithMask(&output, inverse)
	plate.CopyToWithMask(&output, mask)

	total := frame.Rows() * frame.Cols()
	coverage := float64(gocv.CountNonZero(mask)) / float64(total)

	return Composite{Output: output, Coverage: coverage}, nil
}

// Close releases the structuring elements
func (c *Compositor) Close() {
	c.opening.Close()
	c.dilate.Close()
}
