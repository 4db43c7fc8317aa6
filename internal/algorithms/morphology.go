// Morphological operators for cleaning binary masks
package algorithms

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// MorphOp selects the morphological operator
type MorphOp int

const (
	OpErode MorphOp = iota
	OpDilate
	OpOpen  // erosion followed by dilation
	OpClose // dilation followed by erosion
)

func (op MorphOp) String() string {
	switch op {
	case OpErode:
		return "erosion"
	case OpDilate:
		return "dilation"
	case OpOpen:
		return "opening"
	case OpClose:
		return "closing"
	default:
		return fmt.Sprintf("morph(%d)", int(op))
	}
}

// Morphology applies one operator with a square structuring element.
// For opening and closing, Iterations counts passes of each half, so an
// opening with two iterations erodes twice and then dilates twice.
type Morphology struct {
	Op         MorphOp
	KernelSize int
	Iterations int

	kernel gocv.Mat
}

// NewMorphology creates an operator and its structuring element
func NewMorphology(op MorphOp, kernelSize, iterations int) (*Morphology, error) {
	m := &Morphology{Op: op, KernelSize: kernelSize, Iterations: iterations}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.kernel = gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kernelSize, kernelSize))
	return m, nil
}

// NewOpening creates a rectangular opening
func NewOpening(kernelSize, iterations int) (*Morphology, error) {
	return NewMorphology(OpOpen, kernelSize, iterations)
}

// NewDilation creates a rectangular dilation
func NewDilation(kernelSize, iterations int) (*Morphology, error) {
	return NewMorphology(OpDilate, kernelSize, iterations)
}

func (m *Morphology) Name() string {
	return m.Op.String()
}

func (m *Morphology) Validate() error {
	if m.KernelSize < 1 || m.KernelSize > 15 {
		return fmt.Errorf("kernel_size must be between 1 and 15")
	}
	if m.KernelSize%2 == 0 {
		return fmt.Errorf("kernel_size must be odd, got %d", m.KernelSize)
	}
	if m.Iterations < 1 || m.Iterations > 10 {
		return fmt.Errorf("iterations must be between 1 and 10")
	}
	switch m.Op {
	case OpErode, OpDilate, OpOpen, OpClose:
	default:
		return fmt.Errorf("unknown operator: %s", m.Op)
	}
	return nil
}

// Apply returns a new Mat; the input is left untouched.
func (m *Morphology) Apply(input gocv.Mat) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}
	if m.kernel.Empty() {
		return gocv.NewMat(), fmt.Errorf("%s: kernel not initialized", m.Name())
	}

	switch m.Op {
	case OpErode:
		return repeat(input, m.kernel, m.Iterations, erode), nil
	case OpDilate:
		return repeat(input, m.kernel, m.Iterations, dilate), nil
	case OpOpen:
		eroded := repeat(input, m.kernel, m.Iterations, erode)
		defer eroded.Close()
		return repeat(eroded, m.kernel, m.Iterations, dilate), nil
	case OpClose:
		dilated := repeat(input, m.kernel, m.Iterations, dilate)
		defer dilated.Close()
		return repeat(dilated, m.kernel, m.Iterations, erode), nil
	default:
		return gocv.NewMat(), fmt.Errorf("unknown operator: %s", m.Op)
	}
}

// Close releases the structuring element
func (m *Morphology) Close() {
	if !m.kernel.Empty() {
		m.kernel.Close()
		m.kernel = gocv.NewMat()
	}
}

func erode(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
	gocv.Erode(src, dst, kernel)
}

func dilate(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) {
	gocv.Dilate(src, dst, kernel)
}

func repeat(input, kernel gocv.Mat, iterations int, step func(gocv.Mat, *gocv.Mat, gocv.Mat)) gocv.Mat {
	output := gocv.NewMat()
	step(input, &output, kernel)

	for i := 1; i < iterations; i++ {
		temp := gocv.NewMat()
		step(output, &temp, kernel)
		output.Close()
		output = temp
	}

	return output
}
