package core

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type bgr [3]uint8

var (
	gray  = bgr{128, 128, 128}
	red   = bgr{0, 0, 255}
	green = bgr{0, 255, 0}
	blue  = bgr{255, 0, 0}
)

// pixels is a row-major BGR grid used to build test frames.
type pixels struct {
	w, h int
	data []byte
}

func newPixels(w, h int, fill bgr) *pixels {
	p := &pixels{w: w, h: h, data: make([]byte, w*h*3)}
	p.fill(image.Rect(0, 0, w, h), fill)
	return p
}

func (p *pixels) set(x, y int, c bgr) {
	i := (y*p.w + x) * 3
	copy(p.data[i:i+3], c[:])
}

func (p *pixels) fill(r image.Rectangle, c bgr) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			p.set(x, y, c)
		}
	}
}

func (p *pixels) mat(t *testing.T) gocv.Mat {
	t.Helper()
	m, err := gocv.NewMatFromBytes(p.h, p.w, gocv.MatTypeCV8UC3, append([]byte(nil), p.data...))
	require.NoError(t, err)
	return m
}

func at(m gocv.Mat, x, y int) bgr {
	return bgr{m.GetUCharAt(y, x*3), m.GetUCharAt(y, x*3+1), m.GetUCharAt(y, x*3+2)}
}
