package capture

import (
	"gocv.io/x/gocv"
)

// HighGUIDisplay shows frames in an OpenCV window. Pressing q in the
// window requests a quit.
type HighGUIDisplay struct {
	window *gocv.Window
}

func NewHighGUIDisplay() *HighGUIDisplay {
	return &HighGUIDisplay{}
}

// Show presents frame and reports whether the user asked to quit.
func (d *HighGUIDisplay) Show(label string, frame gocv.Mat) bool {
	if d.window == nil {
		d.window = gocv.NewWindow(label)
	}
	d.window.IMShow(frame)
	return d.window.WaitKey(1)&0xFF == 'q'
}

// Close destroys the window; the next Show opens a fresh one.
func (d *HighGUIDisplay) Close() {
	if d.window != nil {
		d.window.Close()
		d.window = nil
	}
}
