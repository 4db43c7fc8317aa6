package gui

import (
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// OutputWindow renders composed frames in a fyne window. Typing q or
// closing the window requests a quit.
type OutputWindow struct {
	app    fyne.App
	logger logrus.FieldLogger
	quit   atomic.Bool

	// UI goroutine only
	window fyne.Window
	image  *canvas.Image
}

func NewOutputWindow(app fyne.App, logger logrus.FieldLogger) *OutputWindow {
	return &OutputWindow{app: app, logger: logger}
}

// Show converts frame on the calling goroutine and hands the image to the
// UI goroutine.
func (o *OutputWindow) Show(label string, frame gocv.Mat) bool {
	img, err := frame.ToImage()
	if err != nil {
		o.logger.WithError(err).Warn("Failed to convert frame for display")
		return o.quit.Load()
	}

	fyne.Do(func() {
		if o.window == nil {
			o.create(label, img.Bounds().Dx(), img.Bounds().Dy())
		}
		o.window.SetTitle(label)
		o.image.Image = img
		o.image.Refresh()
	})

	return o.quit.Load()
}

func (o *OutputWindow) create(label string, width, height int) {
	o.image = canvas.NewImageFromImage(nil)
	o.image.FillMode = canvas.ImageFillContain
	o.image.ScaleMode = canvas.ImageScaleFastest

	w := o.app.NewWindow(label)
	w.SetContent(o.image)
	w.Resize(fyne.NewSize(float32(width), float32(height)))
	w.Canvas().SetOnTypedRune(o.typedRune)
	w.SetCloseIntercept(func() {
		o.requestQuit("window closed")
		w.Hide()
	})
	w.SetOnClosed(func() {
		o.requestQuit("window closed")
		o.window = nil
		o.image = nil
	})
	w.Show()
	o.window = w
}

func (o *OutputWindow) typedRune(r rune) {
	if r == 'q' || r == 'Q' {
		o.requestQuit("q pressed")
	}
}

func (o *OutputWindow) requestQuit(reason string) {
	if !o.quit.Swap(true) {
		o.logger.WithField("reason", reason).Info("Quit requested from output window")
	}
}

// Close tears down the window and clears any pending quit request.
func (o *OutputWindow) Close() {
	o.quit.Store(false)
	fyne.Do(func() {
		if o.window == nil {
			return
		}
		w := o.window
		o.window = nil
		o.image = nil
		w.SetOnClosed(nil)
		w.Close()
	})
}
