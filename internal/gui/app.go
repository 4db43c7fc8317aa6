// Control window: start/stop buttons and the status line
package gui

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"invisible-cloak/internal/metrics"
	"invisible-cloak/internal/notify"
	"invisible-cloak/internal/session"
)

// Controller is the part of session.Controller the window drives
type Controller interface {
	Start() error
	Stop() error
	State() session.State
	Subscribe() <-chan session.Event
	LastStats() metrics.Summary
}

// Application owns the control window. Widgets are only touched on the
// fyne goroutine; worker state arrives as session events.
type Application struct {
	app    fyne.App
	window fyne.Window
	logger logrus.FieldLogger

	controller Controller
	notifier   *DialogNotifier

	startBtn *widget.Button
	stopBtn  *widget.Button
	status   *widget.Label
	stats    *widget.Label

	// stopping is set once Stop is pressed and cleared on Idle
	stopping bool
}

func NewApplication(app fyne.App, logger logrus.FieldLogger) *Application {
	window := app.NewWindow("Invisible Cloak")
	window.SetFixedSize(true)

	a := &Application{
		app:    app,
		window: window,
		logger: logger,
	}
	a.notifier = NewDialogNotifier(window, notify.NewTerminal(logger), logger)
	a.buildUI()

	return a
}

// Notifier returns the notifier bound to the control window
func (a *Application) Notifier() *DialogNotifier {
	return a.notifier
}

// Attach wires the window to a controller and starts following its events
func (a *Application) Attach(ctrl Controller) {
	a.controller = ctrl
	a.apply(session.Event{State: ctrl.State(), Message: "Ready"})

	events := ctrl.Subscribe()
	go func() {
		for ev := range events {
			fyne.Do(func() {
				a.apply(ev)
			})
		}
	}()
}

func (a *Application) buildUI() {
	header := canvas.NewText("Welcome to Invisible Cloak Effect", theme.Color(theme.ColorNameForeground))
	header.TextSize = 18
	header.TextStyle = fyne.TextStyle{Bold: true}
	header.Alignment = fyne.TextAlignCenter

	a.startBtn = widget.NewButton("Start", a.onStart)
	a.startBtn.Importance = widget.HighImportance
	a.stopBtn = widget.NewButton("Stop", a.onStop)
	a.stopBtn.Disable()

	a.status = widget.NewLabel("Ready")
	a.status.Alignment = fyne.TextAlignCenter
	a.status.Wrapping = fyne.TextWrapWord

	a.stats = widget.NewLabel("")
	a.stats.Alignment = fyne.TextAlignCenter
	a.stats.Importance = widget.LowImportance

	buttons := container.NewGridWithColumns(2, a.startBtn, a.stopBtn)

	content := container.NewVBox(
		container.NewPadded(header),
		widget.NewSeparator(),
		container.NewPadded(buttons),
		a.status,
		a.stats,
		layout.NewSpacer(),
	)

	a.window.SetContent(content)
	a.window.Resize(fyne.NewSize(460, 200))
}

func (a *Application) onStart() {
	if a.controller == nil {
		return
	}
	a.startBtn.Disable()
	a.stopBtn.Enable()
	a.status.SetText("Starting... Preparing camera.")

	if err := a.controller.Start(); err != nil {
		a.logger.WithError(err).Warn("Start rejected")
		a.status.SetText(fmt.Sprintf("Cannot start: %v", err))
		a.apply(session.Event{State: a.controller.State(), Message: a.status.Text})
	}
}

func (a *Application) onStop() {
	if a.controller == nil {
		return
	}
	a.stopping = true
	a.stopBtn.Disable()
	a.status.SetText("Stopping...")

	// Stop waits for the worker; keep the UI goroutine free.
	go func() {
		err := a.controller.Stop()
		if errors.Is(err, session.ErrStopTimeout) {
			fyne.Do(func() {
				dialog.ShowInformation("Still stopping",
					"The camera worker has not finished yet. Start will be available once it exits.", a.window)
			})
		}
	}()
}

// apply updates the widgets for ev. Start is only re-enabled on Idle, and
// Stop stays disabled from the first stop request until then.
func (a *Application) apply(ev session.Event) {
	if ev.Message != "" {
		a.status.SetText(ev.Message)
	}
	if ev.Err != nil && ev.State == session.Idle {
		a.status.SetText(fmt.Sprintf("Ready (last session: %v)", ev.Err))
	}

	switch ev.State {
	case session.Idle:
		a.stopping = false
		a.startBtn.Enable()
		a.stopBtn.Disable()
		a.stats.SetText(formatStats(a.controller.LastStats()))
	case session.CapturingBackground, session.Running:
		a.startBtn.Disable()
		if a.stopping {
			a.stopBtn.Disable()
		} else {
			a.stopBtn.Enable()
		}
	case session.Stopping:
		a.stopping = true
		a.startBtn.Disable()
		a.stopBtn.Disable()
	}
}

func formatStats(s metrics.Summary) string {
	if s.Frames == 0 {
		return ""
	}
	return fmt.Sprintf("Last session: %d frames, %.1f fps, %.1f ms/frame, %.0f%% cloaked on average",
		s.Frames, s.FPS, s.MeanComposeMs, s.MeanCoverage*100)
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing control window")

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})

	a.window.CenterOnScreen()
	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	if a.controller == nil {
		return
	}
	if err := a.controller.Stop(); err != nil {
		a.logger.WithError(err).Warn("Session did not stop cleanly on exit")
	}
}
