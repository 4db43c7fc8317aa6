// Package session runs the capture-and-composite worker behind start/stop controls.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"invisible-cloak/internal/capture"
	"invisible-cloak/internal/config"
	"invisible-cloak/internal/core"
	"invisible-cloak/internal/metrics"
	"invisible-cloak/internal/notify"
	"invisible-cloak/internal/palette"
)

const subscriberBuffer = 32

// Display presents composed frames. Show reports whether the user asked
// to quit from the display surface.
type Display interface {
	Show(label string, frame gocv.Mat) bool
	Close()
}

// PlateWriter persists the background plate of each session
type PlateWriter interface {
	WritePlate(plate gocv.Mat) error
}

// Options are the per-session parameters
type Options struct {
	Ranges           []palette.Range
	BackgroundFrames int
	ProgressEvery    int
	Mirror           bool

	DeviceIndex int
	FrameWidth  int
	FrameHeight int

	CaptureMaxAttempts int
	CaptureTimeout     time.Duration
	StopTimeout        time.Duration

	WindowLabel string
}

// OptionsFromConfig resolves the target color and copies the session settings
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	ranges, err := cfg.Ranges()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Ranges:             ranges,
		BackgroundFrames:   cfg.BackgroundFrames,
		ProgressEvery:      cfg.ProgressEvery,
		Mirror:             cfg.Mirror,
		DeviceIndex:        cfg.Capture.DeviceIndex,
		FrameWidth:         cfg.Capture.FrameWidth,
		FrameHeight:        cfg.Capture.FrameHeight,
		CaptureMaxAttempts: cfg.Session.CaptureMaxAttempts,
		CaptureTimeout:     cfg.Session.CaptureTimeout,
		StopTimeout:        cfg.Session.StopTimeout,
		WindowLabel:        cfg.WindowLabel,
	}, nil
}

// Dependencies are the external collaborators of the controller
type Dependencies struct {
	Opener   capture.Opener
	Display  Display
	Notifier notify.Notifier
	Plates   PlateWriter // optional
	Logger   logrus.FieldLogger
}

// Controller owns at most one worker goroutine. The stop flag is the only
// state shared with the worker; the device and the plate belong to the
// worker for the whole session.
type Controller struct {
	opts Options
	deps Dependencies

	state atomic.Int32
	stop  atomic.Bool

	// mu guards done, last and stats. It is never held across device calls.
	mu    sync.Mutex
	done  chan struct{}
	last  Event
	stats metrics.Summary

	subMu sync.Mutex
	subs  []chan Event
}

func NewController(opts Options, deps Dependencies) (*Controller, error) {
	if len(opts.Ranges) == 0 {
		return nil, fmt.Errorf("no color ranges configured")
	}
	if opts.BackgroundFrames < 1 {
		return nil, fmt.Errorf("background frame count must be positive, got %d", opts.BackgroundFrames)
	}
	if opts.StopTimeout <= 0 {
		return nil, fmt.Errorf("stop timeout must be positive")
	}
	if deps.Opener == nil || deps.Display == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("opener, display and notifier are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	closed := make(chan struct{})
	close(closed)

	c := &Controller{opts: opts, deps: deps, done: closed}
	c.last = Event{State: Idle, Message: "Ready", Time: time.Now()}
	return c, nil
}

// State returns the current state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Status returns the most recent event, for callers that poll
func (c *Controller) Status() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastStats returns the metrics of the most recently finished session
func (c *Controller) LastStats() metrics.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Done is closed when the current (or last) worker has exited
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Subscribe returns a channel receiving every subsequent event. Events are
// dropped for subscribers that fall behind.
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	c.subMu.Lock()
	c.subs = append(c.subs, ch)
	c.subMu.Unlock()
	return ch
}

// Start launches a session. It returns ErrBusy unless the controller is Idle.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(Idle), int32(CapturingBackground)) {
		return ErrBusy
	}

	c.stop.Store(false)
	done := make(chan struct{})
	c.done = done

	id := uuid.NewString()
	c.publishLocked(CapturingBackground, "Starting... Preparing camera.", nil)
	go c.run(id, done)

	return nil
}

// Stop signals the worker and waits up to the stop timeout for it to
// exit. On timeout it returns ErrStopTimeout and the controller stays out
// of Idle until the worker does finish.
func (c *Controller) Stop() error {
	done := c.Done()
	select {
	case <-done:
		return nil
	default:
	}

	c.stop.Store(true)
	c.state.CompareAndSwap(int32(Running), int32(Stopping))
	c.publishActive("Stopping...", nil)

	timer := time.NewTimer(c.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	select {
	case <-done:
		return nil
	default:
	}
	c.deps.Logger.WithFields(logrus.Fields{
		"state":   c.State().String(),
		"timeout": c.opts.StopTimeout.String(),
	}).Warn("Worker did not acknowledge stop")
	c.publishActive("Worker still stopping; start stays disabled until it exits.", ErrStopTimeout)
	return ErrStopTimeout
}

func (c *Controller) stopped() bool {
	return c.stop.Load()
}

func (c *Controller) run(id string, done chan struct{}) {
	log := c.deps.Logger.WithField("session_id", id)
	recorder := metrics.NewRecorder(metrics.DefaultWindow)

	var sessErr error
	defer close(done)
	defer func() { c.finish(log, recorder, sessErr) }()
	defer func() {
		if r := recover(); r != nil {
			sessErr = fmt.Errorf("session worker panic: %v", r)
			log.WithError(sessErr).Error("Recovered from worker panic")
			c.publish(c.State(), "Internal error; session stopped.", sessErr)
		}
	}()

	compositor, err := core.NewCompositor(c.opts.Ranges)
	if err != nil {
		sessErr = err
		c.fail(log, "Cannot prepare compositor", err)
		return
	}
	defer compositor.Close()

	dev, err := c.deps.Opener.Open(c.opts.DeviceIndex, c.opts.FrameWidth, c.opts.FrameHeight)
	if err != nil {
		var unavailable *capture.DeviceUnavailableError
		if !errors.As(err, &unavailable) {
			err = &capture.DeviceUnavailableError{Device: fmt.Sprintf("#%d", c.opts.DeviceIndex), Err: err}
		}
		sessErr = err
		c.fail(log, "Cannot open camera. Check camera index or permissions.", err)
		return
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.WithError(err).Warn("Capture device release failed")
		}
		log.Debug("Capture device released")
	}()

	plate, err := c.captureBackground(log, dev)
	if err != nil {
		if errors.Is(err, core.ErrCaptureCancelled) {
			return
		}
		sessErr = err
		c.fail(log, "Background capture failed.", err)
		return
	}
	defer plate.Close()

	if c.deps.Plates != nil {
		if err := c.deps.Plates.WritePlate(plate); err != nil {
			log.WithError(err).Warn("Plate snapshot failed")
			c.publish(c.State(), fmt.Sprintf("Could not save background snapshot: %v", err), err)
		}
	}

	if !c.state.CompareAndSwap(int32(CapturingBackground), int32(Running)) || c.stopped() {
		return
	}
	c.publish(Running, "Background ready. Starting invisibility effect.", nil)
	c.deps.Notifier.Ready()

	defer c.deps.Display.Close()
	sessErr = c.composeLoop(log, dev, plate, compositor, recorder)
}

func (c *Controller) captureBackground(log logrus.FieldLogger, dev capture.Device) (gocv.Mat, error) {
	c.publish(CapturingBackground, "Capturing background frames. Please step out of the frame or keep cloak out.", nil)

	est := core.NewEstimator(c.opts.BackgroundFrames, log)
	est.Mirror = c.opts.Mirror
	est.MaxAttempts = c.opts.CaptureMaxAttempts
	est.MaxDuration = c.opts.CaptureTimeout
	est.ProgressEvery = c.opts.ProgressEvery
	est.Progress = func(captured, total int) {
		c.publish(CapturingBackground, fmt.Sprintf("Captured %d/%d background frames", captured, total), nil)
	}

	return est.Estimate(dev, c.stopped)
}

func (c *Controller) composeLoop(log logrus.FieldLogger, dev capture.Device, plate gocv.Mat, compositor *core.Compositor, recorder *metrics.Recorder) error {
	raw := gocv.NewMat()
	defer raw.Close()
	mirrored := gocv.NewMat()
	defer mirrored.Close()

	for !c.stopped() {
		if ok := dev.Read(&raw); !ok || raw.Empty() {
			log.Warn("Capture read failed, ending session")
			c.publish(Running, "Failed to read frame from camera.", nil)
			return nil
		}

		frame := raw
		if c.opts.Mirror {
			core.Mirror(raw, &mirrored)
			frame = mirrored
		}

		start := time.Now()
		composite, err := compositor.Compose(frame, plate)
		if err != nil {
			composite.Close()
			c.fail(log, "Compositing failed.", err)
			return err
		}
		recorder.Record(time.Since(start), composite.Coverage)

		quit := c.deps.Display.Show(c.opts.WindowLabel, composite.Output)
		composite.Close()

		if quit {
			log.Info("Quit requested from display")
			c.stop.Store(true)
		}
	}

	c.state.CompareAndSwap(int32(Running), int32(Stopping))
	return nil
}

// fail reports a session-ending error on the status line and the notifier.
func (c *Controller) fail(log logrus.FieldLogger, message string, err error) {
	log.WithError(err).Error(message)
	c.publish(c.State(), message, err)
	c.deps.Notifier.Error(message, err)
}

func (c *Controller) finish(log logrus.FieldLogger, recorder *metrics.Recorder, err error) {
	summary := recorder.Summary()

	c.mu.Lock()
	c.stats = summary
	c.state.Store(int32(Idle))
	c.publishLocked(Idle, "Ready", err)
	c.mu.Unlock()

	log.WithFields(summary.Fields()).Info("Session ended")
}

func (c *Controller) publish(state State, message string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(state, message, err)
}

// publishActive publishes with the current state unless the worker has
// already returned to Idle. finish moves to Idle under mu, so the final
// "Ready" event is never followed by a stale one.
func (c *Controller) publishActive(message string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.State(); st != Idle {
		c.publishLocked(st, message, err)
	}
}

func (c *Controller) publishLocked(state State, message string, err error) {
	ev := Event{State: state, Message: message, Err: err, Time: time.Now()}
	c.last = ev

	entry := c.deps.Logger.WithField("state", state.String())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info(message)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.deps.Logger.Debug("Dropping event for slow subscriber")
		}
	}
}
