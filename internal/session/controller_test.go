package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invisible-cloak/internal/capture"
	"invisible-cloak/internal/config"
	"invisible-cloak/internal/core"
	"invisible-cloak/internal/palette"
)

const waitFor = 5 * time.Second

type fixture struct {
	ctrl     *Controller
	opener   *mockOpener
	device   *mockDevice
	display  *mockDisplay
	notifier *mockNotifier
	plates   *mockPlates
}

func newFixture(t *testing.T, frames int, tweak func(*Options, *fixture)) *fixture {
	t.Helper()

	ranges, err := palette.Lookup("red")
	require.NoError(t, err)

	f := &fixture{
		device:   &mockDevice{delay: time.Millisecond},
		display:  &mockDisplay{},
		notifier: &mockNotifier{},
		plates:   &mockPlates{},
	}
	f.opener = &mockOpener{dev: f.device}

	opts := Options{
		Ranges:             ranges,
		BackgroundFrames:   frames,
		ProgressEvery:      10,
		Mirror:             true,
		FrameWidth:         frameSide,
		FrameHeight:        frameSide,
		CaptureMaxAttempts: 10000,
		StopTimeout:        waitFor,
		WindowLabel:        "test",
	}
	if tweak != nil {
		tweak(&opts, f)
	}

	logger, _ := test.NewNullLogger()
	ctrl, err := NewController(opts, Dependencies{
		Opener:   f.opener,
		Display:  f.display,
		Notifier: f.notifier,
		Plates:   f.plates,
		Logger:   logger,
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("worker did not finish")
	}
}

// drain collects buffered events without blocking.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func messages(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.Message)
		b.WriteString("\n")
	}
	return b.String()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "capturing_background", CapturingBackground.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestNewController_Validates(t *testing.T) {
	_, err := NewController(Options{}, Dependencies{})
	assert.Error(t, err)

	ranges, _ := palette.Lookup("blue")
	_, err = NewController(Options{Ranges: ranges, BackgroundFrames: 1, StopTimeout: time.Second}, Dependencies{})
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TargetColor = "blue"
	cfg.Capture.DeviceIndex = 1

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Len(t, opts.Ranges, 1)
	assert.Equal(t, 1, opts.DeviceIndex)
	assert.Equal(t, 60, opts.BackgroundFrames)
	assert.Equal(t, "Invisible Cloak Output", opts.WindowLabel)

	cfg.TargetColor = "teal"
	_, err = OptionsFromConfig(cfg)
	var unsupported *palette.UnsupportedColorError
	assert.True(t, errors.As(err, &unsupported))
}

func TestStop_WhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, 5, nil)

	assert.NoError(t, f.ctrl.Stop())
	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, "Ready", f.ctrl.Status().Message)
}

func TestStart_DeviceUnavailable(t *testing.T) {
	f := newFixture(t, 5, func(_ *Options, f *fixture) {
		f.opener.err = errNoCamera
	})
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	waitDone(t, f.ctrl.Done())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(1), f.opener.opens.Load())
	assert.Equal(t, int32(0), f.device.releases.Load())

	_, errs := f.notifier.counts()
	require.Len(t, errs, 1)
	var unavailable *capture.DeviceUnavailableError
	require.True(t, errors.As(errs[0], &unavailable))
	assert.ErrorIs(t, errs[0], errNoCamera)

	evs := drain(events)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, Idle, last.State)
	assert.True(t, errors.As(last.Err, &unavailable))
	assert.Contains(t, messages(evs), "Cannot open camera")

	// recoverable by retrying
	f.opener.err = nil
	require.NoError(t, f.ctrl.Start())
	require.NoError(t, f.ctrl.Stop())
}

func TestStop_DuringBackgroundCapture(t *testing.T) {
	f := newFixture(t, 100000, nil)

	require.NoError(t, f.ctrl.Start())
	require.Eventually(t, func() bool { return f.device.reads.Load() > 5 }, waitFor, time.Millisecond)
	assert.Equal(t, CapturingBackground, f.ctrl.State())

	require.NoError(t, f.ctrl.Stop())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, f.opener.opens.Load(), f.device.releases.Load())
	assert.Equal(t, int32(0), f.display.shows.Load())
	assert.Equal(t, int32(0), f.plates.writes.Load())

	readies, errs := f.notifier.counts()
	assert.Zero(t, readies)
	assert.Empty(t, errs)
}

func TestRun_ComposesUntilStopped(t *testing.T) {
	f := newFixture(t, 3, nil)
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	require.Eventually(t, func() bool { return f.display.shows.Load() >= 5 }, waitFor, time.Millisecond)
	assert.Equal(t, Running, f.ctrl.State())

	require.NoError(t, f.ctrl.Stop())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(1), f.device.releases.Load())
	assert.Equal(t, int32(1), f.display.closes.Load())
	assert.Equal(t, int32(1), f.plates.writes.Load())

	readies, errs := f.notifier.counts()
	assert.Equal(t, 1, readies)
	assert.Empty(t, errs)

	stats := f.ctrl.LastStats()
	assert.GreaterOrEqual(t, stats.Frames, 5)
	assert.Zero(t, stats.MaxCoverage)

	evs := drain(events)
	text := messages(evs)
	assert.Contains(t, text, "Capturing background frames")
	assert.Contains(t, text, "Background ready. Starting invisibility effect.")
	assert.Contains(t, text, "Stopping...")

	var sawStopping bool
	for _, ev := range evs {
		sawStopping = sawStopping || ev.State == Stopping
	}
	assert.True(t, sawStopping)
	assert.Equal(t, Idle, evs[len(evs)-1].State)
	assert.NoError(t, evs[len(evs)-1].Err)
}

func TestRun_ReportsProgress(t *testing.T) {
	f := newFixture(t, 20, func(o *Options, _ *fixture) {
		o.ProgressEvery = 10
	})
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	require.Eventually(t, func() bool { return f.ctrl.State() == Running }, waitFor, time.Millisecond)
	require.NoError(t, f.ctrl.Stop())

	text := messages(drain(events))
	assert.Contains(t, text, "Captured 10/20 background frames")
	assert.Contains(t, text, "Captured 20/20 background frames")
}

func TestRun_ReadFailureEndsSession(t *testing.T) {
	f := newFixture(t, 3, func(_ *Options, f *fixture) {
		f.device.failAfter = 6
	})
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	waitDone(t, f.ctrl.Done())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(3), f.display.shows.Load())
	assert.Equal(t, int32(1), f.device.releases.Load())
	assert.Equal(t, int32(1), f.display.closes.Load())

	_, errs := f.notifier.counts()
	assert.Empty(t, errs)
	assert.Contains(t, messages(drain(events)), "Failed to read frame from camera.")
	assert.Equal(t, 3, f.ctrl.LastStats().Frames)
}

func TestRun_DisplayQuitStopsSession(t *testing.T) {
	f := newFixture(t, 2, func(_ *Options, f *fixture) {
		f.display.quitAfter = 4
	})

	require.NoError(t, f.ctrl.Start())
	waitDone(t, f.ctrl.Done())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(4), f.display.shows.Load())
	assert.Equal(t, int32(1), f.device.releases.Load())
}

func TestRun_CaptureStalled(t *testing.T) {
	f := newFixture(t, 5, func(o *Options, f *fixture) {
		o.CaptureMaxAttempts = 20
		f.device.alwaysFail = true
	})

	require.NoError(t, f.ctrl.Start())
	waitDone(t, f.ctrl.Done())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(20), f.device.reads.Load())
	assert.Equal(t, int32(1), f.device.releases.Load())

	_, errs := f.notifier.counts()
	require.Len(t, errs, 1)
	var stalled *core.CaptureStalledError
	assert.True(t, errors.As(errs[0], &stalled))

	status := f.ctrl.Status()
	assert.Equal(t, Idle, status.State)
	assert.True(t, errors.As(status.Err, &stalled))
}

func TestRun_PlateSnapshotFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 2, func(_ *Options, f *fixture) {
		f.plates.err = errors.New("disk full")
	})
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	require.Eventually(t, func() bool { return f.display.shows.Load() > 0 }, waitFor, time.Millisecond)
	require.NoError(t, f.ctrl.Stop())

	assert.Contains(t, messages(drain(events)), "disk full")
}

func TestStart_RejectsWhileBusy(t *testing.T) {
	f := newFixture(t, 100000, nil)

	require.NoError(t, f.ctrl.Start())
	assert.ErrorIs(t, f.ctrl.Start(), ErrBusy)
	require.NoError(t, f.ctrl.Stop())

	assert.Equal(t, int32(1), f.opener.opens.Load())
}

func TestStart_AfterStopOpensFreshSession(t *testing.T) {
	f := newFixture(t, 2, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.ctrl.Start())
		require.Eventually(t, func() bool { return f.ctrl.State() == Running }, waitFor, time.Millisecond)
		require.NoError(t, f.ctrl.Stop())
	}

	assert.Equal(t, int32(2), f.opener.opens.Load())
	assert.Equal(t, int32(2), f.device.releases.Load())
	readies, _ := f.notifier.counts()
	assert.Equal(t, 2, readies)
}

func TestStop_TimeoutKeepsControllerBusy(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, 100000, func(o *Options, f *fixture) {
		o.StopTimeout = 20 * time.Millisecond
		f.device.gate = gate
		f.device.delay = 0
	})

	require.NoError(t, f.ctrl.Start())
	require.Eventually(t, func() bool { return f.device.reads.Load() > 0 }, waitFor, time.Millisecond)

	err := f.ctrl.Stop()
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.NotEqual(t, Idle, f.ctrl.State())
	assert.ErrorIs(t, f.ctrl.Start(), ErrBusy)
	assert.ErrorIs(t, f.ctrl.Status().Err, ErrStopTimeout)

	close(gate)
	waitDone(t, f.ctrl.Done())

	assert.Equal(t, Idle, f.ctrl.State())
	assert.Equal(t, int32(1), f.device.releases.Load())
}

func TestStop_AfterWorkerEndedLeavesReadyStatus(t *testing.T) {
	f := newFixture(t, 2, func(_ *Options, f *fixture) {
		f.display.quitAfter = 1
	})
	events := f.ctrl.Subscribe()

	require.NoError(t, f.ctrl.Start())
	waitDone(t, f.ctrl.Done())
	drain(events)

	require.NoError(t, f.ctrl.Stop())

	assert.Empty(t, drain(events))
	status := f.ctrl.Status()
	assert.Equal(t, Idle, status.State)
	assert.Equal(t, "Ready", status.Message)
}

func TestStop_NeverPublishesAfterFinalReady(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 1, func(_ *Options, f *fixture) {
			f.display.quitAfter = 2
			f.device.delay = 0
		})
		events := f.ctrl.Subscribe()

		require.NoError(t, f.ctrl.Start())
		require.Eventually(t, func() bool { return f.display.shows.Load() > 0 }, waitFor, time.Millisecond)
		// races with the worker ending on its own
		require.NoError(t, f.ctrl.Stop())
		waitDone(t, f.ctrl.Done())

		evs := drain(events)
		require.NotEmpty(t, evs)
		last := evs[len(evs)-1]
		assert.Equal(t, Idle, last.State)
		assert.Equal(t, "Ready", last.Message)
		assert.Equal(t, "Ready", f.ctrl.Status().Message)
	}
}
