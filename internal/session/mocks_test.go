package session

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"invisible-cloak/internal/capture"
)

const frameSide = 8

func grayFrame() gocv.Mat {
	data := make([]byte, frameSide*frameSide*3)
	for i := range data {
		data[i] = 128
	}
	m, err := gocv.NewMatFromBytes(frameSide, frameSide, gocv.MatTypeCV8UC3, data)
	if err != nil {
		panic(err)
	}
	return m
}

// mockDevice yields gray frames. Reads after failAfter (when > 0) fail;
// when gate is set every read waits for it.
type mockDevice struct {
	failAfter  int
	alwaysFail bool
	delay      time.Duration
	gate       chan struct{}

	reads    atomic.Int32
	releases atomic.Int32
}

func (d *mockDevice) Read(dst *gocv.Mat) bool {
	n := int(d.reads.Add(1))
	if d.gate != nil {
		<-d.gate
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.alwaysFail || (d.failAfter > 0 && n > d.failAfter) {
		return false
	}
	frame := grayFrame()
	defer frame.Close()
	frame.CopyTo(dst)
	return true
}

func (d *mockDevice) Size() image.Point {
	return image.Pt(frameSide, frameSide)
}

func (d *mockDevice) Close() error {
	d.releases.Add(1)
	return nil
}

type mockOpener struct {
	dev   *mockDevice
	err   error
	opens atomic.Int32
}

func (o *mockOpener) Open(index, width, height int) (capture.Device, error) {
	o.opens.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.dev, nil
}

type mockDisplay struct {
	quitAfter int
	shows     atomic.Int32
	closes    atomic.Int32
}

func (d *mockDisplay) Show(label string, frame gocv.Mat) bool {
	n := int(d.shows.Add(1))
	return d.quitAfter > 0 && n >= d.quitAfter
}

func (d *mockDisplay) Close() {
	d.closes.Add(1)
}

type mockNotifier struct {
	mu      sync.Mutex
	readies int
	errs    []error
}

func (n *mockNotifier) Ready() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readies++
}

func (n *mockNotifier) Error(title string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *mockNotifier) counts() (int, []error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readies, append([]error(nil), n.errs...)
}

type mockPlates struct {
	writes atomic.Int32
	err    error
}

func (p *mockPlates) WritePlate(plate gocv.Mat) error {
	p.writes.Add(1)
	return p.err
}

var errNoCamera = errors.New("no camera")
