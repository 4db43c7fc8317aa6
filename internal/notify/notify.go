// Package notify provides the audible ready cue and the fallback error surface.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Notifier signals the user outside the status line
type Notifier interface {
	// Ready is the cue played when the background plate is captured.
	Ready()
	// Error surfaces a fatal condition such as an unavailable device.
	Error(title string, err error)
}

// Terminal rings the terminal bell and prints errors to a writer.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	logger logrus.FieldLogger
}

func NewTerminal(logger logrus.FieldLogger) *Terminal {
	return &Terminal{out: os.Stdout, errOut: os.Stderr, logger: logger}
}

// NewTerminalWriters is NewTerminal with explicit writers
func NewTerminalWriters(out, errOut io.Writer, logger logrus.FieldLogger) *Terminal {
	return &Terminal{out: out, errOut: errOut, logger: logger}
}

func (t *Terminal) Ready() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.out, "\a"); err != nil {
		t.logger.WithError(err).Debug("Bell write failed")
	}
	if f, ok := t.out.(interface{ Sync() error }); ok {
		f.Sync()
	}
}

func (t *Terminal) Error(title string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.WithError(err).Error(title)
	fmt.Fprintf(t.errOut, "ERROR: %s: %v\n", title, err)
}
