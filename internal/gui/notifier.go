package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"github.com/sirupsen/logrus"

	"invisible-cloak/internal/notify"
)

// DialogNotifier rings the bell for ready cues and shows error dialogs on
// the control window.
type DialogNotifier struct {
	window   fyne.Window
	fallback *notify.Terminal
	logger   logrus.FieldLogger
}

func NewDialogNotifier(window fyne.Window, fallback *notify.Terminal, logger logrus.FieldLogger) *DialogNotifier {
	return &DialogNotifier{window: window, fallback: fallback, logger: logger}
}

func (n *DialogNotifier) Ready() {
	n.fallback.Ready()
}

func (n *DialogNotifier) Error(title string, err error) {
	n.logger.WithError(err).Error(title)
	fyne.Do(func() {
		dialog.ShowError(err, n.window)
	})
}
