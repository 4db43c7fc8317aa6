// Image file output for background plate snapshots
package io

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// PlateWriter saves background plates to a fixed path
type PlateWriter struct {
	path   string
	logger logrus.FieldLogger
}

func NewPlateWriter(path string, logger logrus.FieldLogger) (*PlateWriter, error) {
	if !isSupportedImageFormat(path) {
		return nil, fmt.Errorf("unsupported image format: %s", path)
	}
	return &PlateWriter{path: path, logger: logger}, nil
}

// WritePlate encodes plate to the configured path
func (w *PlateWriter) WritePlate(plate gocv.Mat) error {
	w.logger.WithField("filepath", w.path).Debug("Saving background plate")

	if plate.Empty() {
		return fmt.Errorf("cannot save empty image")
	}

	if ok := gocv.IMWrite(w.path, plate); !ok {
		return fmt.Errorf("failed to save image: %s", w.path)
	}

	w.logger.WithFields(logrus.Fields{
		"filepath": w.path,
		"width":    plate.Cols(),
		"height":   plate.Rows(),
		"channels": plate.Channels(),
	}).Info("Background plate saved")

	return nil
}

func isSupportedImageFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
