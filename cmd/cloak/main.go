// Invisible Cloak - replaces a chosen color with a captured background plate
package main

import (
	"flag"
	"fmt"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/sirupsen/logrus"

	"invisible-cloak/internal/capture"
	"invisible-cloak/internal/config"
	"invisible-cloak/internal/gui"
	"invisible-cloak/internal/io"
	"invisible-cloak/internal/session"
)

const (
	AppName    = "Invisible Cloak"
	AppID      = "com.invisiblecloak.app"
	AppVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	color := flag.String("color", "", "Cloak color (red, blue)")
	frames := flag.Int("bg-frames", 0, "Number of frames averaged into the background plate")
	device := flag.Int("device", -1, "Capture device index")
	source := flag.String("source", "", "Video file to use instead of a camera")
	width := flag.Int("width", 0, "Requested frame width")
	height := flag.Int("height", 0, "Requested frame height")
	display := flag.String("display", "", "Output display: fyne or highgui")
	snapshot := flag.String("plate-snapshot", "", "Write the captured background plate to this image file")
	flag.Parse()

	logger := initLogger(*debugMode)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	applyFlags(cfg, *color, *frames, *device, *source, *width, *height, *display, *snapshot)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": *debugMode,
		"color":      cfg.TargetColor,
		"bg_frames":  cfg.BackgroundFrames,
		"device":     cfg.Capture.DeviceIndex,
		"display":    cfg.Display,
	}).Info("Starting " + AppName)

	myApp := app.NewWithID(AppID)
	myApp.SetIcon(theme.MediaVideoIcon())
	myApp.Settings().SetTheme(theme.DefaultTheme())

	mainApp := gui.NewApplication(myApp, logger)

	ctrl, err := newController(cfg, myApp, mainApp, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session controller")
	}
	mainApp.Attach(ctrl)
	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
	os.Exit(0)
}

func newController(cfg *config.Config, fyneApp fyne.App, mainApp *gui.Application, logger *logrus.Logger) (*session.Controller, error) {
	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	deps := session.Dependencies{
		Opener:   capture.NewVideoOpener(cfg.Capture.Source, logger),
		Notifier: mainApp.Notifier(),
		Logger:   logger,
	}

	switch cfg.Display {
	case config.DisplayHighGUI:
		deps.Display = capture.NewHighGUIDisplay()
	default:
		deps.Display = gui.NewOutputWindow(fyneApp, logger)
	}

	if cfg.PlateSnapshot != "" {
		plates, err := io.NewPlateWriter(cfg.PlateSnapshot, logger)
		if err != nil {
			return nil, fmt.Errorf("plate snapshot: %w", err)
		}
		deps.Plates = plates
	}

	return session.NewController(opts, deps)
}

func applyFlags(cfg *config.Config, color string, frames, device int, source string, width, height int, display, snapshot string) {
	if color != "" {
		cfg.TargetColor = color
	}
	if frames > 0 {
		cfg.BackgroundFrames = frames
	}
	if device >= 0 {
		cfg.Capture.DeviceIndex = device
	}
	if source != "" {
		cfg.Capture.Source = source
	}
	if width > 0 {
		cfg.Capture.FrameWidth = width
	}
	if height > 0 {
		cfg.Capture.FrameHeight = height
	}
	if display != "" {
		cfg.Display = display
	}
	if snapshot != "" {
		cfg.PlateSnapshot = snapshot
	}
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
