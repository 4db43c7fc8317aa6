// Package config holds the static configuration of the cloak application.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"invisible-cloak/internal/palette"
)

// Display sinks
const (
	DisplayFyne    = "fyne"
	DisplayHighGUI = "highgui"
)

// Config is the complete application configuration
type Config struct {
	TargetColor      string `yaml:"target_color"`
	BackgroundFrames int    `yaml:"background_frames"`
	ProgressEvery    int    `yaml:"progress_every"`
	Mirror           bool   `yaml:"mirror"`

	Capture CaptureConfig `yaml:"capture"`
	Session SessionConfig `yaml:"session"`

	Display       string `yaml:"display"`
	WindowLabel   string `yaml:"window_label"`
	PlateSnapshot string `yaml:"plate_snapshot"`
}

// CaptureConfig selects and sizes the capture device
type CaptureConfig struct {
	DeviceIndex int    `yaml:"device_index"`
	Source      string `yaml:"source"` // video file; overrides DeviceIndex when set
	FrameWidth  int    `yaml:"frame_width"`
	FrameHeight int    `yaml:"frame_height"`
}

// SessionConfig bounds the worker's blocking phases. The capture limits
// apply to a stall (failed reads in a row, time without a good frame), not
// to the length of the whole background capture.
type SessionConfig struct {
	CaptureMaxAttempts int           `yaml:"capture_max_attempts"`
	CaptureTimeout     time.Duration `yaml:"capture_timeout"`
	StopTimeout        time.Duration `yaml:"stop_timeout"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		TargetColor:      "red",
		BackgroundFrames: 60,
		ProgressEvery:    10,
		Mirror:           true,
		Capture: CaptureConfig{
			DeviceIndex: 0,
			FrameWidth:  640,
			FrameHeight: 480,
		},
		Session: SessionConfig{
			CaptureMaxAttempts: 600,
			CaptureTimeout:     30 * time.Second,
			StopTimeout:        3 * time.Second,
		},
		Display:     DisplayFyne,
		WindowLabel: "Invisible Cloak Output",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every option; an unknown color yields *palette.UnsupportedColorError.
func (c *Config) Validate() error {
	var errs []error

	if _, err := palette.Lookup(c.TargetColor); err != nil {
		errs = append(errs, err)
	}
	if c.BackgroundFrames < 1 {
		errs = append(errs, fmt.Errorf("background_frames must be positive, got %d", c.BackgroundFrames))
	}
	if c.ProgressEvery < 0 {
		errs = append(errs, fmt.Errorf("progress_every must not be negative, got %d", c.ProgressEvery))
	}
	if c.Capture.DeviceIndex < 0 {
		errs = append(errs, fmt.Errorf("capture.device_index must not be negative, got %d", c.Capture.DeviceIndex))
	}
	if c.Capture.FrameWidth < 1 || c.Capture.FrameHeight < 1 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Capture.FrameWidth, c.Capture.FrameHeight))
	}
	if c.Session.CaptureMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("session.capture_max_attempts must not be negative"))
	}
	if c.Session.CaptureMaxAttempts == 0 && c.Session.CaptureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("background capture needs an attempt or time budget"))
	}
	if c.Session.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.stop_timeout must be positive"))
	}
	switch c.Display {
	case DisplayFyne, DisplayHighGUI:
	default:
		errs = append(errs, fmt.Errorf("unknown display %q", c.Display))
	}

	return errors.Join(errs...)
}

// Ranges resolves the configured target color
func (c *Config) Ranges() ([]palette.Range, error) {
	return palette.Lookup(c.TargetColor)
}
