package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/screencap"
)

type targetFlags struct {
	Window   string
	Camera   string
	NoCamera bool
}

func (f *targetFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.Window, "window", "", "capture the window with this identifier instead of the whole screen")
	flags.StringVar(&f.Camera, "camera", "", "also record the camera with this label")
	flags.BoolVar(&f.NoCamera, "no-camera", false, "do not record a camera")
}

func (f *targetFlags) isSet() bool {
	return f.Window != "" || f.Camera != "" || f.NoCamera
}

// options applies the flags on top of base.
func (f *targetFlags) options(base screencap.RecordingOptions) (screencap.RecordingOptions, error) {
	opts := base
	if f.Window != "" {
		opts.CaptureTarget = screencap.CaptureTargetWindow{ID: f.Window}
	}
	switch {
	case f.NoCamera && f.Camera != "":
		return opts, fmt.Errorf("%w: --camera and --no-camera are mutually exclusive", screencap.ErrConfiguration)
	case f.NoCamera:
		opts.CameraLabel = nil
	case f.Camera != "":
		label := f.Camera
		opts.CameraLabel = &label
	}
	return opts, opts.Validate()
}

// loadProject reads a project configuration from a YAML file; an empty
// path is the default configuration.
func loadProject(path string) (screencap.ProjectConfiguration, error) {
	cfg := screencap.DefaultProjectConfiguration()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: unable to parse '%s': %w", screencap.ErrConfiguration, path, err)
	}
	return cfg, cfg.Validate()
}
