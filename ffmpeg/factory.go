package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg/process"
)

const (
	DefaultStartTimeout = 10 * time.Second
	DefaultStopTimeout  = 5 * time.Second
)

type Config struct {
	FFmpegPath string

	// X11Display is the display to grab on Linux; $DISPLAY if empty.
	X11Display string

	StartTimeout time.Duration
	StopTimeout  time.Duration

	// Env is added to the environment of every encoder.
	Env []string

	// GOOS selects the capture backend; runtime.GOOS if empty.
	GOOS string
}

func (cfg Config) ffmpegPath() string {
	if cfg.FFmpegPath == "" {
		return "ffmpeg"
	}
	return cfg.FFmpegPath
}

// Factory starts capture pipelines as ffmpeg children.
type Factory struct {
	Config Config
}

var _ screencap.CaptureFactory = (*Factory)(nil)

func NewFactory(cfg Config) *Factory {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.X11Display == "" {
		cfg.X11Display = os.Getenv("DISPLAY")
	}
	return &Factory{Config: cfg}
}

func (f *Factory) captureArgs(
	src screencap.SourceDescriptor,
	outputPath string,
) ([]string, error) {
	in, err := inputArgs(f.Config.GOOS, f.Config.X11Display, src)
	if err != nil {
		return nil, err
	}
	args := []string{"-hide_banner", "-nostats", "-loglevel", "info", "-y"}
	args = append(args, in...)
	args = append(args, "-progress", "pipe:1")
	args = append(args, captureOutputArgs(outputPath)...)
	return args, nil
}

func (f *Factory) StartPipeline(
	ctx context.Context,
	src screencap.SourceDescriptor,
	outputPath string,
) (_ret screencap.Pipeline, _err error) {
	logger.Debugf(ctx, "StartPipeline(ctx, %s, '%s')", src.Kind, outputPath)
	defer func() { logger.Debugf(ctx, "/StartPipeline(ctx, %s, '%s'): %v", src.Kind, outputPath, _err) }()

	if err := src.Validate(); err != nil {
		return nil, err
	}
	args, err := f.captureArgs(src, outputPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: unable to create the directory for '%s': %w", screencap.ErrIO, outputPath, err)
	}

	p := &Pipeline{
		Source:      src,
		outputPath:  outputPath,
		stopTimeout: f.Config.StopTimeout,
		status:      screencap.PipelineStatusStarting,
	}
	proc, err := process.Start(ctx, process.Config{
		Path:         f.Config.ffmpegPath(),
		Args:         args,
		Env:          f.Config.Env,
		OnStderrLine: p.onStderrLine,
	})
	if err != nil {
		return nil, &screencap.EncoderError{Kind: screencap.ErrEncoderLaunch, Err: err}
	}
	p.process = proc

	err = proc.WaitReady(ctx, f.Config.StartTimeout)
	if err != nil {
		p.kill(ctx)
		if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Errorf(ctx, "unable to remove '%s': %v", outputPath, rmErr)
		}
		kind := screencap.ErrEncoderLaunch
		if errors.Is(err, process.ErrExitedBeforeReady) && isDeviceError(proc.Diagnostics()) {
			kind = screencap.ErrDeviceUnavailable
		}
		return nil, &screencap.EncoderError{
			Kind:        kind,
			ExitCode:    proc.ExitCode(),
			Diagnostics: proc.Diagnostics(),
			Err:         err,
		}
	}

	p.setStatus(ctx, screencap.PipelineStatusRunning)
	logger.Debugf(ctx, "the %s pipeline is running, negotiated %s", src.Kind, p.Dimensions())
	return p, nil
}
