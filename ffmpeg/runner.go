package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg/process"
)

// Runner runs one-shot (file-to-file) ffmpeg invocations.
type Runner struct {
	FFmpegPath string
	Env        []string
}

var (
	_ screencap.Encoder     = (*Runner)(nil)
	_ screencap.Thumbnailer = (*Runner)(nil)
)

func NewRunner(cfg Config) *Runner {
	return &Runner{
		FFmpegPath: cfg.ffmpegPath(),
		Env:        cfg.Env,
	}
}

func (r *Runner) path() string {
	if r.FFmpegPath == "" {
		return "ffmpeg"
	}
	return r.FFmpegPath
}

func (r *Runner) Encode(
	ctx context.Context,
	args []string,
) (_err error) {
	logger.Debugf(ctx, "Encode(ctx, %v)", args)
	defer func() { logger.Debugf(ctx, "/Encode(ctx): %v", _err) }()

	fullArgs := append([]string{"-hide_banner", "-nostdin", "-nostats", "-loglevel", "info", "-y", "-progress", "pipe:1"}, args...)
	proc, err := process.Start(ctx, process.Config{
		Path: r.path(),
		Args: fullArgs,
		Env:  r.Env,
		OnProgress: func(p process.Progress) {
			logger.Tracef(ctx, "encoding progress: frame=%d time=%v speed=%s", p.Frame, p.OutTime, p.Speed)
		},
	})
	if err != nil {
		return &screencap.EncoderError{Kind: screencap.ErrEncoderLaunch, Err: err}
	}

	err = proc.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		proc.Kill()
	}
	if err != nil {
		return &screencap.EncoderError{
			Kind:        screencap.ErrEncoderRuntime,
			ExitCode:    proc.ExitCode(),
			Diagnostics: proc.Diagnostics(),
			Err:         err,
		}
	}
	return nil
}

// ExtractFrame stores the first frame of the video, unscaled, as an image.
func (r *Runner) ExtractFrame(
	ctx context.Context,
	videoPath string,
	imagePath string,
) (_err error) {
	logger.Debugf(ctx, "ExtractFrame(ctx, '%s', '%s')", videoPath, imagePath)
	defer func() { logger.Debugf(ctx, "/ExtractFrame(ctx, '%s', '%s'): %v", videoPath, imagePath, _err) }()

	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("%w: unable to create the directory for '%s': %w", screencap.ErrIO, imagePath, err)
	}
	err := r.Encode(ctx, []string{
		"-ss", "0:00:00",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		imagePath,
	})
	if err != nil {
		return fmt.Errorf("unable to extract a frame from '%s': %w", videoPath, err)
	}
	st, err := os.Stat(imagePath)
	if err != nil {
		return fmt.Errorf("%w: the encoder has not produced '%s': %w", screencap.ErrIO, imagePath, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%w: the encoder produced an empty '%s'", screencap.ErrIO, imagePath)
	}
	return nil
}

// Version returns the first line of "ffmpeg -version".
func (r *Runner) Version(ctx context.Context) (string, error) {
	var lines []string
	proc, err := process.Start(ctx, process.Config{
		Path:         r.path(),
		Args:         []string{"-hide_banner", "-version"},
		Env:          r.Env,
		OnStdoutLine: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", screencap.ErrEncoderLaunch, err)
	}
	if err := proc.Wait(ctx); err != nil {
		proc.Kill()
		return "", fmt.Errorf("'%s -version' failed: %w", r.path(), err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("'%s -version' printed nothing", r.path())
	}
	return strings.TrimSpace(lines[0]), nil
}
