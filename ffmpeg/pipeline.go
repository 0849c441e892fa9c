package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg/process"
	"github.com/xaionaro-go/xsync"
)

// Pipeline is a capture-to-file pipeline driven by one ffmpeg child.
type Pipeline struct {
	Source      screencap.SourceDescriptor
	outputPath  string
	stopTimeout time.Duration

	process *process.Process

	locker     xsync.Mutex
	status     screencap.PipelineStatus
	dimensions screencap.Dimensions
	stopErr    error
}

var _ screencap.Pipeline = (*Pipeline)(nil)

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s->%s", p.Source.Kind, p.outputPath)
}

func (p *Pipeline) OutputPath() string {
	return p.outputPath
}

func (p *Pipeline) Status() screencap.PipelineStatus {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &p.locker, func() screencap.PipelineStatus {
		return p.status
	})
}

func (p *Pipeline) Dimensions() screencap.Dimensions {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &p.locker, func() screencap.Dimensions {
		return p.dimensions
	})
}

func (p *Pipeline) onStderrLine(line string) {
	dims, ok := parseVideoStreamDimensions(line)
	if !ok {
		return
	}
	p.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		p.dimensions = dims
	})
}

func (p *Pipeline) setStatus(ctx context.Context, status screencap.PipelineStatus) {
	p.locker.Do(ctx, func() {
		p.status = status
	})
}

func (p *Pipeline) Stop(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Stop(ctx): %s", p)
	defer func() { logger.Debugf(ctx, "/Stop(ctx): %s: %v", p, _err) }()

	var alreadyStopped bool
	p.locker.Do(ctx, func() {
		switch p.status {
		case screencap.PipelineStatusClosed, screencap.PipelineStatusFailed:
			alreadyStopped = true
		default:
			p.status = screencap.PipelineStatusFlushing
		}
	})
	if alreadyStopped {
		return xsync.DoR1(ctx, &p.locker, func() error { return p.stopErr })
	}

	diedEarly := !p.process.IsRunning()
	err := p.process.Stop(ctx, p.stopTimeout)
	switch {
	case diedEarly:
		if err == nil {
			err = errors.New("the encoder exited before it was asked to")
		}
	case errors.Is(err, process.ErrStopTimeout):
		err = fmt.Errorf("the encoder did not finalize the container in %v: %w", p.stopTimeout, err)
	}

	status := screencap.PipelineStatusClosed
	if err != nil {
		status = screencap.PipelineStatusFailed
		err = &screencap.EncoderError{
			Kind:        screencap.ErrEncoderRuntime,
			ExitCode:    p.process.ExitCode(),
			Diagnostics: p.process.Diagnostics(),
			Err:         err,
		}
		logger.Warnf(ctx, "the %s pipeline failed, keeping '%s' as is: %v", p.Source.Kind, p.outputPath, err)
	}
	p.locker.Do(ctx, func() {
		p.status = status
		p.stopErr = err
	})
	return err
}

// kill is used only on paths where the pipeline never became ready.
func (p *Pipeline) kill(ctx context.Context) {
	if err := p.process.Kill(); err != nil {
		logger.Errorf(ctx, "unable to kill the %s encoder: %v", p.Source.Kind, err)
	}
	p.setStatus(ctx, screencap.PipelineStatusFailed)
}
