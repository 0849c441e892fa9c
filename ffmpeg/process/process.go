package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	child_process_manager "github.com/AgustinSRG/go-child-process-manager"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screencap/internal"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultStderrTailSize = 8 * 1024
	defaultWaitDelay      = 2 * time.Second
)

var (
	ErrExitedBeforeReady = errors.New("the process exited before it became ready")
	ErrReadyTimeout      = errors.New("timed out waiting for the process to become ready")
	ErrStopTimeout       = errors.New("timed out waiting for the process to exit, killed it")
)

var (
	managerInitOnce sync.Once
	managerInitErr  error
)

// Init sets up killing of all the children when this process dies.
// It is called implicitly by Start.
func Init() error {
	managerInitOnce.Do(func() {
		managerInitErr = child_process_manager.InitializeChildProcessManager()
	})
	return managerInitErr
}

// Dispose is the counterpart of Init; call it before exiting.
func Dispose() {
	child_process_manager.DisposeChildProcessManager()
}

type Config struct {
	Path string
	Args []string
	Env  []string

	StderrTailSize int

	// OnStderrLine is called for every diagnostic line of the process.
	OnStderrLine func(string)

	// OnStdoutLine is called for every line of the standard output.
	OnStdoutLine func(string)

	// OnProgress is called for every block of the "-progress pipe:1" report.
	OnProgress func(Progress)
}

// Process is an owned encoder child: it is signalled, waited and, if
// necessary, killed on every exit path, including being garbage collected
// while still running.
type Process struct {
	*child
}

type child struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderrTail *tailBuffer

	readyOnce sync.Once
	ready     chan struct{}

	exited  chan struct{}
	exitErr error

	stopLocker xsync.Mutex
	progress   Progress
	progressMu sync.Mutex
}

func Start(
	ctx context.Context,
	cfg Config,
) (_ret *Process, _err error) {
	logger.Debugf(ctx, "Start(ctx, %s %v)", cfg.Path, cfg.Args)
	defer func() { logger.Debugf(ctx, "/Start(ctx, %s): %v", cfg.Path, _err) }()

	if err := Init(); err != nil {
		logger.Warnf(ctx, "unable to initialize the child process manager: %v", err)
	}

	tailSize := cfg.StderrTailSize
	if tailSize <= 0 {
		tailSize = DefaultStderrTailSize
	}

	c := &child{
		cmd:        exec.Command(cfg.Path, cfg.Args...),
		stderrTail: newTailBuffer(tailSize),
		ready:      make(chan struct{}),
		exited:     make(chan struct{}),
	}
	c.cmd.Env = append(os.Environ(), cfg.Env...)
	c.cmd.WaitDelay = defaultWaitDelay

	parser := &progressParser{
		onFrame: func(frame uint64) {
			if frame >= 1 {
				c.readyOnce.Do(func() { close(c.ready) })
			}
		},
		onBlock: func(p Progress) {
			c.progressMu.Lock()
			c.progress = p
			c.progressMu.Unlock()
			if cfg.OnProgress != nil {
				cfg.OnProgress(p)
			}
		},
	}
	c.cmd.Stdout = &lineWriter{fn: func(line string) {
		parser.parseLine(line)
		if cfg.OnStdoutLine != nil {
			cfg.OnStdoutLine(line)
		}
	}}
	stderr := io.Writer(c.stderrTail)
	if cfg.OnStderrLine != nil {
		stderr = io.MultiWriter(c.stderrTail, &lineWriter{fn: cfg.OnStderrLine})
	}
	c.cmd.Stderr = stderr

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to open the stdin pipe: %w", err)
	}
	c.stdin = stdin

	child_process_manager.ConfigureCommand(c.cmd)

	if err := c.cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("unable to start '%s': %w", cfg.Path, err)
	}
	logger.Debugf(ctx, "started '%s' with PID %d", cfg.Path, c.cmd.Process.Pid)

	if err := child_process_manager.AddChildProcess(c.cmd.Process); err != nil {
		logger.Warnf(ctx, "unable to register PID %d in the child process manager: %v", c.cmd.Process.Pid, err)
	}

	observability.Go(ctx, func(ctx context.Context) {
		err := c.cmd.Wait()
		logger.Debugf(ctx, "process %d exited: %v", c.cmd.Process.Pid, err)
		c.exitErr = err
		close(c.exited)
	})

	p := &Process{child: c}
	internal.SetFinalizerKill(ctx, p)
	return p, nil
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Ready is closed when the process reported its first processed frame.
func (p *Process) Ready() <-chan struct{} {
	return p.ready
}

// Exited is closed when the process has exited and its output is drained.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitError returns the result of the process; valid only after Exited is closed.
func (p *Process) ExitError() error {
	<-p.exited
	return p.exitErr
}

func (p *Process) ExitCode() int {
	<-p.exited
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *Process) IsRunning() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Diagnostics returns the tail of the diagnostic output.
func (p *Process) Diagnostics() string {
	return p.stderrTail.String()
}

func (p *Process) LastProgress() Progress {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	return p.progress
}

// WaitReady waits until the first frame is processed.
func (p *Process) WaitReady(
	ctx context.Context,
	timeout time.Duration,
) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.ready:
		return nil
	case <-p.exited:
		select {
		case <-p.ready:
			return nil
		default:
		}
		if p.exitErr != nil {
			return fmt.Errorf("%w: %w", ErrExitedBeforeReady, p.exitErr)
		}
		return ErrExitedBeforeReady
	case <-timer.C:
		return fmt.Errorf("%w (%v)", ErrReadyTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait waits for the process to exit on its own.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.exited:
		return p.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the process to finish gracefully (by sending 'q' to its stdin)
// and waits for it to exit. If it does not exit within the timeout, it is
// killed and ErrStopTimeout is returned.
func (p *Process) Stop(
	ctx context.Context,
	timeout time.Duration,
) (_err error) {
	logger.Debugf(ctx, "Stop(ctx, %v): PID %d", timeout, p.PID())
	defer func() { logger.Debugf(ctx, "/Stop(ctx, %v): PID %d: %v", timeout, p.PID(), _err) }()

	return xsync.DoR1(ctx, &p.stopLocker, func() error {
		select {
		case <-p.exited:
			return p.exitErr
		default:
		}

		if _, err := io.WriteString(p.stdin, "q\n"); err != nil {
			logger.Debugf(ctx, "unable to send 'q' to PID %d: %v", p.PID(), err)
		}
		if err := p.stdin.Close(); err != nil {
			logger.Debugf(ctx, "unable to close the stdin of PID %d: %v", p.PID(), err)
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.exited:
			return p.exitErr
		case <-timer.C:
			logger.Warnf(ctx, "PID %d has not exited in %v, killing it", p.PID(), timeout)
			p.kill(ctx)
			return ErrStopTimeout
		case <-ctx.Done():
			p.kill(ctx)
			return ctx.Err()
		}
	})
}

// Kill terminates the process immediately and waits for it to exit.
func (p *Process) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	err := p.cmd.Process.Kill()
	<-p.exited
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("unable to kill PID %d: %w", p.PID(), err)
	}
	return nil
}

func (p *Process) kill(ctx context.Context) {
	if err := p.Kill(); err != nil {
		logger.Errorf(ctx, "%v", err)
	}
}
