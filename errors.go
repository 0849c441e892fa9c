package screencap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration     = errors.New("invalid configuration")
	ErrDeviceUnavailable = errors.New("capture device is unavailable")
	ErrEncoderLaunch     = errors.New("unable to launch the encoder")
	ErrEncoderRuntime    = errors.New("the encoder failed at runtime")
	ErrIO                = errors.New("filesystem failure")
	ErrRender            = errors.New("render failed")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("recording not in progress")
	ErrNotFound          = errors.New("not found")
)

// EncoderError is an encoder failure together with the tail of the
// encoder's diagnostic output.
type EncoderError struct {
	Kind        error
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *EncoderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if diag := strings.TrimSpace(e.Diagnostics); diag != "" {
		fmt.Fprintf(&b, "\n%s", diag)
	}
	return b.String()
}

func (e *EncoderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RenderError wraps err into ErrRender unless it already is one.
func RenderError(err error) error {
	if err == nil || errors.Is(err, ErrRender) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRender, err)
}
