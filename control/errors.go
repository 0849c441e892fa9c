package control

import (
	"context"
	"errors"
	"strings"

	"github.com/xaionaro-go/screencap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorCodes is ordered: the first matching kind decides the status code.
var errorCodes = []struct {
	Kind error
	Code codes.Code
}{
	{screencap.ErrAlreadyRecording, codes.AlreadyExists},
	{screencap.ErrNotRecording, codes.FailedPrecondition},
	{screencap.ErrConfiguration, codes.InvalidArgument},
	{screencap.ErrDeviceUnavailable, codes.Unavailable},
	{screencap.ErrRender, codes.Aborted},
	{screencap.ErrNotFound, codes.NotFound},
	{screencap.ErrEncoderLaunch, codes.Internal},
	{screencap.ErrEncoderRuntime, codes.Internal},
	{screencap.ErrIO, codes.Internal},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, item := range errorCodes {
		if errors.Is(err, item.Kind) {
			return status.Error(item.Code, err.Error())
		}
	}
	return status.Error(codes.Unknown, err.Error())
}

type remoteError struct {
	kinds []error
	msg   string
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() []error {
	return e.kinds
}

// fromStatus restores the error kinds of a status returned by the server,
// so that callers can keep using errors.Is.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kinds []error
	for _, item := range errorCodes {
		if item.Code == st.Code() && (item.Code != codes.Internal || strings.Contains(st.Message(), item.Kind.Error())) {
			kinds = append(kinds, item.Kind)
		}
	}
	for _, item := range errorCodes {
		if item.Code != st.Code() && strings.Contains(st.Message(), item.Kind.Error()) {
			kinds = append(kinds, item.Kind)
		}
	}
	switch st.Code() {
	case codes.Canceled:
		kinds = append(kinds, context.Canceled)
	case codes.DeadlineExceeded:
		kinds = append(kinds, context.DeadlineExceeded)
	}
	kinds = append(kinds, err)
	return &remoteError{kinds: kinds, msg: st.Message()}
}
