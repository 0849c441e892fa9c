package screencap

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionLayout(t *testing.T) {
	l := NewSessionLayout("/data/recordings", "5a1c")
	require.Equal(t, filepath.Join("/data/recordings", "5a1c.cap"), l.Dir)
	require.Equal(t, "5a1c", l.VideoID())
	require.Equal(t, filepath.Join(l.Dir, "content", "display.mp4"), l.DisplayPath())
	require.Equal(t, filepath.Join(l.Dir, "content", "camera.mp4"), l.CameraPath())
	require.Equal(t, filepath.Join(l.Dir, "screenshots", "display.jpg"), l.ThumbnailPath())
	require.Equal(t, filepath.Join(l.Dir, "recording-meta.json"), l.MetaPath())
	require.Equal(t, filepath.Join(l.Dir, "output", "result.mp4"), l.OutputPath())
	require.Equal(t, filepath.Dir(l.OutputPath()), filepath.Dir(l.PartialOutputPath()))
}

func TestVideoIDFromDir(t *testing.T) {
	id, ok := VideoIDFromDir("/x/abc.cap/")
	require.True(t, ok)
	require.Equal(t, "abc", id)

	_, ok = VideoIDFromDir("/x/abc")
	require.False(t, ok)
	_, ok = VideoIDFromDir("/x/.cap")
	require.False(t, ok)
}

func TestEncoderError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &EncoderError{
		Kind:        ErrEncoderRuntime,
		ExitCode:    1,
		Diagnostics: "Conversion failed!\n",
		Err:         cause,
	}
	require.ErrorIs(t, err, ErrEncoderRuntime)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "Conversion failed!")

	wrapped := RenderError(err)
	require.ErrorIs(t, wrapped, ErrRender)
	require.ErrorIs(t, wrapped, ErrEncoderRuntime)
	require.Equal(t, wrapped, RenderError(wrapped))
	require.NoError(t, RenderError(nil))
}
