package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
)

func TestComputeLayout(t *testing.T) {
	hd := screencap.Dimensions{Width: 1920, Height: 1080}
	cam := &screencap.Dimensions{Width: 640, Height: 480}

	t.Run("output size is honored regardless of the sources", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.OutputSize = screencap.Dimensions{Width: 1280, Height: 720}
		l, err := ComputeLayout(meta.New(hd, cam), cfg)
		require.NoError(t, err)
		require.Equal(t, cfg.OutputSize, l.Output)
		require.Equal(t, Rect{Dimensions: cfg.OutputSize}, l.Display)
		require.Equal(t, &Rect{Dimensions: *cam}, l.Camera)
		require.NotNil(t, l.Shadow)
	})

	t.Run("aspect fit is centered", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.OutputSize = screencap.Dimensions{Width: 1920, Height: 1080}
		l, err := ComputeLayout(meta.New(screencap.Dimensions{Width: 1024, Height: 768}, nil), cfg)
		require.NoError(t, err)
		require.Equal(t, Rect{
			Position:   screencap.Position{X: 240, Y: 0},
			Dimensions: screencap.Dimensions{Width: 1440, Height: 1080},
		}, l.Display)
		require.Nil(t, l.Camera)
		require.Nil(t, l.Shadow)
	})

	t.Run("zero sizes fall back to the recorded ones", func(t *testing.T) {
		l, err := ComputeLayout(meta.New(hd, cam), screencap.DefaultProjectConfiguration())
		require.NoError(t, err)
		require.Equal(t, hd, l.Output)
		require.Equal(t, *cam, l.Camera.Dimensions)
	})

	t.Run("webcam is clamped into the canvas", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.OutputSize = screencap.Dimensions{Width: 1280, Height: 720}
		cfg.WebcamSize = screencap.Dimensions{Width: 321, Height: 241}
		cfg.WebcamPosition = screencap.Position{X: 5000, Y: -10}
		cfg.Style.CornerRadius = 1000
		l, err := ComputeLayout(meta.New(hd, cam), cfg)
		require.NoError(t, err)
		require.Equal(t, &Rect{
			Position:   screencap.Position{X: 1280 - 320, Y: 0},
			Dimensions: screencap.Dimensions{Width: 320, Height: 240},
		}, l.Camera)
		require.Equal(t, float64(120), l.CornerRadius)
	})

	t.Run("odd output size is rejected", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.OutputSize = screencap.Dimensions{Width: 1281, Height: 721}
		_, err := ComputeLayout(meta.New(hd, nil), cfg)
		require.ErrorIs(t, err, screencap.ErrConfiguration)
	})

	t.Run("odd recorded sizes are made even", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		l, err := ComputeLayout(meta.New(screencap.Dimensions{Width: 1001, Height: 999}, nil), cfg)
		require.NoError(t, err)
		require.Equal(t, screencap.Dimensions{Width: 1000, Height: 998}, l.Output)
		require.Zero(t, l.Display.Width%2)
		require.Zero(t, l.Display.Height%2)

		cfg.OutputSize = screencap.Dimensions{Width: 1280, Height: 720}
		l, err = ComputeLayout(meta.New(screencap.Dimensions{Width: 1001, Height: 999}, nil), cfg)
		require.NoError(t, err)
		require.Equal(t, cfg.OutputSize, l.Output)
		require.Zero(t, l.Display.Width%2)
		require.Zero(t, l.Display.Height%2)
	})

	t.Run("transparent shadow is skipped", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.Style.ShadowColor = screencap.Color{0, 0, 0, 0}
		l, err := ComputeLayout(meta.New(hd, cam), cfg)
		require.NoError(t, err)
		require.Nil(t, l.Shadow)
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := screencap.DefaultProjectConfiguration()
		cfg.OutputSize = screencap.Dimensions{Width: 1, Height: 1}
		_, err := ComputeLayout(meta.New(hd, nil), cfg)
		require.ErrorIs(t, err, screencap.ErrConfiguration)

		_, err = ComputeLayout(meta.New(screencap.Dimensions{}, nil), screencap.DefaultProjectConfiguration())
		require.ErrorIs(t, err, meta.ErrInvalid)
	})
}

func TestGradientLine(t *testing.T) {
	x0, y0, x1, y1 := gradientLine(100, 50, 0)
	require.InDelta(t, 0, x0, 1e-9)
	require.InDelta(t, 25, y0, 1e-9)
	require.InDelta(t, 100, x1, 1e-9)
	require.InDelta(t, 25, y1, 1e-9)

	x0, y0, x1, y1 = gradientLine(100, 50, 90)
	require.InDelta(t, 50, x0, 1e-9)
	require.InDelta(t, 0, y0, 1e-9)
	require.InDelta(t, 50, x1, 1e-9)
	require.InDelta(t, 50, y1, 1e-9)
}
