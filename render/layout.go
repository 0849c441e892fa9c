package render

import (
	"fmt"
	"math"

	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
)

// Rect is an axis-aligned placement on the output canvas.
type Rect struct {
	screencap.Position
	screencap.Dimensions
}

func (r Rect) String() string {
	return fmt.Sprintf("%s+%d+%d", r.Dimensions, r.X, r.Y)
}

// Layout is where every layer lands on the output canvas.
type Layout struct {
	Output  screencap.Dimensions
	Display Rect

	// Camera is nil if there is no overlay source.
	Camera       *Rect
	CornerRadius float64
	Shadow       *Shadow
}

type Shadow struct {
	Color  screencap.Color
	Blur   float64
	Offset screencap.Offset
}

// ComputeLayout places the display aspect-fit and centered on the canvas,
// and the camera (if recorded) at the configured position, clamped to the
// canvas. An explicit output size must be even; the ones derived from the
// recording are rounded down to even, as required by yuv420p.
func ComputeLayout(
	m *meta.RecordingMeta,
	cfg screencap.ProjectConfiguration,
) (*Layout, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	output := cfg.OutputSize
	if output.IsZero() {
		output = evenDims(m.Display)
	}
	if !output.IsValid() {
		return nil, fmt.Errorf("%w: output size %s is too small", screencap.ErrConfiguration, cfg.OutputSize)
	}

	l := &Layout{
		Output:  output,
		Display: fitCentered(m.Display, output),
	}

	if !m.HasCamera() {
		return l, nil
	}

	size := cfg.WebcamSize
	if size.IsZero() {
		size = *m.Camera
	}
	size.Width = min(size.Width, output.Width)
	size.Height = min(size.Height, output.Height)
	size = evenDims(size)
	if !size.IsValid() {
		return nil, fmt.Errorf("%w: webcam size %s is too small", screencap.ErrConfiguration, cfg.WebcamSize)
	}

	pos := screencap.Position{
		X: clamp(cfg.WebcamPosition.X, 0, output.Width-size.Width),
		Y: clamp(cfg.WebcamPosition.Y, 0, output.Height-size.Height),
	}
	l.Camera = &Rect{Position: pos, Dimensions: size}
	l.CornerRadius = math.Min(cfg.Style.CornerRadius, float64(min(size.Width, size.Height))/2)
	if cfg.Style.ShadowColor.A() > 0 {
		l.Shadow = &Shadow{
			Color:  cfg.Style.ShadowColor,
			Blur:   cfg.Style.ShadowBlur,
			Offset: cfg.Style.ShadowOffset,
		}
	}
	return l, nil
}

func fitCentered(src, canvas screencap.Dimensions) Rect {
	scale := math.Min(
		float64(canvas.Width)/float64(src.Width),
		float64(canvas.Height)/float64(src.Height),
	)
	dims := evenDims(screencap.Dimensions{
		Width:  min(int(math.Round(float64(src.Width)*scale)), canvas.Width),
		Height: min(int(math.Round(float64(src.Height)*scale)), canvas.Height),
	})
	dims.Width = max(dims.Width, 2)
	dims.Height = max(dims.Height, 2)
	return Rect{
		Position: screencap.Position{
			X: (canvas.Width - dims.Width) / 2,
			Y: (canvas.Height - dims.Height) / 2,
		},
		Dimensions: dims,
	}
}

func evenDims(d screencap.Dimensions) screencap.Dimensions {
	return screencap.Dimensions{
		Width:  d.Width &^ 1,
		Height: d.Height &^ 1,
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
