package render

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"path/filepath"

	"github.com/gogpu/gg"
	"github.com/xaionaro-go/screencap"
)

// layerFiles are the static still images fed to the encoder alongside the
// captures.
type layerFiles struct {
	Background string
	Mask       string
	Shadow     string
}

func toRGBA(c screencap.Color) gg.RGBA {
	return gg.RGBA2(c.R(), c.G(), c.B(), c.A())
}

func writeLayers(
	dir string,
	l *Layout,
	bg screencap.Background,
) (*layerFiles, error) {
	files := &layerFiles{
		Background: filepath.Join(dir, "background.png"),
	}
	if err := drawBackground(files.Background, l.Output, bg); err != nil {
		return nil, fmt.Errorf("unable to draw the background: %w", err)
	}
	if l.Camera == nil {
		return files, nil
	}

	files.Mask = filepath.Join(dir, "mask.png")
	if err := drawMask(files.Mask, l.Camera.Dimensions, l.CornerRadius); err != nil {
		return nil, fmt.Errorf("unable to draw the webcam mask: %w", err)
	}
	if l.Shadow != nil {
		files.Shadow = filepath.Join(dir, "shadow.png")
		if err := drawShadow(files.Shadow, l); err != nil {
			return nil, fmt.Errorf("unable to draw the webcam shadow: %w", err)
		}
	}
	return files, nil
}

func drawBackground(
	path string,
	canvas screencap.Dimensions,
	bg screencap.Background,
) error {
	dc := gg.NewContext(canvas.Width, canvas.Height)
	defer dc.Close()

	w, h := float64(canvas.Width), float64(canvas.Height)
	switch bg := bg.(type) {
	case nil:
		dc.ClearWithColor(gg.Black)
	case screencap.BackgroundColor:
		dc.ClearWithColor(toRGBA(bg.Color))
	case screencap.BackgroundGradient:
		x0, y0, x1, y1 := gradientLine(w, h, bg.Angle)
		brush := gg.NewLinearGradientBrush(x0, y0, x1, y1).
			AddColorStop(0, toRGBA(bg.From)).
			AddColorStop(1, toRGBA(bg.To))
		dc.SetFillBrush(brush)
		dc.DrawRectangle(0, 0, w, h)
		if err := dc.Fill(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported background %T", screencap.ErrConfiguration, bg)
	}
	return dc.SavePNG(path)
}

// gradientLine returns the endpoints of a gradient through the canvas
// center; angle is in degrees, 0 is left-to-right, 90 is top-to-bottom.
func gradientLine(w, h, angle float64) (x0, y0, x1, y1 float64) {
	rad := angle * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	half := (math.Abs(w*dx) + math.Abs(h*dy)) / 2
	cx, cy := w/2, h/2
	return cx - dx*half, cy - dy*half, cx + dx*half, cy + dy*half
}

// drawMask draws the alpha mask of the webcam: opaque white inside the
// rounded rectangle, black outside.
func drawMask(
	path string,
	size screencap.Dimensions,
	radius float64,
) error {
	dc := gg.NewContext(size.Width, size.Height)
	defer dc.Close()

	dc.ClearWithColor(gg.Black)
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawRoundedRectangle(0, 0, float64(size.Width), float64(size.Height), radius)
	if err := dc.Fill(); err != nil {
		return err
	}
	return dc.SavePNG(path)
}

// drawShadow draws the full-canvas shadow layer: the webcam's rounded
// rectangle moved by the offset, filled with the shadow color and blurred.
func drawShadow(path string, l *Layout) error {
	dc := gg.NewContext(l.Output.Width, l.Output.Height)
	defer dc.Close()

	dc.Clear()
	c := l.Shadow.Color
	dc.SetRGBA(c.R(), c.G(), c.B(), c.A())
	dc.DrawRoundedRectangle(
		float64(l.Camera.X)+l.Shadow.Offset.X,
		float64(l.Camera.Y)+l.Shadow.Offset.Y,
		float64(l.Camera.Width),
		float64(l.Camera.Height),
		l.CornerRadius,
	)
	if err := dc.Fill(); err != nil {
		return err
	}

	img := toPremultiplied(dc.Image())
	boxBlur(img, int(math.Round(l.Shadow.Blur)))

	out := gg.NewContextForImage(img)
	defer out.Close()
	return out.SavePNG(path)
}

func toPremultiplied(src image.Image) *image.RGBA {
	if img, ok := src.(*image.RGBA); ok {
		return img
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// boxBlur blurs a premultiplied image in place with three passes of a
// separable box filter, approximating a gaussian of the given radius.
func boxBlur(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]uint8, len(img.Pix))
	for range 3 {
		blurPass(tmp, img.Pix, w, h, img.Stride, radius, true)
		blurPass(img.Pix, tmp, w, h, img.Stride, radius, false)
	}
}

func blurPass(dst, src []uint8, w, h, stride, radius int, horizontal bool) {
	lines, length := h, w
	if !horizontal {
		lines, length = w, h
	}
	offset := func(line, i int) int {
		if horizontal {
			return line*stride + i*4
		}
		return i*stride + line*4
	}
	window := 2*radius + 1
	for line := range lines {
		for ch := range 4 {
			var sum int
			for i := -radius; i <= radius; i++ {
				sum += int(src[offset(line, clamp(i, 0, length-1))+ch])
			}
			for i := range length {
				dst[offset(line, i)+ch] = uint8((sum + window/2) / window)
				out := clamp(i-radius, 0, length-1)
				in := clamp(i+radius+1, 0, length-1)
				sum += int(src[offset(line, in)+ch]) - int(src[offset(line, out)+ch])
			}
		}
	}
}
