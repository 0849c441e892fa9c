package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg"
)

const DefaultFrameRate = 30

type inputs struct {
	Display string
	Camera  string
	Layers  *layerFiles

	// FrameRate is the display's native rate; the still layers and the
	// camera are resampled to it.
	FrameRate float64
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// filterGraph composes the layers bottom to top: background, display,
// shadow, masked camera.
func filterGraph(l *Layout, in inputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[0:v]scale=%d:%d,setsar=1[disp];", l.Display.Width, l.Display.Height)
	fmt.Fprintf(&b, "[1:v][disp]overlay=%d:%d:shortest=1[base];", l.Display.X, l.Display.Y)
	if l.Camera == nil {
		b.WriteString("[base]format=yuv420p[v]")
		return b.String()
	}

	cam := l.Camera
	fmt.Fprintf(&b, "[2:v]fps=%s,scale=%d:%d,setsar=1,format=rgba[cam];", formatRate(in.FrameRate), cam.Width, cam.Height)
	fmt.Fprintf(&b, "[3:v]format=gray,scale=%d:%d[mask];", cam.Width, cam.Height)
	b.WriteString("[cam][mask]alphamerge[camr];")
	under := "base"
	if in.Layers.Shadow != "" {
		b.WriteString("[base][4:v]overlay=0:0:shortest=1[shadowed];")
		under = "shadowed"
	}
	fmt.Fprintf(&b, "[%s][camr]overlay=%d:%d:eof_action=pass[out];", under, cam.X, cam.Y)
	b.WriteString("[out]format=yuv420p[v]")
	return b.String()
}

// encodeArgs are the arguments of the compositing encoder invocation.
func encodeArgs(
	l *Layout,
	in inputs,
	cfg screencap.EncodeVideoConfig,
	outputPath string,
) ([]string, error) {
	rate := formatRate(in.FrameRate)
	still := func(path string) []string {
		return []string{"-framerate", rate, "-loop", "1", "-i", path}
	}

	args := []string{"-i", in.Display}
	args = append(args, still(in.Layers.Background)...)
	if l.Camera != nil {
		args = append(args, "-i", in.Camera)
		args = append(args, still(in.Layers.Mask)...)
		if in.Layers.Shadow != "" {
			args = append(args, still(in.Layers.Shadow)...)
		}
	}
	args = append(args,
		"-filter_complex", filterGraph(l, in),
		"-map", "[v]",
		"-an",
		"-r", rate,
	)
	codecArgs, err := ffmpeg.EncodeArgs(cfg)
	if err != nil {
		return nil, err
	}
	args = append(args, codecArgs...)
	args = append(args, "-movflags", "+faststart", "-f", "mp4", outputPath)
	return args, nil
}
