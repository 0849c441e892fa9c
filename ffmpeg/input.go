package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xaionaro-go/screencap"
)

// formatFromOS returns the capture demuxer for the given source kind.
func formatFromOS(goos string, kind screencap.SourceKind) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		if kind == screencap.SourceKindCamera {
			return "dshow"
		}
		return "gdigrab"
	default:
		if kind == screencap.SourceKindCamera {
			return "v4l2"
		}
		return "x11grab"
	}
}

// inputArgs returns the arguments that open the capture source.
func inputArgs(
	goos string,
	x11Display string,
	src screencap.SourceDescriptor,
) ([]string, error) {
	formatName := formatFromOS(goos, src.Kind)

	var opts []string
	for _, opt := range src.CustomOptions {
		if opt.Key == "f" {
			formatName = opt.Value
			continue
		}
		opts = append(opts, screencap.CustomOptions{opt}.Args()...)
	}

	args := []string{"-f", formatName}
	if src.FrameRate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(src.FrameRate, 'f', -1, 64))
	}

	var input string
	switch src.Kind {
	case screencap.SourceKindDisplay:
		switch formatName {
		case "x11grab":
			input = x11Display
			if input == "" {
				input = ":0.0"
			}
			switch target := src.Target.(type) {
			case screencap.CaptureTargetScreen:
			case screencap.CaptureTargetWindow:
				args = append(args, "-window_id", target.ID)
			default:
				return nil, fmt.Errorf("%w: unsupported capture target %T", screencap.ErrConfiguration, target)
			}
			args = append(args, "-draw_mouse", "1")
		case "gdigrab":
			switch target := src.Target.(type) {
			case screencap.CaptureTargetScreen:
				input = "desktop"
			case screencap.CaptureTargetWindow:
				input = "title=" + target.ID
			default:
				return nil, fmt.Errorf("%w: unsupported capture target %T", screencap.ErrConfiguration, target)
			}
			args = append(args, "-draw_mouse", "1")
		case "avfoundation":
			switch target := src.Target.(type) {
			case screencap.CaptureTargetScreen:
				input = "Capture screen 0:none"
			case screencap.CaptureTargetWindow:
				return nil, fmt.Errorf("%w: window capture is not supported by avfoundation", screencap.ErrConfiguration)
			default:
				return nil, fmt.Errorf("%w: unsupported capture target %T", screencap.ErrConfiguration, target)
			}
			args = append(args, "-capture_cursor", "1")
		default:
			return nil, fmt.Errorf("%w: unsupported display capture format '%s'", screencap.ErrConfiguration, formatName)
		}
	case screencap.SourceKindCamera:
		switch formatName {
		case "v4l2":
			input = src.CameraLabel
			if !strings.HasPrefix(input, "/") {
				input = "/dev/" + input
			}
		case "dshow":
			input = "video=" + src.CameraLabel
		case "avfoundation":
			input = src.CameraLabel + ":none"
		default:
			return nil, fmt.Errorf("%w: unsupported camera capture format '%s'", screencap.ErrConfiguration, formatName)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source kind %s", screencap.ErrConfiguration, src.Kind)
	}

	args = append(args, opts...)
	args = append(args, "-i", input)
	return args, nil
}

// captureOutputArgs makes a fragmented MP4, so that whatever was written
// before an encoder crash stays playable.
func captureOutputArgs(outputPath string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-movflags", "+frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		outputPath,
	}
}
