// Package fakeffmpeg is a stand-in for the ffmpeg binary, used by tests
// that re-execute their own test binary as the encoder.
package fakeffmpeg

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvKeyMode = "SCREENCAP_FAKE_FFMPEG_MODE"
	EnvKeyLog  = "SCREENCAP_FAKE_FFMPEG_LOG"
	EnvKeySize = "SCREENCAP_FAKE_FFMPEG_SIZE"
)

const (
	ModeOK            = "ok"
	ModeDeviceMissing = "device-missing"
	ModeLaunchFail    = "launch-fail"
	ModeSilent        = "silent"
	ModeHang          = "hang"
	ModeDie           = "die"
	ModeFail          = "fail"
)

// MainIfRequested runs the fake and exits if the environment asks for it.
func MainIfRequested() {
	mode := os.Getenv(EnvKeyMode)
	if mode == "" {
		return
	}
	os.Exit(run(mode, os.Args[1:]))
}

func run(mode string, args []string) int {
	if logPath := os.Getenv(EnvKeyLog); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintln(f, strings.Join(args, " "))
			f.Close()
		}
	}

	size := os.Getenv(EnvKeySize)
	if size == "" {
		size = "1920x1080"
	}
	if s := argValue(args, "-video_size"); s != "" {
		size = s
	}

	switch mode {
	case ModeDeviceMissing:
		fmt.Fprintln(os.Stderr, "[x11grab @ 0x55d0] Cannot open display :0, error 1.")
		fmt.Fprintln(os.Stderr, ":0: Input/output error")
		return 1
	case ModeLaunchFail:
		fmt.Fprintln(os.Stderr, "Unknown encoder 'libx264'")
		return 1
	case ModeFail:
		fmt.Fprintln(os.Stderr, "Error while filtering: Invalid argument")
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		return 1
	case ModeSilent:
		time.Sleep(time.Hour)
		return 0
	}

	output := outputPath(args)
	if output != "" {
		if err := os.WriteFile(output, []byte("fake-container-header\n"), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", output, err)
			return 1
		}
	}

	fmt.Fprintf(os.Stderr, "  Stream #0:0: Video: rawvideo (BGR0 / 0x30524742), bgr0, %s, 30 fps\n", size)
	fmt.Fprintf(os.Stderr, "  Stream #0:0: Video: h264, yuv420p(progressive), %s, q=2-31, 30 fps\n", size)
	fmt.Fprintln(os.Stdout, "frame=1")
	fmt.Fprintln(os.Stdout, "fps=0.00")
	fmt.Fprintln(os.Stdout, "out_time_us=33333")
	fmt.Fprintln(os.Stdout, "progress=continue")

	if !isLive(args) {
		fmt.Fprintln(os.Stdout, "progress=end")
		return 0
	}

	switch mode {
	case ModeHang:
		time.Sleep(time.Hour)
		return 0
	case ModeDie:
		time.Sleep(100 * time.Millisecond)
		fmt.Fprintln(os.Stderr, "[v4l2 @ 0x55d0] The v4l2 frame is 0 bytes, but 614400 bytes are expected")
		return 1
	}

	r := bufio.NewReader(os.Stdin)
	for {
		c, err := r.ReadByte()
		if err != nil || c == 'q' {
			break
		}
	}
	if output != "" {
		f, err := os.OpenFile(output, os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintln(f, "fake-container-trailer")
			f.Close()
		}
	}
	fmt.Fprintln(os.Stdout, "progress=end")
	return 0
}

// isLive reports whether the arguments describe a capture from a device
// (as opposed to a file-to-file transcode).
func isLive(args []string) bool {
	switch argValue(args, "-f") {
	case "x11grab", "gdigrab", "avfoundation", "v4l2", "dshow", "lavfi":
		return true
	}
	return false
}

func argValue(args []string, key string) string {
	for idx := 0; idx < len(args)-1; idx++ {
		if args[idx] == key {
			return args[idx+1]
		}
	}
	return ""
}

func outputPath(args []string) string {
	if len(args) == 0 {
		return ""
	}
	last := args[len(args)-1]
	if strings.HasPrefix(last, "-") || strings.Contains(last, "pipe:") {
		return ""
	}
	return last
}
