package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xaionaro-go/screencap"
)

var videoStreamRegexp = regexp.MustCompile(`Stream #\d+:\d+.*: Video: .*?\b(\d{2,5})x(\d{2,5})\b`)

// parseVideoStreamDimensions extracts the frame size from a
// "Stream #0:0: Video: ..., 1920x1080, ..." line.
func parseVideoStreamDimensions(line string) (screencap.Dimensions, bool) {
	m := videoStreamRegexp.FindStringSubmatch(line)
	if m == nil {
		return screencap.Dimensions{}, false
	}
	w, err := strconv.Atoi(m[1])
	if err != nil {
		return screencap.Dimensions{}, false
	}
	h, err := strconv.Atoi(m[2])
	if err != nil {
		return screencap.Dimensions{}, false
	}
	return screencap.Dimensions{Width: w, Height: h}, true
}

var deviceErrorPatterns = []string{
	"cannot open display",
	"no such file or directory",
	"could not find video device",
	"input/output error",
	"device or resource busy",
	"permission denied",
	"no such device",
	"error opening input",
}

// isDeviceError reports whether the encoder's diagnostics say that the
// capture source could not be opened.
func isDeviceError(diagnostics string) bool {
	lower := strings.ToLower(diagnostics)
	for _, pattern := range deviceErrorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
