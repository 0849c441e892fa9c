package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg/process"
)

// FFprobe probes media files with the ffprobe binary.
type FFprobe struct {
	Path string
	Env  []string
}

var _ screencap.Prober = (*FFprobe)(nil)

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

func (p *FFprobe) path() string {
	if p.Path == "" {
		return "ffprobe"
	}
	return p.Path
}

func (p *FFprobe) Probe(
	ctx context.Context,
	path string,
) (_ret *screencap.MediaInfo, _err error) {
	logger.Debugf(ctx, "Probe(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Probe(ctx, '%s'): %v %v", path, _ret, _err) }()

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to stat '%s': %w", screencap.ErrNotFound, path, err)
	}

	var stdout strings.Builder
	proc, err := process.Start(ctx, process.Config{
		Path: p.path(),
		Args: []string{
			"-v", "error",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		},
		Env: p.Env,
		OnStdoutLine: func(line string) {
			stdout.WriteString(line)
			stdout.WriteByte('\n')
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", screencap.ErrEncoderLaunch, err)
	}
	if err := proc.Wait(ctx); err != nil {
		proc.Kill()
		return nil, &screencap.EncoderError{
			Kind:        screencap.ErrEncoderRuntime,
			ExitCode:    proc.ExitCode(),
			Diagnostics: proc.Diagnostics(),
			Err:         fmt.Errorf("unable to probe '%s': %w", path, err),
		}
	}

	info, err := parseFFprobeOutput([]byte(stdout.String()))
	if err != nil {
		return nil, fmt.Errorf("unable to parse the ffprobe output for '%s': %w", path, err)
	}
	if info.Size == 0 {
		info.Size = st.Size()
	}
	logger.Tracef(ctx, "probed '%s': %s", path, spew.Sdump(info))
	return info, nil
}

func parseFFprobeOutput(b []byte) (*screencap.MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unable to un-JSON-ize: %w", err)
	}

	info := &screencap.MediaInfo{}
	found := false
	for _, stream := range out.Streams {
		if stream.CodecType != "video" {
			continue
		}
		found = true
		info.Dimensions = screencap.Dimensions{Width: stream.Width, Height: stream.Height}
		info.FrameRate = parseRational(stream.AvgFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseRational(stream.RFrameRate)
		}
		info.Duration = parseSeconds(stream.Duration)
		break
	}
	if !found {
		return nil, fmt.Errorf("no video stream found")
	}
	if d := parseSeconds(out.Format.Duration); d > 0 {
		info.Duration = d
	}
	info.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	return info, nil
}

func parseRational(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
