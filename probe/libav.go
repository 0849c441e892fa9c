//go:build with_libav
// +build with_libav

package probe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
)

// Libav probes media files in-process.
type Libav struct{}

var _ screencap.Prober = (*Libav)(nil)

func (Libav) Probe(
	ctx context.Context,
	path string,
) (_ret *screencap.MediaInfo, _err error) {
	logger.Debugf(ctx, "Probe(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Probe(ctx, '%s'): %v %v", path, _ret, _err) }()

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to stat '%s': %w", screencap.ErrNotFound, path, err)
	}

	closer := astikit.NewCloser()
	defer closer.Close()

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	closer.Add(fc.Free)

	if err := fc.OpenInput(path, nil, nil); err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	closer.Add(fc.CloseInput)

	if err := fc.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info of '%s': %w", path, err)
	}

	for _, stream := range fc.Streams() {
		params := stream.CodecParameters()
		if params.MediaType() != astiav.MediaTypeVideo {
			continue
		}
		return &screencap.MediaInfo{
			Dimensions: screencap.Dimensions{Width: params.Width(), Height: params.Height()},
			FrameRate:  stream.AvgFrameRate().Float64(),
			Duration:   time.Duration(float64(fc.Duration()) / float64(astiav.TimeBase) * float64(time.Second)),
			Size:       st.Size(),
		}, nil
	}
	return nil, fmt.Errorf("no video stream found in '%s'", path)
}
