package probe

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/screencap"
)

type Config struct {
	FFprobePath string
	Env         []string
}

// New returns the in-process prober when built with libav, and the
// ffprobe-based one otherwise.
func New(cfg Config) screencap.Prober {
	return newDefault(cfg)
}

// VideoMetadata converts probing results into the user-facing summary.
func VideoMetadata(
	ctx context.Context,
	prober screencap.Prober,
	path string,
) (*screencap.VideoMetadata, error) {
	info, err := prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("unable to probe '%s': %w", path, err)
	}
	return &screencap.VideoMetadata{
		DurationSeconds: info.Duration.Seconds(),
		SizeMiB:         float64(info.Size) / (1024 * 1024),
	}, nil
}
