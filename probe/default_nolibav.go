//go:build !with_libav
// +build !with_libav

package probe

import (
	"github.com/xaionaro-go/screencap"
)

func newDefault(cfg Config) screencap.Prober {
	return &FFprobe{Path: cfg.FFprobePath, Env: cfg.Env}
}
