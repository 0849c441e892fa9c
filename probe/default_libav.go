//go:build with_libav
// +build with_libav

package probe

import (
	"github.com/xaionaro-go/screencap"
)

func newDefault(Config) screencap.Prober {
	return Libav{}
}
