package internal

import (
	"context"
	"runtime"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// SetFinalizerKill kills the process behind killer if killer becomes
// unreachable without being stopped.
func SetFinalizerKill[T interface{ Kill() error }](
	ctx context.Context,
	killer T,
) {
	runtime.SetFinalizer(killer, func(killer T) {
		logger.Debugf(ctx, "killing an abandoned %T", killer)
		if err := killer.Kill(); err != nil {
			logger.Errorf(ctx, "unable to kill an abandoned %T: %v", killer, err)
		}
	})
}
