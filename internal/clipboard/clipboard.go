// Package clipboard places rendered video paths on the system clipboard.
package clipboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
)

func Init() error {
	initOnce.Do(func() {
		if err := clipboard.Init(); err != nil {
			initErr = fmt.Errorf("unable to initialize the clipboard: %w", err)
		}
	})
	return initErr
}

func WriteText(ctx context.Context, text string) error {
	if err := Init(); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	logger.Debugf(ctx, "wrote %d bytes of text to the clipboard", len(text))
	return nil
}
