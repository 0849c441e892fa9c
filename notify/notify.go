// Package notify turns core events into desktop notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gen2brain/beeep"
	"github.com/xaionaro-go/screencap"
)

const DefaultTitle = "screencap"

// NotifyFunc shows one notification; it has the signature of beeep.Notify.
type NotifyFunc func(title, message string, icon any) error

type Notifier struct {
	Title  string
	Notify NotifyFunc
}

func New() *Notifier {
	return &Notifier{
		Title:  DefaultTitle,
		Notify: beeep.Notify,
	}
}

// Message returns the notification text for the event, or false if the
// event is not worth a notification.
func Message(ev screencap.Event) (string, bool) {
	switch ev.Type {
	case screencap.EventTypeRecordingStopped:
		if len(ev.Degraded) > 0 {
			return fmt.Sprintf("Recording %s saved, but the %v capture failed", ev.VideoID, ev.Degraded), true
		}
		return fmt.Sprintf("Recording %s saved", ev.VideoID), true
	case screencap.EventTypeRecordingFailed:
		return fmt.Sprintf("Unable to start recording: %s", ev.Error), true
	case screencap.EventTypeRenderFinished:
		return fmt.Sprintf("Video %s is ready: %s", ev.VideoID, ev.Path), true
	case screencap.EventTypeRenderFailed:
		return fmt.Sprintf("Unable to render video %s: %s", ev.VideoID, ev.Error), true
	}
	return "", false
}

// Run shows notifications for the events until ctx is cancelled or the
// channel is closed.
func (n *Notifier) Run(
	ctx context.Context,
	events <-chan screencap.Event,
) {
	logger.Debugf(ctx, "Run")
	defer logger.Debugf(ctx, "/Run")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.handle(ctx, ev)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, ev screencap.Event) {
	msg, ok := Message(ev)
	if !ok {
		return
	}
	logger.Debugf(ctx, "notification: %s", msg)
	if err := n.Notify(n.Title, msg, ""); err != nil {
		errmon.ObserveErrorCtx(ctx, fmt.Errorf("unable to show a notification: %w", err))
	}
}
