package screencap

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type EventType uint

const (
	EventTypeUndefined = EventType(iota)
	EventTypeRecordingStarted
	EventTypeRecordingFailed
	EventTypeRecordingStopped
	EventTypeSessionArchived
	EventTypeRecordingOptionsChanged
	EventTypeRenderStarted
	EventTypeRenderFinished
	EventTypeRenderFailed
	EndOfEventType
)

func (t EventType) String() string {
	switch t {
	case EventTypeUndefined:
		return "<undefined>"
	case EventTypeRecordingStarted:
		return "recording_started"
	case EventTypeRecordingFailed:
		return "recording_failed"
	case EventTypeRecordingStopped:
		return "recording_stopped"
	case EventTypeSessionArchived:
		return "session_archived"
	case EventTypeRecordingOptionsChanged:
		return "recording_options_changed"
	case EventTypeRenderStarted:
		return "render_started"
	case EventTypeRenderFinished:
		return "render_finished"
	case EventTypeRenderFailed:
		return "render_failed"
	}
	return fmt.Sprintf("unexpected_event_type_%d", uint(t))
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *EventType) UnmarshalJSON(b []byte) error {
	if t == nil {
		return fmt.Errorf("EventType is nil")
	}
	s := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := EventTypeUndefined; cmp < EndOfEventType; cmp++ {
		if cmp.String() == s {
			*t = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the EventType: '%s'", s)
}

// Event is a state transition published by the core.
type Event struct {
	Type    EventType         `json:"type"`
	Time    time.Time         `json:"time"`
	VideoID string            `json:"video_id,omitempty"`
	Path    string            `json:"path,omitempty"`
	Error   string            `json:"error,omitempty"`
	Options *RecordingOptions `json:"options,omitempty"`

	// Degraded lists the streams that failed while recording.
	Degraded []string `json:"degraded,omitempty"`
}

func NewEvent(t EventType, videoID string) Event {
	return Event{
		Type:    t,
		Time:    time.Now(),
		VideoID: videoID,
	}
}

func (ev Event) WithPath(path string) Event {
	ev.Path = path
	return ev
}

func (ev Event) WithError(err error) Event {
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (ev Event) String() string {
	var b strings.Builder
	b.WriteString(ev.Type.String())
	if ev.VideoID != "" {
		fmt.Fprintf(&b, " %s", ev.VideoID)
	}
	if ev.Path != "" {
		fmt.Fprintf(&b, " %s", ev.Path)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, ": %s", ev.Error)
	}
	return b.String()
}

// EventPublisher is the outbound notification channel.
type EventPublisher interface {
	Publish(context.Context, Event)
}

type EventPublisherNoop struct{}

func (EventPublisherNoop) Publish(context.Context, Event) {}
