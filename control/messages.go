package control

import (
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
	"github.com/xaionaro-go/screencap/session"
)

type StartRecordingRequest struct {
	// Options, if nil, are the stored recording options.
	Options *screencap.RecordingOptions `json:"options,omitempty"`
}

type StartRecordingReply struct {
	Session *session.Info `json:"session"`
}

type StopRecordingRequest struct{}

type StopRecordingReply struct {
	VideoID  string              `json:"video_id"`
	Dir      string              `json:"dir"`
	Meta     *meta.RecordingMeta `json:"meta,omitempty"`
	Degraded []string            `json:"degraded,omitempty"`

	// Error describes the partial failures of a finalized session.
	Error string `json:"error,omitempty"`
}

func NewStopRecordingReply(result *session.Result) *StopRecordingReply {
	reply := &StopRecordingReply{
		VideoID:  result.VideoID,
		Dir:      result.Dir,
		Meta:     result.Meta,
		Degraded: result.Degraded(),
	}
	if err := result.Err(); err != nil {
		reply.Error = err.Error()
	}
	return reply
}

type CurrentRecordingRequest struct{}

type CurrentRecordingReply struct {
	Session *session.Info `json:"session,omitempty"`
}

type GetRecordingOptionsRequest struct{}

type GetRecordingOptionsReply struct {
	Options screencap.RecordingOptions `json:"options"`
}

type SetRecordingOptionsRequest struct {
	Options screencap.RecordingOptions `json:"options"`
}

type SetRecordingOptionsReply struct{}

type ListArchiveRequest struct {
	// Order, if nil, is the archive order configured in the daemon.
	Order *session.ArchiveOrder `json:"order,omitempty"`
}

type ListArchiveReply struct {
	Entries []session.ArchiveEntry `json:"entries"`
}

type RenderRequest struct {
	VideoID string `json:"video_id"`

	// Project, if nil, is the default project configuration.
	Project *screencap.ProjectConfiguration `json:"project,omitempty"`
	Force   bool                            `json:"force,omitempty"`
}

type RenderReply struct {
	Path string `json:"path"`
}

type GetSessionMetadataRequest struct {
	VideoID string `json:"video_id"`
}

type GetSessionMetadataReply struct {
	Meta *meta.RecordingMeta `json:"meta"`
}

type GetScreenVideoMetadataRequest struct {
	VideoID string `json:"video_id"`
}

type GetScreenVideoMetadataReply struct {
	Metadata *screencap.VideoMetadata `json:"metadata"`
}

type SubscribeRequest struct{}
