package screencap

import (
	"context"
	"fmt"
	"time"
)

type SourceKind uint

const (
	SourceKindUndefined = SourceKind(iota)
	SourceKindDisplay
	SourceKindCamera
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindUndefined:
		return "<undefined>"
	case SourceKindDisplay:
		return "display"
	case SourceKindCamera:
		return "camera"
	}
	return fmt.Sprintf("unexpected_source_kind_%d", uint(k))
}

// SourceDescriptor is a live frame source handle, as yielded by the
// capture provider.
type SourceDescriptor struct {
	Kind          SourceKind
	Target        CaptureTarget
	CameraLabel   string
	FrameRate     float64
	CustomOptions CustomOptions
}

func (d SourceDescriptor) Validate() error {
	switch d.Kind {
	case SourceKindDisplay:
		return RecordingOptions{CaptureTarget: d.Target}.Validate()
	case SourceKindCamera:
		if d.CameraLabel == "" {
			return fmt.Errorf("%w: the camera label is empty", ErrConfiguration)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown source kind %s", ErrConfiguration, d.Kind)
}

type PipelineStatus uint

const (
	PipelineStatusStarting = PipelineStatus(iota)
	PipelineStatusRunning
	PipelineStatusFlushing
	PipelineStatusClosed
	PipelineStatusFailed
)

func (s PipelineStatus) String() string {
	switch s {
	case PipelineStatusStarting:
		return "starting"
	case PipelineStatusRunning:
		return "running"
	case PipelineStatusFlushing:
		return "flushing"
	case PipelineStatusClosed:
		return "closed"
	case PipelineStatusFailed:
		return "failed"
	}
	return fmt.Sprintf("unexpected_pipeline_status_%d", uint(s))
}

// Pipeline is a running capture-to-file pipeline.
type Pipeline interface {
	OutputPath() string
	Status() PipelineStatus

	// Dimensions returns the frame size negotiated with the source.
	Dimensions() Dimensions

	// Stop signals end-of-stream, waits (bounded) for the container to be
	// finalized and releases the process. A non-nil error wraps
	// ErrEncoderRuntime; the output file is kept either way.
	Stop(ctx context.Context) error
}

// CaptureFactory starts pipelines. It returns only after the encoder
// acknowledged the first frame, or with ErrConfiguration,
// ErrDeviceUnavailable or ErrEncoderLaunch.
type CaptureFactory interface {
	StartPipeline(ctx context.Context, source SourceDescriptor, outputPath string) (Pipeline, error)
}

type MediaInfo struct {
	Dimensions Dimensions    `json:"dimensions"`
	FrameRate  float64       `json:"frame_rate"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
}

type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// Encoder runs one-shot encoder invocations.
type Encoder interface {
	// Encode runs the encoder with the given arguments until it exits.
	// A failure is an *EncoderError.
	Encode(ctx context.Context, args []string) error
}

type Thumbnailer interface {
	ExtractFrame(ctx context.Context, videoPath string, imagePath string) error
}

// VideoMetadata describes a captured display video.
type VideoMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SizeMiB         float64 `json:"size_mib"`
}
