package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/internal"
	"github.com/xaionaro-go/screencap/meta"
	"github.com/xaionaro-go/xsync"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a session drives.
type Deps struct {
	Factory     screencap.CaptureFactory
	Thumbnailer screencap.Thumbnailer
	Prober      screencap.Prober
}

// Session is one recording attempt backed by its own directory.
type Session struct {
	ID      string
	Layout  screencap.SessionLayout
	Options screencap.RecordingOptions

	config Config
	deps   Deps

	locker    xsync.Mutex
	state     State
	startedAt time.Time
	display   screencap.Pipeline
	camera    screencap.Pipeline
}

func newSession(
	id string,
	layout screencap.SessionLayout,
	opts screencap.RecordingOptions,
	cfg Config,
	deps Deps,
) *Session {
	return &Session{
		ID:      id,
		Layout:  layout,
		Options: opts,
		config:  cfg,
		deps:    deps,
		state:   StateIdle,
	}
}

func (s *Session) State() State {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &s.locker, func() State {
		return s.state
	})
}

func (s *Session) StartedAt() time.Time {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &s.locker, func() time.Time {
		return s.startedAt
	})
}

func (s *Session) Info() *Info {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &s.locker, func() *Info {
		return &Info{
			VideoID:   s.ID,
			Dir:       s.Layout.Dir,
			State:     s.state,
			StartedAt: s.startedAt,
			Options:   s.Options,
		}
	})
}

func (s *Session) setState(ctx context.Context, next State) {
	s.locker.Do(ctx, func() {
		internal.Assert(ctx, s.state.canTransitionTo(next), "session %s: %s -> %s", s.ID, s.state, next)
		logger.Debugf(ctx, "session %s: %s -> %s", s.ID, s.state, next)
		s.state = next
	})
}

// Start allocates the session directory and starts the pipelines. It
// transitions to Recording only if every required pipeline is ready;
// otherwise the started pipelines are stopped, the directory is removed
// and the originating error is returned.
func (s *Session) Start(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Start(ctx): session %s", s.ID)
	defer func() { logger.Debugf(ctx, "/Start(ctx): session %s: %v", s.ID, _err) }()

	if err := s.Options.Validate(); err != nil {
		return err
	}
	if state := s.State(); state != StateIdle {
		return fmt.Errorf("session %s was already started (state: %s)", s.ID, state)
	}
	s.setState(ctx, StateStarting)

	if err := os.Mkdir(s.Layout.Dir, 0o755); err != nil {
		s.setState(ctx, StateFailed)
		return fmt.Errorf("%w: unable to create the session directory '%s': %w", screencap.ErrIO, s.Layout.Dir, err)
	}

	var (
		g                     errgroup.Group
		display, camera       screencap.Pipeline
		displayErr, cameraErr error
	)
	g.Go(func() error {
		display, displayErr = s.deps.Factory.StartPipeline(ctx, screencap.SourceDescriptor{
			Kind:          screencap.SourceKindDisplay,
			Target:        s.Options.CaptureTarget,
			FrameRate:     s.config.FrameRate,
			CustomOptions: s.config.DisplayCustomOptions,
		}, s.Layout.DisplayPath())
		return nil
	})
	if s.Options.HasCamera() {
		g.Go(func() error {
			camera, cameraErr = s.deps.Factory.StartPipeline(ctx, screencap.SourceDescriptor{
				Kind:          screencap.SourceKindCamera,
				CameraLabel:   *s.Options.CameraLabel,
				FrameRate:     s.config.FrameRate,
				CustomOptions: s.config.CameraCustomOptions,
			}, s.Layout.CameraPath())
			return nil
		})
	}
	g.Wait()

	if displayErr != nil || cameraErr != nil {
		for _, p := range []screencap.Pipeline{display, camera} {
			if p == nil {
				continue
			}
			if err := p.Stop(ctx); err != nil {
				logger.Warnf(ctx, "unable to stop the %s pipeline of a failed session: %v", p.OutputPath(), err)
			}
		}
		if err := os.RemoveAll(s.Layout.Dir); err != nil {
			logger.Errorf(ctx, "unable to remove the directory '%s' of a failed session: %v", s.Layout.Dir, err)
		}
		s.setState(ctx, StateFailed)
		if displayErr != nil {
			return fmt.Errorf("unable to start the display capture: %w", displayErr)
		}
		return fmt.Errorf("unable to start the camera capture: %w", cameraErr)
	}

	s.locker.Do(ctx, func() {
		s.display = display
		s.camera = camera
		s.startedAt = time.Now()
	})
	s.setState(ctx, StateRecording)
	return nil
}

// StreamResult is the outcome of stopping one pipeline.
type StreamResult struct {
	Kind screencap.SourceKind
	Path string
	Err  error
}

func (r StreamResult) OK() bool {
	return r.Err == nil
}

// Result is the finalized session record.
type Result struct {
	VideoID string
	Dir     string
	Display StreamResult
	Camera  *StreamResult
	Meta    *meta.RecordingMeta

	MetaErr      error
	ThumbnailErr error
}

// Degraded lists the streams that failed.
func (r *Result) Degraded() []string {
	var result []string
	if !r.Display.OK() {
		result = append(result, r.Display.Kind.String())
	}
	if r.Camera != nil && !r.Camera.OK() {
		result = append(result, r.Camera.Kind.String())
	}
	return result
}

// Err aggregates every failure that happened while finalizing.
func (r *Result) Err() error {
	var result *multierror.Error
	if r.Display.Err != nil {
		result = multierror.Append(result, fmt.Errorf("display: %w", r.Display.Err))
	}
	if r.Camera != nil && r.Camera.Err != nil {
		result = multierror.Append(result, fmt.Errorf("camera: %w", r.Camera.Err))
	}
	if r.MetaErr != nil {
		result = multierror.Append(result, fmt.Errorf("metadata: %w", r.MetaErr))
	}
	if r.ThumbnailErr != nil {
		result = multierror.Append(result, fmt.Errorf("thumbnail: %w", r.ThumbnailErr))
	}
	return result.ErrorOrNil()
}

// Stop finalizes the pipelines concurrently, writes the recording metadata
// and extracts the thumbnail. Stream failures are reported in the result;
// only a failure to write the metadata is returned as an error. The
// session ends up Stopped regardless.
func (s *Session) Stop(
	ctx context.Context,
) (_ret *Result, _err error) {
	logger.Debugf(ctx, "Stop(ctx): session %s", s.ID)
	defer func() { logger.Debugf(ctx, "/Stop(ctx): session %s: %v", s.ID, _err) }()

	if state := s.State(); state != StateRecording {
		return nil, fmt.Errorf("%w (session %s is %s)", screencap.ErrNotRecording, s.ID, state)
	}
	s.setState(ctx, StateStopping)

	display, camera := xsync.DoR2(ctx, &s.locker, func() (screencap.Pipeline, screencap.Pipeline) {
		return s.display, s.camera
	})

	result := &Result{
		VideoID: s.ID,
		Dir:     s.Layout.Dir,
		Display: StreamResult{Kind: screencap.SourceKindDisplay, Path: display.OutputPath()},
	}
	if camera != nil {
		result.Camera = &StreamResult{Kind: screencap.SourceKindCamera, Path: camera.OutputPath()}
	}

	var g errgroup.Group
	g.Go(func() error {
		result.Display.Err = display.Stop(ctx)
		return nil
	})
	if camera != nil {
		g.Go(func() error {
			result.Camera.Err = camera.Stop(ctx)
			return nil
		})
	}
	g.Wait()

	result.Meta, result.MetaErr = s.buildMeta(ctx, display, camera, result)
	if result.MetaErr == nil {
		if err := meta.Save(s.Layout.MetaPath(), result.Meta); err != nil {
			result.MetaErr = err
		}
	}
	if result.MetaErr != nil {
		logger.Errorf(ctx, "unable to write the recording metadata of session %s: %v", s.ID, result.MetaErr)
	}

	if err := s.deps.Thumbnailer.ExtractFrame(ctx, s.Layout.DisplayPath(), s.Layout.ThumbnailPath()); err != nil {
		result.ThumbnailErr = err
		logger.Warnf(ctx, "unable to extract the thumbnail of session %s: %v", s.ID, err)
	}

	s.setState(ctx, StateStopped)
	if result.MetaErr != nil {
		return result, result.MetaErr
	}
	return result, nil
}

func (s *Session) buildMeta(
	ctx context.Context,
	display, camera screencap.Pipeline,
	result *Result,
) (*meta.RecordingMeta, error) {
	displayDims, err := s.dimensions(ctx, display)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to determine the display dimensions: %w", screencap.ErrIO, err)
	}

	var cameraDims *screencap.Dimensions
	if camera != nil && result.Camera.OK() {
		dims, err := s.dimensions(ctx, camera)
		if err != nil {
			logger.Warnf(ctx, "unable to determine the camera dimensions, omitting the camera: %v", err)
		} else {
			cameraDims = &dims
		}
	}
	return meta.New(displayDims, cameraDims), nil
}

// dimensions prefers what the encoder negotiated and falls back to probing
// the finalized file.
func (s *Session) dimensions(
	ctx context.Context,
	p screencap.Pipeline,
) (screencap.Dimensions, error) {
	if dims := p.Dimensions(); dims.IsValid() {
		return dims, nil
	}
	if s.deps.Prober == nil {
		return screencap.Dimensions{}, errors.New("the encoder has not reported the dimensions and there is no prober")
	}
	info, err := s.deps.Prober.Probe(ctx, p.OutputPath())
	if err != nil {
		return screencap.Dimensions{}, err
	}
	if !info.Dimensions.IsValid() {
		return screencap.Dimensions{}, fmt.Errorf("probed invalid dimensions %s", info.Dimensions)
	}
	return info.Dimensions, nil
}

// Info is a snapshot of a session.
type Info struct {
	VideoID   string                     `json:"video_id"`
	Dir       string                     `json:"dir"`
	State     State                      `json:"state"`
	StartedAt time.Time                  `json:"started_at"`
	Options   screencap.RecordingOptions `json:"options"`
}
