package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg"
	"github.com/xaionaro-go/screencap/internal/fakeffmpeg"
	"github.com/xaionaro-go/screencap/meta"
)

func TestMain(m *testing.M) {
	fakeffmpeg.MainIfRequested()
	os.Exit(m.Run())
}

func ctx() context.Context {
	return logger.CtxWithLogger(context.Background(), logrus.Default().WithLevel(logger.LevelDebug))
}

type fakePipeline struct {
	kind    screencap.SourceKind
	path    string
	dims    screencap.Dimensions
	stopErr error
	stopped atomic.Bool

	// stopGate, if set, holds Stop until it is closed.
	stopGate   <-chan struct{}
	stopCalled chan struct{}
	stopOnce   sync.Once
}

func (p *fakePipeline) OutputPath() string               { return p.path }
func (p *fakePipeline) Dimensions() screencap.Dimensions { return p.dims }
func (p *fakePipeline) Status() screencap.PipelineStatus {
	if p.stopped.Load() {
		return screencap.PipelineStatusClosed
	}
	return screencap.PipelineStatusRunning
}

func (p *fakePipeline) Stop(context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCalled) })
	if p.stopGate != nil {
		<-p.stopGate
	}
	p.stopped.Store(true)
	return p.stopErr
}

type fakeFactory struct {
	locker    sync.Mutex
	startErr  map[screencap.SourceKind]error
	stopErr   map[screencap.SourceKind]error
	stopGate  map[screencap.SourceKind]chan struct{}
	dims      map[screencap.SourceKind]screencap.Dimensions
	sources   []screencap.SourceDescriptor
	pipelines []*fakePipeline
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		startErr: map[screencap.SourceKind]error{},
		stopErr:  map[screencap.SourceKind]error{},
		stopGate: map[screencap.SourceKind]chan struct{}{},
		dims: map[screencap.SourceKind]screencap.Dimensions{
			screencap.SourceKindDisplay: {Width: 1920, Height: 1080},
			screencap.SourceKindCamera:  {Width: 640, Height: 480},
		},
	}
}

func (f *fakeFactory) StartPipeline(
	_ context.Context,
	source screencap.SourceDescriptor,
	outputPath string,
) (screencap.Pipeline, error) {
	f.locker.Lock()
	defer f.locker.Unlock()
	f.sources = append(f.sources, source)
	if err := f.startErr[source.Kind]; err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, []byte("fake "+source.Kind.String()), 0o644); err != nil {
		return nil, err
	}
	p := &fakePipeline{
		kind:       source.Kind,
		path:       outputPath,
		dims:       f.dims[source.Kind],
		stopErr:    f.stopErr[source.Kind],
		stopCalled: make(chan struct{}),
	}
	if gate, ok := f.stopGate[source.Kind]; ok {
		p.stopGate = gate
	}
	f.pipelines = append(f.pipelines, p)
	return p, nil
}

func (f *fakeFactory) pipeline(kind screencap.SourceKind) *fakePipeline {
	f.locker.Lock()
	defer f.locker.Unlock()
	for _, p := range f.pipelines {
		if p.kind == kind {
			return p
		}
	}
	return nil
}

type fakeThumbnailer struct {
	err error
}

func (t fakeThumbnailer) ExtractFrame(_ context.Context, videoPath string, imagePath string) error {
	if t.err != nil {
		return t.err
	}
	if _, err := os.Stat(videoPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(imagePath, []byte("jpeg"), 0o644)
}

type fakeProber struct {
	info *screencap.MediaInfo
	err  error
}

func (p fakeProber) Probe(context.Context, string) (*screencap.MediaInfo, error) {
	return p.info, p.err
}

type eventRecorder struct {
	locker sync.Mutex
	events []screencap.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev screencap.Event) {
	r.locker.Lock()
	defer r.locker.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []screencap.EventType {
	r.locker.Lock()
	defer r.locker.Unlock()
	var result []screencap.EventType
	for _, ev := range r.events {
		result = append(result, ev.Type)
	}
	return result
}

func newTestManager(t *testing.T, factory *fakeFactory) (*Manager, *eventRecorder) {
	events := &eventRecorder{}
	m, err := NewManager(ctx(), Config{
		RecordingsRoot: filepath.Join(t.TempDir(), "recordings"),
		FrameRate:      30,
	}, Deps{
		Factory:     factory,
		Thumbnailer: fakeThumbnailer{},
		Prober:      fakeProber{err: errors.New("not expected to be called")},
	}, events)
	require.NoError(t, err)
	return m, events
}

func withCamera(label string) *screencap.RecordingOptions {
	return &screencap.RecordingOptions{
		CaptureTarget: screencap.CaptureTargetScreen{},
		CameraLabel:   &label,
	}
}

func TestStartStop(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	m, events := newTestManager(t, factory)

	info, err := m.StartRecording(ctx, withCamera("video0"))
	require.NoError(t, err)
	require.Equal(t, StateRecording, info.State)

	cur, ok := m.CurrentRecording()
	require.True(t, ok)
	require.Equal(t, info.VideoID, cur.VideoID)

	result, err := m.StopRecording(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.Empty(t, result.Degraded())

	layout := screencap.SessionLayout{Dir: result.Dir}
	require.FileExists(t, layout.DisplayPath())
	require.FileExists(t, layout.CameraPath())
	st, err := os.Stat(layout.ThumbnailPath())
	require.NoError(t, err)
	require.NotZero(t, st.Size())

	m2, err := meta.Load(layout.MetaPath())
	require.NoError(t, err)
	require.Equal(t, screencap.Dimensions{Width: 1920, Height: 1080}, m2.Display)
	require.Equal(t, &screencap.Dimensions{Width: 640, Height: 480}, m2.Camera)

	_, ok = m.CurrentRecording()
	require.False(t, ok)

	archive := m.ListArchive(ArchiveOrderOldestFirst)
	require.Len(t, archive, 1)
	require.Equal(t, info.VideoID, archive[0].VideoID)

	require.Equal(t, []screencap.EventType{
		screencap.EventTypeRecordingStarted,
		screencap.EventTypeRecordingStopped,
		screencap.EventTypeSessionArchived,
	}, events.types())

	for _, p := range factory.pipelines {
		require.True(t, p.stopped.Load())
	}
}

func TestStalledCameraStopDoesNotHoldDisplay(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	releaseCamera := make(chan struct{})
	factory.stopGate[screencap.SourceKindCamera] = releaseCamera
	m, _ := newTestManager(t, factory)

	info, err := m.StartRecording(ctx, withCamera("video0"))
	require.NoError(t, err)
	display := factory.pipeline(screencap.SourceKindDisplay)
	camera := factory.pipeline(screencap.SourceKindCamera)
	require.NotNil(t, display)
	require.NotNil(t, camera)

	type stopOutcome struct {
		result *Result
		err    error
	}
	done := make(chan stopOutcome, 1)
	go func() {
		result, err := m.StopRecording(ctx)
		done <- stopOutcome{result: result, err: err}
	}()

	for _, p := range []*fakePipeline{display, camera} {
		select {
		case <-p.stopCalled:
		case <-time.After(10 * time.Second):
			t.Fatalf("Stop of the %s pipeline was not called", p.kind)
		}
	}
	require.Eventually(t, display.stopped.Load, 10*time.Second, time.Millisecond)
	require.False(t, camera.stopped.Load())

	layout := screencap.SessionLayout{Dir: info.Dir}
	require.NoFileExists(t, layout.MetaPath())
	select {
	case <-done:
		t.Fatal("the session was finalized while the camera was still flushing")
	default:
	}

	close(releaseCamera)
	var outcome stopOutcome
	select {
	case outcome = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("StopRecording has not returned")
	}
	require.NoError(t, outcome.err)
	require.NoError(t, outcome.result.Err())
	require.True(t, camera.stopped.Load())
	require.FileExists(t, layout.MetaPath())
}

func TestStartWhileRecording(t *testing.T) {
	ctx := ctx()
	m, _ := newTestManager(t, newFakeFactory())

	info, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)

	_, err = m.StartRecording(ctx, withCamera("video0"))
	require.ErrorIs(t, err, screencap.ErrAlreadyRecording)

	cur, ok := m.CurrentRecording()
	require.True(t, ok)
	require.Equal(t, info.VideoID, cur.VideoID)
	require.Equal(t, StateRecording, cur.State)
	require.False(t, cur.Options.HasCamera())

	_, err = m.StopRecording(ctx)
	require.NoError(t, err)
}

func TestStopWithoutRecording(t *testing.T) {
	m, _ := newTestManager(t, newFakeFactory())
	_, err := m.StopRecording(ctx())
	require.ErrorIs(t, err, screencap.ErrNotRecording)
	require.NoError(t, m.Close(ctx()))
}

func TestCameraFailsDuringRecording(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	factory.stopErr[screencap.SourceKindCamera] = &screencap.EncoderError{Kind: screencap.ErrEncoderRuntime, Diagnostics: "camera unplugged"}
	m, events := newTestManager(t, factory)

	_, err := m.StartRecording(ctx, withCamera("video0"))
	require.NoError(t, err)

	result, err := m.StopRecording(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"camera"}, result.Degraded())
	require.ErrorIs(t, result.Err(), screencap.ErrEncoderRuntime)

	layout := screencap.SessionLayout{Dir: result.Dir}
	require.FileExists(t, layout.DisplayPath())
	b, err := os.ReadFile(layout.MetaPath())
	require.NoError(t, err)
	require.NotContains(t, string(b), "camera")

	require.Len(t, m.ListArchive(ArchiveOrderOldestFirst), 1)
	require.Equal(t, []string{"camera"}, events.events[1].Degraded)
}

func TestStartFailureCleansUp(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	factory.startErr[screencap.SourceKindCamera] = fmt.Errorf("%w: /dev/video7", screencap.ErrDeviceUnavailable)
	m, events := newTestManager(t, factory)

	_, err := m.StartRecording(ctx, withCamera("video7"))
	require.ErrorIs(t, err, screencap.ErrDeviceUnavailable)

	_, ok := m.CurrentRecording()
	require.False(t, ok)
	require.Empty(t, m.ListArchive(ArchiveOrderOldestFirst))
	require.Equal(t, []screencap.EventType{screencap.EventTypeRecordingFailed}, events.types())

	require.Len(t, factory.pipelines, 1)
	require.True(t, factory.pipelines[0].stopped.Load(), "the display pipeline must be stopped")

	entries, err := os.ReadDir(m.Config.RecordingsRoot)
	require.NoError(t, err)
	require.Empty(t, entries, "no partial session directory is left")

	delete(factory.startErr, screencap.SourceKindCamera)
	_, err = m.StartRecording(ctx, withCamera("video0"))
	require.NoError(t, err)
	_, err = m.StopRecording(ctx)
	require.NoError(t, err)
}

func TestStartRejectsInvalidOptions(t *testing.T) {
	factory := newFakeFactory()
	m, _ := newTestManager(t, factory)

	_, err := m.StartRecording(ctx(), &screencap.RecordingOptions{CaptureTarget: screencap.CaptureTargetWindow{}})
	require.ErrorIs(t, err, screencap.ErrConfiguration)
	require.Empty(t, factory.sources)
	require.NoDirExists(t, m.Config.RecordingsRoot)
}

func TestIDCollisionRetries(t *testing.T) {
	ctx := ctx()
	m, _ := newTestManager(t, newFakeFactory())
	ids := []string{"taken", "fresh"}
	m.NewID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	require.NoError(t, os.MkdirAll(screencap.NewSessionLayout(m.Config.RecordingsRoot, "taken").Dir, 0o755))

	info, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "fresh", info.VideoID)
	_, err = m.StopRecording(ctx)
	require.NoError(t, err)
}

func TestRecordingOptions(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	m, events := newTestManager(t, factory)
	require.Equal(t, screencap.DefaultRecordingOptions(), m.RecordingOptions())

	opts := screencap.RecordingOptions{CaptureTarget: screencap.CaptureTargetWindow{ID: "0x1a00003"}}
	require.NoError(t, m.SetRecordingOptions(ctx, opts))
	require.Equal(t, opts, m.RecordingOptions())
	require.ErrorIs(t, m.SetRecordingOptions(ctx, screencap.RecordingOptions{}), screencap.ErrConfiguration)

	_, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)
	require.Len(t, factory.sources, 1)
	require.Equal(t, screencap.CaptureTargetWindow{ID: "0x1a00003"}, factory.sources[0].Target)
	require.Equal(t, float64(30), factory.sources[0].FrameRate)
	_, err = m.StopRecording(ctx)
	require.NoError(t, err)

	require.Equal(t, screencap.EventTypeRecordingOptionsChanged, events.events[0].Type)
	require.Equal(t, &opts, events.events[0].Options)
}

func TestDimensionsFallBackToProber(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	factory.dims[screencap.SourceKindDisplay] = screencap.Dimensions{}
	m, _ := newTestManager(t, factory)
	m.Deps.Prober = fakeProber{info: &screencap.MediaInfo{Dimensions: screencap.Dimensions{Width: 2560, Height: 1440}}}

	_, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)
	result, err := m.StopRecording(ctx)
	require.NoError(t, err)
	require.Equal(t, screencap.Dimensions{Width: 2560, Height: 1440}, result.Meta.Display)
}

func TestMetaFailureIsNotArchived(t *testing.T) {
	ctx := ctx()
	factory := newFakeFactory()
	factory.dims[screencap.SourceKindDisplay] = screencap.Dimensions{}
	m, _ := newTestManager(t, factory)

	_, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)
	result, err := m.StopRecording(ctx)
	require.ErrorIs(t, err, screencap.ErrIO)
	require.NotNil(t, result)
	require.NoFileExists(t, screencap.SessionLayout{Dir: result.Dir}.MetaPath())
	require.FileExists(t, screencap.SessionLayout{Dir: result.Dir}.DisplayPath())
	require.Empty(t, m.ListArchive(ArchiveOrderOldestFirst))

	_, ok := m.CurrentRecording()
	require.False(t, ok)
}

func TestArchiveScan(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	for i, id := range []string{"b", "a", "c"} {
		layout := screencap.NewSessionLayout(root, id)
		require.NoError(t, os.MkdirAll(layout.Dir, 0o755))
		require.NoError(t, meta.Save(layout.MetaPath(), meta.New(screencap.Dimensions{Width: 1280, Height: 720}, nil)))
		ts := now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(layout.MetaPath(), ts, ts))
	}
	require.NoError(t, os.MkdirAll(screencap.NewSessionLayout(root, "unfinished").ContentDir(), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "unrelated"), 0o755))

	m, err := NewManager(ctx(), Config{RecordingsRoot: root}, Deps{
		Factory:     newFakeFactory(),
		Thumbnailer: fakeThumbnailer{},
	}, nil)
	require.NoError(t, err)

	var ids []string
	for _, entry := range m.ListArchive(ArchiveOrderOldestFirst) {
		ids = append(ids, entry.VideoID)
	}
	require.Equal(t, []string{"b", "a", "c"}, ids)

	ids = ids[:0]
	for _, entry := range m.ListArchive(ArchiveOrderNewestFirst) {
		ids = append(ids, entry.VideoID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids)

	m.Config.ArchiveOrder = ArchiveOrderNewestFirst
	ids = ids[:0]
	for _, entry := range m.ListArchive() {
		ids = append(ids, entry.VideoID)
	}
	require.Equal(t, []string{"c", "a", "b"}, ids, "without an explicit order the configured one applies")

	md, err := m.SessionMetadata(ctx(), "a")
	require.NoError(t, err)
	require.Equal(t, screencap.Dimensions{Width: 1280, Height: 720}, md.Display)

	_, err = m.SessionMetadata(ctx(), "unfinished")
	require.ErrorIs(t, err, screencap.ErrNotFound)
}

func TestSessionDir(t *testing.T) {
	m, _ := newTestManager(t, newFakeFactory())
	for _, id := range []string{"", ".", "..", "../x", `a\b`, "a/b"} {
		_, err := m.SessionDir(id)
		require.ErrorIs(t, err, screencap.ErrConfiguration, id)
	}
	_, err := m.SessionDir("missing")
	require.ErrorIs(t, err, screencap.ErrNotFound)
}

func TestScreenVideoMetadata(t *testing.T) {
	ctx := ctx()
	m, _ := newTestManager(t, newFakeFactory())
	m.Deps.Prober = fakeProber{info: &screencap.MediaInfo{
		Dimensions: screencap.Dimensions{Width: 1920, Height: 1080},
		Duration:   90 * time.Second,
		Size:       3 * 1024 * 1024,
	}}
	info, err := m.StartRecording(ctx, nil)
	require.NoError(t, err)
	_, err = m.StopRecording(ctx)
	require.NoError(t, err)

	md, err := m.ScreenVideoMetadata(ctx, info.VideoID)
	require.NoError(t, err)
	require.Equal(t, 90.0, md.DurationSeconds)
	require.Equal(t, 3.0, md.SizeMiB)
}

func TestSessionStateMachine(t *testing.T) {
	require.True(t, StateIdle.canTransitionTo(StateStarting))
	require.True(t, StateStarting.canTransitionTo(StateFailed))
	require.False(t, StateRecording.canTransitionTo(StateFailed))
	require.False(t, StateStopped.canTransitionTo(StateStarting))
	require.False(t, StateFailed.canTransitionTo(StateStarting))
	for s := StateIdle; s < EndOfState; s++ {
		require.False(t, s.IsActive() && s.IsTerminal(), s.String())
	}

	s := newSession("x", screencap.NewSessionLayout(t.TempDir(), "x"), screencap.DefaultRecordingOptions(), Config{}, Deps{
		Factory:     newFakeFactory(),
		Thumbnailer: fakeThumbnailer{},
	})
	_, err := s.Stop(ctx())
	require.ErrorIs(t, err, screencap.ErrNotRecording)
	require.NoError(t, s.Start(ctx()))
	require.Error(t, s.Start(ctx()))
	_, err = s.Stop(ctx())
	require.NoError(t, err)
	_, err = s.Stop(ctx())
	require.ErrorIs(t, err, screencap.ErrNotRecording)
	require.Equal(t, StateStopped, s.State())
}

func TestWithFakeEncoder(t *testing.T) {
	ctx := ctx()
	self, err := os.Executable()
	require.NoError(t, err)
	cfg := ffmpeg.Config{
		FFmpegPath:   self,
		X11Display:   ":99",
		StartTimeout: 10 * time.Second,
		StopTimeout:  10 * time.Second,
		GOOS:         "linux",
		Env:          []string{fakeffmpeg.EnvKeyMode + "=" + fakeffmpeg.ModeOK},
	}
	m, err := NewManager(ctx, Config{RecordingsRoot: t.TempDir()}, Deps{
		Factory:     ffmpeg.NewFactory(cfg),
		Thumbnailer: ffmpeg.NewRunner(cfg),
	}, nil)
	require.NoError(t, err)

	_, err = m.StartRecording(ctx, withCamera("video0"))
	require.NoError(t, err)
	result, err := m.StopRecording(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	layout := screencap.SessionLayout{Dir: result.Dir}
	require.FileExists(t, layout.DisplayPath())
	require.FileExists(t, layout.ThumbnailPath())
	md, err := meta.Load(layout.MetaPath())
	require.NoError(t, err)
	require.Equal(t, screencap.Dimensions{Width: 1920, Height: 1080}, md.Display)
	require.True(t, md.HasCamera())
}

func TestArchiveOrderFlag(t *testing.T) {
	var order ArchiveOrder
	require.NoError(t, order.Set("Newest-First"))
	require.Equal(t, ArchiveOrderNewestFirst, order)
	require.Equal(t, "newest-first", order.String())
	require.NoError(t, order.Set(""))
	require.Equal(t, ArchiveOrderOldestFirst, order)
	require.ErrorIs(t, order.Set("sideways"), screencap.ErrConfiguration)
}
