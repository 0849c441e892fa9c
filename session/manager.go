// Package session implements recording sessions and the manager owning the
// single active-session slot and the archive of finalized sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"
	"github.com/xaionaro-go/screencap/probe"
	"github.com/xaionaro-go/xsync"
)

const maxIDAttempts = 8

type Config struct {
	RecordingsRoot string

	// FrameRate is the capture frame rate; zero leaves it to the device.
	FrameRate float64

	DisplayCustomOptions screencap.CustomOptions
	CameraCustomOptions  screencap.CustomOptions

	ArchiveOrder ArchiveOrder
}

type Manager struct {
	Config Config
	Deps   Deps
	Events screencap.EventPublisher
	NewID  func() string

	// opLocker serializes StartRecording and StopRecording.
	opLocker xsync.Mutex

	slotLocker xsync.Mutex
	current    *Session
	archive    []ArchiveEntry
	options    screencap.RecordingOptions
}

// NewManager returns a manager whose archive is populated from the
// finalized sessions already present under the recordings root.
func NewManager(
	ctx context.Context,
	cfg Config,
	deps Deps,
	events screencap.EventPublisher,
) (*Manager, error) {
	if cfg.RecordingsRoot == "" {
		return nil, fmt.Errorf("%w: the recordings directory is not set", screencap.ErrConfiguration)
	}
	if deps.Factory == nil || deps.Thumbnailer == nil {
		return nil, fmt.Errorf("%w: the capture factory and the thumbnailer are required", screencap.ErrConfiguration)
	}
	if events == nil {
		events = screencap.EventPublisherNoop{}
	}
	archive, err := scanArchive(ctx, cfg.RecordingsRoot)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "found %d archived sessions in '%s'", len(archive), cfg.RecordingsRoot)
	return &Manager{
		Config:  cfg,
		Deps:    deps,
		Events:  events,
		NewID:   uuid.NewString,
		archive: archive,
		options: screencap.DefaultRecordingOptions(),
	}, nil
}

func (m *Manager) noLogCtx() context.Context {
	return xsync.WithNoLogging(context.Background(), true)
}

// StartRecording starts a new session. A nil opts uses the stored
// recording options. While a session is active the request is rejected
// with ErrAlreadyRecording and the active session is left untouched.
func (m *Manager) StartRecording(
	ctx context.Context,
	opts *screencap.RecordingOptions,
) (_ret *Info, _err error) {
	logger.Debugf(ctx, "StartRecording(ctx, %#+v)", opts)
	defer func() { logger.Debugf(ctx, "/StartRecording(ctx): %v", _err) }()

	return xsync.DoR2(ctx, &m.opLocker, func() (*Info, error) {
		return m.startRecording(ctx, opts)
	})
}

func (m *Manager) startRecording(
	ctx context.Context,
	opts *screencap.RecordingOptions,
) (*Info, error) {
	if cur := m.currentSession(); cur != nil {
		return nil, fmt.Errorf("%w: session %s is %s", screencap.ErrAlreadyRecording, cur.ID, cur.State())
	}

	var options screencap.RecordingOptions
	if opts != nil {
		options = *opts
	} else {
		options = m.RecordingOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.Config.RecordingsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: unable to create the recordings directory '%s': %w", screencap.ErrIO, m.Config.RecordingsRoot, err)
	}

	for attempt := 0; ; attempt++ {
		videoID := m.NewID()
		s := newSession(videoID, screencap.NewSessionLayout(m.Config.RecordingsRoot, videoID), options, m.Config, m.Deps)
		m.setCurrent(s)

		err := s.Start(ctx)
		if err == nil {
			m.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeRecordingStarted, videoID).WithPath(s.Layout.Dir))
			return s.Info(), nil
		}
		m.setCurrent(nil)

		if errors.Is(err, fs.ErrExist) && attempt+1 < maxIDAttempts {
			logger.Warnf(ctx, "session directory collision for id %s, retrying", videoID)
			continue
		}
		m.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeRecordingFailed, videoID).WithError(err))
		return nil, err
	}
}

// StopRecording finalizes the active session, registers it in the archive
// once its metadata is written and clears the active slot.
func (m *Manager) StopRecording(
	ctx context.Context,
) (_ret *Result, _err error) {
	logger.Debugf(ctx, "StopRecording(ctx)")
	defer func() { logger.Debugf(ctx, "/StopRecording(ctx): %v", _err) }()

	return xsync.DoR2(ctx, &m.opLocker, func() (*Result, error) {
		return m.stopRecording(ctx)
	})
}

func (m *Manager) stopRecording(
	ctx context.Context,
) (*Result, error) {
	cur := m.currentSession()
	if cur == nil {
		return nil, screencap.ErrNotRecording
	}

	result, err := cur.Stop(ctx)
	if result == nil {
		return nil, err
	}
	m.setCurrent(nil)

	ev := screencap.NewEvent(screencap.EventTypeRecordingStopped, cur.ID).WithPath(cur.Layout.Dir).WithError(result.Err())
	ev.Degraded = result.Degraded()
	m.Events.Publish(ctx, ev)

	if result.MetaErr != nil {
		return result, err
	}

	entry := ArchiveEntry{
		VideoID:    cur.ID,
		Dir:        cur.Layout.Dir,
		ArchivedAt: time.Now(),
	}
	m.slotLocker.Do(m.noLogCtx(), func() {
		m.archive = append(m.archive, entry)
	})
	m.Events.Publish(ctx, screencap.NewEvent(screencap.EventTypeSessionArchived, cur.ID).WithPath(cur.Layout.Dir))
	return result, err
}

func (m *Manager) currentSession() *Session {
	return xsync.DoR1(m.noLogCtx(), &m.slotLocker, func() *Session {
		return m.current
	})
}

func (m *Manager) setCurrent(s *Session) {
	m.slotLocker.Do(m.noLogCtx(), func() {
		m.current = s
	})
}

// CurrentRecording returns a snapshot of the active session.
func (m *Manager) CurrentRecording() (*Info, bool) {
	cur := m.currentSession()
	if cur == nil {
		return nil, false
	}
	return cur.Info(), true
}

func (m *Manager) RecordingOptions() screencap.RecordingOptions {
	return xsync.DoR1(m.noLogCtx(), &m.slotLocker, func() screencap.RecordingOptions {
		return m.options
	})
}

// SetRecordingOptions stores the options used by StartRecording when none
// are given. It does not affect an already active session.
func (m *Manager) SetRecordingOptions(
	ctx context.Context,
	opts screencap.RecordingOptions,
) error {
	logger.Debugf(ctx, "SetRecordingOptions(ctx, %#+v)", opts)
	if err := opts.Validate(); err != nil {
		return err
	}
	m.slotLocker.Do(m.noLogCtx(), func() {
		m.options = opts
	})
	ev := screencap.NewEvent(screencap.EventTypeRecordingOptionsChanged, "")
	ev.Options = &opts
	m.Events.Publish(ctx, ev)
	return nil
}

// ListArchive returns the finalized sessions in the given order, or in
// Config.ArchiveOrder if none is given.
func (m *Manager) ListArchive(order ...ArchiveOrder) []ArchiveEntry {
	o := m.Config.ArchiveOrder
	if len(order) > 0 {
		o = order[0]
	}
	result := xsync.DoR1(m.noLogCtx(), &m.slotLocker, func() []ArchiveEntry {
		return slices.Clone(m.archive)
	})
	if o == ArchiveOrderNewestFirst {
		slices.Reverse(result)
	}
	return result
}

// SessionDir resolves a video id into its session directory.
func (m *Manager) SessionDir(videoID string) (string, error) {
	if videoID == "" || videoID == "." || videoID == ".." || strings.ContainsAny(videoID, `/\`) {
		return "", fmt.Errorf("%w: invalid video id '%s'", screencap.ErrConfiguration, videoID)
	}
	layout := screencap.NewSessionLayout(m.Config.RecordingsRoot, videoID)
	st, err := os.Stat(layout.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: session '%s'", screencap.ErrNotFound, videoID)
	case err != nil:
		return "", fmt.Errorf("%w: unable to stat '%s': %w", screencap.ErrIO, layout.Dir, err)
	case !st.IsDir():
		return "", fmt.Errorf("%w: '%s' is not a directory", screencap.ErrNotFound, layout.Dir)
	}
	return layout.Dir, nil
}

// SessionMetadata returns the recording metadata of a finalized session.
func (m *Manager) SessionMetadata(
	ctx context.Context,
	videoID string,
) (*meta.RecordingMeta, error) {
	logger.Debugf(ctx, "SessionMetadata(ctx, '%s')", videoID)
	dir, err := m.SessionDir(videoID)
	if err != nil {
		return nil, err
	}
	return meta.Load(screencap.SessionLayout{Dir: dir}.MetaPath())
}

// ScreenVideoMetadata returns the duration and the size of the display
// capture of a session.
func (m *Manager) ScreenVideoMetadata(
	ctx context.Context,
	videoID string,
) (*screencap.VideoMetadata, error) {
	logger.Debugf(ctx, "ScreenVideoMetadata(ctx, '%s')", videoID)
	if m.Deps.Prober == nil {
		return nil, fmt.Errorf("%w: no prober is configured", screencap.ErrConfiguration)
	}
	dir, err := m.SessionDir(videoID)
	if err != nil {
		return nil, err
	}
	return probe.VideoMetadata(ctx, m.Deps.Prober, screencap.SessionLayout{Dir: dir}.DisplayPath())
}

// Close finalizes the active session, if any, so no capture outlives the
// manager.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.StopRecording(ctx)
	if errors.Is(err, screencap.ErrNotRecording) {
		return nil
	}
	return err
}
