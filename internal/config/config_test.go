package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/session"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	for _, key := range []string{EnvRecordingsDir, EnvFFmpeg, EnvFFprobe, EnvListenAddr} {
		t.Setenv(key, "")
	}
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), *cfg)
	require.Equal(t, 5*time.Second, cfg.StopTimeout)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recordings_dir: /data/recordings
ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
frame_rate: 60
archive_order: newest-first
notifications: false
render:
  codec: hevc
  preset: slow
`), 0o644))
	for _, key := range []string{EnvRecordingsDir, EnvFFmpeg, EnvFFprobe} {
		t.Setenv(key, "")
	}
	t.Setenv(EnvListenAddr, "127.0.0.1:1234")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "/data/recordings", cfg.RecordingsDir)
	require.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	require.Equal(t, 60.0, cfg.FrameRate)
	require.Equal(t, session.ArchiveOrderNewestFirst, cfg.ArchiveOrder)
	require.False(t, cfg.Notifications)
	require.Equal(t, screencap.VideoCodecHEVC, cfg.Render.Codec)
	require.Equal(t, "slow", cfg.Render.Preset)
	require.Equal(t, "127.0.0.1:1234", cfg.ListenAddr)

	require.Equal(t, "/data/recordings", cfg.Session().RecordingsRoot)
	require.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg().FFmpegPath)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive_order: sideways\n"), 0o644))
	_, err := Load(context.Background(), path)
	require.ErrorIs(t, err, screencap.ErrConfiguration)

	require.NoError(t, os.WriteFile(path, []byte("frame_rate: -1\n"), 0o644))
	_, err = Load(context.Background(), path)
	require.ErrorIs(t, err, screencap.ErrConfiguration)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvRecordingsDir: "/r",
		EnvFFmpeg:        "/bin/ffmpeg",
		EnvFFprobe:       "",
	}
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.Equal(t, "/r", cfg.RecordingsDir)
	require.Equal(t, "/bin/ffmpeg", cfg.FFmpegPath)
	require.Empty(t, cfg.FFprobePath)
	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestSaveLoad(t *testing.T) {
	for _, key := range []string{EnvRecordingsDir, EnvFFmpeg, EnvFFprobe, EnvListenAddr} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "screencap", "config.yaml")
	cfg := Default()
	cfg.RecordingsDir = "/somewhere"
	cfg.StopTimeout = 3 * time.Second
	cfg.ArchiveOrder = session.ArchiveOrderNewestFirst
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, cfg, *loaded)
}
