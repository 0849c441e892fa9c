// Package config is the configuration of the screencap daemon and CLI.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/goccy/go-yaml"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/ffmpeg"
	"github.com/xaionaro-go/screencap/probe"
	"github.com/xaionaro-go/screencap/session"
)

const (
	EnvRecordingsDir = "SCREENCAP_RECORDINGS_DIR"
	EnvFFmpeg        = "SCREENCAP_FFMPEG"
	EnvFFprobe       = "SCREENCAP_FFPROBE"
	EnvListenAddr    = "SCREENCAP_LISTEN_ADDR"
)

const (
	appName           = "screencap"
	DefaultListenAddr = "127.0.0.1:17937"
)

type Config struct {
	RecordingsDir string `yaml:"recordings_dir"`
	FFmpegPath    string `yaml:"ffmpeg_path,omitempty"`
	FFprobePath   string `yaml:"ffprobe_path,omitempty"`

	FrameRate    float64       `yaml:"frame_rate,omitempty"`
	StartTimeout time.Duration `yaml:"start_timeout,omitempty"`
	StopTimeout  time.Duration `yaml:"stop_timeout,omitempty"`

	Render       screencap.EncodeVideoConfig `yaml:"render"`
	ArchiveOrder session.ArchiveOrder        `yaml:"archive_order"`

	ListenAddr    string `yaml:"listen_addr"`
	Notifications bool   `yaml:"notifications"`
	CatalogPath   string `yaml:"catalog_path,omitempty"`
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

func Default() Config {
	data := dataDir()
	return Config{
		RecordingsDir: filepath.Join(data, "recordings"),
		FrameRate:     30,
		StartTimeout:  ffmpeg.DefaultStartTimeout,
		StopTimeout:   ffmpeg.DefaultStopTimeout,
		Render:        screencap.DefaultEncodeVideoConfig(),
		ArchiveOrder:  session.ArchiveOrderOldestFirst,
		ListenAddr:    DefaultListenAddr,
		Notifications: true,
		CatalogPath:   filepath.Join(data, "catalog.sqlite"),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/screencap/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to find the configuration directory: %w", err)
	}
	return filepath.Join(dir, appName, "config.yaml"), nil
}

// Load reads the configuration at path on top of the defaults and applies
// the environment overrides. A missing file is not an error.
func Load(
	ctx context.Context,
	path string,
) (_ret *Config, _err error) {
	logger.Debugf(ctx, "Load(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Load(ctx, '%s'): %v", path, _err) }()

	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("%w: unable to parse '%s': %w", screencap.ErrConfiguration, path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		logger.Debugf(ctx, "'%s' does not exist, using the defaults", path)
	default:
		return nil, fmt.Errorf("%w: unable to read '%s': %w", screencap.ErrIO, path, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for key, field := range map[string]*string{
		EnvRecordingsDir: &cfg.RecordingsDir,
		EnvFFmpeg:        &cfg.FFmpegPath,
		EnvFFprobe:       &cfg.FFprobePath,
		EnvListenAddr:    &cfg.ListenAddr,
	} {
		if value, ok := lookup(key); ok && value != "" {
			*field = value
		}
	}
}

func (cfg Config) Validate() error {
	switch {
	case cfg.RecordingsDir == "":
		return fmt.Errorf("%w: recordings_dir is empty", screencap.ErrConfiguration)
	case cfg.FrameRate < 0:
		return fmt.Errorf("%w: negative frame_rate %v", screencap.ErrConfiguration, cfg.FrameRate)
	case cfg.StartTimeout < 0 || cfg.StopTimeout < 0:
		return fmt.Errorf("%w: negative timeout", screencap.ErrConfiguration)
	case cfg.ListenAddr == "":
		return fmt.Errorf("%w: listen_addr is empty", screencap.ErrConfiguration)
	}
	return nil
}

func (cfg Config) Save(path string) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to serialize the configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: unable to create the directory of '%s': %w", screencap.ErrIO, path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: unable to write '%s': %w", screencap.ErrIO, path, err)
	}
	return nil
}

func (cfg Config) FFmpeg() ffmpeg.Config {
	return ffmpeg.Config{
		FFmpegPath:   cfg.FFmpegPath,
		StartTimeout: cfg.StartTimeout,
		StopTimeout:  cfg.StopTimeout,
	}
}

func (cfg Config) Probe() probe.Config {
	return probe.Config{FFprobePath: cfg.FFprobePath}
}

func (cfg Config) Session() session.Config {
	return session.Config{
		RecordingsRoot: cfg.RecordingsDir,
		FrameRate:      cfg.FrameRate,
		ArchiveOrder:   cfg.ArchiveOrder,
	}
}
