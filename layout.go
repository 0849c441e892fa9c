package screencap

import (
	"path/filepath"
	"strings"
)

const (
	SessionDirSuffix = ".cap"

	MetaFileName         = "recording-meta.json"
	RenderConfigFileName = "render-config.json"
)

// SessionLayout is the on-disk layout of one session directory.
type SessionLayout struct {
	Dir string
}

func NewSessionLayout(recordingsRoot string, videoID string) SessionLayout {
	return SessionLayout{Dir: filepath.Join(recordingsRoot, videoID+SessionDirSuffix)}
}

func (l SessionLayout) VideoID() string {
	id, _ := VideoIDFromDir(l.Dir)
	return id
}

func (l SessionLayout) ContentDir() string {
	return filepath.Join(l.Dir, "content")
}

func (l SessionLayout) DisplayPath() string {
	return filepath.Join(l.ContentDir(), "display.mp4")
}

func (l SessionLayout) CameraPath() string {
	return filepath.Join(l.ContentDir(), "camera.mp4")
}

func (l SessionLayout) ScreenshotsDir() string {
	return filepath.Join(l.Dir, "screenshots")
}

func (l SessionLayout) ThumbnailPath() string {
	return filepath.Join(l.ScreenshotsDir(), "display.jpg")
}

func (l SessionLayout) MetaPath() string {
	return filepath.Join(l.Dir, MetaFileName)
}

func (l SessionLayout) OutputDir() string {
	return filepath.Join(l.Dir, "output")
}

func (l SessionLayout) OutputPath() string {
	return filepath.Join(l.OutputDir(), "result.mp4")
}

// PartialOutputPath is where a render writes before the output is renamed
// into place.
func (l SessionLayout) PartialOutputPath() string {
	return l.OutputPath() + ".partial"
}

func (l SessionLayout) RenderConfigPath() string {
	return filepath.Join(l.OutputDir(), RenderConfigFileName)
}

func VideoIDFromDir(dir string) (string, bool) {
	base := filepath.Base(filepath.Clean(dir))
	id, ok := strings.CutSuffix(base, SessionDirSuffix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
