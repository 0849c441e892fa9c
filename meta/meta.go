// Package meta stores the recording metadata sidecar of a session.
package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xaionaro-go/screencap"
)

const CurrentVersion = 1

var ErrInvalid = errors.New("invalid recording metadata")

// RecordingMeta describes the captured streams of a finalized session.
// A nil Camera means there is no overlay source.
type RecordingMeta struct {
	Version int                   `json:"version"`
	Display screencap.Dimensions  `json:"display"`
	Camera  *screencap.Dimensions `json:"camera,omitempty"`
}

func New(display screencap.Dimensions, camera *screencap.Dimensions) *RecordingMeta {
	return &RecordingMeta{
		Version: CurrentVersion,
		Display: display,
		Camera:  camera,
	}
}

func (m *RecordingMeta) HasCamera() bool {
	return m.Camera != nil
}

func (m *RecordingMeta) Validate() error {
	if m.Version < 1 || m.Version > CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, m.Version)
	}
	if !m.Display.IsValid() {
		return fmt.Errorf("%w: invalid display dimensions %s", ErrInvalid, m.Display)
	}
	if m.Camera != nil && !m.Camera.IsValid() {
		return fmt.Errorf("%w: invalid camera dimensions %s", ErrInvalid, *m.Camera)
	}
	return nil
}

// Parse decodes and validates the metadata. Files without a version
// predate versioning and are treated as version 1.
func Parse(b []byte) (*RecordingMeta, error) {
	var raw struct {
		Version *int                  `json:"version"`
		Display *screencap.Dimensions `json:"display"`
		Camera  *screencap.Dimensions `json:"camera"`
	}
	d := json.NewDecoder(bytes.NewReader(b))
	if err := d.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if raw.Display == nil {
		return nil, fmt.Errorf("%w: the 'display' field is missing", ErrInvalid)
	}
	m := &RecordingMeta{
		Version: 1,
		Display: *raw.Display,
		Camera:  raw.Camera,
	}
	if raw.Version != nil {
		m.Version = *raw.Version
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func Load(path string) (*RecordingMeta, error) {
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: '%s'", screencap.ErrNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("%w: unable to read '%s': %w", screencap.ErrIO, path, err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	return m, nil
}

// Save writes the metadata atomically: the file is either absent or complete.
func Save(path string, m *RecordingMeta) error {
	if err := m.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to JSON-ize %#+v: %w", m, err)
	}
	if err := WriteFileAtomic(path, b); err != nil {
		return fmt.Errorf("%w: %w", screencap.ErrIO, err)
	}
	return nil
}

// WriteFileAtomic writes b into a temporary file next to path, syncs it
// and renames it into place.
func WriteFileAtomic(path string, b []byte) (_err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create a temporary file in '%s': %w", dir, err)
	}
	tmpPath := f.Name()
	defer func() {
		if _err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("unable to write '%s': %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("unable to sync '%s': %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to close '%s': %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("unable to chmod '%s': %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("unable to rename '%s' to '%s': %w", tmpPath, path, err)
	}
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
