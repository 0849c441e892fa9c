package meta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screencap"
)

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), screencap.MetaFileName)

	m := New(screencap.Dimensions{Width: 1920, Height: 1080}, &screencap.Dimensions{Width: 640, Height: 480})
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m, loaded)
	require.True(t, loaded.HasCamera())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
}

func TestSaveWithoutCamera(t *testing.T) {
	path := filepath.Join(t.TempDir(), screencap.MetaFileName)

	require.NoError(t, Save(path, New(screencap.Dimensions{Width: 1280, Height: 720}, nil)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(b), "camera")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.False(t, loaded.HasCamera())
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), screencap.MetaFileName)

	err := Save(path, New(screencap.Dimensions{}, nil))
	require.ErrorIs(t, err, ErrInvalid)
	require.NoFileExists(t, path)
}

func TestParseLegacy(t *testing.T) {
	m, err := Parse([]byte(`{"display":{"width":3024,"height":1964},"camera":{"width":1280,"height":720}}`))
	require.NoError(t, err)
	require.Equal(t, 1, m.Version)
	require.Equal(t, screencap.Dimensions{Width: 3024, Height: 1964}, m.Display)
	require.Equal(t, &screencap.Dimensions{Width: 1280, Height: 720}, m.Camera)

	m, err = Parse([]byte(`{"display":{"width":3024,"height":1964},"camera":null}`))
	require.NoError(t, err)
	require.Nil(t, m.Camera)
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{
		``,
		`{`,
		`[]`,
		`{}`,
		`{"display":{"width":0,"height":1080}}`,
		`{"display":{"width":1920,"height":1080},"camera":{"width":-1,"height":480}}`,
		`{"version":2,"display":{"width":1920,"height":1080}}`,
		`{"display":"1920x1080"}`,
	} {
		_, err := Parse([]byte(in))
		require.ErrorIs(t, err, ErrInvalid, in)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), screencap.MetaFileName))
	require.ErrorIs(t, err, screencap.ErrNotFound)
}
