package screencap

import (
	"encoding/json"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/require"
)

func TestEncodeVideoConfigMarshalUnmarshal(t *testing.T) {
	for _, cfg := range []*EncodeVideoConfig{
		{
			Codec:   VideoCodecH264,
			Quality: ptr(VideoQualityConstantBitrate(2_000_000)),
		},
		{
			Codec:   VideoCodecHEVC,
			Quality: ptr(VideoQualityConstantQuality(28)),
			Preset:  "slow",
			CustomOptions: CustomOptions{
				{Key: "tune", Value: "film"},
			},
		},
	} {
		b, err := yaml.Marshal(cfg)
		require.NoError(t, err)

		var cfgDup EncodeVideoConfig
		err = yaml.Unmarshal(b, &cfgDup)
		require.NoError(t, err, string(b))
		require.Equal(t, cfg, &cfgDup, string(b))

		b, err = json.Marshal(cfg)
		require.NoError(t, err)

		cfgDup = EncodeVideoConfig{}
		err = json.Unmarshal(b, &cfgDup)
		require.NoError(t, err, string(b))
		require.Equal(t, cfg, &cfgDup, string(b))
	}
}

func TestEncodeVideoConfigUnknownQuality(t *testing.T) {
	var cfg EncodeVideoConfig
	err := json.Unmarshal([]byte(`{"codec":"h264","quality":{"type":"lossless"}}`), &cfg)
	require.Error(t, err)
}

func TestRecordingOptionsMarshalUnmarshal(t *testing.T) {
	camera := "FaceTime HD Camera"
	for _, opts := range []*RecordingOptions{
		{CaptureTarget: CaptureTargetScreen{}},
		{CaptureTarget: CaptureTargetWindow{ID: "0x3a00007"}, CameraLabel: &camera},
	} {
		b, err := yaml.Marshal(opts)
		require.NoError(t, err)

		var optsDup RecordingOptions
		err = yaml.Unmarshal(b, &optsDup)
		require.NoError(t, err, string(b))
		require.Equal(t, opts, &optsDup, string(b))

		b, err = json.Marshal(opts)
		require.NoError(t, err)

		optsDup = RecordingOptions{}
		err = json.Unmarshal(b, &optsDup)
		require.NoError(t, err, string(b))
		require.Equal(t, opts, &optsDup, string(b))
	}
}

func TestRecordingOptionsWindowNumericID(t *testing.T) {
	var opts RecordingOptions
	err := json.Unmarshal([]byte(`{"capture_target":{"type":"window","id":42}}`), &opts)
	require.NoError(t, err)
	require.Equal(t, CaptureTargetWindow{ID: "42"}, opts.CaptureTarget)
	require.False(t, opts.HasCamera())
}

func TestRecordingOptionsValidate(t *testing.T) {
	empty := ""
	camera := "cam"

	require.NoError(t, DefaultRecordingOptions().Validate())
	require.NoError(t, RecordingOptions{CaptureTarget: CaptureTargetScreen{}, CameraLabel: &camera}.Validate())
	require.ErrorIs(t, RecordingOptions{}.Validate(), ErrConfiguration)
	require.ErrorIs(t, RecordingOptions{CaptureTarget: CaptureTargetWindow{}}.Validate(), ErrConfiguration)
	require.ErrorIs(t, RecordingOptions{CaptureTarget: CaptureTargetScreen{}, CameraLabel: &empty}.Validate(), ErrConfiguration)

	var opts RecordingOptions
	require.Error(t, json.Unmarshal([]byte(`{"capture_target":{"type":"region"}}`), &opts))
}

func TestProjectConfigurationMarshalUnmarshal(t *testing.T) {
	cfgs := []ProjectConfiguration{
		DefaultProjectConfiguration(),
		{
			WebcamSize:     Dimensions{Width: 320, Height: 240},
			WebcamPosition: Position{X: 900, Y: 440},
			Style: WebcamStyle{
				CornerRadius: 24,
				ShadowColor:  Color{0.25, 0, 0, 0.75},
				ShadowBlur:   12,
				ShadowOffset: Offset{X: -4, Y: 6},
			},
			OutputSize: Dimensions{Width: 1280, Height: 720},
			Background: BackgroundGradient{
				From:  Color{1, 0, 0, 1},
				To:    Color{0, 0, 1, 1},
				Angle: 45,
			},
		},
	}
	for _, cfg := range cfgs {
		b, err := yaml.Marshal(&cfg)
		require.NoError(t, err)

		var cfgDup ProjectConfiguration
		err = yaml.Unmarshal(b, &cfgDup)
		require.NoError(t, err, string(b))
		require.Equal(t, cfg, cfgDup, string(b))

		b, err = json.Marshal(cfg)
		require.NoError(t, err)

		cfgDup = ProjectConfiguration{}
		err = json.Unmarshal(b, &cfgDup)
		require.NoError(t, err, string(b))
		require.Equal(t, cfg, cfgDup, string(b))
	}
}

func TestProjectConfigurationFromJSON(t *testing.T) {
	var cfg ProjectConfiguration
	err := json.Unmarshal([]byte(`{
		"webcam_size": {"width": 320, "height": 180},
		"webcam_position": {"x": 10, "y": 20},
		"style": {"corner_radius": 8, "shadow_color": [0, 0, 0, 0.5], "shadow_blur": 4, "shadow_offset": {"x": 2, "y": 2}},
		"output_size": {"width": 1280, "height": 720},
		"background": {"type": "color", "color": [0.1, 0.2, 0.3, 1]}
	}`), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, BackgroundColor{Color: Color{0.1, 0.2, 0.3, 1}}, cfg.Background)
	require.Equal(t, Dimensions{Width: 1280, Height: 720}, cfg.OutputSize)
}

func TestProjectConfigurationValidate(t *testing.T) {
	cfg := DefaultProjectConfiguration()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.OutputSize = Dimensions{Width: -1, Height: 720}
	require.ErrorIs(t, bad.Validate(), ErrConfiguration)

	bad = cfg
	bad.OutputSize = Dimensions{Width: 1281, Height: 720}
	require.ErrorIs(t, bad.Validate(), ErrConfiguration)

	bad = cfg
	bad.Style.ShadowColor = Color{0, 0, 0, 2}
	require.ErrorIs(t, bad.Validate(), ErrConfiguration)

	bad = cfg
	bad.Background = BackgroundColor{Color: Color{-1, 0, 0, 1}}
	require.ErrorIs(t, bad.Validate(), ErrConfiguration)
}

func TestCustomOptionsArgs(t *testing.T) {
	opts := CustomOptions{{Key: "tune", Value: "zerolatency"}, {Key: "an"}}
	require.Equal(t, []string{"-tune", "zerolatency", "-an"}, opts.Args())
	v, ok := opts.Get("tune")
	require.True(t, ok)
	require.Equal(t, "zerolatency", v)
	_, ok = opts.Get("crf")
	require.False(t, ok)
}
