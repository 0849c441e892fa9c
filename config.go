package screencap

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"gopkg.in/yaml.v3"
)

// EncodeVideoConfig configures the encoder used to produce rendered output.
type EncodeVideoConfig struct {
	Codec         VideoCodec    `json:"codec,omitempty"   yaml:"codec,omitempty"`
	Quality       VideoQuality  `json:"quality,omitempty" yaml:"quality,omitempty"`
	Preset        string        `json:"preset,omitempty"  yaml:"preset,omitempty"`
	CustomOptions CustomOptions `json:"custom_options,omitempty" yaml:"custom_options,omitempty"`
}

func DefaultEncodeVideoConfig() EncodeVideoConfig {
	return EncodeVideoConfig{
		Codec:   VideoCodecH264,
		Quality: ptr(VideoQualityConstantQuality(23)),
		Preset:  "veryfast",
	}
}

func (c *EncodeVideoConfig) UnmarshalJSON(b []byte) (_err error) {
	type plain EncodeVideoConfig
	aux := struct {
		*plain
		Quality videoQualitySerializable `json:"quality,omitempty"`
	}{plain: (*plain)(c)}
	err := json.Unmarshal(b, &aux)
	if err != nil {
		return fmt.Errorf("unable to un-JSON-ize: %w", err)
	}
	c.Quality, err = aux.Quality.Convert()
	if err != nil {
		return fmt.Errorf("unable to convert the 'quality' field: %w", err)
	}
	return nil
}

func (c *EncodeVideoConfig) UnmarshalYAML(b []byte) (_err error) {
	m := map[string]any{}
	err := yaml.Unmarshal(b, m)
	if err != nil {
		return fmt.Errorf("unable to unmarshal EncodeVideoConfig bytes to a map: %w", err)
	}
	quality := m["quality"]
	delete(m, "quality")
	b, err = yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to remarshal back to EncodeVideoConfig from the map: %w", err)
	}
	type plain EncodeVideoConfig
	err = yaml.Unmarshal(b, (*plain)(c))
	if err != nil {
		return fmt.Errorf("unable to un-YAML-ize: %w", err)
	}
	c.Quality = nil
	if quality != nil {
		s, err := toSerializable[videoQualitySerializable](quality)
		if err != nil {
			return fmt.Errorf("unable to parse the 'quality' field: %w", err)
		}
		c.Quality, err = s.Convert()
		if err != nil {
			return fmt.Errorf("unable to convert the 'quality' field: %w", err)
		}
	}
	return nil
}

func (c EncodeVideoConfig) MarshalYAML() ([]byte, error) {
	type plain EncodeVideoConfig
	cpy := plain(c)
	if cpy.Quality != nil {
		cpy.Quality = cpy.Quality.serializable()
	}
	return yaml.Marshal(cpy)
}

type VideoQuality interface {
	videoQuality()
	typeName() string
	serializable() videoQualitySerializable
	setValues(vq videoQualitySerializable) error
}

type VideoQualityConstantBitrate uint

func (VideoQualityConstantBitrate) typeName() string {
	return "constant_bitrate"
}

func (VideoQualityConstantBitrate) videoQuality() {}

func (vq VideoQualityConstantBitrate) serializable() videoQualitySerializable {
	return videoQualitySerializable{
		"type":    vq.typeName(),
		"bitrate": uint(vq),
	}
}

func (vq VideoQualityConstantBitrate) MarshalJSON() ([]byte, error) {
	return json.Marshal(vq.serializable())
}

func (vq VideoQualityConstantBitrate) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(vq.serializable()))
}

func (vq *VideoQualityConstantBitrate) setValues(in videoQualitySerializable) error {
	bitrate, ok := numberValue(in["bitrate"])
	if !ok || bitrate < 0 {
		return fmt.Errorf("have not found a non-negative number using key 'bitrate' in %#+v", in)
	}

	*vq = VideoQualityConstantBitrate(bitrate)
	return nil
}

// VideoQualityConstantQuality is a constant rate factor (lower is better).
type VideoQualityConstantQuality uint8

func (VideoQualityConstantQuality) typeName() string {
	return "constant_quality"
}

func (VideoQualityConstantQuality) videoQuality() {}

func (vq VideoQualityConstantQuality) serializable() videoQualitySerializable {
	return videoQualitySerializable{
		"type":    vq.typeName(),
		"quality": uint(vq),
	}
}

func (vq VideoQualityConstantQuality) MarshalJSON() ([]byte, error) {
	return json.Marshal(vq.serializable())
}

func (vq VideoQualityConstantQuality) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(vq.serializable()))
}

func (vq *VideoQualityConstantQuality) setValues(in videoQualitySerializable) error {
	quality, ok := numberValue(in["quality"])
	if !ok || quality < 0 || quality > 255 {
		return fmt.Errorf("have not found a number in range [0..255] using key 'quality' in %#+v", in)
	}

	*vq = VideoQualityConstantQuality(quality)
	return nil
}

type videoQualitySerializable map[string]any

func (videoQualitySerializable) videoQuality() {}

func (vq videoQualitySerializable) typeName() string {
	result, _ := vq["type"].(string)
	return result
}

func (vq videoQualitySerializable) serializable() videoQualitySerializable {
	return vq
}

func (vq videoQualitySerializable) setValues(in videoQualitySerializable) error {
	clear(vq)
	maps.Copy(vq, in)
	return nil
}

func (vq videoQualitySerializable) Convert() (VideoQuality, error) {
	typeName, ok := vq["type"].(string)
	if !ok {
		return nil, nil
	}

	var r VideoQuality
	for _, sample := range []VideoQuality{
		ptr(VideoQualityConstantBitrate(0)),
		ptr(VideoQualityConstantQuality(0)),
	} {
		if sample.typeName() == typeName {
			r = sample
			break
		}
	}
	if r == nil {
		return nil, fmt.Errorf("unknown type '%s'", typeName)
	}

	if err := r.setValues(vq); err != nil {
		return nil, fmt.Errorf("unable to convert the value (vq): %w", err)
	}
	return r, nil
}

type VideoCodec uint

const (
	VideoCodecUndefined = VideoCodec(iota)
	VideoCodecH264
	VideoCodecHEVC
	VideoCodecAV1
	EndOfVideoCodec
)

func (vc *VideoCodec) String() string {
	if vc == nil {
		return "null"
	}

	switch *vc {
	case VideoCodecUndefined:
		return "<undefined>"
	case VideoCodecH264:
		return "h264"
	case VideoCodecHEVC:
		return "hevc"
	case VideoCodecAV1:
		return "av1"
	}
	return fmt.Sprintf("unexpected_video_codec_id_%d", uint(*vc))
}

func (vc VideoCodec) MarshalJSON() ([]byte, error) {
	return []byte(`"` + vc.String() + `"`), nil
}

func (vc *VideoCodec) UnmarshalJSON(b []byte) error {
	if vc == nil {
		return fmt.Errorf("VideoCodec is nil")
	}
	s := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := VideoCodecUndefined; cmp < EndOfVideoCodec; cmp++ {
		if cmp.String() == s {
			*vc = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the VideoCodec: '%s'", s)
}

func (vc VideoCodec) MarshalYAML() ([]byte, error) {
	return []byte(vc.String()), nil
}

func (vc *VideoCodec) UnmarshalYAML(b []byte) error {
	return vc.UnmarshalJSON(b)
}

func (vc *VideoCodec) UnmarshalText(b []byte) error {
	return vc.UnmarshalJSON(b)
}

func (vc VideoCodec) MarshalText() ([]byte, error) {
	return []byte(vc.String()), nil
}

func ptr[T any](in T) *T {
	return &in
}

func numberValue(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// toSerializable re-encodes an already-decoded YAML/JSON value as a
// variant's map representation.
func toSerializable[M ~map[string]any](v any) (M, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unable to remarshal %#+v: %w", v, err)
	}
	m := M{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unable to unmarshal %s into a map: %w", b, err)
	}
	return m, nil
}
