package screencap

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Dimensions struct {
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (d Dimensions) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

func (d Dimensions) IsValid() bool {
	return d.Width > 0 && d.Height > 0
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

type Offset struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Color is a straight (non-premultiplied) RGBA color, each component in [0, 1].
type Color [4]float64

func (c Color) IsValid() bool {
	for _, v := range c {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (c Color) R() float64 { return c[0] }
func (c Color) G() float64 { return c[1] }
func (c Color) B() float64 { return c[2] }
func (c Color) A() float64 { return c[3] }

func colorValue(v any) (Color, bool) {
	var items []any
	switch v := v.(type) {
	case []any:
		items = v
	case Color:
		return v, true
	case []float64:
		for _, f := range v {
			items = append(items, f)
		}
	default:
		return Color{}, false
	}
	if len(items) != 4 {
		return Color{}, false
	}
	var c Color
	for idx, item := range items {
		f, ok := numberValue(item)
		if !ok {
			return Color{}, false
		}
		c[idx] = f
	}
	return c, true
}

// CaptureTarget selects what the display pipeline captures.
type CaptureTarget interface {
	captureTarget()
	typeName() string
	serializable() captureTargetSerializable
}

type CaptureTargetScreen struct{}

func (CaptureTargetScreen) captureTarget() {}

func (CaptureTargetScreen) typeName() string {
	return "screen"
}

func (t CaptureTargetScreen) serializable() captureTargetSerializable {
	return captureTargetSerializable{
		"type": t.typeName(),
	}
}

func (t CaptureTargetScreen) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.serializable())
}

func (t CaptureTargetScreen) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(t.serializable()))
}

func (CaptureTargetScreen) String() string {
	return "screen"
}

type CaptureTargetWindow struct {
	ID string
}

func (CaptureTargetWindow) captureTarget() {}

func (CaptureTargetWindow) typeName() string {
	return "window"
}

func (t CaptureTargetWindow) serializable() captureTargetSerializable {
	return captureTargetSerializable{
		"type": t.typeName(),
		"id":   t.ID,
	}
}

func (t CaptureTargetWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.serializable())
}

func (t CaptureTargetWindow) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(t.serializable()))
}

func (t *CaptureTargetWindow) setValues(in captureTargetSerializable) error {
	switch id := in["id"].(type) {
	case string:
		t.ID = id
	case nil:
		return fmt.Errorf("have not found key 'id' in %#+v", in)
	default:
		f, ok := numberValue(id)
		if !ok {
			return fmt.Errorf("the 'id' is expected to be a string or a number, but it is %T", id)
		}
		t.ID = fmt.Sprintf("%d", int64(f))
	}
	return nil
}

func (t CaptureTargetWindow) String() string {
	return "window:" + t.ID
}

type captureTargetSerializable map[string]any

func (captureTargetSerializable) captureTarget() {}

func (t captureTargetSerializable) typeName() string {
	result, _ := t["type"].(string)
	return result
}

func (t captureTargetSerializable) serializable() captureTargetSerializable {
	return t
}

func (t captureTargetSerializable) Convert() (CaptureTarget, error) {
	typeName, ok := t["type"].(string)
	if !ok {
		return nil, nil
	}

	switch typeName {
	case CaptureTargetScreen{}.typeName():
		return CaptureTargetScreen{}, nil
	case CaptureTargetWindow{}.typeName():
		var r CaptureTargetWindow
		if err := r.setValues(t); err != nil {
			return nil, fmt.Errorf("unable to convert the capture target: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown capture target type '%s'", typeName)
}

// RecordingOptions is an immutable snapshot used to start a session.
type RecordingOptions struct {
	CaptureTarget CaptureTarget `json:"capture_target"         yaml:"capture_target"`
	CameraLabel   *string       `json:"camera_label,omitempty" yaml:"camera_label,omitempty"`
}

func DefaultRecordingOptions() RecordingOptions {
	return RecordingOptions{
		CaptureTarget: CaptureTargetScreen{},
	}
}

func (opts RecordingOptions) HasCamera() bool {
	return opts.CameraLabel != nil
}

func (opts RecordingOptions) Validate() error {
	switch target := opts.CaptureTarget.(type) {
	case nil:
		return fmt.Errorf("%w: the capture target is not set", ErrConfiguration)
	case CaptureTargetScreen:
	case CaptureTargetWindow:
		if target.ID == "" {
			return fmt.Errorf("%w: the window identifier is empty", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unsupported capture target %T", ErrConfiguration, target)
	}
	if opts.CameraLabel != nil && *opts.CameraLabel == "" {
		return fmt.Errorf("%w: the camera label is empty", ErrConfiguration)
	}
	return nil
}

func (opts *RecordingOptions) UnmarshalJSON(b []byte) error {
	type plain RecordingOptions
	aux := struct {
		*plain
		CaptureTarget captureTargetSerializable `json:"capture_target"`
	}{plain: (*plain)(opts)}
	err := json.Unmarshal(b, &aux)
	if err != nil {
		return fmt.Errorf("unable to un-JSON-ize: %w", err)
	}
	opts.CaptureTarget, err = aux.CaptureTarget.Convert()
	if err != nil {
		return fmt.Errorf("unable to convert the 'capture_target' field: %w", err)
	}
	return nil
}

func (opts *RecordingOptions) UnmarshalYAML(b []byte) error {
	m := map[string]any{}
	if err := yaml.Unmarshal(b, m); err != nil {
		return fmt.Errorf("unable to unmarshal RecordingOptions bytes to a map: %w", err)
	}
	*opts = RecordingOptions{}
	if label, ok := m["camera_label"].(string); ok {
		opts.CameraLabel = &label
	}
	if target := m["capture_target"]; target != nil {
		s, err := toSerializable[captureTargetSerializable](target)
		if err != nil {
			return fmt.Errorf("unable to parse the 'capture_target' field: %w", err)
		}
		opts.CaptureTarget, err = s.Convert()
		if err != nil {
			return fmt.Errorf("unable to convert the 'capture_target' field: %w", err)
		}
	}
	return nil
}

func (opts RecordingOptions) MarshalYAML() ([]byte, error) {
	type plain RecordingOptions
	cpy := plain(opts)
	if cpy.CaptureTarget != nil {
		cpy.CaptureTarget = cpy.CaptureTarget.serializable()
	}
	return yaml.Marshal(cpy)
}

// Background fills the canvas area not covered by the display.
type Background interface {
	background()
	typeName() string
	serializable() backgroundSerializable
}

type BackgroundColor struct {
	Color Color
}

func (BackgroundColor) background() {}

func (BackgroundColor) typeName() string {
	return "color"
}

func (bg BackgroundColor) serializable() backgroundSerializable {
	return backgroundSerializable{
		"type":  bg.typeName(),
		"color": bg.Color[:],
	}
}

func (bg BackgroundColor) MarshalJSON() ([]byte, error) {
	return json.Marshal(bg.serializable())
}

func (bg BackgroundColor) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(bg.serializable()))
}

func (bg *BackgroundColor) setValues(in backgroundSerializable) error {
	c, ok := colorValue(in["color"])
	if !ok {
		return fmt.Errorf("have not found an [r,g,b,a] value using key 'color' in %#+v", in)
	}
	bg.Color = c
	return nil
}

// BackgroundGradient is a linear gradient; Angle is in degrees, 0 means
// left-to-right.
type BackgroundGradient struct {
	From  Color
	To    Color
	Angle float64
}

func (BackgroundGradient) background() {}

func (BackgroundGradient) typeName() string {
	return "gradient"
}

func (bg BackgroundGradient) serializable() backgroundSerializable {
	return backgroundSerializable{
		"type":  bg.typeName(),
		"from":  bg.From[:],
		"to":    bg.To[:],
		"angle": bg.Angle,
	}
}

func (bg BackgroundGradient) MarshalJSON() ([]byte, error) {
	return json.Marshal(bg.serializable())
}

func (bg BackgroundGradient) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(bg.serializable()))
}

func (bg *BackgroundGradient) setValues(in backgroundSerializable) error {
	from, ok := colorValue(in["from"])
	if !ok {
		return fmt.Errorf("have not found an [r,g,b,a] value using key 'from' in %#+v", in)
	}
	to, ok := colorValue(in["to"])
	if !ok {
		return fmt.Errorf("have not found an [r,g,b,a] value using key 'to' in %#+v", in)
	}
	angle, _ := numberValue(in["angle"])
	bg.From, bg.To, bg.Angle = from, to, angle
	return nil
}

type backgroundSerializable map[string]any

func (backgroundSerializable) background() {}

func (bg backgroundSerializable) typeName() string {
	result, _ := bg["type"].(string)
	return result
}

func (bg backgroundSerializable) serializable() backgroundSerializable {
	return bg
}

func (bg backgroundSerializable) Convert() (Background, error) {
	typeName, ok := bg["type"].(string)
	if !ok {
		return nil, nil
	}

	switch typeName {
	case BackgroundColor{}.typeName():
		var r BackgroundColor
		if err := r.setValues(bg); err != nil {
			return nil, fmt.Errorf("unable to convert the background: %w", err)
		}
		return r, nil
	case BackgroundGradient{}.typeName():
		var r BackgroundGradient
		if err := r.setValues(bg); err != nil {
			return nil, fmt.Errorf("unable to convert the background: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown background type '%s'", typeName)
}

type WebcamStyle struct {
	CornerRadius float64 `json:"corner_radius" yaml:"corner_radius"`
	ShadowColor  Color   `json:"shadow_color"  yaml:"shadow_color"`
	ShadowBlur   float64 `json:"shadow_blur"   yaml:"shadow_blur"`
	ShadowOffset Offset  `json:"shadow_offset" yaml:"shadow_offset"`
}

// ProjectConfiguration is the caller-owned layout used by a render.
type ProjectConfiguration struct {
	WebcamSize     Dimensions  `json:"webcam_size"     yaml:"webcam_size"`
	WebcamPosition Position    `json:"webcam_position" yaml:"webcam_position"`
	Style          WebcamStyle `json:"style"           yaml:"style"`
	OutputSize     Dimensions  `json:"output_size"     yaml:"output_size"`
	Background     Background  `json:"background"      yaml:"background"`
}

func DefaultProjectConfiguration() ProjectConfiguration {
	return ProjectConfiguration{
		Style: WebcamStyle{
			CornerRadius: 10,
			ShadowColor:  Color{0, 0, 0, 0.5},
			ShadowBlur:   5,
			ShadowOffset: Offset{X: 2, Y: 2},
		},
		Background: BackgroundColor{Color: Color{0, 0, 0, 1}},
	}
}

func (cfg ProjectConfiguration) Validate() error {
	if cfg.WebcamSize.Width < 0 || cfg.WebcamSize.Height < 0 {
		return fmt.Errorf("%w: negative webcam_size %s", ErrConfiguration, cfg.WebcamSize)
	}
	if cfg.OutputSize.Width < 0 || cfg.OutputSize.Height < 0 {
		return fmt.Errorf("%w: negative output_size %s", ErrConfiguration, cfg.OutputSize)
	}
	if cfg.OutputSize.Width%2 != 0 || cfg.OutputSize.Height%2 != 0 {
		return fmt.Errorf("%w: output_size %s is odd, yuv420p needs even dimensions", ErrConfiguration, cfg.OutputSize)
	}
	if cfg.Style.CornerRadius < 0 {
		return fmt.Errorf("%w: negative corner_radius %f", ErrConfiguration, cfg.Style.CornerRadius)
	}
	if cfg.Style.ShadowBlur < 0 {
		return fmt.Errorf("%w: negative shadow_blur %f", ErrConfiguration, cfg.Style.ShadowBlur)
	}
	if !cfg.Style.ShadowColor.IsValid() {
		return fmt.Errorf("%w: shadow_color %v is out of range [0..1]", ErrConfiguration, cfg.Style.ShadowColor)
	}
	switch bg := cfg.Background.(type) {
	case nil:
	case BackgroundColor:
		if !bg.Color.IsValid() {
			return fmt.Errorf("%w: background color %v is out of range [0..1]", ErrConfiguration, bg.Color)
		}
	case BackgroundGradient:
		if !bg.From.IsValid() || !bg.To.IsValid() {
			return fmt.Errorf("%w: background gradient %v..%v is out of range [0..1]", ErrConfiguration, bg.From, bg.To)
		}
	default:
		return fmt.Errorf("%w: unsupported background %T", ErrConfiguration, bg)
	}
	return nil
}

func (cfg *ProjectConfiguration) UnmarshalJSON(b []byte) error {
	type plain ProjectConfiguration
	aux := struct {
		*plain
		Background backgroundSerializable `json:"background"`
	}{plain: (*plain)(cfg)}
	err := json.Unmarshal(b, &aux)
	if err != nil {
		return fmt.Errorf("unable to un-JSON-ize: %w", err)
	}
	cfg.Background, err = aux.Background.Convert()
	if err != nil {
		return fmt.Errorf("unable to convert the 'background' field: %w", err)
	}
	return nil
}

func (cfg *ProjectConfiguration) UnmarshalYAML(b []byte) error {
	m := map[string]any{}
	if err := yaml.Unmarshal(b, m); err != nil {
		return fmt.Errorf("unable to unmarshal ProjectConfiguration bytes to a map: %w", err)
	}
	background := m["background"]
	delete(m, "background")
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("unable to remarshal back to ProjectConfiguration from the map: %w", err)
	}
	type plain ProjectConfiguration
	if err := yaml.Unmarshal(b, (*plain)(cfg)); err != nil {
		return fmt.Errorf("unable to un-YAML-ize: %w", err)
	}
	cfg.Background = nil
	if background != nil {
		s, err := toSerializable[backgroundSerializable](background)
		if err != nil {
			return fmt.Errorf("unable to parse the 'background' field: %w", err)
		}
		cfg.Background, err = s.Convert()
		if err != nil {
			return fmt.Errorf("unable to convert the 'background' field: %w", err)
		}
	}
	return nil
}

func (cfg ProjectConfiguration) MarshalYAML() ([]byte, error) {
	type plain ProjectConfiguration
	cpy := plain(cfg)
	if cpy.Background != nil {
		cpy.Background = cpy.Background.serializable()
	}
	return yaml.Marshal(cpy)
}
