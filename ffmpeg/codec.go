package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/xaionaro-go/screencap"
)

func encoderName(codec screencap.VideoCodec) (string, error) {
	switch codec {
	case screencap.VideoCodecUndefined, screencap.VideoCodecH264:
		return "libx264", nil
	case screencap.VideoCodecHEVC:
		return "libx265", nil
	case screencap.VideoCodecAV1:
		return "libsvtav1", nil
	}
	return "", fmt.Errorf("%w: unsupported video codec %s", screencap.ErrConfiguration, codec.String())
}

// EncodeArgs converts the encoder configuration into output arguments.
func EncodeArgs(cfg screencap.EncodeVideoConfig) ([]string, error) {
	name, err := encoderName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	args := []string{"-c:v", name}
	if cfg.Preset != "" {
		args = append(args, "-preset", cfg.Preset)
	}
	switch q := cfg.Quality.(type) {
	case nil:
	case *screencap.VideoQualityConstantQuality:
		args = append(args, "-crf", strconv.FormatUint(uint64(*q), 10))
	case *screencap.VideoQualityConstantBitrate:
		args = append(args, "-b:v", strconv.FormatUint(uint64(*q), 10))
	default:
		return nil, fmt.Errorf("%w: unsupported video quality %T", screencap.ErrConfiguration, q)
	}
	args = append(args, cfg.CustomOptions.Args()...)
	return args, nil
}
