package config

import (
	"fmt"

	"github.com/randomizedcoder/go-decode-pipeline/internal/decoder"
)

// Format maps the configuration onto the decoder backend's format struct.
// syncActive must reflect the mode in use after the capability probe,
// because it determines the automatic buffer depth.
func (c *Config) Format(syncActive bool) (decoder.Format, error) {
	codec, err := decoder.ParseCodec(c.Codec)
	if err != nil {
		return decoder.Format{}, err
	}

	var space decoder.ColorSpace
	switch c.ColorSpace {
	case "bt601":
		space = decoder.ColorSpaceBT601
	case "bt709":
		space = decoder.ColorSpaceBT709
	case "bt2020":
		space = decoder.ColorSpaceBT2020
	default:
		return decoder.Format{}, fmt.Errorf("unknown color space %q", c.ColorSpace)
	}

	rng := decoder.ColorRangeLimited
	if c.ColorRange == "full" {
		rng = decoder.ColorRangeFull
	}

	hdr := decoder.HDRNone
	if c.HDR == "hdr10" {
		hdr = decoder.HDR10
	}

	return decoder.Format{
		Codec:       codec,
		Width:       c.Width,
		Height:      c.Height,
		FPS:         c.FPS,
		ColorSpace:  space,
		ColorRange:  rng,
		HDR:         hdr,
		BufferDepth: c.EffectiveBufferCount(syncActive),
		LowLatency:  true,
	}, nil
}
