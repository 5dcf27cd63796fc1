package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"transmute/internal/optimize"
)

// optionFlags collects conversion options shared by convert and batch.
type optionFlags struct {
	preset        string
	platform      string
	width         int
	height        int
	trimStart     time.Duration
	trimEnd       time.Duration
	videoBitrate  int
	audioBitrate  int
	frameRate     float64
	videoCodec    string
	audioCodec    string
	imageQuality  int
	pageSize      string
	stripMetadata bool
}

func (o *optionFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.preset, "preset", "", "Quality preset (low, medium, high, lossless)")
	flags.StringVar(&o.platform, "platform", "", "Target platform ("+strings.Join(optimize.Platforms(), ", ")+")")
	flags.IntVar(&o.width, "width", 0, "Output width in pixels")
	flags.IntVar(&o.height, "height", 0, "Output height in pixels")
	flags.DurationVar(&o.trimStart, "trim-start", 0, "Drop media before this offset")
	flags.DurationVar(&o.trimEnd, "trim-end", 0, "Drop media after this offset")
	flags.IntVar(&o.videoBitrate, "video-bitrate", 0, "Video bitrate in kbps")
	flags.IntVar(&o.audioBitrate, "audio-bitrate", 0, "Audio bitrate in kbps")
	flags.Float64Var(&o.frameRate, "frame-rate", 0, "Output frame rate")
	flags.StringVar(&o.videoCodec, "video-codec", "", "Video codec")
	flags.StringVar(&o.audioCodec, "audio-codec", "", "Audio codec")
	flags.IntVar(&o.imageQuality, "image-quality", 0, "Image quality 1-100")
	flags.StringVar(&o.pageSize, "page-size", "", "Page size for document output (a4, letter)")
	flags.BoolVar(&o.stripMetadata, "strip-metadata", false, "Remove metadata from the output")
}

func (o *optionFlags) options() (optimize.Options, error) {
	if (o.width == 0) != (o.height == 0) {
		return optimize.Options{}, fmt.Errorf("--width and --height must be given together")
	}
	opts := optimize.Options{
		Preset:        o.preset,
		TrimStart:     o.trimStart,
		TrimEnd:       o.trimEnd,
		VideoBitrate:  o.videoBitrate,
		FrameRate:     o.frameRate,
		VideoCodec:    o.videoCodec,
		AudioCodec:    o.audioCodec,
		AudioBitrate:  o.audioBitrate,
		ImageQuality:  o.imageQuality,
		Platform:      o.platform,
		PageSize:      o.pageSize,
		StripMetadata: o.stripMetadata,
	}
	if o.width > 0 {
		opts.Size = &optimize.Size{Width: o.width, Height: o.height}
	}
	return opts, nil
}
