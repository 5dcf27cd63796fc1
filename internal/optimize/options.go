package optimize

import (
	"context"
	"time"

	"transmute/internal/catalog"
)

// Quality presets.
const (
	PresetLow      = "low"
	PresetMedium   = "medium"
	PresetHigh     = "high"
	PresetLossless = "lossless"
)

// Size is a requested output size in pixels. A zero component is derived
// from the source aspect ratio.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options is the caller's intent. Zero values mean "not specified".
type Options struct {
	Preset        string        `json:"preset,omitempty"`
	Size          *Size         `json:"size,omitempty"`
	TrimStart     time.Duration `json:"trim_start,omitempty"`
	TrimEnd       time.Duration `json:"trim_end,omitempty"`
	VideoBitrate  int           `json:"video_bitrate_kbps,omitempty"`
	FrameRate     float64       `json:"frame_rate,omitempty"`
	VideoCodec    string        `json:"video_codec,omitempty"`
	AudioCodec    string        `json:"audio_codec,omitempty"`
	AudioBitrate  int           `json:"audio_bitrate_kbps,omitempty"`
	ImageQuality  int           `json:"image_quality,omitempty"`
	Platform      string        `json:"platform,omitempty"`
	PageSize      string        `json:"page_size,omitempty"`
	StripMetadata bool          `json:"strip_metadata,omitempty"`
}

// Motion is the detected motion level of video content.
type Motion string

const (
	MotionUnknown Motion = ""
	MotionLow     Motion = "low"
	MotionMedium  Motion = "medium"
	MotionHigh    Motion = "high"
)

// Characteristics is a read-only snapshot of the input produced by a Probe.
// Zero values mean unknown.
type Characteristics struct {
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	FrameRate float64       `json:"frame_rate,omitempty"`
	Bitrate   int           `json:"bitrate_kbps,omitempty"`
	Motion    Motion        `json:"motion,omitempty"`
	HasAudio  bool          `json:"has_audio,omitempty"`
	SizeBytes int64         `json:"size_bytes,omitempty"`
}

// Probe inspects an input file. Implementations must not modify the file.
type Probe interface {
	Analyze(ctx context.Context, path string) (Characteristics, error)
}

// Resolved is the backend-ready option set for one hop.
type Resolved struct {
	Domain        catalog.Domain `json:"domain"`
	Kind          catalog.Kind   `json:"kind"`
	Target        catalog.Format `json:"target"`
	Preset        string         `json:"preset"`
	Platform      string         `json:"platform,omitempty"`
	Width         int            `json:"width,omitempty"`
	Height        int            `json:"height,omitempty"`
	FrameRate     float64        `json:"frame_rate,omitempty"`
	VideoCodec    string         `json:"video_codec,omitempty"`
	VideoBitrate  int            `json:"video_bitrate_kbps,omitempty"`
	AudioCodec    string         `json:"audio_codec,omitempty"`
	AudioBitrate  int            `json:"audio_bitrate_kbps,omitempty"`
	Lossless      bool           `json:"lossless,omitempty"`
	TrimStart     time.Duration  `json:"trim_start,omitempty"`
	TrimEnd       time.Duration  `json:"trim_end,omitempty"`
	Duration      time.Duration  `json:"duration,omitempty"`
	ImageQuality  int            `json:"image_quality,omitempty"`
	OutputProfile string         `json:"output_profile,omitempty"`
	PageSize      string         `json:"page_size,omitempty"`
	StripMetadata bool           `json:"strip_metadata,omitempty"`

	raw   Options
	input Characteristics
}

// ForHop derives the option set for hop index of a multi-hop route. Codecs
// and bitrates are recomputed for the hop's target; trims apply to the first
// hop only.
func (r Resolved) ForHop(index int, hop catalog.Edge) Resolved {
	if index == 0 && hop.To == r.Target {
		return r
	}
	ch := r.input
	raw := r.raw
	if index > 0 {
		if ch.Duration > 0 {
			end := ch.Duration
			if raw.TrimEnd > 0 && raw.TrimEnd < end {
				end = raw.TrimEnd
			}
			ch.Duration = end - raw.TrimStart
		}
		raw.TrimStart, raw.TrimEnd = 0, 0
		// Earlier hops already applied the resize.
		if r.Width > 0 && r.Height > 0 {
			ch.Width, ch.Height = r.Width, r.Height
		}
	}
	if !compatible(videoCodecs[hop.To], raw.VideoCodec) {
		raw.VideoCodec = ""
	}
	if !compatible(audioCodecs[hop.To], raw.AudioCodec) {
		raw.AudioCodec = ""
	}
	return resolve(hop, raw, ch, r.Preset)
}
