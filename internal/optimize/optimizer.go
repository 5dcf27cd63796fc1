package optimize

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"transmute/internal/catalog"
	"transmute/internal/services"
)

// Optimizer resolves raw options for a hop. It is stateless apart from its
// defaults and safe for concurrent use.
type Optimizer struct {
	defaultPreset string
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithDefaultPreset sets the preset used when the caller names none.
func WithDefaultPreset(preset string) Option {
	return func(o *Optimizer) {
		preset = strings.ToLower(strings.TrimSpace(preset))
		if _, ok := imageQuality[preset]; ok {
			o.defaultPreset = preset
		}
	}
}

// New constructs an Optimizer.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{defaultPreset: PresetMedium}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize validates raw against the hop and characteristics and fills every
// unspecified value. raw is not modified.
func (o *Optimizer) Optimize(hop catalog.Edge, raw Options, ch Characteristics) (Resolved, error) {
	raw = normalizeOptions(raw)
	if err := validate(hop, raw, ch); err != nil {
		return Resolved{}, err
	}
	return resolve(hop, raw, ch, o.defaultPreset), nil
}

func normalizeOptions(raw Options) Options {
	raw.Preset = strings.ToLower(strings.TrimSpace(raw.Preset))
	raw.Platform = strings.ToLower(strings.TrimSpace(raw.Platform))
	raw.VideoCodec = strings.ToLower(strings.TrimSpace(raw.VideoCodec))
	raw.AudioCodec = strings.ToLower(strings.TrimSpace(raw.AudioCodec))
	raw.PageSize = strings.ToLower(strings.TrimSpace(raw.PageSize))
	if raw.Size != nil {
		size := *raw.Size
		raw.Size = &size
	}
	return raw
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "optimize", "validate options", fmt.Sprintf(format, args...), nil)
}

func validate(hop catalog.Edge, raw Options, ch Characteristics) error {
	if raw.Preset != "" {
		if _, ok := imageQuality[raw.Preset]; !ok {
			return invalid("unknown preset %q", raw.Preset)
		}
	}
	if raw.Platform != "" {
		if _, ok := platforms[raw.Platform]; !ok {
			return invalid("unknown platform %q (known: %s)", raw.Platform, strings.Join(Platforms(), ", "))
		}
	}
	if raw.Size != nil {
		if raw.Size.Width < 0 || raw.Size.Height < 0 || (raw.Size.Width == 0 && raw.Size.Height == 0) {
			return invalid("dimensions must be positive, got %dx%d", raw.Size.Width, raw.Size.Height)
		}
		// A single zero side is derived from the source aspect ratio.
		if (raw.Size.Width == 0 || raw.Size.Height == 0) && (ch.Width <= 0 || ch.Height <= 0) {
			return invalid("dimensions must be positive when the source size is unknown, got %dx%d", raw.Size.Width, raw.Size.Height)
		}
	}
	if raw.TrimStart < 0 || raw.TrimEnd < 0 {
		return invalid("trim points must not be negative")
	}
	if raw.TrimEnd > 0 && raw.TrimStart >= raw.TrimEnd {
		return invalid("trim start %s must be before trim end %s", raw.TrimStart, raw.TrimEnd)
	}
	if ch.Duration > 0 && raw.TrimStart >= ch.Duration {
		return invalid("trim start %s is beyond the input duration %s", raw.TrimStart, ch.Duration)
	}
	if raw.VideoBitrate < 0 || raw.AudioBitrate < 0 {
		return invalid("bitrates must not be negative")
	}
	if raw.FrameRate < 0 || math.IsNaN(raw.FrameRate) || math.IsInf(raw.FrameRate, 0) {
		return invalid("frame rate must be positive")
	}
	if raw.ImageQuality < 0 || raw.ImageQuality > 100 {
		return invalid("image quality must be between 1 and 100, got %d", raw.ImageQuality)
	}
	if raw.PageSize != "" && !slices.Contains(pageSizes, raw.PageSize) {
		return invalid("unknown page size %q (known: %s)", raw.PageSize, strings.Join(pageSizes, ", "))
	}
	if list, ok := videoCodecs[hop.To]; ok && !compatible(list, raw.VideoCodec) {
		return invalid("video codec %q cannot be stored in %s (use one of %s)", raw.VideoCodec, hop.To, strings.Join(list, ", "))
	}
	if list, ok := audioCodecs[hop.To]; ok && !compatible(list, raw.AudioCodec) {
		return invalid("audio codec %q cannot be stored in %s (use one of %s)", raw.AudioCodec, hop.To, strings.Join(list, ", "))
	}
	return nil
}

func resolve(hop catalog.Edge, raw Options, ch Characteristics, defaultPreset string) Resolved {
	preset := raw.Preset
	if preset == "" {
		preset = defaultPreset
	}
	platform, _ := LookupPlatform(raw.Platform)

	out := Resolved{
		Domain:        hop.Domain,
		Kind:          catalog.KindOf(hop.Domain, hop.To),
		Target:        hop.To,
		Preset:        preset,
		Platform:      raw.Platform,
		TrimStart:     raw.TrimStart,
		TrimEnd:       raw.TrimEnd,
		StripMetadata: raw.StripMetadata,
		Lossless:      preset == PresetLossless,
		Duration:      outputDuration(raw, ch),
		raw:           raw,
		input:         ch,
	}

	switch out.Kind {
	case catalog.KindVideo:
		resolveDimensions(&out, raw, ch, platform)
		resolveVideo(&out, raw, ch, platform)
		resolveAudio(&out, raw, ch.HasAudio, platform)
	case catalog.KindAudio:
		resolveAudio(&out, raw, true, platform)
	case catalog.KindImage:
		resolveDimensions(&out, raw, ch, platform)
		out.ImageQuality = raw.ImageQuality
		if out.ImageQuality == 0 {
			out.ImageQuality = imageQuality[preset]
		}
		if hop.To == "gif" {
			out.VideoCodec = "gif"
			out.FrameRate = capFloat(firstPositive(raw.FrameRate, min(ch.FrameRate, 15)), platform.MaxFrameRate)
		}
	case catalog.KindEbook:
		out.OutputProfile = platform.OutputProfile
		if out.OutputProfile == "" {
			out.OutputProfile = "default"
		}
		if platform.MaxWidth > 0 {
			out.Width, out.Height = platform.MaxWidth, platform.MaxHeight
		}
	case catalog.KindDocument:
		out.PageSize = raw.PageSize
		if out.PageSize == "" {
			out.PageSize = "a4"
		}
	}
	return out
}

// outputDuration is the expected media length after trimming, 0 when unknown.
func outputDuration(raw Options, ch Characteristics) time.Duration {
	end := ch.Duration
	if raw.TrimEnd > 0 && (end == 0 || raw.TrimEnd < end) {
		end = raw.TrimEnd
	}
	if end <= raw.TrimStart {
		return 0
	}
	return end - raw.TrimStart
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func resolveDimensions(out *Resolved, raw Options, ch Characteristics, platform Platform) {
	w, h := ch.Width, ch.Height
	if raw.Size != nil {
		w, h = raw.Size.Width, raw.Size.Height
		switch {
		case w == 0 && ch.Width > 0 && ch.Height > 0:
			w = even(float64(h) * float64(ch.Width) / float64(ch.Height))
		case h == 0 && ch.Width > 0 && ch.Height > 0:
			h = even(float64(w) * float64(ch.Height) / float64(ch.Width))
		}
	}
	out.Width, out.Height = fitWithin(w, h, platform.MaxWidth, platform.MaxHeight)
}

func resolveVideo(out *Resolved, raw Options, ch Characteristics, platform Platform) {
	out.VideoCodec = raw.VideoCodec
	if out.VideoCodec == "" {
		out.VideoCodec = first(videoCodecs[out.Target])
	}
	out.FrameRate = capFloat(firstPositive(raw.FrameRate, ch.FrameRate), platform.MaxFrameRate)

	if raw.VideoBitrate > 0 {
		out.VideoBitrate = capInt(raw.VideoBitrate, platform.MaxVideoBitrate)
		return
	}
	if out.Lossless {
		return
	}
	out.VideoBitrate = capInt(estimateVideoBitrate(out.Width, out.Height, out.FrameRate, ch, out.Preset, out.VideoCodec), platform.MaxVideoBitrate)
}

// estimateVideoBitrate returns kbps from pixels x fps x bits-per-pixel scaled
// by motion, preset and codec efficiency. It never exceeds a known source
// bitrate and returns 0 (encoder default) when dimensions are unknown.
func estimateVideoBitrate(w, h int, fps float64, ch Characteristics, preset, codec string) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	if fps <= 0 {
		fps = 30
	}
	efficiency, ok := codecEfficiency[codec]
	if !ok {
		efficiency = 1
	}
	factor, ok := presetFactor[preset]
	if !ok {
		factor = 1
	}
	kbps := float64(w*h) * fps * bitsPerPixel * motionMultiplier(ch.Motion) * factor * efficiency / 1000
	estimate := int(math.Round(kbps))
	if ch.Bitrate > 0 && estimate > ch.Bitrate {
		estimate = ch.Bitrate
	}
	return max(estimate, 1)
}

func resolveAudio(out *Resolved, raw Options, hasAudio bool, platform Platform) {
	if !hasAudio {
		return
	}
	out.AudioCodec = raw.AudioCodec
	if out.AudioCodec == "" {
		out.AudioCodec = first(audioCodecs[out.Target])
	}
	if losslessAudio[out.AudioCodec] {
		return
	}
	bitrate := raw.AudioBitrate
	if bitrate == 0 {
		bitrate = audioBitrates[out.Preset]
	}
	out.AudioBitrate = capInt(bitrate, platform.MaxAudioBitrate)
}
