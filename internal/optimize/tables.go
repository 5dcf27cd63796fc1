package optimize

import (
	"slices"

	"transmute/internal/catalog"
)

// Codecs per container, most preferred first.
var videoCodecs = map[catalog.Format][]string{
	"mp4":  {"h264", "hevc", "av1"},
	"mkv":  {"h264", "hevc", "vp9", "av1"},
	"webm": {"vp9", "av1"},
	"mov":  {"h264", "hevc", "prores"},
	"avi":  {"mpeg4", "h264"},
	"av1":  {"av1"},
	"gif":  {"gif"},
}

var audioCodecs = map[catalog.Format][]string{
	"mp4":  {"aac"},
	"mkv":  {"opus", "aac", "flac"},
	"webm": {"opus"},
	"mov":  {"aac"},
	"avi":  {"mp3"},
	"av1":  {"opus"},
	"mp3":  {"mp3"},
	"ogg":  {"vorbis", "opus"},
	"aac":  {"aac"},
	"m4a":  {"aac"},
	"flac": {"flac"},
	"wav":  {"pcm_s16le"},
}

// Relative bitrate needed for the same visual quality, h264 = 1.
var codecEfficiency = map[string]float64{
	"h264":   1.0,
	"hevc":   0.6,
	"vp9":    0.65,
	"av1":    0.5,
	"mpeg4":  1.3,
	"prores": 6.0,
}

var losslessAudio = map[string]bool{"flac": true, "pcm_s16le": true}

const bitsPerPixel = 0.1

var presetFactor = map[string]float64{
	PresetLow:    0.6,
	PresetMedium: 1.0,
	PresetHigh:   1.5,
}

var audioBitrates = map[string]int{
	PresetLow:      96,
	PresetMedium:   128,
	PresetHigh:     192,
	PresetLossless: 320,
}

var imageQuality = map[string]int{
	PresetLow:      60,
	PresetMedium:   80,
	PresetHigh:     92,
	PresetLossless: 100,
}

var pageSizes = []string{"a4", "a5", "letter", "legal"}

func motionMultiplier(m Motion) float64 {
	switch m {
	case MotionHigh:
		return 1.4
	case MotionLow:
		return 0.7
	default:
		return 1.0
	}
}

// MotionFromBitsPerPixel classifies how hard a source was to compress from
// its own bitrate. Busy footage needs more bits per pixel per frame.
func MotionFromBitsPerPixel(width, height int, fps float64, bitrateKbps int) Motion {
	if width <= 0 || height <= 0 || fps <= 0 || bitrateKbps <= 0 {
		return MotionUnknown
	}
	bpp := float64(bitrateKbps) * 1000 / (float64(width*height) * fps)
	switch {
	case bpp >= 0.15:
		return MotionHigh
	case bpp < 0.05:
		return MotionLow
	default:
		return MotionMedium
	}
}

func compatible(list []string, codec string) bool {
	return codec == "" || slices.Contains(list, codec)
}

// CompatibleVideoCodecs lists the video codecs accepted by a container.
func CompatibleVideoCodecs(f catalog.Format) []string {
	return slices.Clone(videoCodecs[f])
}

// CompatibleAudioCodecs lists the audio codecs accepted by a container.
func CompatibleAudioCodecs(f catalog.Format) []string {
	return slices.Clone(audioCodecs[f])
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
