package optimize

import "sort"

// Platform caps output for a publishing target or reading device. Zero
// fields do not cap.
type Platform struct {
	Name            string
	MaxWidth        int
	MaxHeight       int
	MaxVideoBitrate int
	MaxAudioBitrate int
	MaxFrameRate    float64
	OutputProfile   string
}

var platforms = map[string]Platform{
	"youtube":   {Name: "youtube", MaxWidth: 3840, MaxHeight: 2160, MaxVideoBitrate: 45000, MaxAudioBitrate: 384, MaxFrameRate: 60},
	"instagram": {Name: "instagram", MaxWidth: 1080, MaxHeight: 1920, MaxVideoBitrate: 3500, MaxAudioBitrate: 128, MaxFrameRate: 30},
	"tiktok":    {Name: "tiktok", MaxWidth: 1080, MaxHeight: 1920, MaxVideoBitrate: 4000, MaxAudioBitrate: 128, MaxFrameRate: 60},
	"twitter":   {Name: "twitter", MaxWidth: 1920, MaxHeight: 1200, MaxVideoBitrate: 6000, MaxAudioBitrate: 128, MaxFrameRate: 60},
	"whatsapp":  {Name: "whatsapp", MaxWidth: 848, MaxHeight: 480, MaxVideoBitrate: 1000, MaxAudioBitrate: 96, MaxFrameRate: 30},
	"discord":   {Name: "discord", MaxWidth: 1280, MaxHeight: 720, MaxVideoBitrate: 2000, MaxAudioBitrate: 128, MaxFrameRate: 30},
	"kindle":    {Name: "kindle", MaxWidth: 1072, MaxHeight: 1448, OutputProfile: "kindle_pw3"},
	"kobo":      {Name: "kobo", MaxWidth: 1264, MaxHeight: 1680, OutputProfile: "kobo"},
}

// LookupPlatform returns the preset registered under name.
func LookupPlatform(name string) (Platform, bool) {
	p, ok := platforms[name]
	return p, ok
}

// Platforms lists registered preset names in alphabetical order.
func Platforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fitWithin scales w x h down to fit maxW x maxH keeping the aspect ratio.
// Dimensions already inside the box are returned unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		scale = min(scale, float64(maxH)/float64(h))
	}
	if scale == 1.0 {
		return w, h
	}
	return even(float64(w) * scale), even(float64(h) * scale)
}

// even rounds down to an even pixel count, which most video encoders need.
func even(v float64) int {
	n := int(v)
	if n%2 != 0 {
		n--
	}
	return max(n, 2)
}

func capInt(value, limit int) int {
	if limit > 0 && value > limit {
		return limit
	}
	return value
}

func capFloat(value, limit float64) float64 {
	if limit > 0 && value > limit {
		return limit
	}
	return value
}
