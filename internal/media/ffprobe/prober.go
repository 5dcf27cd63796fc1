package ffprobe

import (
	"context"
	"math"
	"time"

	"transmute/internal/optimize"
	"transmute/internal/services"
)

// Prober implements optimize.Probe with ffprobe.
type Prober struct {
	Binary string
}

// NewProber returns a probe using binary (ffprobe when empty).
func NewProber(binary string) *Prober {
	return &Prober{Binary: binary}
}

// Analyze inspects path and converts the result into characteristics.
func (p *Prober) Analyze(ctx context.Context, path string) (optimize.Characteristics, error) {
	result, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return optimize.Characteristics{}, services.Wrap(services.ErrExternalTool, "ffprobe", "analyze", "probe failed", err)
	}
	return Characteristics(result), nil
}

// Characteristics maps an ffprobe result onto optimizer inputs.
func Characteristics(r Result) optimize.Characteristics {
	ch := optimize.Characteristics{
		Duration:  time.Duration(r.DurationSeconds() * float64(time.Second)),
		HasAudio:  r.AudioStreamCount() > 0,
		SizeBytes: r.SizeBytes(),
		Bitrate:   int(math.Round(float64(r.BitRate()) / 1000)),
	}
	video, ok := r.VideoStream()
	if !ok {
		return ch
	}
	ch.Width, ch.Height = video.Width, video.Height
	ch.FrameRate = math.Round(video.FrameRate()*1000) / 1000
	videoBitrate := ch.Bitrate
	if rate := nonNegative(parseFloat(video.BitRate)); rate > 0 {
		videoBitrate = int(math.Round(rate / 1000))
	}
	ch.Motion = optimize.MotionFromBitsPerPixel(ch.Width, ch.Height, ch.FrameRate, videoBitrate)
	return ch
}
