package codec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"transmute/internal/catalog"
	"transmute/internal/optimize"
)

var videoEncoders = map[string]string{
	"h264":   "libx264",
	"hevc":   "libx265",
	"vp9":    "libvpx-vp9",
	"av1":    "libsvtav1",
	"mpeg4":  "mpeg4",
	"prores": "prores_ks",
}

var audioEncoders = map[string]string{
	"aac":       "aac",
	"opus":      "libopus",
	"mp3":       "libmp3lame",
	"vorbis":    "libvorbis",
	"flac":      "flac",
	"pcm_s16le": "pcm_s16le",
}

// Muxers for targets whose extension does not name one.
var muxers = map[catalog.Format]string{
	"av1": "matroska",
	"m4a": "ipod",
	"aac": "adts",
}

// FFmpeg converts audio and video with ffmpeg, reading progress from
// -progress pipe:1. The zero value runs "ffmpeg" from PATH.
type FFmpeg struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (f *FFmpeg) Execute(ctx context.Context, req Request) (Descriptor, error) {
	output := OutputPath(req)
	tracker := newFFmpegProgress(req.Options.Duration)
	err := executor(f.exec).Run(ctx, binaryOr(f.Binary, "ffmpeg"), ffmpegArgs(req, output), func(line string) {
		if p, ok := tracker.consume(line); ok {
			req.report(p)
		}
	})
	if err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

func ffmpegArgs(req Request, output string) []string {
	o := req.Options
	args := []string{"-hide_banner", "-nostdin", "-y", "-nostats", "-progress", "pipe:1"}
	if o.TrimStart > 0 {
		args = append(args, "-ss", seconds(o.TrimStart))
	}
	if o.TrimEnd > 0 {
		args = append(args, "-to", seconds(o.TrimEnd))
	}
	args = append(args, "-i", req.Input.Path)

	switch {
	case o.VideoCodec == "gif":
		args = append(args, "-vf", gifFilter(o), "-an")
	case o.Kind == catalog.KindVideo:
		args = append(args, videoArgs(o)...)
		args = append(args, audioArgs(o)...)
	case o.Kind == catalog.KindAudio:
		args = append(args, "-vn")
		args = append(args, audioArgs(o)...)
	}
	if o.StripMetadata {
		args = append(args, "-map_metadata", "-1")
	}
	if muxer, ok := muxers[req.To]; ok {
		args = append(args, "-f", muxer)
	}
	return append(args, output)
}

func videoArgs(o optimize.Resolved) []string {
	var args []string
	if o.Width > 0 && o.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", o.Width, o.Height))
	}
	if o.FrameRate > 0 {
		args = append(args, "-r", formatFloat(o.FrameRate))
	}
	encoder, ok := videoEncoders[o.VideoCodec]
	if !ok {
		return args
	}
	args = append(args, "-c:v", encoder)
	switch {
	case o.VideoBitrate > 0:
		args = append(args, "-b:v", fmt.Sprintf("%dk", o.VideoBitrate))
	case o.Lossless && (encoder == "libx264" || encoder == "libx265"):
		args = append(args, "-qp", "0")
	}
	return args
}

func audioArgs(o optimize.Resolved) []string {
	if o.AudioCodec == "" {
		if o.Kind == catalog.KindVideo {
			return []string{"-an"}
		}
		return nil
	}
	encoder, ok := audioEncoders[o.AudioCodec]
	if !ok {
		return nil
	}
	args := []string{"-c:a", encoder}
	if o.AudioBitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", o.AudioBitrate))
	}
	return args
}

func gifFilter(o optimize.Resolved) string {
	fps := o.FrameRate
	if fps <= 0 {
		fps = 10
	}
	width := -1
	if o.Width > 0 {
		width = o.Width
	}
	return fmt.Sprintf("fps=%s,scale=%d:-1:flags=lanczos", formatFloat(fps), width)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ffmpegProgress folds -progress key=value blocks into updates. A block ends
// with a progress=continue|end line.
type ffmpegProgress struct {
	total   time.Duration
	outTime time.Duration
	speed   float64
}

func newFFmpegProgress(total time.Duration) *ffmpegProgress {
	return &ffmpegProgress{total: total}
}

func (p *ffmpegProgress) consume(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.outTime = time.Duration(us) * time.Microsecond
		}
	case "speed":
		if v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "x"), 64); err == nil {
			p.speed = v
		}
	case "progress":
		if value == "end" {
			return Progress{Percent: 100, Message: "finished"}, true
		}
		if p.total <= 0 {
			return Progress{Message: "encoding " + p.outTime.Truncate(time.Second).String()}, true
		}
		update := Progress{
			Percent: min(float64(p.outTime)/float64(p.total)*100, 99.9),
			Message: "encoding",
		}
		if p.speed > 0 && p.outTime < p.total {
			update.ETA = time.Duration(float64(p.total-p.outTime) / p.speed)
		}
		return update, true
	}
	return Progress{}, false
}
