package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"transmute/internal/optimize"
	"transmute/internal/services"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "mjpeg", "codec_type": "video", "width": 600, "height": 600},
    {"index": 1, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "bit_rate": "12000000"},
    {"index": 2, "codec_name": "aac", "codec_type": "audio", "channels": 2}
  ],
  "format": {"duration": "125.5", "size": "1000", "bit_rate": "12500000", "format_name": "matroska,webm"}
}`

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", CodecName: "h264"}, {CodecType: "audio"}, {CodecType: "audio"}},
		Format:  Format{Duration: "123.45", Size: "1000", BitRate: "32000"},
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 || result.BitRate() != 32000 {
		t.Fatalf("unexpected size/bitrate: %d %d", result.SizeBytes(), result.BitRate())
	}

	invalid := Result{Format: Format{Duration: "bad", Size: "-1", BitRate: "nope"}}
	if invalid.DurationSeconds() != 0 || invalid.SizeBytes() != 0 || invalid.BitRate() != 0 {
		t.Fatalf("invalid numbers should read as zero")
	}
}

func TestFrameRateParsing(t *testing.T) {
	tests := []struct {
		stream Stream
		want   float64
	}{
		{Stream{AvgFrameRate: "25/1"}, 25},
		{Stream{AvgFrameRate: "0/0", RFrameRate: "24/1"}, 24},
		{Stream{AvgFrameRate: "29.97"}, 29.97},
		{Stream{}, 0},
	}
	for _, tc := range tests {
		if got := tc.stream.FrameRate(); got != tc.want {
			t.Errorf("FrameRate(%+v) = %v, want %v", tc.stream, got, tc.want)
		}
	}
}

func TestProberAnalyze(t *testing.T) {
	stubCommand(t, "ok")
	ch, err := NewProber("ffprobe").Analyze(context.Background(), "/media/in.mkv")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ch.Width != 1920 || ch.Height != 1080 {
		t.Fatalf("cover art must be skipped, got %dx%d", ch.Width, ch.Height)
	}
	if ch.FrameRate != 29.97 {
		t.Fatalf("unexpected frame rate %v", ch.FrameRate)
	}
	if ch.Duration != 125500*time.Millisecond || !ch.HasAudio || ch.Bitrate != 12500 {
		t.Fatalf("unexpected characteristics %+v", ch)
	}
	if ch.Motion != optimize.MotionHigh {
		t.Fatalf("expected high motion for 12 Mbps 1080p, got %q", ch.Motion)
	}
}

func TestProberAnalyzeFailure(t *testing.T) {
	stubCommand(t, "fail")
	_, err := NewProber("").Analyze(context.Background(), "/media/broken.mkv")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func stubCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", mode}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 && args[0] == "fail" {
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	}
	fmt.Fprint(os.Stdout, sampleJSON)
	os.Exit(0)
}
