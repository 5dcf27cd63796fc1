// Package ffprobe wraps ffprobe JSON output and turns it into the media
// characteristics the option optimizer consumes.
//
// Inspect runs ffprobe and returns the parsed Result; Prober implements
// optimize.Probe on top of it, deriving frame rate, audio presence and a
// motion estimate from the primary video stream.
package ffprobe
