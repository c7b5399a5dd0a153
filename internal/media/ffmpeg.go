package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// endSeekBackoff keeps the last seek inside the stream; ffmpeg yields no frame
// when seeking exactly to the container duration.
const endSeekBackoff = 0.1

// Tool is the subset of ffmpeg functionality the sampler needs.
type Tool interface {
	Probe(ctx context.Context, videoPath string) (float64, error)
	ExtractFrame(ctx context.Context, videoPath string, offset float64, outPath string) error
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
}

// FFmpeg runs the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	frameSize   int
}

// NewFFmpeg locates ffmpeg (required) and ffprobe (optional) in PATH.
func NewFFmpeg(frameSize int) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, _ := exec.LookPath("ffprobe")
	if frameSize <= 0 {
		frameSize = 768
	}
	log.Debug().Str("ffmpeg", ffmpegPath).Str("ffprobe", ffprobePath).Msg("found ffmpeg")
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, frameSize: frameSize}, nil
}

// Probe returns the clip duration in seconds.
func (f *FFmpeg) Probe(ctx context.Context, videoPath string) (float64, error) {
	if f.ffprobePath != "" {
		cmd := exec.CommandContext(ctx, f.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath)
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err == nil {
			if d, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64); err == nil {
				return d, nil
			}
		}
	}

	// Fallback to parsing ffmpeg's banner
	cmd := exec.CommandContext(ctx, f.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return parseDurationBanner(stderr.String())
}

// parseDurationBanner extracts "Duration: HH:MM:SS.ss" from ffmpeg stderr.
func parseDurationBanner(output string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(output, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	start += len(prefix)
	end := strings.Index(output[start:], ",")
	if end == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	parts := strings.Split(output[start:start+end], ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", output[start:start+end])
	}
	var total float64
	for i, mult := range []float64{3600, 60, 1} {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration component %q: %w", parts[i], err)
		}
		total += v * mult
	}
	return total, nil
}

// ExtractFrame writes a single JPEG frame at offset seconds to outPath.
func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath string, offset float64, outPath string) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", f.frameSize),
		"-q:v", "2",
		outPath,
	}
	return f.run(ctx, args)
}

// ExtractAudio writes the full audio track as mono 16 kHz mp3 to outPath.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		outPath,
	}
	return f.run(ctx, args)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Debug().Str("stderr", stderr.String()).Strs("args", args).Msg("ffmpeg failed")
		return fmt.Errorf("ffmpeg %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
