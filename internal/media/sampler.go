package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Frame is one still image extracted from the clip.
type Frame struct {
	Index     int
	Timestamp float64
	Path      string
}

// Sample is the audio track and frames extracted from a single video.
type Sample struct {
	VideoID   string
	VideoPath string
	AudioPath string
	Duration  float64
	Frames    []Frame

	workDir string
}

// Cleanup removes the files extracted for this sample.
func (s *Sample) Cleanup() {
	if s == nil || s.workDir == "" {
		return
	}
	if err := os.RemoveAll(s.workDir); err != nil {
		log.Warn().Err(err).Str("dir", s.workDir).Msg("failed to remove sample work dir")
	}
}

// Sampler extracts audio and evenly spaced frames from a video file.
type Sampler struct {
	tool    Tool
	workDir string
}

// NewSampler creates a sampler writing into subdirectories of workDir.
// An empty workDir uses the system temp dir.
func NewSampler(tool Tool, workDir string) *Sampler {
	return &Sampler{tool: tool, workDir: workDir}
}

// FrameTimestamps returns n offsets spread over duration, first at 0 and
// last at duration. A single frame is taken at 0.
func FrameTimestamps(duration float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{0}
	}
	out := make([]float64, n)
	for i := range n {
		out[i] = float64(i) * duration / float64(n-1)
	}
	return out
}

// Sample probes the video and extracts n frames plus the audio track.
// On error nothing is left on disk.
func (s *Sampler) Sample(ctx context.Context, videoPath string, n int) (*Sample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", n)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}

	duration, err := s.tool.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("video has no duration")
	}

	videoID := uuid.NewString()
	dir, err := os.MkdirTemp(s.workDir, "sample-"+videoID[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	sample := &Sample{
		VideoID:   videoID,
		VideoPath: videoPath,
		Duration:  duration,
		workDir:   dir,
	}

	sample.AudioPath = filepath.Join(dir, "audio.mp3")
	if err := s.tool.ExtractAudio(ctx, videoPath, sample.AudioPath); err != nil {
		sample.Cleanup()
		return nil, fmt.Errorf("failed to extract audio: %w", err)
	}

	for i, ts := range FrameTimestamps(duration, n) {
		seek := ts
		if seek >= duration {
			seek = max(0, duration-endSeekBackoff)
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.jpg", i))
		if err := s.tool.ExtractFrame(ctx, videoPath, seek, path); err != nil {
			sample.Cleanup()
			return nil, fmt.Errorf("failed to extract frame %d at %.2fs: %w", i, ts, err)
		}
		sample.Frames = append(sample.Frames, Frame{Index: i, Timestamp: ts, Path: path})
	}

	log.Info().
		Str("videoId", videoID).
		Float64("duration", duration).
		Int("frames", len(sample.Frames)).
		Msg("sampled video")

	return sample, nil
}
