package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	mu        sync.Mutex
	duration  float64
	probeErr  error
	audioErr  error
	frameErr  error
	failFrame int
	seeks     []float64
}

func (f *fakeTool) Probe(ctx context.Context, videoPath string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeTool) ExtractFrame(ctx context.Context, videoPath string, offset float64, outPath string) error {
	f.mu.Lock()
	f.seeks = append(f.seeks, offset)
	n := len(f.seeks)
	f.mu.Unlock()
	if f.frameErr != nil && n-1 == f.failFrame {
		return f.frameErr
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

func (f *fakeTool) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	if f.audioErr != nil {
		return f.audioErr
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func TestFrameTimestamps(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		n        int
		want     []float64
	}{
		{"single frame", 10, 1, []float64{0}},
		{"two frames", 10, 2, []float64{0, 10}},
		{"five frames", 20, 5, []float64{0, 5, 10, 15, 20}},
		{"zero count", 10, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDeltaSlice(t, tt.want, FrameTimestamps(tt.duration, tt.n), 1e-9)
		})
	}
}

func TestSampler_Sample(t *testing.T) {
	tool := &fakeTool{duration: 20}
	sampler := NewSampler(tool, t.TempDir())

	sample, err := sampler.Sample(context.Background(), writeVideo(t), 5)
	require.NoError(t, err)
	defer sample.Cleanup()

	assert.NotEmpty(t, sample.VideoID)
	assert.Equal(t, 20.0, sample.Duration)
	assert.FileExists(t, sample.AudioPath)
	require.Len(t, sample.Frames, 5)
	for i, f := range sample.Frames {
		assert.Equal(t, i, f.Index)
		assert.FileExists(t, f.Path)
	}
	assert.Equal(t, 20.0, sample.Frames[4].Timestamp)

	// The last seek backs off from the end but the timestamp stays nominal
	assert.Less(t, tool.seeks[4], 20.0)
	assert.Equal(t, 0.0, tool.seeks[0])
}

func TestSampler_Cleanup(t *testing.T) {
	sampler := NewSampler(&fakeTool{duration: 4}, t.TempDir())
	sample, err := sampler.Sample(context.Background(), writeVideo(t), 2)
	require.NoError(t, err)

	dir := filepath.Dir(sample.AudioPath)
	assert.DirExists(t, dir)
	sample.Cleanup()
	assert.NoDirExists(t, dir)
}

func TestSampler_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		sampler := NewSampler(&fakeTool{duration: 10}, t.TempDir())
		_, err := sampler.Sample(ctx, filepath.Join(t.TempDir(), "nope.mp4"), 3)
		assert.Error(t, err)
	})

	t.Run("zero duration", func(t *testing.T) {
		sampler := NewSampler(&fakeTool{duration: 0}, t.TempDir())
		_, err := sampler.Sample(ctx, writeVideo(t), 3)
		assert.ErrorContains(t, err, "no duration")
	})

	t.Run("probe failure", func(t *testing.T) {
		sampler := NewSampler(&fakeTool{probeErr: errors.New("corrupt")}, t.TempDir())
		_, err := sampler.Sample(ctx, writeVideo(t), 3)
		assert.ErrorContains(t, err, "corrupt")
	})

	t.Run("frame failure removes work dir", func(t *testing.T) {
		workDir := t.TempDir()
		tool := &fakeTool{duration: 10, frameErr: errors.New("decode error"), failFrame: 1}
		sampler := NewSampler(tool, workDir)
		_, err := sampler.Sample(ctx, writeVideo(t), 3)
		assert.ErrorContains(t, err, "frame 1")

		entries, err := os.ReadDir(workDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("audio failure", func(t *testing.T) {
		sampler := NewSampler(&fakeTool{duration: 10, audioErr: errors.New("no audio stream")}, t.TempDir())
		_, err := sampler.Sample(ctx, writeVideo(t), 3)
		assert.ErrorContains(t, err, "extract audio")
	})
}

func TestParseDurationBanner(t *testing.T) {
	d, err := parseDurationBanner("Input #0, mov\n  Duration: 00:01:02.50, start: 0.000000, bitrate: 100 kb/s")
	require.NoError(t, err)
	assert.InDelta(t, 62.5, d, 1e-9)

	_, err = parseDurationBanner("garbage")
	assert.Error(t, err)
}
