package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
	"github.com/raine/video-lister/internal/media"
	"github.com/stretchr/testify/require"
)

// fakeSampler writes one small file per frame containing "frame-<index>".
type fakeSampler struct {
	t        *testing.T
	duration float64
	err      error
}

func (f *fakeSampler) Sample(ctx context.Context, videoPath string, n int) (*media.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	dir := f.t.TempDir()
	audio := filepath.Join(dir, "audio.mp3")
	require.NoError(f.t, os.WriteFile(audio, []byte("audio"), 0o644))

	s := &media.Sample{VideoID: "video-1", VideoPath: videoPath, AudioPath: audio, Duration: f.duration}
	for i, ts := range media.FrameTimestamps(f.duration, n) {
		path := filepath.Join(dir, fmt.Sprintf("frame_%d.jpg", i))
		require.NoError(f.t, os.WriteFile(path, []byte(fmt.Sprintf("frame-%d", i)), 0o644))
		s.Frames = append(s.Frames, media.Frame{Index: i, Timestamp: ts, Path: path})
	}
	return s, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context) (*llm.TranscriptionResult, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio llm.AudioInput) (*llm.TranscriptionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx)
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeVision answers per frame index, parsed from the image bytes.
type fakeVision struct {
	mu    sync.Mutex
	calls []int
	fn    func(ctx context.Context, frame int) (string, error)
}

func (f *fakeVision) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*llm.Generation, error) {
	var idx int
	fmt.Sscanf(string(image), "frame-%d", &idx)
	f.mu.Lock()
	f.calls = append(f.calls, idx)
	f.mu.Unlock()
	text, err := f.fn(ctx, idx)
	if err != nil {
		return nil, err
	}
	return &llm.Generation{Text: text, Model: "fake-vision"}, nil
}

// fakeText routes JSON requests to fusion and text requests to content,
// passing the platform named in the prompt.
type fakeText struct {
	mu           sync.Mutex
	fusionCalls  int
	contentCalls []string
	fusion       func(ctx context.Context) (string, error)
	content      func(ctx context.Context, platform string) (string, error)
}

func (f *fakeText) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Generation, error) {
	var text string
	var err error
	if req.JSON {
		f.mu.Lock()
		f.fusionCalls++
		f.mu.Unlock()
		text, err = f.fusion(ctx)
	} else {
		platform := promptPlatform(req.Prompt)
		f.mu.Lock()
		f.contentCalls = append(f.contentCalls, platform)
		f.mu.Unlock()
		text, err = f.content(ctx, platform)
	}
	if err != nil {
		return nil, err
	}
	return &llm.Generation{Text: text, Model: "fake-text"}, nil
}

func (f *fakeText) FusionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fusionCalls
}

func (f *fakeText) ContentCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.contentCalls...)
}

func promptPlatform(prompt string) string {
	const prefix = "Create an optimized listing for "
	rest := strings.TrimPrefix(prompt, prefix)
	name, _, _ := strings.Cut(rest, " ")
	return strings.ToLower(name)
}

type fakeStore struct {
	mu       sync.Mutex
	listings []*listing.Listing
	err      error
}

func (f *fakeStore) InsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stored := *l
	stored.ID = uuid.NewString()
	f.listings = append(f.listings, &stored)
	return &stored, nil
}

func (f *fakeStore) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listings)
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

const frameDescription = `Items: denim jacket, metal buttons
Brand: Levi's
Model: Trucker
Condition: good, light fading
Color: blue
Material: denim
Size: M
Setting: indoor bedroom
Lighting: natural light from window
Background: plain white wall`

const fusionJSON = `{
  "itemDetails": {"title": "Levi's Trucker Denim Jacket", "description": "Classic blue trucker jacket.", "brand": "Levi's", "model": "Trucker", "category": "clothing", "condition": "good", "size": "M", "color": "blue", "material": "denim", "keyFeatures": ["metal buttons", "two chest pockets"]},
  "emotionalContext": {"attachmentLevel": "medium", "reasonForSelling": "doesn't fit anymore", "sentiment": "positive"},
  "sellingPoints": ["iconic style", "barely worn"],
  "pricingSignals": {"suggestedPrice": 45, "originalPrice": "$98", "rarity": "common", "urgency": "low"},
  "optimizationRecommendations": {"bestPlatforms": ["Poshmark", "eBay"], "strategy": "price to sell", "keySellingPoints": ["Levi's"], "buyerPersonas": ["vintage fans"]}
}`

func contentFor(platform string) string {
	switch platform {
	case "instagram":
		return "Caption:\nThis Levi's blue trucker is ready for its next adventure. DM me to grab it!\nHashtags: #levis #denim #thrift"
	case "poshmark":
		return "Title: Levi's Trucker Jacket M\nDescription:\nLoved but outgrown. Size M, good condition.\nHashtags: #levis #poshmark"
	default:
		return "Title: Levi's Trucker Denim Jacket Size M\nDescription:\nClassic Levi's Trucker in good condition. Blue denim, size M, metal buttons."
	}
}

type fixture struct {
	transcriber *fakeTranscriber
	vision      *fakeVision
	text        *fakeText
	store       *fakeStore
	sampler     *fakeSampler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		sampler: &fakeSampler{t: t, duration: 20},
		transcriber: &fakeTranscriber{fn: func(ctx context.Context) (*llm.TranscriptionResult, error) {
			return &llm.TranscriptionResult{
				Text:     strPtr("Selling my Levi's trucker jacket, size medium, it doesn't fit anymore."),
				Language: "en",
				Duration: 20,
				Segments: []llm.TranscriptionSegment{
					{Start: 0, End: 10, Text: "Selling my Levi's trucker jacket,", Confidence: floatPtr(0.9)},
					{Start: 10, End: 20, Text: "size medium, it doesn't fit anymore.", Confidence: floatPtr(0.9)},
				},
			}, nil
		}},
		vision: &fakeVision{fn: func(ctx context.Context, frame int) (string, error) {
			return frameDescription, nil
		}},
		text: &fakeText{
			fusion: func(ctx context.Context) (string, error) { return fusionJSON, nil },
			content: func(ctx context.Context, platform string) (string, error) {
				return contentFor(platform), nil
			},
		},
		store: &fakeStore{},
	}
}

func (f *fixture) pipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.RetryInitialInterval == 0 {
		opts.RetryInitialInterval = time.Millisecond
	}
	p, err := New(Deps{
		Sampler:     f.sampler,
		Transcriber: f.transcriber,
		Vision:      f.vision,
		Text:        f.text,
		Store:       f.store,
	}, opts)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}
