// Package pipeline turns one seller video into marketplace listing content:
// sample the video, transcribe and analyze frames in parallel, fuse both into
// a structured item analysis, generate per-platform content and persist it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
	"github.com/raine/video-lister/internal/media"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Sampler extracts audio and frames from a video file.
type Sampler interface {
	Sample(ctx context.Context, videoPath string, n int) (*media.Sample, error)
}

// ListingStore persists listings.
type ListingStore interface {
	InsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error)
}

// Options tunes a pipeline. Zero fields other than MaxRetries take the
// DefaultOptions value.
type Options struct {
	FrameCount           int
	FrameConcurrency     int
	PlatformConcurrency  int
	MinFrameSuccesses    int
	CallTimeout          time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
	// Language is passed to the transcriber; empty means auto-detect.
	Language         string
	DefaultPlatforms []string
	RunLogDir        string
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		FrameCount:           5,
		FrameConcurrency:     4,
		PlatformConcurrency:  5,
		MinFrameSuccesses:    1,
		CallTimeout:          90 * time.Second,
		MaxRetries:           2,
		RetryInitialInterval: time.Second,
		DefaultPlatforms:     DefaultPlatforms,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FrameCount <= 0 {
		o.FrameCount = d.FrameCount
	}
	if o.FrameConcurrency <= 0 {
		o.FrameConcurrency = d.FrameConcurrency
	}
	if o.PlatformConcurrency <= 0 {
		o.PlatformConcurrency = d.PlatformConcurrency
	}
	if o.MinFrameSuccesses <= 0 {
		o.MinFrameSuccesses = d.MinFrameSuccesses
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = d.RetryInitialInterval
	}
	if len(o.DefaultPlatforms) == 0 {
		o.DefaultPlatforms = d.DefaultPlatforms
	}
	return o
}

// Deps are the external collaborators of a pipeline.
type Deps struct {
	Sampler     Sampler
	Transcriber llm.Transcriber
	Vision      llm.VisionModel
	Text        llm.TextModel
	Store       ListingStore
}

// Pipeline processes videos into listings. It holds no per-run state and is
// safe for concurrent use.
type Pipeline struct {
	sampler     Sampler
	transcriber llm.Transcriber
	vision      llm.VisionModel
	text        llm.TextModel
	store       ListingStore
	opts        Options
	now         func() time.Time
}

// New creates a pipeline. All dependencies are required.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Sampler == nil:
		return nil, fmt.Errorf("sampler is required")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("transcriber is required")
	case deps.Vision == nil:
		return nil, fmt.Errorf("vision model is required")
	case deps.Text == nil:
		return nil, fmt.Errorf("text model is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("listing store is required")
	}
	return &Pipeline{
		sampler:     deps.Sampler,
		transcriber: deps.Transcriber,
		vision:      deps.Vision,
		text:        deps.Text,
		store:       deps.Store,
		opts:        opts.withDefaults(),
		now:         nowFunc,
	}, nil
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Request is one video submission.
type Request struct {
	VideoPath string
	OwnerID   string
	// Platforms to generate content for; empty uses the default set.
	Platforms []string
}

// Result is a successful run. Non-fatal failures are reported alongside
// the content that was produced.
type Result struct {
	Success          bool                                `json:"success"`
	RunID            string                              `json:"runId"`
	ListingID        string                              `json:"listingId"`
	Listing          *listing.Listing                    `json:"listing"`
	Analysis         *listing.CombinedAnalysis           `json:"analysis"`
	PlatformContent  map[string]*listing.PlatformContent `json:"platformContent"`
	PlatformFailures map[string]*StageError              `json:"platformFailures,omitempty"`
	FrameFailures    []*StageError                       `json:"frameFailures,omitempty"`
	Confidence       float64                             `json:"confidence"`
	RunLogPath       string                              `json:"runLogPath,omitempty"`
}

// Process runs the whole pipeline for one video. Fatal failures are
// returned as *StageError.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	platforms := NormalizePlatforms(req.Platforms)
	if len(platforms) == 0 {
		platforms = NormalizePlatforms(p.opts.DefaultPlatforms)
	}

	rl := StartRunLog(p.opts.RunLogDir, runID, req.OwnerID, req.VideoPath)
	logger := log.With().Str("runId", runID).Str("owner", req.OwnerID).Logger()
	started := time.Now()
	logger.Info().Str("video", req.VideoPath).Strs("platforms", platforms).Msg("processing video")

	sample, err := p.sampler.Sample(ctx, req.VideoPath, p.opts.FrameCount)
	if err != nil {
		rl.Error("sampling failed: %v", err)
		return nil, newStageError(StageSampling, ErrMediaExtraction, err)
	}
	defer sample.Cleanup()
	rl.Stage("sampled %d frames over %.1fs", len(sample.Frames), sample.Duration)

	var (
		transcript *listing.Transcript
		visual     *listing.VisualAnalysis
		frameErrs  []*StageError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transcript, err = p.transcribe(gctx, sample, rl)
		return err
	})
	g.Go(func() error {
		var err error
		visual, frameErrs, err = p.analyzeFrames(gctx, sample, rl)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("analysis stage failed")
		return nil, err
	}

	analysis, err := p.fuse(ctx, transcript, visual, rl)
	if err != nil {
		logger.Error().Err(err).Msg("fusion failed")
		return nil, err
	}

	content, failures := p.generateContent(ctx, analysis, platforms, rl)

	l := AssembleListing(req.OwnerID, analysis, content, failures, p.now())
	stored, err := p.store.InsertListing(ctx, l)
	if err != nil {
		rl.Error("persistence failed: %v", err)
		logger.Error().Err(err).Msg("failed to store listing")
		return nil, newStageError(StagePersistence, ErrPersistence, err)
	}
	rl.Stage("stored listing %s", stored.ID)

	logger.Info().
		Str("listingId", stored.ID).
		Float64("confidence", analysis.Confidence).
		Int("platforms", len(content)).
		Int("platformFailures", len(failures)).
		Int("frameFailures", len(frameErrs)).
		Dur("elapsed", time.Since(started)).
		Msg("video processed")

	return &Result{
		Success:          true,
		RunID:            runID,
		ListingID:        stored.ID,
		Listing:          stored,
		Analysis:         analysis,
		PlatformContent:  content,
		PlatformFailures: failures,
		FrameFailures:    frameErrs,
		Confidence:       analysis.Confidence,
		RunLogPath:       rl.Path(),
	}, nil
}
