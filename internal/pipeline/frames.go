package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
	"github.com/raine/video-lister/internal/media"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var frameInstruction = strings.TrimSpace(dedent.Dedent(`
	Analyze this image for items being sold. Identify the brand, model,
	condition, color, material, size and any distinguishing features.
	Be specific and detailed.

	Answer with one labeled line per field:
	Items: comma separated list of the items visible
	Brand:
	Model:
	Condition:
	Color:
	Material:
	Size:
	Features:
	Setting: indoor or outdoor, and where
	Lighting:
	Background:
	Confidence: number between 0 and 1 for how sure you are about the item

	Write "unknown" for fields you cannot determine.
`))

// analyzeFrames runs one vision call per frame with bounded concurrency.
// Failed frames are returned as stage errors; the stage itself fails only
// when fewer than MinFrameSuccesses frames succeed.
func (p *Pipeline) analyzeFrames(ctx context.Context, sample *media.Sample, rl *RunLog) (*listing.VisualAnalysis, []*StageError, error) {
	results := make([]*listing.FrameAnalysis, len(sample.Frames))
	failures := make([]*StageError, len(sample.Frames))

	// Not errgroup.WithContext: one failed frame must not cancel the others
	var g errgroup.Group
	g.SetLimit(p.opts.FrameConcurrency)

	for i, frame := range sample.Frames {
		g.Go(func() error {
			fa, err := p.analyzeFrame(ctx, frame)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				failures[i] = &StageError{
					Stage:      StageFrameAnalysis,
					Kind:       ErrVisionAnalysis,
					FrameIndex: frame.Index,
					Err:        err,
				}
				log.Warn().Err(err).Int("frame", frame.Index).Msg("frame analysis failed")
				rl.Error("frame %d failed: %v", frame.Index, err)
				return nil
			}
			results[i] = fa
			rl.Stage("frame %d analyzed (%d mentions, confidence %.2f)", frame.Index, len(fa.Mentions), fa.Confidence)
			return nil
		})
	}
	g.Wait()

	// The run was cancelled, not the frames: report that once
	if err := ctx.Err(); err != nil {
		rl.Error("frame analysis cancelled: %v", err)
		return nil, nil, newStageError(StageFrameAnalysis, ErrVisionAnalysis, err)
	}

	var frames []listing.FrameAnalysis
	var failedIdx []int
	var frameErrs []*StageError
	for i := range sample.Frames {
		if results[i] != nil {
			frames = append(frames, *results[i])
		}
		if failures[i] != nil {
			failedIdx = append(failedIdx, failures[i].FrameIndex)
			frameErrs = append(frameErrs, failures[i])
		}
	}

	minSuccesses := max(p.opts.MinFrameSuccesses, 1)
	if len(frames) < minSuccesses {
		err := &StageError{
			Stage:      StageFrameAnalysis,
			Kind:       ErrFrameAnalysisThreshold,
			FrameIndex: -1,
			Err:        fmt.Errorf("%d of %d frames analyzed, need at least %d", len(frames), len(sample.Frames), minSuccesses),
		}
		// Surface the cause of the last frame failure (often a timeout)
		if len(frameErrs) > 0 {
			err.Err = fmt.Errorf("%w: last failure: %w", err.Err, frameErrs[len(frameErrs)-1].Err)
		}
		return nil, frameErrs, err
	}

	return BuildVisualAnalysis(frames, failedIdx), frameErrs, nil
}

func (p *Pipeline) analyzeFrame(ctx context.Context, frame media.Frame) (*listing.FrameAnalysis, error) {
	image, err := os.ReadFile(frame.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	gen, err := callOnce(ctx, p.opts.CallTimeout, func(ctx context.Context) (*llm.Generation, error) {
		return p.vision.DescribeImage(ctx, image, "image/jpeg", frameInstruction)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(gen.Text) == "" {
		return nil, fmt.Errorf("%w: empty description", llm.ErrMalformedResponse)
	}
	fa := NewFrameAnalysis(frame.Index, frame.Timestamp, gen.Text)
	return &fa, nil
}
