package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/llm"
	"github.com/raine/video-lister/internal/media"
)

// DefaultTranscriptConfidence applies to segments without a score and to
// transcripts without segments.
const DefaultTranscriptConfidence = 0.8

// transcribe calls the transcription service once, retrying only transport
// failures. A response without text is final.
func (p *Pipeline) transcribe(ctx context.Context, sample *media.Sample, rl *RunLog) (*listing.Transcript, error) {
	audio := llm.AudioInput{
		Path:     sample.AudioPath,
		MIMEType: "audio/mpeg",
		Language: p.opts.Language,
	}
	res, err := callWithRetry(ctx, p.opts, "transcription", func(ctx context.Context) (*llm.TranscriptionResult, error) {
		r, err := p.transcriber.Transcribe(ctx, audio)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Text == nil {
			return nil, fmt.Errorf("%w: transcription response has no text", llm.ErrMalformedResponse)
		}
		return r, nil
	})
	if err != nil {
		rl.Error("transcription failed: %v", err)
		return nil, newStageError(StageTranscription, ErrTranscription, err)
	}

	t := NormalizeTranscript(res)
	if t.Duration == 0 {
		t.Duration = sample.Duration
	}
	rl.Stage("transcribed %d segments, language %q, confidence %.2f", len(t.Segments), t.Language, t.Confidence)
	return t, nil
}

// NormalizeTranscript converts a service response into a Transcript.
// Confidence is the mean of segment confidences, with missing scores
// counted as DefaultTranscriptConfidence.
func NormalizeTranscript(res *llm.TranscriptionResult) *listing.Transcript {
	t := &listing.Transcript{
		Language:   res.Language,
		Duration:   res.Duration,
		Confidence: DefaultTranscriptConfidence,
	}
	if res.Text != nil {
		t.Text = strings.TrimSpace(*res.Text)
	}

	var total float64
	for _, s := range res.Segments {
		c := DefaultTranscriptConfidence
		if s.Confidence != nil {
			c = clamp01(*s.Confidence)
		}
		total += c
		t.Segments = append(t.Segments, listing.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       strings.TrimSpace(s.Text),
			Confidence: c,
		})
	}
	if len(t.Segments) > 0 {
		t.Confidence = total / float64(len(t.Segments))
	}
	return t
}
