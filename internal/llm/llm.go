package llm

import (
	"context"
	"errors"
)

// ErrMalformedResponse is returned when a model answered but its payload
// could not be used. Callers should not retry it.
var ErrMalformedResponse = errors.New("malformed model response")

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Generation is the text produced by one model call.
type Generation struct {
	Text  string
	Model string
	Usage Usage
}

// GenerateRequest is a single text-only prompt.
type GenerateRequest struct {
	Prompt string
	// JSON asks the provider to return a JSON object.
	JSON        bool
	Temperature *float32
}

// AudioInput references an extracted audio file.
type AudioInput struct {
	Path     string
	MIMEType string
	Language string
}

// TranscriptionSegment is a time-aligned piece of a transcription.
// Confidence is nil when the provider does not report one.
type TranscriptionSegment struct {
	Start      float64
	End        float64
	Text       string
	Confidence *float64
}

// TranscriptionResult is the raw transcription service answer.
// Text is nil when the service omitted it.
type TranscriptionResult struct {
	Text     *string
	Segments []TranscriptionSegment
	Language string
	Duration float64
	Usage    Usage
}

// VisionModel describes a single still image.
type VisionModel interface {
	DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*Generation, error)
}

// TextModel generates text from a prompt.
type TextModel interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// Transcriber converts speech audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioInput) (*TranscriptionResult, error)
}
