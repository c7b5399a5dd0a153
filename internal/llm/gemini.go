package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30 // text/image/video
	geminiAudioPricePerMillion  = 1.00
	geminiOutputPricePerMillion = 2.50 // including thinking
)

var geminiTranscriptionPrompt = strings.TrimSpace(dedent.Dedent(`
	Transcribe the speech in this audio recording verbatim.

	Respond in JSON format with these fields:
	- text: the full transcript
	- language: ISO 639-1 code of the spoken language
	- duration: length of the audio in seconds
	- segments: list of {"start": seconds, "end": seconds, "text": string, "confidence": number between 0 and 1}

	Respond ONLY with the JSON object, no markdown or other text.
`))

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini implements VisionModel, TextModel and Transcriber with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a new Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// DescribeImage asks the model to describe one image following instruction.
func (g *Gemini) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*Generation, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("no image provided")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(image, mimeType),
	}
	gen, err := g.generate(ctx, parts, nil, geminiInputPricePerMillion)
	if err != nil {
		return nil, err
	}
	logUsage("vision llm call", gen)
	return gen, nil
}

// Generate runs a text prompt.
func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	config := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	gen, err := g.generate(ctx, []*genai.Part{genai.NewPartFromText(req.Prompt)}, config, geminiInputPricePerMillion)
	if err != nil {
		return nil, err
	}
	logUsage("text llm call", gen)
	return gen, nil
}

type geminiTranscript struct {
	Text     *string `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe sends the audio file inline and asks for a JSON transcript.
func (g *Gemini) Transcribe(ctx context.Context, audio AudioInput) (*TranscriptionResult, error) {
	data, err := os.ReadFile(audio.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	mimeType := audio.MIMEType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}

	prompt := geminiTranscriptionPrompt
	if audio.Language != "" {
		prompt += "\nThe speech is expected to be in language: " + audio.Language
	}
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	gen, err := g.generate(ctx, parts, config, geminiAudioPricePerMillion)
	if err != nil {
		return nil, err
	}
	logUsage("transcription llm call", gen)

	jsonStr, err := ExtractJSONObject(gen.Text)
	if err != nil {
		return nil, err
	}
	var raw geminiTranscript
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse transcript JSON: %v", ErrMalformedResponse, err)
	}

	out := &TranscriptionResult{
		Text:     raw.Text,
		Language: raw.Language,
		Duration: raw.Duration,
		Usage:    gen.Usage,
	}
	for _, s := range raw.Segments {
		out.Segments = append(out.Segments, TranscriptionSegment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Confidence: s.Confidence,
		})
	}
	return out, nil
}

func (g *Gemini) generate(ctx context.Context, parts []*genai.Part, config *genai.GenerateContentConfig, inputPrice float64) (*Generation, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	gen := &Generation{Text: result.Text(), Model: g.model}
	if result.UsageMetadata != nil {
		gen.Usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		gen.Usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		gen.Usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		gen.Usage.CostUSD = calculateCost(gen.Usage.InputTokens, gen.Usage.OutputTokens, inputPrice, geminiOutputPricePerMillion)
	}
	return gen, nil
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

func logUsage(msg string, gen *Generation) {
	log.Info().
		Str("model", gen.Model).
		Int64("inputTokens", gen.Usage.InputTokens).
		Int64("outputTokens", gen.Usage.OutputTokens).
		Float64("costUSD", gen.Usage.CostUSD).
		Msg(msg)
}
