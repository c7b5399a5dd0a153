package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultOpenAIModel        = "gpt-4o"
	DefaultOpenAIWhisperModel = "whisper-1"
)

// OpenAI pricing (per million tokens)
const (
	openAIInputPricePerMillion  = 2.50
	openAIOutputPricePerMillion = 10.00
	// Whisper is billed per minute of audio
	whisperPricePerMinute = 0.006
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	WhisperModel string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// OpenAI implements VisionModel, TextModel and Transcriber with the OpenAI
// chat completions and audio transcription endpoints.
type OpenAI struct {
	client       *resty.Client
	model        string
	whisperModel string
}

// NewOpenAI creates a new OpenAI client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.WhisperModel == "" {
		cfg.WhisperModel = DefaultOpenAIWhisperModel
	}

	var client *resty.Client
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	} else {
		client = resty.New()
	}
	client.
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &OpenAI{client: client, model: cfg.Model, whisperModel: cfg.WhisperModel}, nil
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    *float32            `json:"temperature,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// DescribeImage sends the image inline as a data URL.
func (o *OpenAI) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (*Generation, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("no image provided")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			},
		}},
		MaxTokens: 500,
	}
	gen, err := o.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	logUsage("vision llm call", gen)
	return gen, nil
}

// Generate runs a text prompt through chat completions.
func (o *OpenAI) Generate(ctx context.Context, r GenerateRequest) (*Generation, error) {
	req := chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: r.Prompt}},
		Temperature: r.Temperature,
	}
	if r.JSON {
		req.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	gen, err := o.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	logUsage("text llm call", gen)
	return gen, nil
}

func (o *OpenAI) chat(ctx context.Context, req chatRequest) (*Generation, error) {
	var result chatResponse
	_, err := handleError(o.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/chat/completions"))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in openai response", ErrMalformedResponse)
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	gen := &Generation{
		Text:  result.Choices[0].Message.Content,
		Model: model,
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		},
	}
	gen.Usage.CostUSD = calculateCost(gen.Usage.InputTokens, gen.Usage.OutputTokens, openAIInputPricePerMillion, openAIOutputPricePerMillion)
	return gen, nil
}

type whisperResponse struct {
	Text     *string `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe uploads the audio file to the Whisper endpoint and requests
// verbose_json so that segments come back with timing.
func (o *OpenAI) Transcribe(ctx context.Context, audio AudioInput) (*TranscriptionResult, error) {
	form := map[string]string{
		"model":           o.whisperModel,
		"response_format": "verbose_json",
	}
	if audio.Language != "" {
		form["language"] = audio.Language
	}

	var result whisperResponse
	_, err := handleError(o.client.R().
		SetContext(ctx).
		SetFile("file", audio.Path).
		SetFormData(form).
		SetResult(&result).
		Post("/audio/transcriptions"))
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	out := &TranscriptionResult{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Usage:    Usage{CostUSD: result.Duration / 60 * whisperPricePerMinute},
	}
	for _, s := range result.Segments {
		conf := s.Confidence
		// Whisper reports a mean token log probability instead of a score
		if conf == nil && s.AvgLogprob != nil {
			conf = ptrTo(math.Min(1, math.Exp(*s.AvgLogprob)))
		}
		out.Segments = append(out.Segments, TranscriptionSegment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Confidence: conf,
		})
	}
	logUsage("transcription call", &Generation{Model: o.whisperModel, Usage: out.Usage})
	return out, nil
}

func ptrTo[T any](v T) *T { return &v }
