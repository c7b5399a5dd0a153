// Package app wires configuration into a store and a ready-to-run pipeline.
// Both the bot and the command line tools start from here.
package app

import (
	"context"
	"fmt"

	"github.com/raine/video-lister/config"
	"github.com/raine/video-lister/internal/llm"
	"github.com/raine/video-lister/internal/media"
	"github.com/raine/video-lister/internal/pipeline"
	"github.com/raine/video-lister/internal/storage"
	"github.com/rs/zerolog/log"
)

// OpenStore opens the listing store selected by DB_DRIVER.
func OpenStore(s *config.Settings) (storage.Store, error) {
	key := storage.DeriveKey(s.MetadataKey)
	if key == nil {
		log.Warn().Msg("METADATA_KEY is not set, listing metadata is stored unencrypted")
	}

	switch s.DBDriver {
	case "postgres":
		store, err := storage.NewPostgresStore(s.DatabaseURL, key, s.Debug)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("postgres listing store initialized")
		return store, nil
	default:
		store, err := storage.NewSQLiteStore(s.DBPath, key)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dbPath", s.DBPath).Msg("sqlite listing store initialized")
		return store, nil
	}
}

// Models holds the model clients chosen by MODEL_PROVIDER and
// TRANSCRIPTION_PROVIDER.
type Models struct {
	Vision      llm.VisionModel
	Text        llm.TextModel
	Transcriber llm.Transcriber
}

type provider interface {
	llm.VisionModel
	llm.TextModel
	llm.Transcriber
}

// NewModels creates the model clients. Vision answers are cached in cache
// when it is not nil.
func NewModels(ctx context.Context, s *config.Settings, cache llm.VisionCache) (*Models, error) {
	providers := make(map[string]provider)
	get := func(name string) (provider, error) {
		if p, ok := providers[name]; ok {
			return p, nil
		}
		var p provider
		var err error
		switch name {
		case "gemini":
			p, err = llm.NewGemini(ctx, llm.GeminiConfig{
				APIKey: s.GeminiAPIKey,
				Model:  s.GeminiModel,
			})
		case "openai":
			p, err = llm.NewOpenAI(llm.OpenAIConfig{
				APIKey:  s.OpenAIAPIKey,
				BaseURL: s.OpenAIBaseURL,
				Model:   s.OpenAIModel,
				Timeout: s.CallTimeout,
			})
		default:
			err = fmt.Errorf("unknown model provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s client: %w", name, err)
		}
		log.Info().Str("provider", name).Msg("model client initialized")
		providers[name] = p
		return p, nil
	}

	model, err := get(s.ModelProvider)
	if err != nil {
		return nil, err
	}
	transcriber, err := get(s.TranscriptionProvider)
	if err != nil {
		return nil, err
	}

	var vision llm.VisionModel = model
	if cache != nil {
		vision = llm.NewCachedVision(model, cache)
		log.Info().Msg("vision analysis caching enabled")
	}

	return &Models{Vision: vision, Text: model, Transcriber: transcriber}, nil
}

// PipelineOptions maps settings to pipeline options.
func PipelineOptions(s *config.Settings) pipeline.Options {
	return pipeline.Options{
		FrameCount:           s.FrameCount,
		FrameConcurrency:     s.FrameConcurrency,
		PlatformConcurrency:  s.PlatformConcurrency,
		MinFrameSuccesses:    s.MinFrameSuccesses,
		CallTimeout:          s.CallTimeout,
		MaxRetries:           s.MaxRetries,
		RetryInitialInterval: s.RetryInitialInterval,
		Language:             s.TranscriptionLanguage,
		DefaultPlatforms:     s.DefaultPlatforms,
		RunLogDir:            s.RunLogDir,
	}
}

// NewPipeline builds the full pipeline on top of store.
func NewPipeline(ctx context.Context, s *config.Settings, store storage.Store) (*pipeline.Pipeline, error) {
	ffmpeg, err := media.NewFFmpeg(0)
	if err != nil {
		return nil, err
	}

	models, err := NewModels(ctx, s, store)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Sampler:     media.NewSampler(ffmpeg, s.WorkDir),
		Transcriber: models.Transcriber,
		Vision:      models.Vision,
		Text:        models.Text,
		Store:       store,
	}, PipelineOptions(s))
}
