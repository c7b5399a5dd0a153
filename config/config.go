package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppName     = "video-lister"
	EnvFileName = "config.env"
)

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from a .env file in the working directory.
// Errors are ignored since the files may not exist. Variables already set in
// the environment take precedence.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load(".env")
}

// Settings is the runtime configuration read from the environment.
type Settings struct {
	ModelProvider         string `envconfig:"MODEL_PROVIDER" default:"gemini"`
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"openai"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string `envconfig:"GEMINI_MODEL"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL"`

	BotToken string `envconfig:"BOT_TOKEN"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath      string `envconfig:"DB_PATH" default:"listings.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	MetadataKey string `envconfig:"METADATA_KEY"`

	FrameCount           int           `envconfig:"FRAME_COUNT" default:"5"`
	FrameConcurrency     int           `envconfig:"FRAME_CONCURRENCY" default:"4"`
	PlatformConcurrency  int           `envconfig:"PLATFORM_CONCURRENCY" default:"5"`
	MinFrameSuccesses    int           `envconfig:"MIN_FRAME_SUCCESSES" default:"1"`
	CallTimeout          time.Duration `envconfig:"CALL_TIMEOUT" default:"90s"`
	MaxRetries           int           `envconfig:"MAX_RETRIES" default:"2"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"1s"`

	TranscriptionLanguage string   `envconfig:"TRANSCRIPTION_LANGUAGE"`
	DefaultPlatforms      []string `envconfig:"DEFAULT_PLATFORMS"`
	RunLogDir             string   `envconfig:"RUN_LOG_DIR"`
	WorkDir               string   `envconfig:"WORK_DIR"`

	Debug bool `envconfig:"DEBUG"`
}

// Load reads Settings from the environment and validates provider choices.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	s.ModelProvider = strings.ToLower(s.ModelProvider)
	s.TranscriptionProvider = strings.ToLower(s.TranscriptionProvider)
	s.DBDriver = strings.ToLower(s.DBDriver)

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	for _, p := range []struct{ name, value string }{
		{"MODEL_PROVIDER", s.ModelProvider},
		{"TRANSCRIPTION_PROVIDER", s.TranscriptionProvider},
	} {
		if p.value != "gemini" && p.value != "openai" {
			return fmt.Errorf("%s must be gemini or openai, got %q", p.name, p.value)
		}
	}
	if s.DBDriver != "sqlite" && s.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", s.DBDriver)
	}
	if s.DBDriver == "postgres" && s.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
	}
	if s.FrameCount <= 0 {
		return fmt.Errorf("FRAME_COUNT must be positive, got %d", s.FrameCount)
	}
	if s.MinFrameSuccesses > s.FrameCount {
		return fmt.Errorf("MIN_FRAME_SUCCESSES (%d) cannot exceed FRAME_COUNT (%d)", s.MinFrameSuccesses, s.FrameCount)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative")
	}
	return nil
}

// MissingKeys returns the API keys required by the selected providers that
// are not set. The bot additionally needs BOT_TOKEN.
func (s *Settings) MissingKeys(needBot bool) []string {
	var missing []string
	uses := func(provider string) bool {
		return s.ModelProvider == provider || s.TranscriptionProvider == provider
	}
	if uses("gemini") && s.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if uses("openai") && s.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if needBot && s.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	return missing
}
