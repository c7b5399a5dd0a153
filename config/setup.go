package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var (
	telegramAPIURL = "https://api.telegram.org"
	geminiAPIURL   = "https://generativelanguage.googleapis.com/v1beta"
	openAIAPIURL   = "https://api.openai.com/v1"
)

var validationClient = resty.New().SetTimeout(10 * time.Second)

// ConfigFilePath returns the full path to the config file, creating the
// config directory if needed.
func ConfigFilePath() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// IsInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type setupField struct {
	title       string
	description string
	validate    func(string) error
}

var setupFields = map[string]setupField{
	"BOT_TOKEN": {
		title:       "Telegram Bot Token",
		description: "Message @BotFather on Telegram → /newbot → copy token",
		validate:    validateTelegramToken,
	},
	"GEMINI_API_KEY": {
		title:       "Gemini API Key",
		description: "Get yours at https://aistudio.google.com/apikey",
		validate:    validateGeminiKey,
	},
	"OPENAI_API_KEY": {
		title:       "OpenAI API Key",
		description: "Used for Whisper transcription. https://platform.openai.com/api-keys",
		validate:    validateOpenAIKey,
	},
}

// RunSetupWizard asks for the missing keys, writes them to the config file
// and sets them in the current process. A METADATA_KEY is generated when
// none is configured. Returns true if the caller should continue starting.
func RunSetupWizard(missing []string) bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("🎬 Video Lister - First-time Setup"))
	fmt.Println()

	values := make(map[string]*string, len(missing))
	var groups []*huh.Group
	for _, key := range missing {
		field, ok := setupFields[key]
		if !ok {
			continue
		}
		value := new(string)
		values[key] = value
		validate := field.validate
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(field.title).
				Description(field.description).
				EchoMode(huh.EchoModePassword).
				Value(value).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("value is required")
					}
					return validate(strings.TrimSpace(s))
				}),
		))
	}

	if len(groups) > 0 {
		err := huh.NewForm(groups...).WithTheme(huh.ThemeBase16()).Run()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("\nSetup cancelled.")
				return false
			}
			fmt.Printf("\nError: %v\n", err)
			return false
		}
	}

	config := make(map[string]string, len(values)+1)
	for key, value := range values {
		config[key] = strings.TrimSpace(*value)
	}
	if os.Getenv("METADATA_KEY") == "" {
		config["METADATA_KEY"] = generateMetadataKey()
	}

	configPath, err := writeEnvFile(config)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		WaitOnWindows()
		return false
	}

	for k, v := range config {
		os.Setenv(k, v)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()

	return true
}

func generateMetadataKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("video-lister-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

// validateTelegramToken validates a Telegram bot token by calling the getMe API.
func validateTelegramToken(token string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}
	res, err := validationClient.R().
		SetResult(&result).
		SetError(&result).
		Get(fmt.Sprintf("%s/bot%s/getMe", telegramAPIURL, token))
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return fmt.Errorf("token rejected by Telegram (HTTP %d)", res.StatusCode())
	}
	return nil
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// validateGeminiKey validates a Gemini API key with the lightweight models
// list endpoint.
func validateGeminiKey(key string) error {
	var apiErr apiErrorBody
	res, err := validationClient.R().
		SetQueryParam("key", key).
		SetError(&apiErr).
		Get(geminiAPIURL + "/models")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	return keyCheckResult(res, apiErr)
}

// validateOpenAIKey validates an OpenAI API key with the models list endpoint.
func validateOpenAIKey(key string) error {
	var apiErr apiErrorBody
	res, err := validationClient.R().
		SetAuthToken(key).
		SetError(&apiErr).
		Get(openAIAPIURL + "/models")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	return keyCheckResult(res, apiErr)
}

func keyCheckResult(res *resty.Response, apiErr apiErrorBody) error {
	switch code := res.StatusCode(); {
	case code == 200:
		return nil
	case code == 400 || code == 401 || code == 403:
		if apiErr.Error.Message != "" {
			return errors.New(apiErr.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", code)
	default:
		return fmt.Errorf("unexpected response (HTTP %d)", code)
	}
}

// writeEnvFile merges config into the config file, keeping keys already
// present. Uses restrictive permissions since the file contains secrets.
func writeEnvFile(config map[string]string) (string, error) {
	configPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}

	merged, err := godotenv.Read(configPath)
	if err != nil {
		merged = make(map[string]string, len(config))
	}
	for k, v := range config {
		merged[k] = v
	}

	if err := godotenv.Write(merged, configPath); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(configPath, 0600); err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("failed to restrict config file permissions")
	}
	return configPath, nil
}

// WaitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// FatalWithWait logs a fatal error and waits on Windows before exiting.
func FatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	WaitOnWindows()
	os.Exit(1)
}
