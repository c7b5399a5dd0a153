package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/video-lister/config"
	"github.com/raine/video-lister/internal/app"
	"github.com/raine/video-lister/internal/bot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "video-lister.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	settings, err := config.Load()
	if err != nil {
		config.FatalWithWait("%v", err)
	}

	// Check if required config is missing
	if missing := settings.MissingKeys(true); len(missing) > 0 {
		if config.IsInteractiveTerminal() {
			// Interactive terminal - run setup wizard
			if !config.RunSetupWizard(missing) {
				config.WaitOnWindows()
				os.Exit(1)
			}
			if settings, err = config.Load(); err != nil {
				config.FatalWithWait("%v", err)
			}
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	closeLog := setupLogging(settings.Debug)
	defer closeLog()

	tg, err := tgbotapi.NewBotAPI(settings.BotToken)
	if err != nil {
		config.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	store, err := app.OpenStore(settings)
	if err != nil {
		config.FatalWithWait("failed to initialize listing store: %v", err)
	}
	defer store.Close()

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := app.NewPipeline(ctx, settings, store)
	if err != nil {
		config.FatalWithWait("failed to initialize pipeline: %v", err)
	}
	log.Info().
		Str("modelProvider", settings.ModelProvider).
		Str("transcriptionProvider", settings.TranscriptionProvider).
		Int("frames", settings.FrameCount).
		Msg("pipeline initialized")

	b := bot.NewBot(tg, p, store, bot.NewVideoDownloader(settings.WorkDir), settings.DefaultPlatforms)

	g, ctx := errgroup.WithContext(ctx)

	// Run bot update loop
	g.Go(func() error {
		return runBot(ctx, tg, b)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// setupLogging logs to stderr, plus a plain text file unless journald is
// collecting stderr already. The returned func closes the file.
func setupLogging(debug bool) func() {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	// systemd sets JOURNAL_STREAM; its ProtectSystem=strict also makes the
	// working directory read-only
	if _, ok := os.LookupEnv("JOURNAL_STREAM"); ok {
		log.Logger = log.Output(console)
		return func() {}
	}

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		config.FatalWithWait("failed to open log file: %v", err)
	}
	log.Logger = log.Output(io.MultiWriter(console, zerolog.ConsoleWriter{Out: logFile, NoColor: true}))
	log.Info().Str("logFile", logFileName).Str("level", level.String()).Msg("logging to file")
	return func() { logFile.Close() }
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	defer b.Shutdown()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
