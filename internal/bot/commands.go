package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

type commandHandler func(b *Bot, ctx context.Context, session *UserSession, args []string)

type botCommand struct {
	name        string
	description string
	// hidden commands work but are not shown in the Telegram menu
	hidden bool
	run    commandHandler
}

var botCommands = []botCommand{
	{name: "start", description: "How to create a listing from a video", run: runHelp},
	{name: "help", hidden: true, run: runHelp},
	{name: "platforms", description: "Show or set your default marketplaces", run: runPlatforms},
	{name: "listings", description: "Show your recent listings", run: runListings},
}

func runHelp(b *Bot, ctx context.Context, session *UserSession, args []string) {
	session.reply(MsgStart)
}

func runPlatforms(b *Bot, ctx context.Context, session *UserSession, args []string) {
	b.handlePlatformsCommand(session, args)
}

func runListings(b *Bot, ctx context.Context, session *UserSession, args []string) {
	b.handleListingsCommand(ctx, session)
}

// lookupCommand finds a command by its slash-prefixed name.
func lookupCommand(name string) (botCommand, bool) {
	for _, c := range botCommands {
		if "/"+c.name == name {
			return c, true
		}
	}
	return botCommand{}, false
}

// menuCommands returns the commands listed in the Telegram menu.
func menuCommands() []tgbotapi.BotCommand {
	var out []tgbotapi.BotCommand
	for _, c := range botCommands {
		if !c.hidden {
			out = append(out, tgbotapi.BotCommand{Command: c.name, Description: c.description})
		}
	}
	return out
}

// RegisterCommands publishes the command menu. Failure only costs the menu,
// so it is logged and ignored.
func RegisterCommands(tg BotAPI) {
	commands := menuCommands()
	if _, err := tg.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
		return
	}
	log.Info().Int("count", len(commands)).Msg("registered bot commands")
}
