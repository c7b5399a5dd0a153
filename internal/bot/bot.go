package bot

import (
	"context"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/video-lister/internal/listing"
	"github.com/raine/video-lister/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Processor turns a video file into a stored listing.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Store is the part of the listing store the bot reads and writes directly.
type Store interface {
	GetOwnerPlatforms(ownerID string) ([]string, error)
	SetOwnerPlatforms(ownerID string, platforms []string) error
	ListListingsByOwner(ctx context.Context, ownerID string, limit int) ([]listing.Listing, error)
}

const recentListingsLimit = 5

// Bot is the main Telegram bot handler.
type Bot struct {
	tg               BotAPI
	sessions         *sessionRegistry
	processor        Processor
	store            Store
	downloader       *VideoDownloader
	defaultPlatforms []string
}

// NewBot creates a new Bot instance. defaultPlatforms is shown to users who
// have not chosen their own.
func NewBot(tg BotAPI, processor Processor, store Store, downloader *VideoDownloader, defaultPlatforms []string) *Bot {
	if downloader == nil {
		downloader = NewVideoDownloader("")
	}
	if len(defaultPlatforms) == 0 {
		defaultPlatforms = pipeline.DefaultPlatforms
	}
	b := &Bot{
		tg:               tg,
		processor:        processor,
		store:            store,
		downloader:       downloader,
		defaultPlatforms: defaultPlatforms,
	}
	b.sessions = newSessionRegistry(tg, b)
	return b
}

// HandleUpdate queues the message on its sender's session and returns
// without waiting for it to be handled.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is HandleUpdate that waits for the message to be handled.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.sessions.Shutdown()
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	session := b.sessions.get(message.From.ID)
	if session == nil {
		return
	}

	msg := SessionMessage{Kind: kindText, Ctx: ctx, Message: message, Text: message.Text}
	if message.Video != nil || message.Document != nil {
		msg.Kind = kindVideo
	}
	log.Info().
		Int64("userId", message.From.ID).
		Stringer("kind", msg.Kind).
		Str("text", message.Text).
		Str("caption", message.Caption).
		Msg("got message")

	if msg.Kind == kindVideo {
		if ahead := session.PendingVideos(); ahead > 0 {
			session.reply(MsgVideoQueued, ahead)
		}
	}

	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage runs on the session worker.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	if msg.Kind == kindVideo {
		b.handleVideoMessage(ctx, session, msg.Message)
		return
	}
	b.handleTextMessage(ctx, session, msg.Message)
}

func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if !strings.HasPrefix(message.Text, "/") {
		session.reply(MsgSendVideo)
		return
	}

	name, args := parseCommand(message.Text)
	cmd, ok := lookupCommand(name)
	if !ok {
		session.reply(MsgUnknownCmd)
		return
	}
	cmd.run(b, ctx, session, args)
}

// videoAttachment is the downloadable part of a video or document message.
type videoAttachment struct {
	FileID   string
	FileName string
	FileSize int
}

func videoFromMessage(message *tgbotapi.Message) (videoAttachment, bool) {
	if v := message.Video; v != nil {
		return videoAttachment{FileID: v.FileID, FileName: v.FileName, FileSize: v.FileSize}, true
	}
	if d := message.Document; d != nil && strings.HasPrefix(d.MimeType, "video/") {
		return videoAttachment{FileID: d.FileID, FileName: d.FileName, FileSize: d.FileSize}, true
	}
	return videoAttachment{}, false
}

func (b *Bot) handleVideoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	video, ok := videoFromMessage(message)
	if !ok {
		session.reply(MsgNotAVideo)
		return
	}
	if maxSize := b.downloader.MaxSize(); int64(video.FileSize) > maxSize {
		session.reply(MsgVideoTooLarge, formatBytes(int64(video.FileSize)), formatBytes(maxSize))
		return
	}

	session.reply(MsgProcessingVideo)

	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go session.keepTyping(typingCtx)

	path, err := b.downloader.DownloadFromTelegramFileID(ctx, b.tg.GetFileDirectURL, video.FileID, video.FileName)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to download video")
		session.reply(MsgDownloadFailed, escapeMarkdown(err.Error()))
		return
	}
	defer os.Remove(path)

	res, err := b.processor.Process(ctx, pipeline.Request{
		VideoPath: path,
		OwnerID:   session.OwnerID(),
		Platforms: b.platformsFor(session, message.Caption),
	})
	stopTyping()
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("video processing failed")
		session.replyMarkdown(formatProcessingError(err))
		return
	}

	for _, text := range formatResult(res) {
		session.replyMarkdown(text)
	}
}

// platformsFor picks the platforms for a run: known platform names in the
// caption win, then the owner's saved defaults. Nil means the global default.
func (b *Bot) platformsFor(session *UserSession, caption string) []string {
	var fromCaption []string
	for _, word := range pipeline.NormalizePlatforms(strings.FieldsFunc(caption, isPlatformSeparator)) {
		if _, ok := pipeline.LookupPlatform(word); ok {
			fromCaption = append(fromCaption, word)
		}
	}
	if len(fromCaption) > 0 {
		return fromCaption
	}

	saved, err := b.store.GetOwnerPlatforms(session.OwnerID())
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to get owner platforms")
		return nil
	}
	return saved
}

func isPlatformSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == '\n' || r == '\t'
}

func (b *Bot) handlePlatformsCommand(session *UserSession, args []string) {
	ownerID := session.OwnerID()
	defaults := strings.Join(b.defaultPlatforms, ", ")

	if len(args) == 0 {
		saved, err := b.store.GetOwnerPlatforms(ownerID)
		if err != nil {
			log.Error().Err(err).Str("owner", ownerID).Msg("failed to get owner platforms")
			session.reply(MsgPlatformsError)
			return
		}
		if len(saved) == 0 {
			session.reply(MsgPlatformsDefault, defaults)
			return
		}
		session.reply(MsgPlatformsCurrent, strings.Join(saved, ", "))
		return
	}

	if len(args) == 1 && strings.EqualFold(args[0], "reset") {
		if err := b.store.SetOwnerPlatforms(ownerID, nil); err != nil {
			log.Error().Err(err).Str("owner", ownerID).Msg("failed to reset owner platforms")
			session.reply(MsgPlatformsError)
			return
		}
		session.reply(MsgPlatformsReset, defaults)
		return
	}

	platforms := pipeline.NormalizePlatforms(strings.FieldsFunc(strings.Join(args, " "), isPlatformSeparator))
	var unknown []string
	for _, p := range platforms {
		if _, ok := pipeline.LookupPlatform(p); !ok {
			unknown = append(unknown, p)
		}
	}
	if len(unknown) > 0 {
		session.reply(MsgPlatformsUnknown,
			escapeMarkdown(strings.Join(unknown, ", ")),
			strings.Join(pipeline.KnownPlatforms(), ", "))
		return
	}

	if err := b.store.SetOwnerPlatforms(ownerID, platforms); err != nil {
		log.Error().Err(err).Str("owner", ownerID).Msg("failed to set owner platforms")
		session.reply(MsgPlatformsError)
		return
	}
	log.Info().Str("owner", ownerID).Strs("platforms", platforms).Msg("owner platforms updated")
	session.reply(MsgPlatformsUpdated, strings.Join(platforms, ", "))
}

func (b *Bot) handleListingsCommand(ctx context.Context, session *UserSession) {
	listings, err := b.store.ListListingsByOwner(ctx, session.OwnerID(), recentListingsLimit)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to list listings")
		session.reply(MsgListingsError)
		return
	}
	if len(listings) == 0 {
		session.reply(MsgNoListings)
		return
	}
	session.replyMarkdown(formatListings(listings))
}
