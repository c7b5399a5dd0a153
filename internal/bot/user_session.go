package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const (
	sessionQueueSize = 10
	// Telegram hides the typing indicator after about 5 seconds.
	typingInterval = 4 * time.Second
)

type messageKind int

const (
	kindText messageKind = iota
	kindVideo
)

func (k messageKind) String() string {
	if k == kindVideo {
		return "video"
	}
	return "text"
}

// SessionMessage is one incoming Telegram message waiting in a user's queue.
type SessionMessage struct {
	Kind    messageKind
	Ctx     context.Context
	Message *tgbotapi.Message
	Text    string

	// done is closed once the message was handled or dropped.
	done chan struct{}
}

// MessageSender is the part of the Telegram API a session talks to.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MessageHandler processes messages taken from a session queue.
type MessageHandler interface {
	HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage)
}

// UserSession queues one user's messages and handles them on a single
// worker goroutine. Videos from the same user are processed one after
// another; different users never wait for each other.
type UserSession struct {
	userId  int64
	sender  MessageSender
	handler MessageHandler

	queue chan SessionMessage
	// videos counts video messages queued or being processed
	videos atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newUserSession creates a session and starts its worker.
func newUserSession(userId int64, sender MessageSender, handler MessageHandler) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &UserSession{
		userId:  userId,
		sender:  sender,
		handler: handler,
		queue:   make(chan SessionMessage, sessionQueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.work()
	return s
}

// OwnerID is the listing owner id for this Telegram user.
func (s *UserSession) OwnerID() string {
	return fmt.Sprintf("tg:%d", s.userId)
}

// PendingVideos returns how many videos are queued or in progress.
func (s *UserSession) PendingVideos() int {
	return int(s.videos.Load())
}

// Send queues msg without waiting for it to be handled. Messages sent
// after Stop are dropped.
func (s *UserSession) Send(msg SessionMessage) {
	if msg.Kind == kindVideo {
		s.videos.Add(1)
	}
	if s.ctx.Err() != nil {
		s.drop(msg)
		return
	}
	select {
	case s.queue <- msg:
	case <-s.ctx.Done():
		s.drop(msg)
	}
}

// SendSync queues msg and blocks until it has been handled.
func (s *UserSession) SendSync(msg SessionMessage) {
	msg.done = make(chan struct{})
	s.Send(msg)
	<-msg.done
}

// Stop cancels the worker, drops queued messages and waits for the message
// in progress to finish.
func (s *UserSession) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *UserSession) work() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.drain()
			return
		case msg := <-s.queue:
			if s.ctx.Err() != nil {
				s.drop(msg)
				s.drain()
				return
			}
			s.handle(msg)
		}
	}
}

func (s *UserSession) drain() {
	for {
		select {
		case msg := <-s.queue:
			s.drop(msg)
		default:
			return
		}
	}
}

func (s *UserSession) drop(msg SessionMessage) {
	s.finish(msg)
	log.Debug().Int64("userId", s.userId).Stringer("kind", msg.Kind).Msg("dropped queued message")
}

func (s *UserSession) finish(msg SessionMessage) {
	if msg.Kind == kindVideo {
		s.videos.Add(-1)
	}
	if msg.done != nil {
		close(msg.done)
	}
}

// handle runs the handler for one message. A panicking handler is logged
// and reported to the user; the worker keeps going.
func (s *UserSession) handle(msg SessionMessage) {
	defer s.finish(msg)
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int64("userId", s.userId).
				Stringer("kind", msg.Kind).
				Interface("panic", r).
				Msg("recovered from panic in session worker")
			if s.sender != nil {
				s.reply(MsgUnexpectedErr, escapeMarkdown(fmt.Sprint(r)))
			}
		}
	}()

	if s.handler == nil {
		log.Error().Int64("userId", s.userId).Msg("session has no handler")
		return
	}
	ctx := msg.Ctx
	if ctx == nil {
		ctx = s.ctx
	}
	s.handler.HandleSessionMessage(ctx, s, msg)
}

// keepTyping shows the typing indicator until ctx is done.
func (s *UserSession) keepTyping(ctx context.Context) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		// sendChatAction answers with a bool, so it goes through Request
		if _, err := s.sender.Request(tgbotapi.NewChatAction(s.userId, tgbotapi.ChatTyping)); err != nil {
			log.Debug().Err(err).Int64("userId", s.userId).Msg("failed to send typing action")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reply formats text with a and sends it as Markdown.
func (s *UserSession) reply(text string, a ...any) tgbotapi.Message {
	return s.replyMarkdown(formatReplyText(text, a...))
}

// replyMarkdown sends already formatted Markdown text.
func (s *UserSession) replyMarkdown(text string) tgbotapi.Message {
	msg := tgbotapi.NewMessage(s.userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := s.sender.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("userId", s.userId).Str("text", truncateRunes(text, 200)).Msg("failed to send reply")
		return sent
	}
	log.Debug().Int64("userId", s.userId).Int("messageId", sent.MessageID).Msg("sent message")
	return sent
}
