package bot

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// sessionRegistry hands out one UserSession per Telegram user, creating it
// on first contact.
type sessionRegistry struct {
	sender  MessageSender
	handler MessageHandler

	mu       sync.Mutex
	sessions map[int64]*UserSession
	closed   bool
}

func newSessionRegistry(sender MessageSender, handler MessageHandler) *sessionRegistry {
	return &sessionRegistry{
		sender:   sender,
		handler:  handler,
		sessions: make(map[int64]*UserSession),
	}
}

// get returns the user's session. It returns nil after Shutdown.
func (r *sessionRegistry) get(userId int64) *UserSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if s, ok := r.sessions[userId]; ok {
		return s
	}
	s := newUserSession(userId, r.sender, r.handler)
	r.sessions[userId] = s
	log.Info().Int64("userId", userId).Int("sessions", len(r.sessions)).Msg("new user session created")
	return s
}

// Shutdown stops every session, waiting for videos in progress.
func (r *sessionRegistry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*UserSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Go(s.Stop)
	}
	wg.Wait()
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
