package usecase

import (
	"context"
	"time"

	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
)

const idleCheckInterval = time.Minute

type SessionStorage interface {
	GetOrCreate(chatID int64, create func() *Session) *Session
	Replace(chatID int64, session *Session) (*Session, bool)
	RemoveIdle(before time.Time) []*Session
	RemoveAll() []*Session
}

type ChatSessionUsecaseDeps struct {
	SessionStorage SessionStorage
	Conversation   ConversationUsecaseDeps
}

// ChatSessionUsecase hands out one Session per chat and closes sessions
// that were idle for longer than idleTimeout.
type ChatSessionUsecase struct {
	ChatSessionUsecaseDeps
	language    local.Language
	idleTimeout time.Duration
	now         func() time.Time
}

func NewChatSessionUsecase(
	deps ChatSessionUsecaseDeps,
	language local.Language,
	idleTimeout time.Duration,
) *ChatSessionUsecase {
	return &ChatSessionUsecase{
		ChatSessionUsecaseDeps: deps,
		language:               language,
		idleTimeout:            idleTimeout,
		now:                    time.Now,
	}
}

func (c *ChatSessionUsecase) GetSession(chatID int64) *Session {
	return c.SessionStorage.GetOrCreate(chatID, c.newSession)
}

// ResetSession starts a fresh transcript for the chat. The old session is
// closed in the background so its in-flight calls still finish.
func (c *ChatSessionUsecase) ResetSession(chatID int64) *Session {
	session := c.newSession()
	if previous, ok := c.SessionStorage.Replace(chatID, session); ok {
		go previous.Close()
	}
	return session
}

func (c *ChatSessionUsecase) CloseIdle() int {
	if c.idleTimeout <= 0 {
		return 0
	}
	idle := c.SessionStorage.RemoveIdle(c.now().Add(-c.idleTimeout))
	for _, session := range idle {
		go session.Close()
	}
	return len(idle)
}

// Run closes idle sessions until ctx is done, then closes all of them.
func (c *ChatSessionUsecase) Run(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.CloseAll()
			return
		case <-ticker.C:
			if closed := c.CloseIdle(); closed > 0 {
				observability.Logger().Info("closed idle sessions", "count", closed)
			}
		}
	}
}

func (c *ChatSessionUsecase) CloseAll() {
	for _, session := range c.SessionStorage.RemoveAll() {
		session.Close()
	}
}

func (c *ChatSessionUsecase) newSession() *Session {
	return NewSession(c.Conversation, c.language)
}
