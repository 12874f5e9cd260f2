package auth

import (
	"time"

	"github.com/annel0/lumberjack/internal/game"
)

// SessionAuthorizer разрешает действие, если его подписал сам владелец
// записи или действующий ключ сессии этого владельца.
type SessionAuthorizer struct {
	Now func() int64 // unix-секунды; nil - системное время
}

// NewSessionAuthorizer создаёт авторизатор на указанных часах.
func NewSessionAuthorizer(now func() int64) *SessionAuthorizer {
	return &SessionAuthorizer{Now: now}
}

func (a *SessionAuthorizer) Authorize(claimed, stored game.Identity, session *game.SessionCredential) bool {
	if stored.IsZero() {
		return false
	}
	if claimed == stored {
		return true
	}
	if session == nil {
		return false
	}
	return session.Authority == stored &&
		session.Signer == claimed &&
		session.ValidUntil > a.now()
}

func (a *SessionAuthorizer) now() int64 {
	if a.Now == nil {
		return time.Now().Unix()
	}
	return a.Now()
}
