// Package middleware содержит HTTP middleware витрины.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/pickup-storefront/internal/storefront"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	sessionCookieName = "storefront_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// SessionStore описывает хранилище сессий покупателей.
type SessionStore interface {
	Get(id string) (*storefront.Session, bool)
	Create() *storefront.Session
	// Ephemeral возвращает пустую сессию, которая не сохраняется в хранилище.
	Ephemeral() *storefront.Session
}

// SessionMiddleware привязывает запрос к сессии покупателя по подписанному cookie.
type SessionMiddleware struct {
	secretKey []byte
	store     SessionStore
}

// NewSessionMiddleware создаёт middleware сессий. При пустом секрете генерируется случайный ключ.
func NewSessionMiddleware(secret string, store SessionStore) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionMiddleware{
		secretKey: key,
		store:     store,
	}
}

// Middleware находит сессию по cookie и добавляет её в контекст запроса.
// Новая сессия сохраняется только для изменяющих запросов; чтение без cookie
// обслуживается временной пустой сессией.
func (m *SessionMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var session *storefront.Session

		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			if id, ok := m.parseCookie(cookie.Value); ok {
				session, _ = m.store.Get(id)
			}
		}

		if session == nil {
			if isReadOnly(r.Method) {
				session = m.store.Ephemeral()
				defer session.Close()
			} else {
				session = m.store.Create()
				m.SetSessionCookie(w, session.ID())
			}
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает подписанный cookie сессии.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, id string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    m.sign(id),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (m *SessionMiddleware) sign(id string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(id))
	return id + "." + hex.EncodeToString(mac.Sum(nil))
}

func (m *SessionMiddleware) parseCookie(value string) (string, bool) {
	id, signature, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}

	_, expected, _ := strings.Cut(m.sign(id), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return id, true
}

// SessionFromContext извлекает сессию покупателя из контекста запроса.
func SessionFromContext(ctx context.Context) (*storefront.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*storefront.Session)
	return s, ok && s != nil
}

// WithSession возвращает контекст с указанной сессией.
func WithSession(ctx context.Context, s *storefront.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}
