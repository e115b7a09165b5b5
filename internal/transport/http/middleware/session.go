package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"labourpanel/internal/platform/crypto"
	"labourpanel/internal/requestctx"
)

const (
	SessionCookie    = "panel_session"
	CredentialCookie = "panel_credential"

	sessionPurpose    = "panel-session"
	credentialPurpose = "panel-credential"
)

type ctxKey string

const ctxKeyCredential ctxKey = "credential"

// Sessions issues the sealed session id cookie and unseals the bearer
// token the browser handed over earlier.
type Sessions struct {
	Sealer *crypto.Sealer
	Secure bool
	MaxAge time.Duration
	// Subject names the actor behind a token for the audit trail.
	Subject func(token string) string
}

func (s Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.readSession(r)
		if !ok {
			sessionID = uuid.NewString()
			if err := s.writeCookie(w, SessionCookie, sessionID, sessionPurpose); err != nil {
				slog.WarnContext(r.Context(), "seal session cookie failed", "err", err)
			}
		}
		ctx := requestctx.WithSessionID(r.Context(), sessionID)

		actor := sessionID
		if token, ok := s.readCredential(r); ok {
			ctx = WithCredential(ctx, token)
			if s.Subject != nil {
				if subject := s.Subject(token); subject != "" {
					actor = subject
				}
			}
		}
		ctx = requestctx.WithActor(ctx, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s Sessions) readSession(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	id, err := s.Sealer.OpenString(cookie.Value, sessionPurpose)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func (s Sessions) readCredential(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CredentialCookie)
	if err != nil {
		return "", false
	}
	token, err := s.Sealer.OpenString(cookie.Value, credentialPurpose)
	if err != nil || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// StoreCredential seals token into the credential cookie.
func (s Sessions) StoreCredential(w http.ResponseWriter, token string) error {
	return s.writeCookie(w, CredentialCookie, token, credentialPurpose)
}

// Clear expires both cookies.
func (s Sessions) Clear(w http.ResponseWriter) {
	for _, name := range []string{SessionCookie, CredentialCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (s Sessions) writeCookie(w http.ResponseWriter, name, value, purpose string) error {
	sealed, err := s.Sealer.SealString(value, purpose)
	if err != nil {
		return err
	}
	cookie := &http.Cookie{
		Name:     name,
		Value:    sealed,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.MaxAge > 0 {
		cookie.MaxAge = int(s.MaxAge.Seconds())
	}
	http.SetCookie(w, cookie)
	return nil
}

func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyCredential, token)
}

// GetCredential returns the bearer token unsealed for this request.
func GetCredential(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(ctxKeyCredential).(string)
	return token, ok && token != ""
}
