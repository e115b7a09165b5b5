package shared

import (
	"context"
	"net/http"
	"time"

	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/apiclient"
	"labourpanel/internal/requestctx"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
)

// Workspaces finds the workspace behind a request.
type Workspaces struct {
	Registry *workspace.Registry
	// Fallback is used when the session has no credential of its own.
	Fallback string
	Now      func() time.Time
}

// Credential returns the bearer token the request acts with.
func (s Workspaces) Credential(r *http.Request) (string, error) {
	token, ok := middleware.GetCredential(r.Context())
	if !ok {
		token = s.Fallback
	}
	if token == "" {
		return "", apiclient.ErrCredentialMissing
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := apiclient.CheckToken(token, now()); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve writes the failure itself and reports false when the request
// cannot be served.
func (s Workspaces) Resolve(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	sessionID := requestctx.GetSessionID(r.Context())
	if sessionID == "" {
		api.Fail(w, http.StatusUnauthorized, "session_missing", "session cookie required", requestID(r))
		return nil, false
	}
	token, err := s.Credential(r)
	if err != nil {
		FailError(w, r, err)
		return nil, false
	}
	ws, err := s.Registry.Ensure(sessionID, token)
	if err != nil {
		FailError(w, r, err)
		return nil, false
	}
	return ws, true
}

func requestID(r *http.Request) string {
	return requestctx.GetRequestID(r.Context())
}

// Detached returns the request context without its cancellation. Backend
// mutations run under it so a client disconnect leaves them unobserved
// rather than aborted; the API client timeout still bounds them.
func Detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
