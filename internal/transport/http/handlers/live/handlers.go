package livehandler

import (
	"net/http"

	"labourpanel/internal/requestctx"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
)

// Server upgrades a request into a live listener of key.
type Server interface {
	Serve(w http.ResponseWriter, r *http.Request, key string)
}

// Handler streams every fresh labour snapshot of the caller's session.
type Handler struct {
	Hub Server
}

func NewHandler(hub Server) *Handler {
	return &Handler{Hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := requestctx.GetSessionID(r.Context())
	if sessionID == "" {
		api.Fail(w, http.StatusUnauthorized, "session_missing", "session cookie required", middleware.GetRequestID(r.Context()))
		return
	}
	h.Hub.Serve(w, r, sessionID)
}
