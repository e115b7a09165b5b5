package sessionhandler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/apiclient"
	"labourpanel/internal/requestctx"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
	"labourpanel/internal/transport/http/shared"
)

// Dropper disconnects the live listeners of a session.
type Dropper interface {
	Drop(key string)
}

type Handler struct {
	Sessions   middleware.Sessions
	Workspaces shared.Workspaces
	Live       Dropper
	Now        func() time.Time
}

func NewHandler(sessions middleware.Sessions, workspaces shared.Workspaces, live Dropper) *Handler {
	return &Handler{Sessions: sessions, Workspaces: workspaces, Live: live, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleEnd)
		r.Put("/credential", h.handleStoreCredential)
	})
	r.Route("/modals", func(r chi.Router) {
		r.Get("/", h.handleGetModal)
		r.Delete("/", h.handleCloseModal)
		r.Post("/{kind}", h.handleOpenModal)
	})
}

type sessionView struct {
	Authenticated bool             `json:"authenticated"`
	Subject       string           `json:"subject,omitempty"`
	Modal         *workspace.Modal `json:"modal,omitempty"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	view := sessionView{}
	if token, err := h.Workspaces.Credential(r); err == nil {
		view.Authenticated = true
		view.Subject = apiclient.Subject(token)
		if ws, err := h.Workspaces.Registry.Get(requestctx.GetSessionID(r.Context())); err == nil {
			if modal, open := ws.Modal(); open {
				view.Modal = &modal
			}
		}
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

type credentialRequest struct {
	Token string `json:"token"`
}

// handleStoreCredential seals the caller's bearer token into a cookie. The
// session's workspace is rebuilt for the new credential on its next use.
func (h *Handler) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var req credentialRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.FailDecode(w, reqID, err)
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(req.Token), "Bearer "))
	if token == "" {
		shared.FailError(w, r, apiclient.ErrCredentialMissing)
		return
	}
	if err := apiclient.CheckToken(token, h.Now()); err != nil {
		shared.FailError(w, r, err)
		return
	}
	if err := h.Sessions.StoreCredential(w, token); err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, sessionView{Authenticated: true, Subject: apiclient.Subject(token)}, reqID)
}

// handleEnd disposes the workspace, disconnects live listeners and drops
// both cookies.
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := requestctx.GetSessionID(r.Context())
	if sessionID != "" {
		h.Workspaces.Registry.Remove(sessionID)
		if h.Live != nil {
			h.Live.Drop(sessionID)
		}
	}
	h.Sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetModal(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	var modal *workspace.Modal
	if m, open := ws.Modal(); open {
		modal = &m
	}
	api.Success(w, map[string]any{"modal": modal}, middleware.GetRequestID(r.Context()))
}

type openRequest struct {
	Target string `json:"target"`
}

func (h *Handler) handleOpenModal(w http.ResponseWriter, r *http.Request) {
	kind, err := workspace.ParseModalKind(chi.URLParam(r, "kind"))
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	req := openRequest{Target: r.URL.Query().Get("target")}
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.FailDecode(w, middleware.GetRequestID(r.Context()), err)
			return
		}
	}
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	modal, err := ws.Open(r.Context(), kind, req.Target)
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"modal": modal}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCloseModal(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	ws.Close()
	w.WriteHeader(http.StatusNoContent)
}
