package engineerhandler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"labourpanel/internal/domain/engineer"
	"labourpanel/internal/domain/validation"
	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/imaging"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
	"labourpanel/internal/transport/http/shared"
)

const multipartMemory = 1 << 20

type Handler struct {
	Workspaces shared.Workspaces
	MaxImage   int
}

func NewHandler(workspaces shared.Workspaces) *Handler {
	return &Handler{Workspaces: workspaces, MaxImage: imaging.MaxImageBytes}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/engineers", func(r chi.Router) {
		r.Post("/{engineerID}/edit", h.handleOpenEdit)
		r.Route("/form", func(r chi.Router) {
			r.Post("/", h.handleOpenCreate)
			r.Get("/", h.handleSnapshot)
			r.Patch("/fields", h.handleSetFields)
			r.Post("/visibility/{field}", h.handleToggleVisibility)
			r.Put("/image", h.handleSetImage)
			r.Delete("/image", h.handleRemoveImage)
			r.Post("/reset", h.handleReset)
			r.Post("/submit", h.handleSubmit)
		})
	})
}

func (h *Handler) handleOpenCreate(w http.ResponseWriter, r *http.Request) {
	h.open(w, r, workspace.ModalEngineerAdd, "")
}

func (h *Handler) handleOpenEdit(w http.ResponseWriter, r *http.Request) {
	h.open(w, r, workspace.ModalEngineerEdit, chi.URLParam(r, "engineerID"))
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request, kind workspace.ModalKind, target string) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	if _, err := ws.Open(r.Context(), kind, target); err != nil {
		shared.FailError(w, r, err)
		return
	}
	c, err := ws.Engineer()
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Created(w, c.Form().Snapshot(), middleware.GetRequestID(r.Context()))
}

// form resolves the engineer form behind the open engineer dialog.
func (h *Handler) form(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, *engineer.Form, bool) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return nil, nil, false
	}
	c, err := ws.Engineer()
	if err != nil {
		shared.FailError(w, r, err)
		return nil, nil, false
	}
	return ws, c.Form(), true
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	_, form, ok := h.form(w, r)
	if !ok {
		return
	}
	api.Success(w, form.Snapshot(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetFields(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := shared.DecodeJSON(r, &fields); err != nil {
		shared.FailDecode(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	_, form, ok := h.form(w, r)
	if !ok {
		return
	}

	if err := form.SetFields(fields); err != nil {
		var unknown *engineer.UnknownFieldError
		if errors.As(err, &unknown) {
			api.FailWithDetails(w, http.StatusBadRequest, "unknown_field", "unknown form field", map[string]any{"field": unknown.Field}, middleware.GetRequestID(r.Context()))
			return
		}
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, form.Snapshot(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	_, form, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := form.TogglePasswordVisibility(chi.URLParam(r, "field")); err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, form.Snapshot(), middleware.GetRequestID(r.Context()))
}

// handleSetImage holds the uploaded image at once. The preview follows
// asynchronously unless the caller asks to wait for it with ?wait=true.
func (h *Handler) handleSetImage(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		shared.FailDecode(w, reqID, err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		shared.FailValidation(w, reqID, validation.FieldErrors{engineer.FieldImage: "Please choose an image"})
		return
	}
	defer file.Close()

	// one byte past the cap is enough for the capturer to refuse it
	data, err := io.ReadAll(io.LimitReader(file, int64(h.MaxImage)+1))
	if err != nil {
		shared.FailDecode(w, reqID, err)
		return
	}

	_, form, ok := h.form(w, r)
	if !ok {
		return
	}
	settled, err := form.SetImage(header.Filename, data)
	if err != nil {
		if errs := form.Snapshot().Errors; errs.Has(engineer.FieldImage) {
			shared.FailValidation(w, reqID, validation.FieldErrors{engineer.FieldImage: errs[engineer.FieldImage]})
			return
		}
		shared.FailError(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		select {
		case <-settled:
		case <-r.Context().Done():
		}
	}
	api.Success(w, form.Snapshot(), reqID)
}

func (h *Handler) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	_, form, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := form.RemoveImage(); err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, form.Snapshot(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	_, form, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := form.Reset(); err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, form.Snapshot(), middleware.GetRequestID(r.Context()))
}

type submitResponse struct {
	Outcome engineer.Outcome   `json:"outcome"`
	Form    *engineer.Snapshot `json:"form,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	c, err := ws.Engineer()
	if err != nil {
		shared.FailError(w, r, err)
		return
	}

	out, err := ws.SubmitEngineer(shared.Detached(r))
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	switch out.State {
	case engineer.StateFailed:
		api.FailWithDetails(w, http.StatusBadGateway, "submit_failed", out.Notification, map[string]any{"outcome": out}, reqID)
		return
	case engineer.StateSuccess:
	default:
		if !out.Errors.Empty() {
			shared.FailValidation(w, reqID, out.Errors)
			return
		}
	}

	resp := submitResponse{Outcome: out}
	if !out.CloseModal {
		snap := c.Form().Snapshot()
		resp.Form = &snap
	}
	api.Success(w, resp, reqID)
}
