package dashboardhandler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"labourpanel/internal/domain/labour"
	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/apiclient"
	"labourpanel/internal/requestctx"
	"labourpanel/internal/transport/http/shared"
	"labourpanel/web"
)

type page struct {
	Authenticated bool
	Subject       string
	Currency      string
	Snapshot      labour.Snapshot
	Cached        bool
	Modal         *workspace.Modal
}

// Handler renders the dashboard. The first paint of a fresh workspace uses
// the cached snapshot when there is one; the page then asks for a reload.
type Handler struct {
	Workspaces shared.Workspaces
	Currency   string
	templates  *template.Template
}

func NewHandler(workspaces shared.Workspaces, currency string) (*Handler, error) {
	templates, err := template.ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{Workspaces: workspaces, Currency: currency, templates: templates}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := page{Currency: h.Currency}

	token, err := h.Workspaces.Credential(r)
	if err == nil {
		data.Authenticated = true
		data.Subject = apiclient.Subject(token)
		ws, err := h.Workspaces.Registry.Ensure(requestctx.GetSessionID(r.Context()), token)
		if err != nil {
			shared.FailError(w, r, err)
			return
		}
		data.Snapshot, data.Cached = h.firstPaint(r, ws.Labour())
		if modal, open := ws.Modal(); open {
			data.Modal = &modal
		}
	}

	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		slog.ErrorContext(r.Context(), "render dashboard failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) firstPaint(r *http.Request, vm *labour.ViewModel) (labour.Snapshot, bool) {
	if snap := vm.Snapshot(); !snap.LoadedAt.IsZero() {
		return snap, false
	}
	if cached, ok := vm.Peek(r.Context()); ok {
		return cached, true
	}
	if snap, err := vm.Load(r.Context()); err == nil {
		return snap, false
	}
	return vm.Snapshot(), false
}
