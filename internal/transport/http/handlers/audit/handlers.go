package audithandler

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"labourpanel/internal/domain/audit"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
	"labourpanel/internal/transport/http/shared"
)

const exportLimit = 10000

// Lister reads the audit trail.
type Lister interface {
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Entry, error)
}

type Handler struct {
	Service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", h.handleListEvents)
		r.Get("/events/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{Action: q.Get("action"), EntityType: q.Get("entityType"), Actor: q.Get("actor")}
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) bool {
	if h.Service == nil {
		api.Fail(w, http.StatusServiceUnavailable, "audit_unavailable", "audit trail is not configured", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	page := shared.ParsePage(r, 100, 500)
	events, err := h.Service.List(r.Context(), filterFrom(r), page.Limit, page.Offset)
	if err != nil {
		slog.WarnContext(r.Context(), "audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	if events == nil {
		events = []audit.Entry{}
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	events, err := h.Service.List(r.Context(), filterFrom(r), exportLimit, 0)
	if err != nil {
		slog.WarnContext(r.Context(), "audit export failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	body, err := eventsCSV(events)
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Attachment(w, "text/csv; charset=utf-8", "panel-audit-"+time.Now().UTC().Format("20060102")+".csv", body)
}

var csvHeader = []string{"created_at", "actor", "action", "entity_type", "entity_id", "session_id", "request_id", "id"}

func eventsCSV(events []audit.Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, evt := range events {
		row := []string{
			evt.CreatedAt.UTC().Format(time.RFC3339),
			evt.Actor,
			evt.Action,
			evt.EntityType,
			evt.EntityID,
			evt.SessionID,
			evt.RequestID,
			evt.ID,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}
