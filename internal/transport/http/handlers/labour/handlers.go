package labourhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"labourpanel/internal/domain/labour"
	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/transport/http/api"
	"labourpanel/internal/transport/http/middleware"
	"labourpanel/internal/transport/http/shared"
)

// ActionObserver counts labour actions by result.
type ActionObserver interface {
	ObserveLabourAction(action, result string)
}

type Handler struct {
	Workspaces shared.Workspaces
	Currency   string
	Observer   ActionObserver
	Now        func() time.Time
}

func NewHandler(workspaces shared.Workspaces, currency string, observer ActionObserver) *Handler {
	return &Handler{Workspaces: workspaces, Currency: currency, Observer: observer, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/labourers", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/export.xlsx", h.handleExport)
		r.Route("/{labourerID}", func(r chi.Router) {
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleRemove)
			r.Post("/payments", h.handleAddPayment)
			r.Get("/statement.pdf", h.handleStatement)
		})
	})
}

type mutationResponse struct {
	Outcome  labour.Outcome  `json:"outcome"`
	Snapshot labour.Snapshot `json:"snapshot"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	vm := ws.Labour()

	if r.URL.Query().Get("cached") == "true" {
		if snap, hit := vm.Peek(r.Context()); hit {
			api.Success(w, snap, middleware.GetRequestID(r.Context()))
			return
		}
	}

	snap, err := vm.Load(r.Context())
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	api.Success(w, snap, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft labour.Draft
	if err := shared.DecodeJSON(r, &draft); err != nil {
		shared.FailDecode(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	out, err := ws.Labour().Create(shared.Detached(r), draft)
	h.respond(w, r, ws, "create", workspace.ModalLabourAdd, out, err)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var draft labour.Draft
	if err := shared.DecodeJSON(r, &draft); err != nil {
		shared.FailDecode(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	out, err := ws.Labour().Update(shared.Detached(r), chi.URLParam(r, "labourerID"), draft)
	h.respond(w, r, ws, "update", workspace.ModalLabourEdit, out, err)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	out, err := ws.Labour().Remove(shared.Detached(r), chi.URLParam(r, "labourerID"), labour.Confirmation(confirmed))
	h.respond(w, r, ws, "delete", "", out, err)
}

type paymentRequest struct {
	Amount json.RawMessage `json:"amount"`
	Date   string          `json:"date"`
}

// amountText accepts the amount as a JSON number or a string, the way a
// number input may send it.
func (p paymentRequest) amountText() string {
	raw := bytes.TrimSpace(p.Amount)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

func (h *Handler) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.FailDecode(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	draft := labour.PaymentDraft{Amount: req.amountText(), Date: req.Date}
	out, err := ws.Labour().AddPayment(shared.Detached(r), chi.URLParam(r, "labourerID"), draft)
	h.respond(w, r, ws, "add_payment", workspace.ModalPayment, out, err)
}

// respond turns a view-model outcome into a response. On success the
// dialog that issued the action is closed.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, action string, modal workspace.ModalKind, out labour.Outcome, err error) {
	reqID := middleware.GetRequestID(r.Context())
	switch {
	case err != nil:
		h.observe(action, "failed")
		shared.FailError(w, r, err)
	case !out.Errors.Empty():
		h.observe(action, "invalid")
		shared.FailValidation(w, reqID, out.Errors)
	case out.Aborted:
		h.observe(action, "aborted")
		api.FailWithDetails(w, http.StatusConflict, "confirmation_required", out.Prompt, map[string]any{"prompt": out.Prompt}, reqID)
	default:
		h.observe(action, "success")
		if modal != "" {
			ws.CloseIf(modal)
		}
		api.Success(w, mutationResponse{Outcome: out, Snapshot: ws.Labour().Snapshot()}, reqID)
	}
}

func (h *Handler) observe(action, result string) {
	if h.Observer != nil {
		h.Observer.ObserveLabourAction(action, result)
	}
}

// current returns the fetched snapshot, loading it first when this
// workspace has not fetched one yet.
func current(r *http.Request, vm *labour.ViewModel) (labour.Snapshot, error) {
	snap := vm.Snapshot()
	if !snap.LoadedAt.IsZero() {
		return snap, nil
	}
	return vm.Load(r.Context())
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	snap, err := current(r, ws.Labour())
	if err != nil {
		shared.FailError(w, r, err)
		return
	}
	id := chi.URLParam(r, "labourerID")
	l, found := snap.Find(id)
	if !found {
		api.Fail(w, http.StatusNotFound, "labourer_not_found", "Labourer not found", middleware.GetRequestID(r.Context()))
		return
	}

	var buf bytes.Buffer
	if err := labour.WriteStatement(&buf, l, h.Currency, h.Now()); err != nil {
		shared.FailError(w, r, fmt.Errorf("render statement: %w", err))
		return
	}
	api.Attachment(w, "application/pdf", "statement-"+fileSafe(l.Name)+".pdf", buf.Bytes())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.Workspaces.Resolve(w, r)
	if !ok {
		return
	}
	snap, err := current(r, ws.Labour())
	if err != nil {
		shared.FailError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := labour.WriteWorkbook(&buf, snap); err != nil {
		shared.FailError(w, r, fmt.Errorf("render workbook: %w", err))
		return
	}
	api.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "labourers-"+h.Now().Format("2006-01-02")+".xlsx", buf.Bytes())
}

func fileSafe(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
	if safe == "" {
		return "labourer"
	}
	return safe
}
