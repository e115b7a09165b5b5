package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"labourpanel/internal/domain/audit"
	"labourpanel/internal/domain/engineer"
	"labourpanel/internal/domain/labour"
	"labourpanel/internal/platform/imaging"
)

var (
	ErrNoModal       = errors.New("no matching modal is open")
	ErrUnknownModal  = errors.New("unknown modal kind")
	ErrMissingTarget = errors.New("modal needs a target id")
)

type ModalKind string

const (
	ModalLabourAdd    ModalKind = "labour-add"
	ModalLabourEdit   ModalKind = "labour-edit"
	ModalPayment      ModalKind = "payment"
	ModalEngineerAdd  ModalKind = "engineer-add"
	ModalEngineerEdit ModalKind = "engineer-edit"
)

func ParseModalKind(raw string) (ModalKind, error) {
	switch kind := ModalKind(strings.TrimSpace(raw)); kind {
	case ModalLabourAdd, ModalLabourEdit, ModalPayment, ModalEngineerAdd, ModalEngineerEdit:
		return kind, nil
	default:
		return "", ErrUnknownModal
	}
}

func (k ModalKind) needsTarget() bool {
	return k == ModalLabourEdit || k == ModalPayment || k == ModalEngineerEdit
}

func (k ModalKind) engineer() bool {
	return k == ModalEngineerAdd || k == ModalEngineerEdit
}

// Modal is the single open dialog of a workspace.
type Modal struct {
	Kind   ModalKind `json:"kind"`
	Target string    `json:"target,omitempty"`
}

// Backend is everything a workspace calls on the REST API.
type Backend interface {
	labour.Collaborator
	engineer.Collaborator
	GetEngineer(ctx context.Context, id string) (engineer.Engineer, error)
}

// Deps are shared by every workspace of a registry.
type Deps struct {
	Capturer  *imaging.Capturer
	Audit     audit.Recorder
	Observer  engineer.Observer
	Store     labour.SnapshotStore
	Publisher labour.Publisher
	Logger    *slog.Logger
}

// Workspace is the state one browser session owns: the exclusive modal
// slot, the engineer form behind an engineer modal and the labour list.
type Workspace struct {
	id       string
	scope    string
	backend  Backend
	deps     Deps
	logger   *slog.Logger
	labour   *labour.ViewModel
	lastSeen time.Time

	mu          sync.Mutex
	modal       *Modal
	coordinator *engineer.Coordinator
	disposed    bool
}

// New builds a workspace. scope keys the shared snapshot cache; the
// session id keys live listeners.
func New(id, scope string, backend Backend, deps Deps) *Workspace {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", shortID(id))
	vm := labour.NewViewModel(backend, labour.Options{
		Store:     deps.Store,
		Publisher: deps.Publisher,
		Audit:     deps.Audit,
		Logger:    logger,
		Key:       scope,
		Topic:     id,
	})
	return &Workspace{
		id:       id,
		scope:    scope,
		backend:  backend,
		deps:     deps,
		logger:   logger,
		labour:   vm,
		lastSeen: time.Now(),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (w *Workspace) ID() string {
	return w.id
}

func (w *Workspace) Labour() *labour.ViewModel {
	return w.labour
}

// Modal returns the open modal, if any.
func (w *Workspace) Modal() (Modal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.modal == nil {
		return Modal{}, false
	}
	return *w.modal, true
}

// Open claims the modal slot for kind, closing whatever was open. Engineer
// modals get a fresh form; the edit form is hydrated from the backend.
func (w *Workspace) Open(ctx context.Context, kind ModalKind, target string) (Modal, error) {
	target = strings.TrimSpace(target)
	if kind.needsTarget() && target == "" {
		return Modal{}, ErrMissingTarget
	}

	var coordinator *engineer.Coordinator
	switch kind {
	case ModalEngineerAdd:
		form := engineer.NewCreateForm(w.deps.Capturer, w.logger)
		coordinator = engineer.NewCoordinator(form, w.backend, w.deps.Audit, w.deps.Observer, w.logger)
	case ModalEngineerEdit:
		rec, err := w.backend.GetEngineer(ctx, target)
		if err != nil {
			return Modal{}, fmt.Errorf("load engineer: %w", err)
		}
		form := engineer.NewEditForm(rec, w.deps.Capturer, w.logger)
		coordinator = engineer.NewCoordinator(form, w.backend, w.deps.Audit, w.deps.Observer, w.logger)
	case ModalLabourAdd, ModalLabourEdit, ModalPayment:
	default:
		return Modal{}, ErrUnknownModal
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		if coordinator != nil {
			coordinator.Form().Close()
		}
		return Modal{}, labour.ErrDisposed
	}
	w.closeLocked()
	w.modal = &Modal{Kind: kind, Target: target}
	w.coordinator = coordinator
	return *w.modal, nil
}

// Close releases the modal slot.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

// CloseIf releases the slot only when kind is the open modal.
func (w *Workspace) CloseIf(kind ModalKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.modal != nil && w.modal.Kind == kind {
		w.closeLocked()
	}
}

func (w *Workspace) closeLocked() {
	if w.coordinator != nil {
		w.coordinator.Form().Close()
		w.coordinator = nil
	}
	w.modal = nil
}

// Engineer returns the coordinator behind the open engineer modal.
func (w *Workspace) Engineer() (*engineer.Coordinator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.modal == nil || !w.modal.Kind.engineer() || w.coordinator == nil {
		return nil, ErrNoModal
	}
	return w.coordinator, nil
}

// RequireModal checks that kind is open and, for targeted modals, that it
// targets target.
func (w *Workspace) RequireModal(kind ModalKind, target string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.modal == nil || w.modal.Kind != kind {
		return ErrNoModal
	}
	if kind.needsTarget() && w.modal.Target != strings.TrimSpace(target) {
		return ErrNoModal
	}
	return nil
}

// SubmitEngineer runs the engineer coordinator and releases the modal when
// an edit succeeds.
func (w *Workspace) SubmitEngineer(ctx context.Context) (engineer.Outcome, error) {
	c, err := w.Engineer()
	if err != nil {
		return engineer.Outcome{}, err
	}
	out, err := c.Submit(ctx)
	if err != nil {
		return out, err
	}
	if out.CloseModal {
		w.mu.Lock()
		if w.coordinator == c {
			w.closeLocked()
		}
		w.mu.Unlock()
	}
	return out, nil
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = now
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Dispose turns the workspace off. Results of in-flight work are dropped.
func (w *Workspace) Dispose() {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return
	}
	w.disposed = true
	w.closeLocked()
	w.mu.Unlock()

	w.labour.Dispose()
	if closer, ok := w.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			w.logger.Warn("close backend client failed", "err", err)
		}
	}
}
