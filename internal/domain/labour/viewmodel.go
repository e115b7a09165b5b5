package labour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"labourpanel/internal/domain/audit"
	"labourpanel/internal/domain/validation"
)

var (
	ErrDisposed  = errors.New("labour view is closed")
	ErrMissingID = errors.New("labourer id is required")
)

// Collaborator is the labour half of the backend.
type Collaborator interface {
	ListLabourers(ctx context.Context) ([]Labourer, error)
	CreateLabourer(ctx context.Context, draft Draft) (Labourer, error)
	UpdateLabourer(ctx context.Context, id string, draft Draft) error
	DeleteLabourer(ctx context.Context, id string) error
	AddPayment(ctx context.Context, labourerID string, payment NewPayment) error
}

// SnapshotStore keeps the last fetched snapshot for first paint.
type SnapshotStore interface {
	Put(ctx context.Context, key string, snap Snapshot) error
	Get(ctx context.Context, key string) (Snapshot, bool, error)
}

// Publisher fans a fresh snapshot out to live listeners of a key.
type Publisher interface {
	Publish(key string, snap Snapshot)
}

// Confirmer gates destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Confirmation is a Confirmer whose answer is already known.
type Confirmation bool

func (c Confirmation) Confirm(context.Context, string) bool {
	return bool(c)
}

// Outcome describes a finished action. Aborted means the user declined a
// confirmation and nothing was sent. Stale means the mutation succeeded but
// the follow-up reload did not.
type Outcome struct {
	Message string                 `json:"message,omitempty"`
	Aborted bool                   `json:"aborted,omitempty"`
	Prompt  string                 `json:"prompt,omitempty"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
	Stale   bool                   `json:"stale,omitempty"`
}

type Options struct {
	Store     SnapshotStore
	Publisher Publisher
	Audit     audit.Recorder
	Logger    *slog.Logger
	// Key scopes the cache entry; Topic scopes live listeners and
	// defaults to Key.
	Key   string
	Topic string
	Now   func() time.Time
}

type ViewModel struct {
	api  Collaborator
	opts Options

	mu       sync.Mutex
	snap     Snapshot
	inflight int
	alive    bool

	// completed numbers successful loads in the order they finished
	completed uint64

	shareMu sync.Mutex
	shared  uint64
}

func NewViewModel(api Collaborator, opts Options) *ViewModel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ViewModel{
		api:   api,
		opts:  opts,
		snap:  Snapshot{Labourers: []Labourer{}},
		alive: true,
	}
}

func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.snap.clone()
}

// Load fetches the full collection. Whichever load completes last wins;
// results arriving after Dispose are dropped.
func (vm *ViewModel) Load(ctx context.Context) (Snapshot, error) {
	vm.mu.Lock()
	if !vm.alive {
		vm.mu.Unlock()
		return Snapshot{}, ErrDisposed
	}
	vm.inflight++
	vm.snap.Loading = true
	vm.mu.Unlock()

	labourers, err := vm.api.ListLabourers(ctx)

	vm.mu.Lock()
	vm.inflight--
	if !vm.alive {
		vm.mu.Unlock()
		vm.opts.Logger.Debug("labour load dropped", "reason", "disposed")
		return Snapshot{}, ErrDisposed
	}
	vm.snap.Loading = vm.inflight > 0
	if err != nil {
		vm.snap.Error = err.Error()
		snap := vm.snap.clone()
		vm.mu.Unlock()
		vm.opts.Logger.WarnContext(ctx, "labour load failed", "err", err)
		return snap, err
	}
	if labourers == nil {
		labourers = []Labourer{}
	}
	vm.snap.Labourers = labourers
	vm.snap.LoadedAt = vm.opts.Now().UTC()
	vm.snap.Error = ""
	vm.completed++
	seq := vm.completed
	snap := vm.snap.clone()
	vm.mu.Unlock()

	vm.share(ctx, seq, snap)
	return snap, nil
}

// share writes snap to the cache and live listeners unless a load that
// finished later has already been shared.
func (vm *ViewModel) share(ctx context.Context, seq uint64, snap Snapshot) {
	vm.shareMu.Lock()
	defer vm.shareMu.Unlock()
	if seq <= vm.shared {
		vm.opts.Logger.Debug("labour snapshot not shared", "reason", "superseded")
		return
	}
	vm.shared = seq
	if vm.opts.Store != nil {
		if err := vm.opts.Store.Put(ctx, vm.opts.Key, snap); err != nil {
			vm.opts.Logger.WarnContext(ctx, "snapshot cache write failed", "err", err)
		}
	}
	if vm.opts.Publisher != nil {
		topic := vm.opts.Topic
		if topic == "" {
			topic = vm.opts.Key
		}
		vm.opts.Publisher.Publish(topic, snap)
	}
}

// Peek returns the cached snapshot without calling the backend. It never
// replaces the view-model's own snapshot.
func (vm *ViewModel) Peek(ctx context.Context) (Snapshot, bool) {
	if vm.opts.Store == nil {
		return Snapshot{}, false
	}
	snap, ok, err := vm.opts.Store.Get(ctx, vm.opts.Key)
	if err != nil {
		vm.opts.Logger.WarnContext(ctx, "snapshot cache read failed", "err", err)
		return Snapshot{}, false
	}
	return snap, ok
}

func (vm *ViewModel) checkAlive() error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.alive {
		return ErrDisposed
	}
	return nil
}

func (vm *ViewModel) Create(ctx context.Context, draft Draft) (Outcome, error) {
	if err := vm.checkAlive(); err != nil {
		return Outcome{}, err
	}
	if errs := validateDraft(draft); !errs.Empty() {
		return Outcome{Errors: errs}, nil
	}
	created, err := vm.api.CreateLabourer(ctx, trimDraft(draft))
	if err != nil {
		return Outcome{}, fmt.Errorf("create labourer: %w", err)
	}
	vm.record(ctx, audit.ActionCreate, created.ID, trimDraft(draft))
	return vm.reload(ctx, Outcome{Message: "Labourer added successfully"}), nil
}

func (vm *ViewModel) Update(ctx context.Context, id string, draft Draft) (Outcome, error) {
	if err := vm.checkAlive(); err != nil {
		return Outcome{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Outcome{}, ErrMissingID
	}
	if errs := validateDraft(draft); !errs.Empty() {
		return Outcome{Errors: errs}, nil
	}
	if err := vm.api.UpdateLabourer(ctx, id, trimDraft(draft)); err != nil {
		return Outcome{}, fmt.Errorf("update labourer: %w", err)
	}
	vm.record(ctx, audit.ActionUpdate, id, trimDraft(draft))
	return vm.reload(ctx, Outcome{Message: "Labourer updated successfully"}), nil
}

// Remove deletes a labourer after confirm agrees. The backend removes the
// labourer's payments with it.
func (vm *ViewModel) Remove(ctx context.Context, id string, confirm Confirmer) (Outcome, error) {
	if err := vm.checkAlive(); err != nil {
		return Outcome{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Outcome{}, ErrMissingID
	}

	prompt := vm.deletePrompt(id)
	if confirm == nil || !confirm.Confirm(ctx, prompt) {
		return Outcome{Aborted: true, Prompt: prompt}, nil
	}

	if err := vm.api.DeleteLabourer(ctx, id); err != nil {
		return Outcome{}, fmt.Errorf("delete labourer: %w", err)
	}
	vm.record(ctx, audit.ActionDelete, id, nil)
	return vm.reload(ctx, Outcome{Message: "Labourer and all their payment records deleted successfully"}), nil
}

func (vm *ViewModel) deletePrompt(id string) string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	name := "this labourer"
	if l, ok := vm.snap.Find(id); ok && l.Name != "" {
		name = l.Name
	}
	return fmt.Sprintf("Delete %s? All of their payment records will also be deleted.", name)
}

func (vm *ViewModel) AddPayment(ctx context.Context, labourerID string, draft PaymentDraft) (Outcome, error) {
	if err := vm.checkAlive(); err != nil {
		return Outcome{}, err
	}
	labourerID = strings.TrimSpace(labourerID)
	if labourerID == "" {
		return Outcome{}, ErrMissingID
	}
	payment, errs := validatePayment(draft, vm.opts.Now())
	if !errs.Empty() {
		return Outcome{Errors: errs}, nil
	}
	if err := vm.api.AddPayment(ctx, labourerID, payment); err != nil {
		return Outcome{}, fmt.Errorf("add payment: %w", err)
	}
	vm.record(ctx, audit.ActionAddPayment, labourerID, payment)
	return vm.reload(ctx, Outcome{Message: "Payment added successfully"}), nil
}

// reload runs the single Load that follows every successful mutation.
func (vm *ViewModel) reload(ctx context.Context, out Outcome) Outcome {
	if _, err := vm.Load(ctx); err != nil && !errors.Is(err, ErrDisposed) {
		out.Stale = true
	}
	return out
}

func (vm *ViewModel) record(ctx context.Context, action, id string, after any) {
	if vm.opts.Audit == nil {
		return
	}
	if err := vm.opts.Audit.Record(ctx, action, audit.EntityLabourer, id, after); err != nil {
		vm.opts.Logger.WarnContext(ctx, "audit record failed", "err", err)
	}
}

// Dispose marks the view-model dead. It is safe to call more than once.
func (vm *ViewModel) Dispose() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.alive = false
}

func (vm *ViewModel) Alive() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.alive
}
