package workspace

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrNoSession = errors.New("no workspace for session")

// Factory builds the backend client for one credential.
type Factory func(credential string) (Backend, error)

type RegistryOptions struct {
	Factory Factory
	Deps    Deps
	// Scope maps a credential to the shared cache key.
	Scope       func(credential string) string
	IdleTimeout time.Duration
	// OnChange is told the workspace count after every change.
	OnChange func(n int)
	Logger   *slog.Logger
	Now      func() time.Time
}

type entry struct {
	ws         *Workspace
	credential string
}

// Registry maps session ids to workspaces.
type Registry struct {
	opts RegistryOptions

	mu    sync.Mutex
	items map[string]entry
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Scope == nil {
		opts.Scope = func(string) string { return "" }
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{opts: opts, items: make(map[string]entry)}
}

// Get returns the live workspace of sessionID and marks it used.
func (r *Registry) Get(sessionID string) (*Workspace, error) {
	r.mu.Lock()
	e, ok := r.items[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}
	e.ws.touch(r.opts.Now())
	return e.ws, nil
}

// Ensure returns the workspace of sessionID, building one when there is
// none or when the credential changed. A replaced workspace is disposed.
func (r *Registry) Ensure(sessionID, credential string) (*Workspace, error) {
	r.mu.Lock()
	if e, ok := r.items[sessionID]; ok && subtle.ConstantTimeCompare([]byte(e.credential), []byte(credential)) == 1 {
		r.mu.Unlock()
		e.ws.touch(r.opts.Now())
		return e.ws, nil
	}
	r.mu.Unlock()

	backend, err := r.opts.Factory(credential)
	if err != nil {
		return nil, err
	}
	ws := New(sessionID, r.opts.Scope(credential), backend, r.opts.Deps)
	ws.touch(r.opts.Now())

	r.mu.Lock()
	old, replaced := r.items[sessionID]
	r.items[sessionID] = entry{ws: ws, credential: credential}
	n := len(r.items)
	r.mu.Unlock()

	if replaced {
		old.ws.Dispose()
		r.opts.Logger.Info("workspace rebuilt", "session", shortID(sessionID))
	}
	r.changed(n)
	return ws, nil
}

// Remove disposes the workspace of sessionID.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.items[sessionID]
	delete(r.items, sessionID)
	n := len(r.items)
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.ws.Dispose()
	r.changed(n)
	return true
}

// Sweep disposes workspaces idle for longer than the idle timeout and
// reports how many went.
func (r *Registry) Sweep() int {
	cutoff := r.opts.Now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	var stale []*Workspace
	for id, e := range r.items {
		if e.ws.idleSince().Before(cutoff) {
			stale = append(stale, e.ws)
			delete(r.items, id)
		}
	}
	n := len(r.items)
	r.mu.Unlock()

	for _, ws := range stale {
		ws.Dispose()
	}
	if len(stale) > 0 {
		r.opts.Logger.Info("idle workspaces disposed", "count", len(stale))
		r.changed(n)
	}
	return len(stale)
}

// Run sweeps on every tick until ctx ends.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Close disposes every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]entry)
	r.mu.Unlock()
	for _, e := range items {
		e.ws.Dispose()
	}
	r.changed(0)
}

func (r *Registry) changed(n int) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(n)
	}
}
