package engineer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"labourpanel/internal/domain/audit"
	"labourpanel/internal/domain/validation"
)

var ErrSubmitInProgress = errors.New("a submission is already in flight")

// Collaborator is the slice of the backend the coordinator calls.
type Collaborator interface {
	CreateEngineer(ctx context.Context, payload Payload) error
	UpdateEngineer(ctx context.Context, id string, payload Payload) error
}

// Observer receives one call per finished attempt.
type Observer interface {
	ObserveSubmit(mode, result string)
}

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

const (
	ResultInvalid = "invalid"
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Outcome reports how an attempt ended. Errors is set when validation
// stopped the attempt; Notification carries the collaborator's message
// verbatim on failure.
type Outcome struct {
	State        State                  `json:"state"`
	Errors       validation.FieldErrors `json:"errors,omitempty"`
	Notification string                 `json:"notification,omitempty"`
	Reset        bool                   `json:"reset"`
	CloseModal   bool                   `json:"closeModal"`
}

type Coordinator struct {
	form     *Form
	api      Collaborator
	audit    audit.Recorder
	observer Observer
	logger   *slog.Logger
}

func NewCoordinator(form *Form, api Collaborator, recorder audit.Recorder, observer Observer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{form: form, api: api, audit: recorder, observer: observer, logger: logger}
}

func (c *Coordinator) Form() *Form {
	return c.form
}

// Submit runs one attempt: Validating, then Submitting, then Success or
// Failed. The collaborator is called at most once and never retried.
func (c *Coordinator) Submit(ctx context.Context) (Outcome, error) {
	f := c.form

	f.mu.Lock()
	if f.ctx.Err() != nil {
		f.mu.Unlock()
		return Outcome{State: StateIdle}, ErrDisposed
	}
	if f.submitting {
		f.mu.Unlock()
		return Outcome{State: StateSubmitting}, ErrSubmitInProgress
	}

	// validating
	if errs := Validate(f.draft, f.mode); !errs.Empty() {
		f.errors = errs
		f.mu.Unlock()
		c.observe(ResultInvalid)
		return Outcome{State: StateIdle, Errors: errs.Clone()}, nil
	}

	f.submitting = true
	f.errors = validation.FieldErrors{}
	payload := BuildPayload(f.draft, f.mode)
	mode, id := f.mode, f.engineerID
	f.mu.Unlock()

	var err error
	if mode == ModeEdit {
		err = c.api.UpdateEngineer(ctx, id, payload)
	} else {
		err = c.api.CreateEngineer(ctx, payload)
	}

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		f.mu.Unlock()
		c.observe(ResultFailed)
		c.logger.WarnContext(ctx, "engineer submit failed", "mode", mode.String(), "err", err)
		return Outcome{State: StateFailed, Notification: notification(err)}, nil
	}

	out := Outcome{State: StateSuccess}
	if mode == ModeCreate {
		f.resetLocked()
		out.Reset = true
	} else {
		out.CloseModal = true
	}
	f.mu.Unlock()

	c.observe(ResultSuccess)
	c.record(ctx, mode, id, payload)
	return out, nil
}

func (c *Coordinator) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveSubmit(c.form.mode.String(), result)
	}
}

func (c *Coordinator) record(ctx context.Context, mode Mode, id string, payload Payload) {
	if c.audit == nil {
		return
	}
	action, entityID := audit.ActionCreate, payload.Username
	if mode == ModeEdit {
		action, entityID = audit.ActionUpdate, id
	}
	summary := map[string]any{
		"name":       payload.Name,
		"employeeId": payload.EmployeeID,
		"username":   payload.Username,
		"password":   payload.Password.IsSet(),
		"image":      payload.ProfileImage != "",
	}
	if err := c.audit.Record(ctx, action, audit.EntityEngineer, entityID, summary); err != nil {
		c.logger.WarnContext(ctx, "audit record failed", "err", err)
	}
}

func notification(err error) string {
	type messager interface{ UserMessage() string }
	var m messager
	if errors.As(err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// BuildPayload trims the draft into the wire payload. In edit mode a blank
// password becomes Unchanged.
func BuildPayload(d Draft, mode Mode) Payload {
	p := Payload{
		Name:           strings.TrimSpace(d.Name),
		Phone:          strings.TrimSpace(d.Phone),
		AlternatePhone: strings.TrimSpace(d.AlternatePhone),
		EmployeeID:     strings.TrimSpace(d.EmployeeID),
		Address:        strings.TrimSpace(d.Address),
		Username:       strings.TrimSpace(d.Username),
		Password:       Unchanged(),
	}
	if mode == ModeCreate || d.Password != "" {
		p.Password = NewPassword(d.Password)
	}
	if d.ProfileImage != nil {
		p.ProfileImage = d.ProfileImage.Base64()
		p.ProfileImageType = d.ProfileImage.MIME
	}
	return p
}
