package engineer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"labourpanel/internal/domain/validation"
	"labourpanel/internal/platform/imaging"
)

var (
	ErrFormLocked   = errors.New("form is locked while a submission is in flight")
	ErrUnknownField = errors.New("unknown field")
	ErrDisposed     = errors.New("form is closed")
)

// Form holds one engineer draft together with its error map and UI flags.
// It is safe for concurrent use.
type Form struct {
	mu sync.Mutex

	mode       Mode
	engineerID string
	initial    Draft
	initialURL string

	draft    Draft
	errors   validation.FieldErrors
	preview  imaging.Preview
	imageURL string

	submitting             bool
	passwordVisible        bool
	confirmPasswordVisible bool

	capturer   *imaging.Capturer
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
}

// Snapshot is a render-ready copy of the form. Password text is never
// included.
type Snapshot struct {
	Mode                   string                 `json:"mode"`
	EngineerID             string                 `json:"engineerId,omitempty"`
	Name                   string                 `json:"name"`
	Phone                  string                 `json:"phone"`
	AlternatePhone         string                 `json:"alternatePhone"`
	EmployeeID             string                 `json:"employeeId"`
	Address                string                 `json:"address"`
	Username               string                 `json:"username"`
	PasswordSet            bool                   `json:"passwordSet"`
	ConfirmPasswordSet     bool                   `json:"confirmPasswordSet"`
	HasImage               bool                   `json:"hasImage"`
	ImageName              string                 `json:"imageName,omitempty"`
	Preview                imaging.Preview        `json:"preview"`
	ImageURL               string                 `json:"imageUrl,omitempty"`
	Errors                 validation.FieldErrors `json:"errors"`
	Submitting             bool                   `json:"submitting"`
	PasswordVisible        bool                   `json:"passwordVisible"`
	ConfirmPasswordVisible bool                   `json:"confirmPasswordVisible"`
}

func NewCreateForm(capturer *imaging.Capturer, logger *slog.Logger) *Form {
	return newForm(ModeCreate, "", Draft{}, "", capturer, logger)
}

// NewEditForm hydrates a form from rec. The password always starts empty.
func NewEditForm(rec Engineer, capturer *imaging.Capturer, logger *slog.Logger) *Form {
	initial := Draft{
		Name:           rec.Name,
		Phone:          rec.Phone,
		AlternatePhone: rec.AlternatePhone,
		EmployeeID:     rec.EmployeeID,
		Address:        rec.Address,
		Username:       rec.Username,
	}
	return newForm(ModeEdit, rec.ID, initial, rec.ProfileImageURL, capturer, logger)
}

func newForm(mode Mode, id string, initial Draft, imageURL string, capturer *imaging.Capturer, logger *slog.Logger) *Form {
	if capturer == nil {
		capturer = imaging.NewCapturer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Form{
		mode:       mode,
		engineerID: id,
		initial:    initial,
		initialURL: imageURL,
		draft:      initial,
		errors:     validation.FieldErrors{},
		imageURL:   imageURL,
		capturer:   capturer,
		logger:     logger.With("form", mode.String()),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (f *Form) Mode() Mode {
	return f.mode
}

func (f *Form) EngineerID() string {
	return f.engineerID
}

// mutable must be called with mu held.
func (f *Form) mutable() error {
	if f.ctx.Err() != nil {
		return ErrDisposed
	}
	if f.submitting {
		return ErrFormLocked
	}
	return nil
}

// SetField overwrites one field and clears only that field's error. Errors
// are recomputed on submit, not on every keystroke.
func (f *Form) SetField(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return err
	}
	if !f.accepts(name) {
		return &UnknownFieldError{Field: name}
	}
	f.assign(name, value)
	return nil
}

// SetFields applies several edits at once. When any name is unknown nothing
// is applied and the first unknown name in sorted order is reported.
func (f *Form) SetFields(values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return err
	}
	for _, name := range names {
		if !f.accepts(name) {
			return &UnknownFieldError{Field: name}
		}
	}
	for _, name := range names {
		f.assign(name, values[name])
	}
	return nil
}

// UnknownFieldError names a field the form does not have in its mode.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return "unknown field " + strconv.Quote(e.Field)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

func (f *Form) accepts(name string) bool {
	switch name {
	case FieldName, FieldPhone, FieldAlternatePhone, FieldEmployeeID, FieldAddress, FieldUsername, FieldPassword:
		return true
	case FieldConfirmPassword:
		return f.mode == ModeCreate
	}
	return false
}

// assign overwrites one field and clears its error; callers hold mu.
func (f *Form) assign(name, value string) {
	switch name {
	case FieldName:
		f.draft.Name = value
	case FieldPhone:
		f.draft.Phone = value
	case FieldAlternatePhone:
		f.draft.AlternatePhone = value
	case FieldEmployeeID:
		f.draft.EmployeeID = value
	case FieldAddress:
		f.draft.Address = value
	case FieldUsername:
		f.draft.Username = value
	case FieldPassword:
		f.draft.Password = value
	case FieldConfirmPassword:
		f.draft.ConfirmPassword = value
	}
	delete(f.errors, name)
}

// SetImage holds the selected binary right away and produces its preview in
// the background. The returned channel closes once the preview has been
// applied or dropped. A rejected file (oversized or not an image) sets the
// image error, leaves the prior image untouched and returns the capture error.
func (f *Form) SetImage(name string, data []byte) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return nil, err
	}

	img, pending, err := f.capturer.Capture(f.ctx, name, data)
	if err != nil {
		f.errors[FieldImage] = imageMessage(err)
		return nil, err
	}

	f.generation++
	gen := f.generation
	f.draft.ProfileImage = &img
	f.preview = imaging.Preview{}
	delete(f.errors, FieldImage)

	settled := make(chan struct{})
	go f.applyPreview(gen, pending, settled)
	return settled, nil
}

func (f *Form) applyPreview(gen uint64, pending *imaging.Pending, settled chan<- struct{}) {
	defer close(settled)
	preview, err := pending.Result()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil || f.ctx.Err() != nil {
		f.logger.Debug("preview dropped", "reason", "form closed")
		return
	}
	if gen != f.generation {
		f.logger.Debug("preview dropped", "reason", "superseded")
		return
	}
	f.preview = preview
}

func imageMessage(err error) string {
	if errors.Is(err, imaging.ErrTooLarge) {
		return "Image size should be less than 5MB"
	}
	if errors.Is(err, imaging.ErrNotImage) {
		return "Please select an image file"
	}
	return "Image could not be read"
}

// RemoveImage clears the held binary and its preview; a decode still in
// flight will not be applied.
func (f *Form) RemoveImage() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return err
	}
	f.generation++
	f.draft.ProfileImage = nil
	f.preview = imaging.Preview{}
	f.imageURL = ""
	delete(f.errors, FieldImage)
	return nil
}

// Reset restores the initial values and clears errors and preview.
func (f *Form) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return err
	}
	f.resetLocked()
	return nil
}

func (f *Form) resetLocked() {
	f.generation++
	f.draft = f.initial
	f.errors = validation.FieldErrors{}
	f.preview = imaging.Preview{}
	f.imageURL = f.initialURL
	f.passwordVisible = false
	f.confirmPasswordVisible = false
}

func (f *Form) TogglePasswordVisibility(field string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutable(); err != nil {
		return err
	}
	switch field {
	case FieldPassword:
		f.passwordVisible = !f.passwordVisible
	case FieldConfirmPassword:
		if f.mode != ModeCreate {
			return ErrUnknownField
		}
		f.confirmPasswordVisible = !f.confirmPasswordVisible
	default:
		return ErrUnknownField
	}
	return nil
}

func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{
		Mode:                   f.mode.String(),
		EngineerID:             f.engineerID,
		Name:                   f.draft.Name,
		Phone:                  f.draft.Phone,
		AlternatePhone:         f.draft.AlternatePhone,
		EmployeeID:             f.draft.EmployeeID,
		Address:                f.draft.Address,
		Username:               f.draft.Username,
		PasswordSet:            f.draft.Password != "",
		ConfirmPasswordSet:     f.draft.ConfirmPassword != "",
		HasImage:               f.draft.ProfileImage != nil,
		Preview:                f.preview,
		ImageURL:               f.imageURL,
		Errors:                 f.errors.Clone(),
		Submitting:             f.submitting,
		PasswordVisible:        f.passwordVisible,
		ConfirmPasswordVisible: f.confirmPasswordVisible,
	}
	if f.draft.ProfileImage != nil {
		snap.ImageName = f.draft.ProfileImage.Name
	}
	return snap
}

// Close marks the form dead. Previews finishing later are dropped.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancel()
}

func (f *Form) Closed() bool {
	return f.ctx.Err() != nil
}
