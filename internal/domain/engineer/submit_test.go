package engineer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakeAPI struct {
	mu      sync.Mutex
	creates []Payload
	updates map[string]Payload
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) CreateEngineer(ctx context.Context, p Payload) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, p)
	return f.err
}

func (f *fakeAPI) UpdateEngineer(ctx context.Context, id string, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]Payload{}
	}
	f.updates[id] = p
	return f.err
}

type fakeRecorder struct {
	actions []string
}

func (r *fakeRecorder) Record(ctx context.Context, action, entityType, entityID string, after any) error {
	r.actions = append(r.actions, action+":"+entityType+":"+entityID)
	return nil
}

type fakeObserver struct {
	results []string
}

func (o *fakeObserver) ObserveSubmit(mode, result string) {
	o.results = append(o.results, mode+"/"+result)
}

type userError struct{ msg string }

func (e userError) Error() string       { return "transport: " + e.msg }
func (e userError) UserMessage() string { return e.msg }

func fillCreate(t *testing.T, f *Form) {
	t.Helper()
	values := map[string]string{
		FieldName:            "  Ravi Kumar ",
		FieldPhone:           "9876543210 ",
		FieldEmployeeID:      " EMP-001",
		FieldAddress:         "12 Site Road",
		FieldUsername:        " ravi_k ",
		FieldPassword:        "secret1",
		FieldConfirmPassword: "secret1",
	}
	for k, v := range values {
		if err := f.SetField(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
}

func TestSubmitCreateCallsOnceWithTrimmedValuesAndResets(t *testing.T) {
	api := &fakeAPI{}
	rec := &fakeRecorder{}
	obs := &fakeObserver{}
	f := NewCreateForm(nil, nil)
	defer f.Close()
	fillCreate(t, f)
	settled, err := f.SetImage("me.png", encodePNG(t, 4, 4))
	if err != nil {
		t.Fatalf("set image: %v", err)
	}
	waitSettled(t, settled)

	c := NewCoordinator(f, api, rec, obs, nil)
	out, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != StateSuccess || !out.Reset || out.CloseModal {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(api.creates) != 1 {
		t.Fatalf("expected exactly one create call, got %d", len(api.creates))
	}

	p := api.creates[0]
	if p.Name != "Ravi Kumar" || p.Phone != "9876543210" || p.EmployeeID != "EMP-001" || p.Username != "ravi_k" {
		t.Fatalf("expected trimmed payload, got %+v", p)
	}
	if p.ProfileImage == "" || p.ProfileImageType != "image/png" {
		t.Fatalf("expected image attached, got %q %q", p.ProfileImage, p.ProfileImageType)
	}
	if !p.Password.IsSet() || p.Password.Value() != "secret1" {
		t.Fatal("expected password set on create")
	}

	snap := f.Snapshot()
	if snap.Name != "" || snap.HasImage || snap.PasswordSet || snap.Submitting {
		t.Fatalf("expected empty form after success, got %+v", snap)
	}
	if len(rec.actions) != 1 || rec.actions[0] != "create:engineer:ravi_k" {
		t.Fatalf("unexpected audit %v", rec.actions)
	}
	if len(obs.results) != 1 || obs.results[0] != "create/success" {
		t.Fatalf("unexpected observations %v", obs.results)
	}
}

func TestSubmitInvalidMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	f := NewCreateForm(nil, nil)
	defer f.Close()
	_ = f.SetField(FieldPhone, "12345")

	out, err := NewCoordinator(f, api, nil, nil, nil).Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != StateIdle || !out.Errors.Has(FieldPhone) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(api.creates) != 0 {
		t.Fatal("no collaborator call expected")
	}
	if !f.Snapshot().Errors.Has(FieldName) {
		t.Fatal("errors must be stored on the form")
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	api := &fakeAPI{err: userError{msg: "Username already exists"}}
	f := NewCreateForm(nil, nil)
	defer f.Close()
	fillCreate(t, f)

	out, err := NewCoordinator(f, api, nil, nil, nil).Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != StateFailed || out.Notification != "Username already exists" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	snap := f.Snapshot()
	if snap.Name != "  Ravi Kumar " || !snap.PasswordSet || snap.Submitting {
		t.Fatalf("draft must be kept, got %+v", snap)
	}
}

func TestSubmitPlainErrorMessage(t *testing.T) {
	api := &fakeAPI{err: errors.New("boom")}
	f := NewCreateForm(nil, nil)
	defer f.Close()
	fillCreate(t, f)

	out, _ := NewCoordinator(f, api, nil, nil, nil).Submit(context.Background())
	if out.Notification != "boom" {
		t.Fatalf("unexpected notification %q", out.Notification)
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	f := NewCreateForm(nil, nil)
	defer f.Close()
	fillCreate(t, f)
	c := NewCoordinator(f, api, nil, nil, nil)

	done := make(chan Outcome)
	go func() {
		out, _ := c.Submit(context.Background())
		done <- out
	}()
	<-api.entered

	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected ErrSubmitInProgress, got %v", err)
	}
	if err := f.SetField(FieldName, "x"); !errors.Is(err, ErrFormLocked) {
		t.Fatalf("expected ErrFormLocked, got %v", err)
	}
	if !f.Snapshot().Submitting {
		t.Fatal("expected submitting flag")
	}

	close(api.block)
	if out := <-done; out.State != StateSuccess {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(api.creates) != 1 {
		t.Fatalf("expected one call, got %d", len(api.creates))
	}
}

func TestSubmitEditClosesModalAndKeepsPasswordUnchanged(t *testing.T) {
	api := &fakeAPI{}
	rec := Engineer{ID: "e7", Name: "Asha", Phone: "9999999999", EmployeeID: "E9", Address: "Pune", Username: "asha"}
	f := NewEditForm(rec, nil, nil)
	defer f.Close()
	_ = f.SetField(FieldAddress, " Mumbai ")

	out, err := NewCoordinator(f, api, nil, nil, nil).Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.State != StateSuccess || !out.CloseModal || out.Reset {
		t.Fatalf("unexpected outcome %+v", out)
	}
	p, ok := api.updates["e7"]
	if !ok {
		t.Fatal("expected update call for e7")
	}
	if p.Address != "Mumbai" || p.Password.IsSet() {
		t.Fatalf("unexpected payload %+v", p)
	}

	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(body), `"password"`) {
		t.Fatalf("unchanged password must not be sent: %s", body)
	}
}

func TestBuildPayloadEditWithNewPassword(t *testing.T) {
	p := BuildPayload(Draft{Password: "newpass"}, ModeEdit)
	if !p.Password.IsSet() || p.Password.Value() != "newpass" {
		t.Fatal("expected new password")
	}
	body, _ := json.Marshal(p)
	if !strings.Contains(string(body), `"password":"newpass"`) {
		t.Fatalf("expected password in body: %s", body)
	}
	if !strings.Contains(string(body), `"alternatePhone":""`) {
		t.Fatalf("empty optionals must be sent as empty strings: %s", body)
	}
}
