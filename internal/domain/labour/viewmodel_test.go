package labour

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu        sync.Mutex
	labourers []Labourer
	lists     int
	deletes   []string
	payments  map[string][]NewPayment
	creates   []Draft
	updates   map[string]Draft
	listErr   error
	mutateErr error
	listGate  chan struct{}
}

func newFakeBackend(labourers ...Labourer) *fakeBackend {
	return &fakeBackend{labourers: labourers, payments: map[string][]NewPayment{}, updates: map[string]Draft{}}
}

func (f *fakeBackend) ListLabourers(ctx context.Context) ([]Labourer, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Labourer, len(f.labourers))
	copy(out, f.labourers)
	return out, nil
}

func (f *fakeBackend) CreateLabourer(ctx context.Context, d Draft) (Labourer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return Labourer{}, f.mutateErr
	}
	f.creates = append(f.creates, d)
	l := Labourer{ID: "new", Name: d.Name, Phone: d.Phone}
	f.labourers = append(f.labourers, l)
	return l, nil
}

func (f *fakeBackend) UpdateLabourer(ctx context.Context, id string, d Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.updates[id] = d
	return nil
}

func (f *fakeBackend) DeleteLabourer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.deletes = append(f.deletes, id)
	return nil
}

// AddPayment mimics the backend: it records the payment and sets an
// aggregate that deliberately differs from a naive local sum.
func (f *fakeBackend) AddPayment(ctx context.Context, id string, p NewPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.payments[id] = append(f.payments[id], p)
	for i := range f.labourers {
		if f.labourers[i].ID == id {
			f.labourers[i].Payments = append(f.labourers[i].Payments, Payment{ID: "p", Amount: p.Amount, Date: p.Date})
			f.labourers[i].TotalPaid = 999.5
		}
	}
	return nil
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type memStore struct {
	mu   sync.Mutex
	data map[string]Snapshot
}

func (m *memStore) Put(ctx context.Context, key string, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]Snapshot{}
	}
	m.data[key] = s
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	return s, ok, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (p *recordingPublisher) Publish(key string, s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func TestLoadReplacesSnapshot(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1", Name: "Raju", TotalPaid: 100})
	store := &memStore{}
	pub := &recordingPublisher{}
	vm := NewViewModel(api, Options{Store: store, Publisher: pub, Key: "s1", Now: fixedNow})

	snap, err := vm.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Labourers) != 1 || snap.Loading {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !snap.LoadedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected loadedAt %v", snap.LoadedAt)
	}
	if cached, ok := vm.Peek(context.Background()); !ok || len(cached.Labourers) != 1 {
		t.Fatal("expected snapshot cached")
	}
	if len(pub.snaps) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.snaps))
	}
}

func TestLoadingFlagWhileInFlight(t *testing.T) {
	api := newFakeBackend()
	api.listGate = make(chan struct{})
	vm := NewViewModel(api, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = vm.Load(context.Background())
	}()

	deadline := time.After(5 * time.Second)
	for !vm.Snapshot().Loading {
		select {
		case <-deadline:
			t.Fatal("loading flag never set")
		case <-time.After(time.Millisecond):
		}
	}
	close(api.listGate)
	<-done
	if vm.Snapshot().Loading {
		t.Fatal("loading flag must clear after resolve")
	}
}

func TestLoadFailureKeepsPreviousList(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1", Name: "Raju"})
	vm := NewViewModel(api, Options{})
	if _, err := vm.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	api.listErr = errors.New("backend down")
	snap, err := vm.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(snap.Labourers) != 1 || snap.Loading || snap.Error != "backend down" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestAddPaymentReloadsOnceAndUsesServerTotal(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1", Name: "Raju", TotalPaid: 100, Payments: []Payment{{ID: "a", Amount: 100, Date: "2026-03-01"}}})
	vm := NewViewModel(api, Options{Now: fixedNow})
	if _, err := vm.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := api.listCount()

	out, err := vm.AddPayment(context.Background(), "1", PaymentDraft{Amount: "250"})
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if out.Message == "" || out.Stale {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := api.listCount() - before; got != 1 {
		t.Fatalf("expected exactly one reload, got %d", got)
	}

	l, ok := vm.Snapshot().Find("1")
	if !ok {
		t.Fatal("labourer missing")
	}
	if l.TotalPaid != 999.5 {
		t.Fatalf("expected server total 999.5, got %v", l.TotalPaid)
	}
	if sent := api.payments["1"]; len(sent) != 1 || sent[0].Date != "2026-03-14" || sent[0].Amount != 250 {
		t.Fatalf("unexpected payment sent %+v", sent)
	}
}

func TestAddPaymentValidation(t *testing.T) {
	cases := []struct {
		name  string
		draft PaymentDraft
		field string
	}{
		{"missing amount", PaymentDraft{}, "amount"},
		{"negative", PaymentDraft{Amount: "-5"}, "amount"},
		{"not a number", PaymentDraft{Amount: "ten"}, "amount"},
		{"nan", PaymentDraft{Amount: "NaN"}, "amount"},
		{"bad date", PaymentDraft{Amount: "5", Date: "14/03/2026"}, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeBackend(Labourer{ID: "1"})
			vm := NewViewModel(api, Options{})
			out, err := vm.AddPayment(context.Background(), "1", tc.draft)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !out.Errors.Has(tc.field) {
				t.Fatalf("expected %s error, got %v", tc.field, out.Errors)
			}
			if len(api.payments) != 0 || api.listCount() != 0 {
				t.Fatal("no backend call expected")
			}
		})
	}

	vm := NewViewModel(newFakeBackend(), Options{})
	if _, err := vm.AddPayment(context.Background(), " ", PaymentDraft{Amount: "1"}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestAddPaymentZeroAmountAllowed(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1"})
	vm := NewViewModel(api, Options{Now: fixedNow})
	out, err := vm.AddPayment(context.Background(), "1", PaymentDraft{Amount: "0", Date: "2026-01-02"})
	if err != nil || !out.Errors.Empty() {
		t.Fatalf("zero amount should be accepted: %v %v", err, out.Errors)
	}
}

func TestRemoveRequiresConfirmation(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1", Name: "Raju"})
	vm := NewViewModel(api, Options{})
	_, _ = vm.Load(context.Background())

	var asked string
	decline := ConfirmFunc(func(ctx context.Context, prompt string) bool {
		asked = prompt
		return false
	})
	out, err := vm.Remove(context.Background(), "1", decline)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !out.Aborted || asked == "" {
		t.Fatalf("expected aborted outcome with prompt, got %+v", out)
	}
	if _, err := vm.Remove(context.Background(), "1", nil); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(api.deletes) != 0 {
		t.Fatalf("delete must not be called without confirmation, got %v", api.deletes)
	}

	out, err = vm.Remove(context.Background(), "1", Confirmation(true))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if out.Aborted || len(api.deletes) != 1 {
		t.Fatalf("expected delete after confirmation, got %+v %v", out, api.deletes)
	}
}

func TestCreateValidatesName(t *testing.T) {
	api := newFakeBackend()
	vm := NewViewModel(api, Options{})
	out, err := vm.Create(context.Background(), Draft{Phone: "1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !out.Errors.Has("name") || len(api.creates) != 0 {
		t.Fatalf("expected name error and no call, got %+v", out)
	}

	out, err = vm.Create(context.Background(), Draft{Name: " Raju ", Phone: " 123 "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if api.creates[0].Name != "Raju" || api.creates[0].Phone != "123" {
		t.Fatalf("expected trimmed draft, got %+v", api.creates[0])
	}
	if len(vm.Snapshot().Labourers) != 1 || api.listCount() != 1 {
		t.Fatal("expected reload after create")
	}
}

func TestMutationFailureSkipsReload(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1"})
	api.mutateErr = errors.New("Labourer not found")
	vm := NewViewModel(api, Options{})

	_, err := vm.Update(context.Background(), "1", Draft{Name: "x"})
	if err == nil || !errors.Is(err, api.mutateErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if api.listCount() != 0 {
		t.Fatal("no reload expected after failure")
	}
}

func TestReloadFailureMarksStale(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1"})
	vm := NewViewModel(api, Options{})
	api.listErr = errors.New("timeout")

	out, err := vm.Update(context.Background(), "1", Draft{Name: "x"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !out.Stale {
		t.Fatal("expected stale outcome")
	}
}

func TestDisposeDropsInFlightLoad(t *testing.T) {
	api := newFakeBackend(Labourer{ID: "1"})
	api.listGate = make(chan struct{})
	pub := &recordingPublisher{}
	vm := NewViewModel(api, Options{Publisher: pub})

	errc := make(chan error, 1)
	go func() {
		_, err := vm.Load(context.Background())
		errc <- err
	}()
	vm.Dispose()
	close(api.listGate)

	if err := <-errc; !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	if len(vm.Snapshot().Labourers) != 0 || len(pub.snaps) != 0 {
		t.Fatal("disposed view-model must not apply results")
	}
	if _, err := vm.Create(context.Background(), Draft{Name: "x"}); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestOlderLoadIsNotSharedAfterNewer(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	vm := NewViewModel(newFakeBackend(), Options{Store: store, Publisher: pub, Key: "s1"})

	newer := Snapshot{Labourers: []Labourer{{ID: "1", TotalPaid: 200}}}
	older := Snapshot{Labourers: []Labourer{{ID: "1", TotalPaid: 100}}}
	vm.share(context.Background(), 2, newer)
	vm.share(context.Background(), 1, older)

	cached, ok := vm.Peek(context.Background())
	if !ok || cached.Labourers[0].TotalPaid != 200 {
		t.Fatalf("cache must keep the load that finished last, got %+v", cached)
	}
	if len(pub.snaps) != 1 || pub.snaps[0].Labourers[0].TotalPaid != 200 {
		t.Fatalf("only the newer snapshot may be published, got %+v", pub.snaps)
	}
}

func TestConsecutiveLoadsAreAllShared(t *testing.T) {
	pub := &recordingPublisher{}
	vm := NewViewModel(newFakeBackend(Labourer{ID: "1"}), Options{Publisher: pub})
	for i := 0; i < 3; i++ {
		if _, err := vm.Load(context.Background()); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if len(pub.snaps) != 3 {
		t.Fatalf("expected three publishes, got %d", len(pub.snaps))
	}
}
