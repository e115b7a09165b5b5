package labour

import "time"

// Labourer is owned by the backend. The panel only ever holds a fetched
// copy, replaced wholesale after every mutation.
type Labourer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	TotalPaid float64   `json:"totalPaid"`
	Payments  []Payment `json:"payments"`
}

type Payment struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

// Draft is the add/edit labourer input.
type Draft struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// PaymentDraft is raw payment input as typed into the payment modal.
type PaymentDraft struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

// NewPayment is the validated payment sent to the backend.
type NewPayment struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

// Snapshot is what the dashboard renders.
type Snapshot struct {
	Labourers []Labourer `json:"labourers"`
	Loading   bool       `json:"loading"`
	LoadedAt  time.Time  `json:"loadedAt"`
	Error     string     `json:"error,omitempty"`
}

func (s Snapshot) Find(id string) (Labourer, bool) {
	for _, l := range s.Labourers {
		if l.ID == id {
			return l, true
		}
	}
	return Labourer{}, false
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Labourers = make([]Labourer, len(s.Labourers))
	for i, l := range s.Labourers {
		l.Payments = append([]Payment(nil), l.Payments...)
		out.Labourers[i] = l
	}
	return out
}
