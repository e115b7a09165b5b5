package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"labourpanel/internal/domain/labour"
)

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// flexAmount accepts amounts sent as numbers or numeric strings.
type flexAmount float64

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexAmount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexAmount(v)
	return nil
}

type wirePayment struct {
	ID      flexID     `json:"id"`
	MongoID flexID     `json:"_id"`
	Amount  flexAmount `json:"amount"`
	Date    string     `json:"date"`
}

type wireLabourer struct {
	ID        flexID        `json:"id"`
	MongoID   flexID        `json:"_id"`
	Name      string        `json:"name"`
	Phone     string        `json:"phone"`
	Address   string        `json:"address"`
	TotalPaid flexAmount    `json:"totalPaid"`
	Payments  []wirePayment `json:"payments"`
}

func pickID(id, mongoID flexID) string {
	if id != "" {
		return string(id)
	}
	return string(mongoID)
}

func (w wireLabourer) toDomain() labour.Labourer {
	out := labour.Labourer{
		ID:        pickID(w.ID, w.MongoID),
		Name:      w.Name,
		Phone:     w.Phone,
		Address:   w.Address,
		TotalPaid: float64(w.TotalPaid),
		Payments:  make([]labour.Payment, 0, len(w.Payments)),
	}
	for _, p := range w.Payments {
		out.Payments = append(out.Payments, labour.Payment{
			ID:     pickID(p.ID, p.MongoID),
			Amount: float64(p.Amount),
			Date:   p.Date,
		})
	}
	return out
}

func (c *Client) ListLabourers(ctx context.Context) ([]labour.Labourer, error) {
	var wire []wireLabourer
	if err := c.do(ctx, "list labourers", http.MethodGet, c.endpoint("labourers"), nil, &wire); err != nil {
		return nil, err
	}
	out := make([]labour.Labourer, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}

func (c *Client) CreateLabourer(ctx context.Context, draft labour.Draft) (labour.Labourer, error) {
	var wire wireLabourer
	if err := c.do(ctx, "create labourer", http.MethodPost, c.endpoint("labourers"), draft, &wire); err != nil {
		return labour.Labourer{}, err
	}
	return wire.toDomain(), nil
}

func (c *Client) UpdateLabourer(ctx context.Context, id string, draft labour.Draft) error {
	return c.do(ctx, "update labourer", http.MethodPut, c.endpoint("labourers", id), draft, nil)
}

// DeleteLabourer removes a labourer; the backend cascades to payments.
func (c *Client) DeleteLabourer(ctx context.Context, id string) error {
	return c.do(ctx, "delete labourer", http.MethodDelete, c.endpoint("labourers", id), nil, nil)
}

func (c *Client) AddPayment(ctx context.Context, labourerID string, payment labour.NewPayment) error {
	return c.do(ctx, "add payment", http.MethodPost, c.endpoint("labourers", labourerID, "payments"), payment, nil)
}
