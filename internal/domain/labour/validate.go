package labour

import (
	"math"
	"strconv"
	"strings"
	"time"

	"labourpanel/internal/domain/validation"
)

const dateLayout = "2006-01-02"

func validateDraft(d Draft) validation.FieldErrors {
	v := validation.NewValidator()
	v.Required("name", d.Name, "Name is required")
	return v.Errors()
}

func trimDraft(d Draft) Draft {
	return Draft{
		Name:    strings.TrimSpace(d.Name),
		Phone:   strings.TrimSpace(d.Phone),
		Address: strings.TrimSpace(d.Address),
	}
}

// validatePayment parses the raw amount and date. An empty date means
// today in the panel's local time.
func validatePayment(d PaymentDraft, now time.Time) (NewPayment, validation.FieldErrors) {
	v := validation.NewValidator()
	out := NewPayment{}

	if v.Required("amount", d.Amount, "Amount is required") {
		amount, err := strconv.ParseFloat(strings.TrimSpace(d.Amount), 64)
		switch {
		case err != nil || math.IsNaN(amount) || math.IsInf(amount, 0):
			v.Add("amount", "Amount must be a number")
		case amount < 0:
			v.Add("amount", "Amount cannot be negative")
		default:
			out.Amount = amount
		}
	}

	date := strings.TrimSpace(d.Date)
	if date == "" {
		date = now.Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		v.Add("date", "Date must be in YYYY-MM-DD format")
	}
	out.Date = date

	return out, v.Errors()
}
