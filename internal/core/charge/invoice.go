package charge

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrMissingDueDate is returned when a payment carries no due date.
var ErrMissingDueDate = errors.New("payment has no due date")

// Payment is a payment obligation as listed by the billing provider.
type Payment struct {
	PayerName         string `json:"PayerName"`
	PayerPhone        string `json:"PayerPhone"`
	BoletoURL         string `json:"BoletoUrl"`
	DueDate           string `json:"DueDate"`
	ExternalStatus    string `json:"ExternalStatus"`
	BoletoDigitalLine string `json:"BoletoDigitalLine"`
}

// Invoice is an overdue payment selected for a reminder tier. It is the record
// type of the debit-list handoff document.
//
// PayerPhone is omitted from the document when the provider had no phone for
// the payer; the contact resolver routes those records to the ignored list.
type Invoice struct {
	PayerName         string `json:"PayerName"`
	ExternalStatus    string `json:"ExternalStatus"`
	BoletoURL         string `json:"BoletoUrl"`
	PayerPhone        string `json:"PayerPhone,omitempty"`
	DueDate           string `json:"DueDate" validate:"required"`
	DaysDue           int    `json:"DaysDue"`
	BoletoDigitalLine string `json:"BoletoDigitalLine"`
}

// HasPhone reports whether the invoice carries a payer phone.
func (i Invoice) HasPhone() bool {
	return strings.TrimSpace(i.PayerPhone) != ""
}

// ParseDueDate parses the provider's ISO-8601 due date ("2024-01-10T00:00:00.000Z").
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingDueDate
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due date %q: %w", raw, err)
	}
	return t, nil
}

// DaysOverdue returns the number of whole calendar days between the due date
// and today. The due date's calendar day is taken as written by the provider;
// today's calendar day is taken in today's location.
func DaysOverdue(dueDate string, today time.Time) (int, error) {
	due, err := ParseDueDate(dueDate)
	if err != nil {
		return 0, err
	}
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	todayDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(todayDay.Sub(dueDay).Hours() / 24), nil
}

// NewInvoice builds the handoff record for a payment, computing DaysDue
// against today and normalizing the payer phone.
func NewInvoice(p Payment, today time.Time) (Invoice, error) {
	days, err := DaysOverdue(p.DueDate, today)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		PayerName:         p.PayerName,
		ExternalStatus:    p.ExternalStatus,
		BoletoURL:         p.BoletoURL,
		PayerPhone:        NormalizePhone(p.PayerPhone),
		DueDate:           p.DueDate,
		DaysDue:           days,
		BoletoDigitalLine: p.BoletoDigitalLine,
	}, nil
}

// SortByDueDate orders invoices ascending by their raw DueDate string, which
// is chronological for ISO-8601 timestamps in the same zone. Ties keep their
// input order.
func SortByDueDate(invoices []Invoice) {
	slices.SortStableFunc(invoices, func(a, b Invoice) int {
		return strings.Compare(a.DueDate, b.DueDate)
	})
}
