package reminder

import (
	"context"
	"strings"
	"time"

	"oralplatinum/cobranca/internal/core/contact"
)

// InvalidDate replaces a due date that cannot be parsed.
const InvalidDate = "Data inválida"

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatDueDate renders an ISO-8601 due date as DD/MM/YYYY. A trailing "Z" is
// ignored; anything unparsable yields InvalidDate.
func FormatDueDate(raw string) string {
	value := strings.TrimSuffix(strings.TrimSpace(raw), "Z")
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return InvalidDate
}

// Message is a due-date reminder addressed to a single contact.
type Message struct {
	ContactID contact.ID
	Phone     string
	Name      string
	BoletoURL string
	// DueDate is already formatted for display.
	DueDate string
}

// FlowRun triggers a conversational flow on a contact.
type FlowRun struct {
	ContactID    contact.ID
	FlowID       string
	ExternalData map[string]string
}

// Sender delivers reminders through the messaging platform.
type Sender interface {
	SendTemplate(ctx context.Context, msg Message) error
	RunFlow(ctx context.Context, run FlowRun) error
}
