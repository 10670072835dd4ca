package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"oralplatinum/cobranca/internal/core/contact"
	"oralplatinum/cobranca/internal/core/reminder"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/infrastructure/handoff"
	"oralplatinum/cobranca/internal/infrastructure/security"
)

// Stage is the name the reminder dispatcher runs and logs under.
const Stage = "reminder_dispatcher"

// Placeholders for fields missing from a processed contact.
const (
	DefaultName      = "Cliente"
	DefaultBoletoURL = "Sem link"
	DefaultDueDate   = "Sem data"
)

// TrackingNumberKey is the flow external-data key carrying the invoice link.
const TrackingNumberKey = "tracking_number"

// TokenSource yields the messaging platform access token.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Config holds the reminder dispatcher settings.
type Config struct {
	ProcessedContacts string
	FlowID            string
}

// Result summarizes one run.
type Result struct {
	Contacts     int
	Sent         int
	FlowsStarted int
	Skipped      int
	Failed       int
}

// Service sends the reminder template and starts the follow-up flow for
// every processed contact.
type Service struct {
	sender reminder.Sender
	tokens TokenSource
	cfg    Config
	log    *slog.Logger
}

// NewService creates a reminder dispatcher. tokens may be nil.
func NewService(sender reminder.Sender, tokens TokenSource, cfg Config, log *slog.Logger) *Service {
	return &Service{
		sender: sender,
		tokens: tokens,
		cfg:    cfg,
		log:    log,
	}
}

// Run messages every contact of the processed-contacts document in order.
// Authentication failures and a missing document, or one that is not an
// array of objects, abort the run. A record that does not decode or lacks its
// contact id or phone is skipped, and a failed send or flow is logged; the
// batch continues either way.
func (s *Service) Run(ctx context.Context) (Result, error) {
	ctx = ctxutil.WithStage(ctx, Stage)
	var result Result

	if s.tokens != nil {
		if _, err := s.tokens.GetToken(ctx); err != nil {
			return result, fmt.Errorf("authenticate: %w", err)
		}
	}

	records, err := handoff.ReadRaw(s.cfg.ProcessedContacts)
	if err != nil {
		return result, fmt.Errorf("read processed contacts: %w", err)
	}
	result.Contacts = len(records)

	for i, raw := range records {
		c, err := handoff.Decode[contact.Processed](raw)
		if err != nil {
			result.Skipped++
			s.log.Warn("skipping invalid contact", "index", i, "error", err)
			continue
		}
		s.dispatch(ctx, c, &result)
	}

	s.log.Info("reminder dispatch finished",
		"contacts", result.Contacts,
		"sent", result.Sent,
		"flows_started", result.FlowsStarted,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, c contact.Processed, result *Result) {
	msg := NewMessage(c)
	log := s.log.With(
		"contact_id", msg.ContactID.String(),
		"phone", security.MaskPhone(msg.Phone),
	)

	if err := s.sender.SendTemplate(ctx, msg); err != nil {
		result.Failed++
		log.Error("failed to send reminder", "error", err)
		return
	}
	result.Sent++
	log.Info("reminder sent", "due_date", msg.DueDate)

	run := reminder.FlowRun{
		ContactID:    msg.ContactID,
		FlowID:       s.cfg.FlowID,
		ExternalData: map[string]string{TrackingNumberKey: msg.BoletoURL},
	}
	if err := s.sender.RunFlow(ctx, run); err != nil {
		result.Failed++
		log.Error("failed to start flow", "error", err, "flow_id", s.cfg.FlowID)
		return
	}
	result.FlowsStarted++
	log.Info("flow started", "flow_id", s.cfg.FlowID)
}

// NewMessage builds the reminder for a processed contact, filling absent
// fields with placeholders and formatting the due date for display.
func NewMessage(c contact.Processed) reminder.Message {
	name := c.Name
	if name == "" {
		name = DefaultName
	}
	boletoURL := c.BoletoURL
	if boletoURL == "" {
		boletoURL = DefaultBoletoURL
	}
	dueDate := c.DueDate
	if dueDate == "" {
		dueDate = DefaultDueDate
	}

	return reminder.Message{
		ContactID: c.ContactID,
		Phone:     c.Phone,
		Name:      name,
		BoletoURL: boletoURL,
		DueDate:   reminder.FormatDueDate(dueDate),
	}
}
