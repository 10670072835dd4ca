package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"oralplatinum/cobranca/internal/core/charge"
	"oralplatinum/cobranca/internal/core/contact"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/infrastructure/handoff"
	"oralplatinum/cobranca/internal/infrastructure/security"
)

// Stage is the name the contact resolver runs and logs under.
const Stage = "contact_resolver"

// UnknownPayerName is used for invoices that carry no payer name.
const UnknownPayerName = "Desconhecido"

// TokenSource yields the messaging platform access token. The resolver asks
// for it once up front so an authentication failure aborts the run.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Config holds the contact resolver settings.
type Config struct {
	DebitList         string
	ProcessedContacts string
	IgnoredInvoices   string
	VariableIDBoleto  string
	VariableIDDueDate string
	// OverwriteEmpty writes the output documents even when they are empty.
	OverwriteEmpty bool
}

// Result summarizes one run.
type Result struct {
	Invoices  int
	Processed int
	Ignored   int
	Created   int
	Failed    int
}

// Service turns the debit list into messaging platform contacts.
type Service struct {
	directory contact.Directory
	tokens    TokenSource
	cfg       Config
	log       *slog.Logger
}

// NewService creates a contact resolver. tokens may be nil.
func NewService(directory contact.Directory, tokens TokenSource, cfg Config, log *slog.Logger) *Service {
	return &Service{
		directory: directory,
		tokens:    tokens,
		cfg:       cfg,
		log:       log,
	}
}

// Run resolves a contact for every invoice of the debit list, sets its
// invoice-link and due-date variables, and writes the processed contacts and
// the invoices ignored for lack of a phone.
//
// Authentication failures and a missing or malformed debit list abort the
// run before any contact is touched. Everything else is logged per invoice.
func (s *Service) Run(ctx context.Context) (Result, error) {
	ctx = ctxutil.WithStage(ctx, Stage)
	var result Result

	if s.tokens != nil {
		if _, err := s.tokens.GetToken(ctx); err != nil {
			return result, fmt.Errorf("authenticate: %w", err)
		}
	}

	records, err := handoff.ReadRaw(s.cfg.DebitList)
	if err != nil {
		return result, fmt.Errorf("read debit list: %w", err)
	}
	invoices := make([]charge.Invoice, len(records))
	for i, raw := range records {
		inv, err := handoff.Decode[charge.Invoice](raw)
		if err != nil {
			return result, fmt.Errorf("read debit list: %w: %s: record %d: %v", handoff.ErrInvalidDocument, s.cfg.DebitList, i, err)
		}
		invoices[i] = inv
	}
	result.Invoices = len(records)

	processed := make([]contact.Processed, 0, len(records))
	ignored := make([]json.RawMessage, 0)

	for i, inv := range invoices {
		name := inv.PayerName
		if name == "" {
			name = UnknownPayerName
		}

		phone := charge.NormalizePhone(inv.PayerPhone)
		if phone == "" {
			s.log.Warn("invoice without phone, ignoring", "payer_name", name)
			ignored = append(ignored, records[i])
			continue
		}

		rec, ok := s.resolve(ctx, inv, name, phone, &result)
		if !ok {
			result.Failed++
			continue
		}
		processed = append(processed, rec)
	}

	result.Processed = len(processed)
	result.Ignored = len(ignored)

	if len(processed) > 0 || s.cfg.OverwriteEmpty {
		if err := handoff.Write(s.cfg.ProcessedContacts, processed); err != nil {
			return result, fmt.Errorf("write processed contacts: %w", err)
		}
		s.log.Info("processed contacts written", "path", s.cfg.ProcessedContacts, "count", len(processed))
	}

	if len(ignored) > 0 || s.cfg.OverwriteEmpty {
		if err := handoff.Write(s.cfg.IgnoredInvoices, ignored); err != nil {
			return result, fmt.Errorf("write ignored invoices: %w", err)
		}
		s.log.Warn("ignored invoices written", "path", s.cfg.IgnoredInvoices, "count", len(ignored))
	}

	s.log.Info("contact resolution finished",
		"invoices", result.Invoices,
		"processed", result.Processed,
		"ignored", result.Ignored,
		"created", result.Created,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) resolve(ctx context.Context, inv charge.Invoice, name, phone string, result *Result) (contact.Processed, bool) {
	log := s.log.With("phone", security.MaskPhone(phone))

	id, err := s.directory.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		log.Info("contact found", "contact_id", id.String())
	case errors.Is(err, contact.ErrNotFound):
	default:
		id = ""
		log.Error("contact lookup failed, creating", "error", err)
	}

	if id.IsZero() {
		id, err = s.directory.Create(ctx, contact.NewContact{Phone: phone, Name: name})
		if err != nil || id.IsZero() {
			log.Error("failed to create contact, skipping invoice", "error", err, "payer_name", name)
			return contact.Processed{}, false
		}
		result.Created++
		log.Info("contact created", "contact_id", id.String())
	}

	s.setVariable(ctx, log, id, s.cfg.VariableIDBoleto, inv.BoletoURL)
	s.setVariable(ctx, log, id, s.cfg.VariableIDDueDate, inv.DueDate)

	return contact.Processed{
		ContactID: id,
		Phone:     phone,
		Name:      name,
		BoletoURL: inv.BoletoURL,
		DueDate:   inv.DueDate,
	}, true
}

func (s *Service) setVariable(ctx context.Context, log *slog.Logger, id contact.ID, variableID, value string) {
	if err := s.directory.SetVariable(ctx, id, variableID, value); err != nil {
		log.Error("failed to set contact variable",
			"error", err,
			"contact_id", id.String(),
			"variable_id", variableID,
		)
	}
}
