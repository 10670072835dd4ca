package finder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"oralplatinum/cobranca/internal/core/charge"
	"oralplatinum/cobranca/internal/core/tier"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/infrastructure/handoff"
)

// Stage is the name the charge finder runs and logs under.
const Stage = "charge_finder"

// Config holds the charge finder settings.
type Config struct {
	Tier         tier.Tier
	SubscriberID string
	// WindowDays is how far back, in days, payments are listed.
	WindowDays int
	// DebitList is where the selected invoices are written.
	DebitList string
	Location  *time.Location
}

// Result summarizes one run.
type Result struct {
	Listed   int
	Selected int
	Skipped  int
	Written  bool
}

// Service selects the overdue invoices of a tier.
type Service struct {
	provider charge.Provider
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock used to compute "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a charge finder reading from provider.
func NewService(provider charge.Provider, cfg Config, log *slog.Logger, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{
		provider: provider,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run lists the payments due in the window, extended past today for tiers
// with a negative lower bound, keeps those whose days overdue fall in the tier and writes them sorted by due date.
//
// A failed listing is logged and treated as an empty one. When the provider
// returns nothing the previous debit list is left in place; when it returns
// payments none of which qualify an empty list is written. Only a failure to
// write the debit list is returned.
func (s *Service) Run(ctx context.Context) (Result, error) {
	ctx = ctxutil.WithStage(ctx, Stage)

	var result Result
	today := s.now().In(s.cfg.Location)
	query := charge.PaymentQuery{
		SubscriberID: s.cfg.SubscriberID,
		From:         today.AddDate(0, 0, -s.cfg.WindowDays),
		To:           today,
		SearchType:   charge.SearchByDueDate,
	}
	// A tier with a negative lower bound selects invoices not yet due.
	if s.cfg.Tier.MinDays < 0 {
		query.To = today.AddDate(0, 0, -s.cfg.Tier.MinDays)
	}

	payments, err := s.provider.ListPayments(ctx, query)
	if err != nil {
		s.log.Error("failed to list payments, treating as empty", "error", err)
		payments = nil
	}
	result.Listed = len(payments)
	s.log.Info("payments listed", "count", result.Listed, "window_days", s.cfg.WindowDays)

	if len(payments) == 0 {
		s.log.Warn("no payments found, debit list left untouched", "path", s.cfg.DebitList)
		return result, nil
	}

	invoices := make([]charge.Invoice, 0, len(payments))
	for _, p := range payments {
		inv, err := charge.NewInvoice(p, today)
		if err != nil {
			result.Skipped++
			s.log.Warn("skipping payment with unusable due date",
				"error", err,
				"payer_name", p.PayerName,
			)
			continue
		}
		if !s.cfg.Tier.Contains(inv.DaysDue) {
			continue
		}
		invoices = append(invoices, inv)
	}
	charge.SortByDueDate(invoices)
	result.Selected = len(invoices)

	if err := handoff.Write(s.cfg.DebitList, invoices); err != nil {
		return result, fmt.Errorf("write debit list: %w", err)
	}
	result.Written = true

	s.log.Info("debit list written",
		"path", s.cfg.DebitList,
		"selected", result.Selected,
		"skipped", result.Skipped,
		"min_days", s.cfg.Tier.MinDays,
		"max_days", s.cfg.Tier.MaxDays,
	)
	return result, nil
}
