// Package app wires configuration, logging, the audit trail and the provider
// clients into the pipeline stages shared by every command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	auditpg "oralplatinum/cobranca/internal/adapters/audit/postgres"
	"oralplatinum/cobranca/internal/adapters/billing/clinicorp"
	"oralplatinum/cobranca/internal/adapters/messaging/sendpulse"
	"oralplatinum/cobranca/internal/application/dispatcher"
	"oralplatinum/cobranca/internal/application/finder"
	"oralplatinum/cobranca/internal/application/pipeline"
	"oralplatinum/cobranca/internal/application/resolver"
	"oralplatinum/cobranca/internal/core/audit"
	"oralplatinum/cobranca/internal/infrastructure/config"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/infrastructure/database"
	"oralplatinum/cobranca/internal/infrastructure/handoff"
	httpclient "oralplatinum/cobranca/internal/infrastructure/http"
	"oralplatinum/cobranca/internal/infrastructure/logger"
)

// Provider names used in logs and the audit trail.
const (
	ProviderClinicorp = "clinicorp"
	ProviderSendPulse = "sendpulse"
)

// App holds what one process run shares between stages.
type App struct {
	cfg       config.AppConfig
	base      *slog.Logger
	log       *slog.Logger
	runID     string
	paths     handoff.Paths
	pool      *pgxpool.Pool
	auditRepo audit.Repository
	now       func() time.Time
}

// Option customizes an App.
type Option func(*App)

// WithClock replaces the wall clock used by the charge finder.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// WithAuditRepository replaces the database-backed audit trail.
func WithAuditRepository(repo audit.Repository) Option {
	return func(a *App) {
		a.auditRepo = repo
	}
}

// New prepares a run. When a database is configured and auditing is enabled
// the audit trail is opened and migrated; a database that cannot be reached
// disables the audit trail instead of failing the run.
func New(ctx context.Context, cfg config.AppConfig, log *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:   cfg,
		base:  log,
		runID: ctxutil.NewRunID(),
		paths: handoff.PathsFor(cfg.Tier.DataDir, cfg.Tier.Tier.Name),
		now:   time.Now,
	}
	a.log = log.With("run_id", a.runID, "tier", cfg.Tier.Tier.Name)

	for _, opt := range opts {
		opt(a)
	}

	if a.auditRepo == nil && cfg.Audit.Enabled && cfg.Database.Configured() {
		a.openAuditTrail(ctx)
	}
	if a.auditRepo == nil {
		a.log.Info("audit trail disabled",
			"audit_enabled_config", cfg.Audit.Enabled,
			"database_configured", cfg.Database.Configured(),
		)
	}

	return a
}

func (a *App) openAuditTrail(ctx context.Context) {
	db := a.cfg.Database
	pool, err := database.NewPool(ctx, database.Config{
		Host:            db.Host,
		Port:            db.Port,
		Database:        db.Database,
		User:            db.User,
		Password:        db.Password,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	})
	if err != nil {
		a.log.Warn("failed to connect to database, audit trail disabled",
			"error", err,
			"host", db.Host,
			"database", db.Database,
		)
		return
	}

	if err := database.RunMigrations(ctx, pool, a.log); err != nil {
		pool.Close()
		a.log.Warn("failed to migrate audit database, audit trail disabled", "error", err)
		return
	}

	a.pool = pool
	a.auditRepo = auditpg.NewRepository(pool, a.log)
	a.log.Info("audit trail enabled", "database", db.Database, "max_body_size", a.cfg.Audit.MaxBodySize)
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// RunID identifies this run in logs, provider requests and the audit trail.
func (a *App) RunID() string {
	return a.runID
}

// Paths returns the handoff documents of the configured tier.
func (a *App) Paths() handoff.Paths {
	return a.paths
}

// Context tags ctx with the run id.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxutil.WithRunID(ctx, a.runID)
}

func (a *App) stageLog(stage string) *slog.Logger {
	return logger.ForStage(a.base, stage, a.cfg.Tier.Tier.Name, a.runID)
}

func (a *App) tracedClient(log *slog.Logger, provider string, timeout time.Duration) *httpclient.TracedClient {
	return httpclient.NewTracedClient(&httpclient.TracedClientConfig{
		Timeout:         timeout,
		AuditEnabled:    a.cfg.Audit.Enabled,
		LogRequestBody:  a.cfg.Audit.LogRequestBody,
		LogResponseBody: a.cfg.Audit.LogResponseBody,
		MaxBodySize:     a.cfg.Audit.MaxBodySize,
	}, log, a.auditRepo, provider)
}

// ChargeFinder builds the charge finder stage.
func (a *App) ChargeFinder() *finder.Service {
	b := a.cfg.Billing
	log := a.stageLog(finder.Stage)
	client := clinicorp.NewClient(b.BaseURL, b.Username, b.APIToken, a.tracedClient(log, ProviderClinicorp, b.Timeout), log)

	return finder.NewService(client, finder.Config{
		Tier:         a.cfg.Tier.Tier,
		SubscriberID: b.SubscriberID,
		WindowDays:   b.WindowDays,
		DebitList:    a.paths.DebitList,
		Location:     a.cfg.Tier.Location,
	}, log, finder.WithClock(a.now))
}

func (a *App) sendPulse(log *slog.Logger) (*sendpulse.Client, *sendpulse.AuthManager, error) {
	m := a.cfg.Messaging
	httpClient := a.tracedClient(log, ProviderSendPulse, m.Timeout)

	auth, err := sendpulse.NewAuthManager(m.BaseURL, m.ClientID, m.ClientSecret, m.TokenTTL, httpClient, log)
	if err != nil {
		return nil, nil, err
	}

	client := sendpulse.NewClient(sendpulse.Config{
		BaseURL:          m.BaseURL,
		BotID:            m.BotID,
		TemplateName:     m.TemplateName,
		TemplateLanguage: m.TemplateLanguage,
		TemplateParams:   m.TemplateParams,
		ButtonChains:     m.ButtonChains,
	}, auth, httpClient, log)
	return client, auth, nil
}

// ContactResolver builds the contact resolver stage. It fails with
// sendpulse.ErrMissingCredentials when the client credentials are not set.
func (a *App) ContactResolver() (*resolver.Service, error) {
	log := a.stageLog(resolver.Stage)
	client, auth, err := a.sendPulse(log)
	if err != nil {
		return nil, err
	}

	return resolver.NewService(client, auth, resolver.Config{
		DebitList:         a.paths.DebitList,
		ProcessedContacts: a.paths.ProcessedContacts,
		IgnoredInvoices:   a.paths.IgnoredInvoices,
		VariableIDBoleto:  a.cfg.Messaging.VariableIDBoleto,
		VariableIDDueDate: a.cfg.Messaging.VariableIDDueDate,
		OverwriteEmpty:    a.cfg.Tier.OverwriteEmpty,
	}, log), nil
}

// ReminderDispatcher builds the reminder dispatcher stage. It fails with
// sendpulse.ErrMissingCredentials when the client credentials are not set.
func (a *App) ReminderDispatcher() (*dispatcher.Service, error) {
	log := a.stageLog(dispatcher.Stage)
	client, auth, err := a.sendPulse(log)
	if err != nil {
		return nil, err
	}

	return dispatcher.NewService(client, auth, dispatcher.Config{
		ProcessedContacts: a.paths.ProcessedContacts,
		FlowID:            a.cfg.Messaging.FlowID,
	}, log), nil
}

// Stages returns the three stages of a tier run in pipeline order. Each
// stage is built when it runs, so a stage that cannot be built fails alone.
func (a *App) Stages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: finder.Stage, Run: a.runChargeFinder},
		{Name: resolver.Stage, Run: a.runContactResolver},
		{Name: dispatcher.Stage, Run: a.runReminderDispatcher},
	}
}

// RunStage runs the named stage alone.
func (a *App) RunStage(ctx context.Context, name string) error {
	for _, stage := range a.Stages() {
		if stage.Name == name {
			return stage.Run(ctx)
		}
	}
	return fmt.Errorf("unknown stage %q", name)
}

func (a *App) runChargeFinder(ctx context.Context) error {
	_, err := a.ChargeFinder().Run(a.Context(ctx))
	return err
}

func (a *App) runContactResolver(ctx context.Context) error {
	svc, err := a.ContactResolver()
	if err != nil {
		return err
	}
	_, err = svc.Run(a.Context(ctx))
	return err
}

func (a *App) runReminderDispatcher(ctx context.Context) error {
	svc, err := a.ReminderDispatcher()
	if err != nil {
		return err
	}
	_, err = svc.Run(a.Context(ctx))
	return err
}
