package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"oralplatinum/cobranca/internal/core/tier"
)

// AppConfig encapsulates all runtime configuration knobs. It is built once at
// process start and passed down to every stage.
type AppConfig struct {
	App       AppSettings
	Log       LogSettings
	Tier      TierSettings
	Billing   BillingSettings
	Messaging MessagingSettings
	Database  DatabaseSettings
	Audit     AuditSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

type LogSettings struct {
	Level string
}

// TierSettings selects the reminder tier and where its handoff files live.
type TierSettings struct {
	Tier     tier.Tier
	DataDir  string
	Location *time.Location
	// OverwriteEmpty makes the contact resolver replace its output files even
	// when a run produced no records.
	OverwriteEmpty bool
}

// BillingSettings configures the Clinicorp payment listing.
type BillingSettings struct {
	BaseURL      string
	Username     string
	APIToken     string
	SubscriberID string
	WindowDays   int
	Timeout      time.Duration
}

// MessagingSettings configures the SendPulse WhatsApp bot.
type MessagingSettings struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	BotID             string
	VariableIDBoleto  string
	VariableIDDueDate string
	FlowID            string
	TemplateName      string
	TemplateLanguage  string
	TemplateParams    []string
	ButtonChains      []string
	TokenTTL          time.Duration
	Timeout           time.Duration
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuditSettings struct {
	Enabled         bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// HasCredentials reports whether the SendPulse client credentials are set.
func (m MessagingSettings) HasCredentials() bool {
	return m.ClientID != "" && m.ClientSecret != ""
}

// Configured reports whether enough is set to open a database connection.
func (d DatabaseSettings) Configured() bool {
	return d.Host != "" && d.Database != ""
}

var templateParamNames = map[string]bool{
	"name":       true,
	"due_date":   true,
	"boleto_url": true,
}

// Load resolves the application configuration from environment variables.
// It first attempts to load variables from a .env file if it exists.
// Environment variables set in the system take precedence over .env file values.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "cobranca_dispatcher"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tier: TierSettings{
			DataDir:        getEnv("DATA_DIR", "."),
			OverwriteEmpty: getEnvAsBool("HANDOFF_OVERWRITE_EMPTY", false),
		},
		Billing: BillingSettings{
			BaseURL:      strings.TrimRight(getEnv("CLINICORP_BASE_URL", "https://api.clinicorp.com/rest/v1"), "/"),
			Username:     strings.TrimSpace(os.Getenv("CLINICORP_USERNAME")),
			APIToken:     strings.TrimSpace(os.Getenv("CLINICORP_API_TOKEN")),
			SubscriberID: strings.TrimSpace(os.Getenv("CLINICORP_SUBSCRIBER_ID")),
			WindowDays:   getEnvAsInt("BILLING_WINDOW_DAYS", 60),
			Timeout:      getEnvAsDuration("BILLING_TIMEOUT", 60*time.Second),
		},
		Messaging: MessagingSettings{
			BaseURL:           strings.TrimRight(getEnv("SENDPULSE_BASE_URL", "https://api.sendpulse.com"), "/"),
			ClientID:          strings.TrimSpace(os.Getenv("SENDPULSE_CLIENT_ID")),
			ClientSecret:      strings.TrimSpace(os.Getenv("SENDPULSE_CLIENT_SECRET")),
			BotID:             strings.TrimSpace(os.Getenv("BOT_ID")),
			VariableIDBoleto:  strings.TrimSpace(os.Getenv("VARIABLE_ID_BOLETO")),
			VariableIDDueDate: strings.TrimSpace(os.Getenv("VARIABLE_ID_DUE_DATE")),
			FlowID:            strings.TrimSpace(os.Getenv("FLOW_ID")),
			TemplateName:      getEnv("SENDPULSE_TEMPLATE_NAME", "lembrete_vencimento_fatura"),
			TemplateLanguage:  getEnv("SENDPULSE_TEMPLATE_LANGUAGE", "pt_BR"),
			TemplateParams:    getEnvAsCSV("SENDPULSE_TEMPLATE_PARAMS", []string{"name"}),
			ButtonChains:      getEnvAsCSV("SENDPULSE_BUTTON_CHAINS", []string{"678705b4cfe336449105da5b", "6787060e316f5ff9830e5f33"}),
			TokenTTL:          getEnvAsDuration("SENDPULSE_TOKEN_TTL", 1*time.Hour),
			Timeout:           getEnvAsDuration("SENDPULSE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseSettings{
			Host:            strings.TrimSpace(os.Getenv("DB_HOST")),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        strings.TrimSpace(os.Getenv("DB_NAME")),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Audit: AuditSettings{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			LogRequestBody:  getEnvAsBool("AUDIT_LOG_REQUEST_BODY", false),
			LogResponseBody: getEnvAsBool("AUDIT_LOG_RESPONSE_BODY", false),
			MaxBodySize:     getEnvAsInt("AUDIT_MAX_BODY_SIZE", 102400),
		},
	}

	t, err := loadTier()
	if err != nil {
		return cfg, err
	}
	cfg.Tier.Tier = t

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		return cfg, fmt.Errorf("invalid config: TIMEZONE: %w", err)
	}
	cfg.Tier.Location = loc

	if cfg.Billing.WindowDays <= 0 {
		return cfg, errors.New("invalid config: BILLING_WINDOW_DAYS must be greater than 0")
	}
	if cfg.Billing.WindowDays < cfg.Tier.Tier.MaxDays {
		return cfg, fmt.Errorf("invalid config: BILLING_WINDOW_DAYS (%d) must cover the tier's max days (%d)", cfg.Billing.WindowDays, cfg.Tier.Tier.MaxDays)
	}

	for _, p := range cfg.Messaging.TemplateParams {
		if !templateParamNames[p] {
			return cfg, fmt.Errorf("invalid config: SENDPULSE_TEMPLATE_PARAMS: unknown parameter %q", p)
		}
	}

	return cfg, nil
}

// loadTier resolves TIER to a preset and applies DUE_MIN_DAYS/DUE_MAX_DAYS
// overrides. A tier name without a preset must provide both bounds. Bounds
// may be negative to select invoices not yet due.
func loadTier() (tier.Tier, error) {
	name := strings.TrimSpace(getEnv("TIER", "ten-days"))

	t, preset := tier.Preset(name)
	if !preset {
		t = tier.Tier{Name: name}
	}

	minDays, minSet, err := lookupEnvAsInt("DUE_MIN_DAYS")
	if err != nil {
		return t, err
	}
	maxDays, maxSet, err := lookupEnvAsInt("DUE_MAX_DAYS")
	if err != nil {
		return t, err
	}

	if !preset && (!minSet || !maxSet) {
		return t, fmt.Errorf("invalid config: TIER %q is not one of %v; set DUE_MIN_DAYS and DUE_MAX_DAYS", name, tier.Names())
	}
	if minSet {
		t.MinDays = minDays
	}
	if maxSet {
		t.MaxDays = maxDays
	}

	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid config: %w", err)
	}
	return t, nil
}

// lookupEnvAsInt reports whether key is set and, if so, its integer value.
func lookupEnvAsInt(key string) (int, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, true, fmt.Errorf("invalid config: %s: %w", key, err)
	}
	return n, true, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
