package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Webhook  WebhookConfig
	Provider ProviderConfig
	Billing  BillingDefaults
	Issuer   IssuerConfig
}

// IssuerConfig is the seller block printed on rendered invoices.
type IssuerConfig struct {
	Name        string
	Address     string
	Email       string
	TaxID       string
	BankDetails string
}

// WebhookConfig holds inbound webhook authentication settings.
type WebhookConfig struct {
	Secret     string
	HeaderName string
}

// ProviderConfig selects and configures the remote invoicing provider.
type ProviderConfig struct {
	Kind    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

const (
	ProviderKindNone   = "none"
	ProviderKindStripe = "stripe"
	ProviderKindHTTP   = "http"
)

// BillingDefaults are the env-level billing knobs. Per-contact overrides live in billing.yml.
type BillingDefaults struct {
	DefaultVATPercent      decimal.Decimal
	NumberPadding          int
	DefaultAccountCode     string
	DefaultCurrency        string
	DueInDays              int
	Schedule               string
	MirrorRetrySchedule    string
	PeriodOffsetMonths     int
	Concurrency            int
	Timezone               string
	RunTimeout             time.Duration
	RecurringDescription   string
	SchedulerEnabled       bool
	SchedulerLockTTL       time.Duration
	DocumentResolveTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "worksuite"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "worksuite"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		Webhook: WebhookConfig{
			Secret:     strings.TrimSpace(getenv("BILLING_WEBHOOK_SECRET", "")),
			HeaderName: getenv("BILLING_WEBHOOK_HEADER", "X-Webhook-Secret"),
		},
		Provider: ProviderConfig{
			Kind:    normalizeProviderKind(getenv("BILLING_PROVIDER", ProviderKindNone)),
			BaseURL: strings.TrimRight(strings.TrimSpace(getenv("BILLING_PROVIDER_BASE_URL", "")), "/"),
			APIKey:  strings.TrimSpace(getenv("BILLING_PROVIDER_API_KEY", "")),
			Timeout: getenvDuration("BILLING_PROVIDER_TIMEOUT", 10*time.Second),
			Retries: getenvInt("BILLING_PROVIDER_RETRIES", 3),
		},
		Billing: BillingDefaults{
			DefaultVATPercent:      getenvDecimal("BILLING_DEFAULT_VAT_PERCENT", decimal.NewFromInt(21)),
			NumberPadding:          getenvInt("BILLING_NUMBER_PADDING", 3),
			DefaultAccountCode:     strings.TrimSpace(getenv("BILLING_DEFAULT_ACCOUNT", "F")),
			DefaultCurrency:        strings.ToUpper(getenv("BILLING_DEFAULT_CURRENCY", "EUR")),
			DueInDays:              getenvInt("BILLING_DUE_IN_DAYS", 15),
			Schedule:               getenv("BILLING_SCHEDULE", "0 6 1 * *"),
			MirrorRetrySchedule:    getenv("BILLING_MIRROR_RETRY_SCHEDULE", "@every 15m"),
			PeriodOffsetMonths:     getenvInt("BILLING_PERIOD_OFFSET_MONTHS", -1),
			Concurrency:            getenvInt("BILLING_CONCURRENCY", 4),
			Timezone:               getenv("BILLING_TIMEZONE", "UTC"),
			RunTimeout:             getenvDuration("BILLING_RUN_TIMEOUT", 30*time.Minute),
			RecurringDescription:   getenv("BILLING_RECURRING_DESCRIPTION", "Monthly subscription"),
			SchedulerEnabled:       getenvBool("BILLING_SCHEDULER_ENABLED", true),
			SchedulerLockTTL:       getenvDuration("BILLING_SCHEDULER_LOCK_TTL", time.Hour),
			DocumentResolveTimeout: getenvDuration("BILLING_DOCUMENT_RESOLVE_TIMEOUT", 5*time.Second),
		},
		Issuer: IssuerConfig{
			Name:        getenv("BILLING_ISSUER_NAME", "Worksuite"),
			Address:     getenv("BILLING_ISSUER_ADDRESS", ""),
			Email:       getenv("BILLING_ISSUER_EMAIL", ""),
			TaxID:       getenv("BILLING_ISSUER_TAX_ID", ""),
			BankDetails: getenv("BILLING_ISSUER_BANK_DETAILS", ""),
		},
	}

	return cfg
}

func normalizeProviderKind(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProviderKindStripe:
		return ProviderKindStripe
	case ProviderKindHTTP:
		return ProviderKindHTTP
	default:
		return ProviderKindNone
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil || parsed.IsNegative() {
		return def
	}
	return parsed
}
