package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/mymunastore/aretenvi/internal/db"
	"github.com/mymunastore/aretenvi/internal/ids"
	"github.com/mymunastore/aretenvi/internal/templates"
	"github.com/mymunastore/aretenvi/internal/types"
)

const (
	EnvHTTPAddr            = "ARET_INTAKE_HTTP_ADDR"
	EnvWebhookPath         = "ARET_INTAKE_WEBHOOK_PATH"
	EnvDBDriver            = "ARET_INTAKE_DB_DRIVER"
	EnvDBDSN               = "ARET_INTAKE_DB_DSN"
	EnvLogLevel            = "ARET_INTAKE_LOG_LEVEL"
	EnvLogFormat           = "ARET_INTAKE_LOG_FORMAT"
	EnvWebhookSecret       = "ARET_INTAKE_WEBHOOK_SECRET"
	EnvPublicWebhookURL    = "ARET_INTAKE_PUBLIC_WEBHOOK_URL"
	EnvAdminToken          = "ARET_INTAKE_ADMIN_TOKEN"
	EnvBusinessName        = "ARET_INTAKE_BUSINESS_NAME"
	EnvSupportPhone        = "ARET_INTAKE_SUPPORT_PHONE"
	EnvServiceArea         = "ARET_INTAKE_SERVICE_AREA"
	EnvTimeZone            = "ARET_INTAKE_TIME_ZONE"
	EnvRegistrationSource  = "ARET_INTAKE_REGISTRATION_SOURCE"
	EnvReferencePrefix     = "ARET_INTAKE_REFERENCE_PREFIX"
	EnvIdleTimeout         = "ARET_INTAKE_IDLE_TIMEOUT"
	EnvReapInterval        = "ARET_INTAKE_REAP_INTERVAL"
	EnvQueueSize           = "ARET_INTAKE_QUEUE_SIZE"
	EnvNotifyWebhookURLs   = "ARET_INTAKE_NOTIFY_WEBHOOK_URLS"
	EnvNotifySigningSecret = "ARET_INTAKE_NOTIFY_SIGNING_SECRET"
)

const (
	DefaultHTTPAddr     = ":8080"
	DefaultWebhookPath  = "/webhook/whatsapp"
	DefaultDBDriver     = "sqlite"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultIdleTimeout  = 24 * time.Hour
	DefaultReapInterval = 15 * time.Minute
	DefaultQueueSize    = 16
)

type Config struct {
	HTTPAddr    string
	WebhookPath string
	DBDriver    string
	DBDSN       string
	LogLevel    string
	LogFormat   string

	// WebhookSecret enables inbound request authentication. PublicWebhookURL
	// is the URL the provider signs, needed behind proxies.
	WebhookSecret    string
	PublicWebhookURL string
	// AdminToken guards the staff endpoints; they are disabled when empty.
	AdminToken string

	BusinessName       string
	SupportPhone       string
	ServiceArea        string
	TimeZone           string
	RegistrationSource string
	ReferencePrefix    string
	ServiceOptions     []string
	PropertyOptions    []string
	ContactTimeOptions []string

	IdleTimeout  time.Duration
	ReapInterval time.Duration
	QueueSize    int

	NotifyWebhookURLs   []string
	NotifySigningSecret string
}

// Load builds the configuration from defaults, the YAML file and the
// environment, in that order of precedence. explicitPath overrides the file
// lookup when non-empty.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	fileCfg, err := loadFileConfig(explicitPath)
	if err != nil {
		return Config{}, err
	}
	if err := applyYAML(&cfg, fileCfg); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Default() Config {
	return Config{
		HTTPAddr:           DefaultHTTPAddr,
		WebhookPath:        DefaultWebhookPath,
		DBDriver:           DefaultDBDriver,
		DBDSN:              db.DefaultSQLitePath,
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		BusinessName:       templates.DefaultBusinessName,
		SupportPhone:       templates.DefaultSupportPhone,
		ServiceArea:        templates.DefaultServiceArea,
		TimeZone:           templates.DefaultTimeZone,
		RegistrationSource: types.RegistrationSourceWhatsApp,
		ReferencePrefix:    ids.DefaultReferencePrefix,
		ServiceOptions:     append([]string(nil), templates.DefaultServiceOptions...),
		PropertyOptions:    append([]string(nil), templates.DefaultPropertyOptions...),
		ContactTimeOptions: append([]string(nil), templates.DefaultContactTimeOptions...),
		IdleTimeout:        DefaultIdleTimeout,
		ReapInterval:       DefaultReapInterval,
		QueueSize:          DefaultQueueSize,
	}
}

func applyYAML(cfg *Config, source fileConfig) error {
	if value := strings.TrimSpace(source.HTTPAddr); value != "" {
		cfg.HTTPAddr = value
	}
	if value := strings.TrimSpace(source.WebhookPath); value != "" {
		cfg.WebhookPath = value
	}
	if value := strings.TrimSpace(source.DBDriver); value != "" {
		cfg.DBDriver = db.NormalizeDriver(value)
	}
	if value := strings.TrimSpace(source.DBDSN); value != "" {
		cfg.DBDSN = value
	}
	if value := strings.TrimSpace(source.LogLevel); value != "" {
		cfg.LogLevel = strings.ToLower(value)
	}
	if value := strings.TrimSpace(source.LogFormat); value != "" {
		cfg.LogFormat = strings.ToLower(value)
	}
	if value := strings.TrimSpace(source.WebhookSecret); value != "" {
		cfg.WebhookSecret = value
	}
	if value := strings.TrimSpace(source.PublicWebhookURL); value != "" {
		cfg.PublicWebhookURL = value
	}
	if value := strings.TrimSpace(source.AdminToken); value != "" {
		cfg.AdminToken = value
	}
	if value := strings.TrimSpace(source.BusinessName); value != "" {
		cfg.BusinessName = value
	}
	if value := strings.TrimSpace(source.SupportPhone); value != "" {
		cfg.SupportPhone = value
	}
	if value := strings.TrimSpace(source.ServiceArea); value != "" {
		cfg.ServiceArea = value
	}
	if value := strings.TrimSpace(source.TimeZone); value != "" {
		cfg.TimeZone = value
	}
	if value := strings.TrimSpace(source.RegistrationSource); value != "" {
		cfg.RegistrationSource = value
	}
	if value := strings.TrimSpace(source.ReferencePrefix); value != "" {
		cfg.ReferencePrefix = strings.ToUpper(value)
	}
	if options := cleanList(source.ServiceOptions); len(options) > 0 {
		cfg.ServiceOptions = options
	}
	if options := cleanList(source.PropertyOptions); len(options) > 0 {
		cfg.PropertyOptions = options
	}
	if options := cleanList(source.ContactTimeOptions); len(options) > 0 {
		cfg.ContactTimeOptions = options
	}
	if urls := cleanList(source.Notify.WebhookURLs); len(urls) > 0 {
		cfg.NotifyWebhookURLs = urls
	}
	if value := strings.TrimSpace(source.Notify.SigningSecret); value != "" {
		cfg.NotifySigningSecret = value
	}
	if source.QueueSize != nil {
		cfg.QueueSize = *source.QueueSize
	}

	idle, err := parseNonNegativeDuration(source.IdleTimeout, cfg.IdleTimeout, "idle_timeout")
	if err != nil {
		return err
	}
	cfg.IdleTimeout = idle

	reap, err := parseOptionalDuration(source.ReapInterval, cfg.ReapInterval, "reap_interval")
	if err != nil {
		return err
	}
	cfg.ReapInterval = reap
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = EnvOrDefault(EnvHTTPAddr, cfg.HTTPAddr)
	cfg.WebhookPath = EnvOrDefault(EnvWebhookPath, cfg.WebhookPath)
	cfg.DBDriver = db.NormalizeDriver(EnvOrDefault(EnvDBDriver, cfg.DBDriver))
	cfg.DBDSN = EnvOrDefault(EnvDBDSN, cfg.DBDSN)
	cfg.LogLevel = strings.ToLower(EnvOrDefault(EnvLogLevel, cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(EnvOrDefault(EnvLogFormat, cfg.LogFormat))
	cfg.WebhookSecret = EnvOrDefault(EnvWebhookSecret, cfg.WebhookSecret)
	cfg.PublicWebhookURL = EnvOrDefault(EnvPublicWebhookURL, cfg.PublicWebhookURL)
	cfg.AdminToken = EnvOrDefault(EnvAdminToken, cfg.AdminToken)
	cfg.BusinessName = EnvOrDefault(EnvBusinessName, cfg.BusinessName)
	cfg.SupportPhone = EnvOrDefault(EnvSupportPhone, cfg.SupportPhone)
	cfg.ServiceArea = EnvOrDefault(EnvServiceArea, cfg.ServiceArea)
	cfg.TimeZone = EnvOrDefault(EnvTimeZone, cfg.TimeZone)
	cfg.RegistrationSource = EnvOrDefault(EnvRegistrationSource, cfg.RegistrationSource)
	cfg.ReferencePrefix = strings.ToUpper(EnvOrDefault(EnvReferencePrefix, cfg.ReferencePrefix))
	cfg.NotifySigningSecret = EnvOrDefault(EnvNotifySigningSecret, cfg.NotifySigningSecret)
	if raw := EnvString(EnvNotifyWebhookURLs); raw != "" {
		cfg.NotifyWebhookURLs = cleanList(strings.Split(raw, ","))
	}

	idle, err := parseNonNegativeDuration(EnvString(EnvIdleTimeout), cfg.IdleTimeout, EnvIdleTimeout)
	if err != nil {
		return err
	}
	cfg.IdleTimeout = idle

	reap, err := parseOptionalDuration(EnvString(EnvReapInterval), cfg.ReapInterval, EnvReapInterval)
	if err != nil {
		return err
	}
	cfg.ReapInterval = reap

	queueSize, err := parseOptionalInt(EnvString(EnvQueueSize), cfg.QueueSize, EnvQueueSize)
	if err != nil {
		return err
	}
	cfg.QueueSize = queueSize
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%s must not be empty", EnvHTTPAddr)
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("%s must start with /", EnvWebhookPath)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%s must be sqlite or postgres", EnvDBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("%s must not be empty", EnvDBDSN)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%s must be debug, info, warn or error", EnvLogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%s must be text or json", EnvLogFormat)
	}
	if c.PublicWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.PublicWebhookURL); err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", EnvPublicWebhookURL, err)
		}
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("%s: %w", EnvTimeZone, err)
	}
	if strings.TrimSpace(c.ReferencePrefix) == "" || strings.Contains(c.ReferencePrefix, "-") {
		return fmt.Errorf("%s must be non-empty and must not contain '-'", EnvReferencePrefix)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%s must be >= 0", EnvIdleTimeout)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("%s must be > 0", EnvReapInterval)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%s must be > 0", EnvQueueSize)
	}
	for name, options := range map[string][]string{
		"service_options":      c.ServiceOptions,
		"property_options":     c.PropertyOptions,
		"contact_time_options": c.ContactTimeOptions,
	} {
		if len(options) == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	for _, raw := range c.NotifyWebhookURLs {
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", EnvNotifyWebhookURLs, raw)
		}
	}
	return nil
}

// Templates returns the message template settings. Validate must have
// accepted the time zone.
func (c Config) Templates() templates.Config {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	return templates.Config{
		BusinessName:       c.BusinessName,
		SupportPhone:       c.SupportPhone,
		ServiceArea:        c.ServiceArea,
		ServiceOptions:     c.ServiceOptions,
		PropertyOptions:    c.PropertyOptions,
		ContactTimeOptions: c.ContactTimeOptions,
		Location:           loc,
	}
}

func (c Config) StaffEnabled() bool {
	return strings.TrimSpace(c.AdminToken) != ""
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
