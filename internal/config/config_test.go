package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymunastore/aretenvi/internal/db"
	"github.com/mymunastore/aretenvi/internal/templates"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultWebhookPath, cfg.WebhookPath)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, db.DefaultSQLitePath, cfg.DBDSN)
	assert.Equal(t, 24*time.Hour, cfg.IdleTimeout)
	assert.Equal(t, templates.DefaultServiceOptions, cfg.ServiceOptions)
	assert.Equal(t, "ARET", cfg.ReferencePrefix)
	assert.False(t, cfg.StaffEnabled())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
http_addr: "127.0.0.1:7070"
webhook_path: "/hooks/twilio"
db_driver: "postgresql"
db_dsn: "postgres://yaml/db"
log_format: "JSON"
admin_token: "yaml-token"
business_name: "Green Uyo"
reference_prefix: "gu"
idle_timeout: "0"
reap_interval: "5m"
queue_size: 4
service_options:
  - "Household Pickup"
  - " "
  - "Bulk Removal"
notify:
  webhook_urls:
    - "https://staff.example.com/hook"
  signing_secret: "yaml-signing"
`)
	t.Setenv(EnvDBDSN, "postgres://env/override")
	t.Setenv(EnvNotifyWebhookURLs, "https://a.example.com/x, https://b.example.com/y")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:7070", cfg.HTTPAddr)
	assert.Equal(t, "/hooks/twilio", cfg.WebhookPath)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://env/override", cfg.DBDSN)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.StaffEnabled())
	assert.Equal(t, "Green Uyo", cfg.BusinessName)
	assert.Equal(t, "GU", cfg.ReferencePrefix)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ReapInterval)
	assert.Equal(t, 4, cfg.QueueSize)
	assert.Equal(t, []string{"Household Pickup", "Bulk Removal"}, cfg.ServiceOptions)
	assert.Equal(t, templates.DefaultPropertyOptions, cfg.PropertyOptions)
	assert.Equal(t, []string{"https://a.example.com/x", "https://b.example.com/y"}, cfg.NotifyWebhookURLs)
	assert.Equal(t, "yaml-signing", cfg.NotifySigningSecret)

	tpl := cfg.Templates()
	assert.Equal(t, "Green Uyo", tpl.BusinessName)
	require.NotNil(t, tpl.Location)
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, writeConfigFile(t, `support_phone: "08000000000"`))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "08000000000", cfg.SupportPhone)
}

func TestLoadFindsHomeConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, writeConfigFileAt(filepath.Join(home, configDirName, alternateConfigFileName), `service_area: "Eket"`))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Eket", cfg.ServiceArea)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfigFile(t, `reap_interval: "soon"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reap_interval")

	_, err = Load(writeConfigFile(t, `idle_timeout: "-1h"`))
	require.Error(t, err)

	_, err = Load(writeConfigFile(t, "http_addr: [unclosed"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv(EnvQueueSize, "many")
	_, err = Load(writeConfigFile(t, `http_addr: ":9090"`))
	require.Error(t, err)
}

func TestLoadRejectsDirectoryAsConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty addr":         func(c *Config) { c.HTTPAddr = "" },
		"relative path":      func(c *Config) { c.WebhookPath = "webhook" },
		"unknown driver":     func(c *Config) { c.DBDriver = "mysql" },
		"empty dsn":          func(c *Config) { c.DBDSN = " " },
		"bad log level":      func(c *Config) { c.LogLevel = "loud" },
		"bad log format":     func(c *Config) { c.LogFormat = "xml" },
		"bad time zone":      func(c *Config) { c.TimeZone = "Mars/Olympus" },
		"prefix with dash":   func(c *Config) { c.ReferencePrefix = "A-B" },
		"negative idle":      func(c *Config) { c.IdleTimeout = -time.Second },
		"zero reap interval": func(c *Config) { c.ReapInterval = 0 },
		"zero queue":         func(c *Config) { c.QueueSize = 0 },
		"no service options": func(c *Config) { c.ServiceOptions = nil },
		"bad notify url":     func(c *Config) { c.NotifyWebhookURLs = []string{"ftp://x"} },
		"bad public url":     func(c *Config) { c.PublicWebhookURL = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeConfigFileAt(path, content))
	return path
}

func writeConfigFileAt(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600)
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		EnvConfigFile,
		EnvHTTPAddr,
		EnvWebhookPath,
		EnvDBDriver,
		EnvDBDSN,
		EnvLogLevel,
		EnvLogFormat,
		EnvWebhookSecret,
		EnvPublicWebhookURL,
		EnvAdminToken,
		EnvBusinessName,
		EnvSupportPhone,
		EnvServiceArea,
		EnvTimeZone,
		EnvRegistrationSource,
		EnvReferencePrefix,
		EnvIdleTimeout,
		EnvReapInterval,
		EnvQueueSize,
		EnvNotifyWebhookURLs,
		EnvNotifySigningSecret,
	} {
		t.Setenv(key, "")
	}
}
