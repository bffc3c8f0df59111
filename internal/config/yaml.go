package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigFile           = "ARET_INTAKE_CONFIG_FILE"
	configDirName           = ".aret"
	defaultConfigFileName   = "config.yaml"
	alternateConfigFileName = "config.yml"
)

type fileConfig struct {
	HTTPAddr           string           `yaml:"http_addr"`
	WebhookPath        string           `yaml:"webhook_path"`
	DBDriver           string           `yaml:"db_driver"`
	DBDSN              string           `yaml:"db_dsn"`
	LogLevel           string           `yaml:"log_level"`
	LogFormat          string           `yaml:"log_format"`
	WebhookSecret      string           `yaml:"webhook_secret"`
	PublicWebhookURL   string           `yaml:"public_webhook_url"`
	AdminToken         string           `yaml:"admin_token"`
	BusinessName       string           `yaml:"business_name"`
	SupportPhone       string           `yaml:"support_phone"`
	ServiceArea        string           `yaml:"service_area"`
	TimeZone           string           `yaml:"time_zone"`
	RegistrationSource string           `yaml:"registration_source"`
	ReferencePrefix    string           `yaml:"reference_prefix"`
	IdleTimeout        string           `yaml:"idle_timeout"`
	ReapInterval       string           `yaml:"reap_interval"`
	QueueSize          *int             `yaml:"queue_size"`
	ServiceOptions     []string         `yaml:"service_options"`
	PropertyOptions    []string         `yaml:"property_options"`
	ContactTimeOptions []string         `yaml:"contact_time_options"`
	Notify             fileNotifyConfig `yaml:"notify"`
}

type fileNotifyConfig struct {
	WebhookURLs   []string `yaml:"webhook_urls"`
	SigningSecret string   `yaml:"signing_secret"`
}

func loadFileConfig(explicitPath string) (fileConfig, error) {
	path, ok, err := resolveConfigFilePath(explicitPath)
	if err != nil {
		return fileConfig{}, err
	}
	if !ok {
		return fileConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

func resolveConfigFilePath(explicitPath string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	if explicit == "" {
		explicit = EnvString(EnvConfigFile)
	}
	if explicit != "" {
		resolvedPath, err := expandPath(explicit)
		if err != nil {
			return "", false, fmt.Errorf("resolve config path: %w", err)
		}
		info, err := os.Stat(resolvedPath)
		if err != nil {
			return "", false, fmt.Errorf("config file %s: %w", resolvedPath, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config file %s is a directory", resolvedPath)
		}
		return resolvedPath, true, nil
	}

	candidates := []string{
		filepath.Join(configDirName, defaultConfigFileName),
		filepath.Join(configDirName, alternateConfigFileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates,
			filepath.Join(homeDir, configDirName, defaultConfigFileName),
			filepath.Join(homeDir, configDirName, alternateConfigFileName),
		)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}
	return "", false, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(trimmed, "~/")), nil
	}
	return trimmed, nil
}
