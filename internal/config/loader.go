package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, applies defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply environment variable interpolation before parsing so secrets and
	// listen addresses can come from the environment.
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $EUREKA_CI_CONFIG, ~/.config/eureka-ci/config.yaml,
// /etc/eureka-ci/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if path := os.Getenv("EUREKA_CI_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "eureka-ci", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/eureka-ci/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	legacyConfig := "./config.yaml"
	if _, err := os.Stat(legacyConfig); err == nil {
		return legacyConfig, nil
	}

	return "", fmt.Errorf("no config found (checked: $EUREKA_CI_CONFIG, ~/.config/eureka-ci, /etc/eureka-ci, ./config.yaml)")
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// applyDefaults merges default values into cfg where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if cfg.Webhook.EventHeader == "" {
		cfg.Webhook.EventHeader = defaults.Webhook.EventHeader
	}
	if cfg.Webhook.DeliveryHeader == "" {
		cfg.Webhook.DeliveryHeader = defaults.Webhook.DeliveryHeader
	}
	if cfg.Webhook.MaxBodySize == 0 {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = defaults.Secrets.CacheTTL
	}

	if cfg.ConfigStore.MappingKey == "" {
		cfg.ConfigStore.MappingKey = defaults.ConfigStore.MappingKey
	}
	if cfg.ConfigStore.CacheTTL == 0 {
		cfg.ConfigStore.CacheTTL = defaults.ConfigStore.CacheTTL
	}

	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = defaults.GitHub.BaseURL
	}
	if cfg.GitHub.DispatchRef == "" {
		cfg.GitHub.DispatchRef = defaults.GitHub.DispatchRef
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = defaults.GitHub.RequestTimeout
	}

	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = defaults.Queue.Workers
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = defaults.Queue.PollInterval
	}
	if cfg.Queue.VisibilityTimeout == 0 {
		cfg.Queue.VisibilityTimeout = defaults.Queue.VisibilityTimeout
	}
	if cfg.Queue.MaxDeliveries == 0 {
		cfg.Queue.MaxDeliveries = defaults.Queue.MaxDeliveries
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Webhook.SecretRef == "" {
		return fmt.Errorf("webhook.secret_ref is required")
	}
	if cfg.Webhook.MaxBodySize < 0 {
		return fmt.Errorf("webhook.max_body_size must be positive")
	}

	if cfg.Secrets.Dir == "" {
		return fmt.Errorf("secrets.dir is required")
	}

	if cfg.ConfigStore.Root == "" {
		return fmt.Errorf("config_store.root is required")
	}

	if cfg.GitHub.AppID <= 0 {
		return fmt.Errorf("github.app_id is required")
	}
	if cfg.GitHub.PrivateKeyRef == "" {
		return fmt.Errorf("github.private_key_ref is required")
	}
	if cfg.GitHub.DispatchRepo == "" {
		return fmt.Errorf("github.dispatch_repo is required")
	}

	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if cfg.Queue.MaxDeliveries < 1 {
		return fmt.Errorf("queue.max_deliveries must be at least 1")
	}

	// Security: unresolved env vars in the API auth key would otherwise be
	// compared against client-supplied tokens verbatim.
	if cfg.API.Enabled {
		if cfg.API.AuthKey == "" {
			return fmt.Errorf("api.auth_key is required when api.enabled is true")
		}
		if matches := envVarPattern.FindStringSubmatch(cfg.API.AuthKey); len(matches) > 1 {
			return fmt.Errorf("api.auth_key: environment variable ${%s} is not set", matches[1])
		}
	}

	return nil
}
