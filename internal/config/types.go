package config

import "time"

// Config is the root service configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	API         APIConfig         `yaml:"api"`
	State       StateConfig       `yaml:"state"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	ConfigStore ConfigStoreConfig `yaml:"config_store"`
	GitHub      GitHubConfig      `yaml:"github"`
	Queue       QueueConfig       `yaml:"queue"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// WebhookConfig configures the ingress HTTP server.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`

	// SecretRef names the webhook shared secret in the secret store.
	SecretRef string `yaml:"secret_ref"`

	// Header names are configurable because staging environments front the
	// service with proxies that rewrite them.
	SignatureHeader string `yaml:"signature_header"`
	EventHeader     string `yaml:"event_header"`
	DeliveryHeader  string `yaml:"delivery_header"`

	MaxBodySize int64 `yaml:"max_body_size"`
}

// APIConfig configures the operator API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	AuthKey string `yaml:"auth_key"`
}

// StateConfig locates the SQLite state database.
type StateConfig struct {
	Path string `yaml:"path"`
}

// SecretsConfig locates the secret store.
type SecretsConfig struct {
	Dir      string        `yaml:"dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ConfigStoreConfig locates the repository-workflow mapping document.
type ConfigStoreConfig struct {
	Root       string        `yaml:"root"`
	MappingKey string        `yaml:"mapping_key"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// GitHubConfig holds the App identity and dispatch defaults.
type GitHubConfig struct {
	AppID          int64         `yaml:"app_id"`
	PrivateKeyRef  string        `yaml:"private_key_ref"`
	BaseURL        string        `yaml:"base_url"`
	DispatchRepo   string        `yaml:"dispatch_repo"`
	DispatchRef    string        `yaml:"dispatch_ref"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// QueueConfig tunes the event queue and processor workers.
type QueueConfig struct {
	Workers           int           `yaml:"workers"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxDeliveries     int           `yaml:"max_deliveries"`
}

// Defaults returns the built-in default configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "eureka-ci",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Webhook: WebhookConfig{
			Listen:          "127.0.0.1:8080",
			Path:            "/webhook",
			SignatureHeader: "X-Event-Signature",
			EventHeader:     "X-Event-Name",
			DeliveryHeader:  "X-Delivery-Id",
			MaxBodySize:     1 << 20, // 1 MB
		},
		API: APIConfig{
			Listen: "127.0.0.1:8081",
		},
		State: StateConfig{
			Path: "./state/eureka-ci.db",
		},
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
		ConfigStore: ConfigStoreConfig{
			MappingKey: "config/workflows.json",
			CacheTTL:   5 * time.Minute,
		},
		GitHub: GitHubConfig{
			BaseURL:        "https://api.github.com/",
			DispatchRef:    "main",
			RequestTimeout: 30 * time.Second,
		},
		Queue: QueueConfig{
			Workers:           4,
			PollInterval:      time.Second,
			VisibilityTimeout: 2 * time.Minute,
			MaxDeliveries:     4,
		},
	}
}
