package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
webhook:
  secret_ref: webhook_secret
secrets:
  dir: /var/lib/eureka-ci/secrets
config_store:
  root: /var/lib/eureka-ci/objects
github:
  app_id: 12345
  private_key_ref: github_app_key
  dispatch_repo: folio-org/kitfox-github
`

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "eureka-ci", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "/webhook", cfg.Webhook.Path)
	assert.Equal(t, "X-Event-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "X-Event-Name", cfg.Webhook.EventHeader)
	assert.Equal(t, "X-Delivery-Id", cfg.Webhook.DeliveryHeader)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodySize)
	assert.Equal(t, "config/workflows.json", cfg.ConfigStore.MappingKey)
	assert.Equal(t, 5*time.Minute, cfg.ConfigStore.CacheTTL)
	assert.Equal(t, "main", cfg.GitHub.DispatchRef)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 4, cfg.Queue.MaxDeliveries)
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_SECRETS_DIR", "/tmp/secrets")

	cfg, err := Load(writeConfig(t, `
webhook:
  secret_ref: webhook_secret
secrets:
  dir: ${TEST_SECRETS_DIR}
config_store:
  root: /var/lib/eureka-ci/objects
github:
  app_id: 12345
  private_key_ref: github_app_key
  dispatch_repo: folio-org/kitfox-github
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/secrets", cfg.Secrets.Dir)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing secret ref",
			content: `
secrets:
  dir: /secrets
config_store:
  root: /objects
github:
  app_id: 1
  private_key_ref: key
  dispatch_repo: org/repo
`,
			wantErr: "webhook.secret_ref",
		},
		{
			name: "missing app id",
			content: `
webhook:
  secret_ref: s
secrets:
  dir: /secrets
config_store:
  root: /objects
github:
  private_key_ref: key
  dispatch_repo: org/repo
`,
			wantErr: "github.app_id",
		},
		{
			name: "unresolved api auth key",
			content: `
webhook:
  secret_ref: s
secrets:
  dir: /secrets
config_store:
  root: /objects
github:
  app_id: 1
  private_key_ref: key
  dispatch_repo: org/repo
api:
  enabled: true
  auth_key: ${EUREKA_CI_UNSET_VAR_FOR_TEST}
`,
			wantErr: "EUREKA_CI_UNSET_VAR_FOR_TEST",
		},
		{
			name: "bad log level",
			content: minimalConfig + `
service:
  log_level: verbose
`,
			wantErr: "service.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
