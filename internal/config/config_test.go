package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "  https://api.example.com/v1///  ")
	t.Setenv("HTTP_TIMEOUT", "")
	t.Setenv("OIDC_ISSUER", "")
	t.Setenv("COGNITO_REGION", "ap-southeast-1")
	t.Setenv("COGNITO_DOMAIN", "sksbus")
	t.Setenv("INVENTORY_REMOVE_MODE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://sksbus.auth.ap-southeast-1.amazoncognito.com", cfg.OIDCIssuer)
	assert.Equal(t, "decrement", cfg.InventoryRemoveMode)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.OIDCScopes)
}

func TestFromEnv_MissingBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "   ")
	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:8081/api")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("OIDC_ISSUER", "https://idp.example.com/")
	t.Setenv("OIDC_REDIRECT_PORT", "9999")
	t.Setenv("MQTT_TOPIC_PREFIX", "depot/a")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://idp.example.com", cfg.OIDCIssuer)
	assert.Equal(t, 9999, cfg.OIDCRedirectPort)
	assert.Equal(t, "depot/a", cfg.MQTTTopicPrefix)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL=https://from-file.example.com/\n"), 0o600))
	t.Setenv("API_BASE_URL", "")
	os.Unsetenv("API_BASE_URL")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-file.example.com", cfg.APIBaseURL)
}

func TestCognitoIssuer_Empty(t *testing.T) {
	assert.Empty(t, CognitoIssuer("", "x"))
	assert.Empty(t, CognitoIssuer("eu-west-1", " "))
}
