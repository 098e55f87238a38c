package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var ErrMissingBaseURL = errors.New("API_BASE_URL is required")

// Config holds client settings read from the environment.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration

	OIDCIssuer       string
	OIDCClientID     string
	OIDCRedirectPort int
	OIDCScopes       []string

	TokenStorePath       string
	TokenStorePassphrase string

	MongoURI string
	MongoDB  string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	InventoryRemoveMode string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	base := NormalizeBaseURL(os.Getenv("API_BASE_URL"))
	if base == "" {
		return nil, ErrMissingBaseURL
	}

	cfg := &Config{
		APIBaseURL:           base,
		HTTPTimeout:          durationEnv("HTTP_TIMEOUT", 30*time.Second),
		OIDCIssuer:           issuerFromEnv(),
		OIDCClientID:         strings.TrimSpace(firstEnv("OIDC_CLIENT_ID", "COGNITO_CLIENT_ID")),
		OIDCRedirectPort:     intEnv("OIDC_REDIRECT_PORT", 8765),
		OIDCScopes:           []string{"openid", "email", "profile"},
		TokenStorePath:       getenv("TOKEN_STORE_PATH", defaultTokenPath()),
		TokenStorePassphrase: os.Getenv("TOKEN_STORE_PASSPHRASE"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getenv("MONGO_DB", "fleet_maintenance"),
		MQTTBroker:           os.Getenv("MQTT_BROKER"),
		MQTTClientID:         getenv("MQTT_CLIENT_ID", "fleetctl"),
		MQTTTopicPrefix:      getenv("MQTT_TOPIC_PREFIX", "fleet/maintenance"),
		InventoryRemoveMode:  getenv("INVENTORY_REMOVE_MODE", "decrement"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogFormat:            getenv("LOG_FORMAT", "text"),
	}
	return cfg, nil
}

// ConfigureLogging applies level and formatter to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// CognitoIssuer builds the hosted UI issuer from a region and domain prefix.
func CognitoIssuer(region, domainPrefix string) string {
	region = strings.TrimSpace(region)
	domainPrefix = strings.TrimSpace(domainPrefix)
	if region == "" || domainPrefix == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.auth.%s.amazoncognito.com", domainPrefix, region)
}

func issuerFromEnv() string {
	if v := NormalizeBaseURL(os.Getenv("OIDC_ISSUER")); v != "" {
		return v
	}
	return CognitoIssuer(os.Getenv("COGNITO_REGION"), os.Getenv("COGNITO_DOMAIN"))
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "fleet-maintenance", "tokens.enc")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
