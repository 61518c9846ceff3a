package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Secret store backends selectable with SECRET_BACKEND.
const (
	SecretBackendGCP      = "gcp"
	SecretBackendPostgres = "postgres"
	SecretBackendFile     = "file"
	SecretBackendMemory   = "memory"
)

const defaultDialogueBaseURL = "wss://ces.googleapis.com/ws/google.cloud.ces.v1.SessionService/BidiRunSession/locations"

// Config contains all runtime settings for the call bridge.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	CallInactivityTimeout time.Duration
	MetricsNamespace      string
	// MetricsAddr, when set, serves /metrics unauthenticated on a separate
	// listener. The public listener always requires authentication for it.
	MetricsAddr string

	LogLevel          string
	LogFormat         string
	LogUnredactedData bool

	// Inbound trust boundary.
	APIKey       string
	ClientSecret string

	// Outbound credentials. An empty AuthTokenSecretPath selects ambient
	// application-default credentials.
	AuthTokenSecretPath string
	QuotaProject        string

	SecretBackend     string
	SecretDatabaseURL string
	SecretFileRoot    string

	DialogueBaseURL          string
	DialogueKickstartText    string
	DialogueHandshakeTimeout time.Duration
}

// Load reads the process environment and applies defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return LoadFrom(v)
}

// LoadFrom reads settings from an already prepared viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
		v.AutomaticEnv()
	}
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_METRICS_NAMESPACE", "audiohook_bridge")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SECRET_BACKEND", SecretBackendGCP)
	v.SetDefault("DIALOGUE_WS_BASE_URL", defaultDialogueBaseURL)
	v.SetDefault("DIALOGUE_KICKSTART_TEXT", "Hello")

	port := trim(v, "PORT")
	if _, err := strconv.Atoi(port); err != nil {
		return Config{}, fmt.Errorf("PORT parse error: %w", err)
	}

	cfg := Config{
		BindAddr:                 ":" + port,
		MetricsNamespace:         trim(v, "APP_METRICS_NAMESPACE"),
		MetricsAddr:              trim(v, "APP_METRICS_ADDR"),
		LogLevel:                 strings.ToLower(trim(v, "LOG_LEVEL")),
		LogFormat:                strings.ToLower(trim(v, "LOG_FORMAT")),
		LogUnredactedData:        trim(v, "LOG_UNREDACTED_DATA") == "true",
		APIKey:                   trim(v, "GENESYS_API_KEY"),
		ClientSecret:             trim(v, "GENESYS_CLIENT_SECRET"),
		AuthTokenSecretPath:      trim(v, "AUTH_TOKEN_SECRET_PATH"),
		QuotaProject:             trim(v, "GOOGLE_CLOUD_PROJECT"),
		SecretBackend:            strings.ToLower(trim(v, "SECRET_BACKEND")),
		SecretDatabaseURL:        trim(v, "SECRET_DATABASE_URL"),
		SecretFileRoot:           trim(v, "SECRET_FILE_ROOT"),
		DialogueBaseURL:          strings.TrimRight(trim(v, "DIALOGUE_WS_BASE_URL"), "/"),
		DialogueKickstartText:    v.GetString("DIALOGUE_KICKSTART_TEXT"),
		ShutdownTimeout:          15 * time.Second,
		CallInactivityTimeout:    5 * time.Minute,
		DialogueHandshakeTimeout: 10 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFrom(v, "APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallInactivityTimeout, err = durationFrom(v, "APP_CALL_INACTIVITY_TIMEOUT", cfg.CallInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueHandshakeTimeout, err = durationFrom(v, "DIALOGUE_HANDSHAKE_TIMEOUT", cfg.DialogueHandshakeTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("GENESYS_API_KEY is required")
	}
	if cfg.CallInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr == cfg.BindAddr {
		return Config{}, fmt.Errorf("APP_METRICS_ADDR must differ from the public listener %s", cfg.BindAddr)
	}
	if cfg.DialogueBaseURL == "" {
		return Config{}, fmt.Errorf("DIALOGUE_WS_BASE_URL must not be empty")
	}
	switch cfg.SecretBackend {
	case SecretBackendGCP, SecretBackendMemory:
	case SecretBackendPostgres:
		if cfg.SecretDatabaseURL == "" {
			return Config{}, fmt.Errorf("SECRET_DATABASE_URL is required for the postgres secret backend")
		}
	case SecretBackendFile:
		if cfg.SecretFileRoot == "" {
			return Config{}, fmt.Errorf("SECRET_FILE_ROOT is required for the file secret backend")
		}
	default:
		return Config{}, fmt.Errorf("SECRET_BACKEND %q is not supported", cfg.SecretBackend)
	}

	return cfg, nil
}

// UsesSecretToken reports whether outbound tokens come from the secret store.
func (c Config) UsesSecretToken() bool {
	return c.AuthTokenSecretPath != ""
}

func trim(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := trim(v, key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
