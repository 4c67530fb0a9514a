package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderKeys lists the providers whose OAuth app settings are read from the environment.
var ProviderKeys = []string{
	"google",
	"hubspot",
	"linkedin",
	"mailchimp",
	"outlook",
	"pipedrive",
	"salesforce",
	"shopify",
	"slack",
}

type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	OAuth         OAuthConfig
	Sync          SyncConfig
	Webhooks      WebhooksConfig
	Providers     map[string]ProviderConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	DSN       string
	LogTiming bool
}

type AuthConfig struct {
	SessionSecret      string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	SecureCookie       bool
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
}

type OAuthConfig struct {
	PublicURL       string
	SettingsURL     string
	StateSecret     string
	StateMaxAge     time.Duration
	CredentialsKey  string
	RefreshSkew     time.Duration
	ProviderTimeout time.Duration
}

type SyncConfig struct {
	Interval         time.Duration
	Workers          int
	FailureThreshold int
	TaskTimeout      time.Duration
	AutoStart        bool
	HistorySize      int
}

type WebhooksConfig struct {
	RedisURL    string
	DedupeTTL   time.Duration
	VerifyToken string
}

// ProviderConfig holds one provider's OAuth app registration and endpoint overrides.
type ProviderConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	AuthURL       string
	TokenURL      string
	APIBaseURL    string
}

func Load() (Config, error) {
	return load(true)
}

// LoadForTool loads config for CLI tools that do not require auth session secrets.
func LoadForTool() (Config, error) {
	return load(false)
}

func load(requireSecrets bool) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("synclink_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("synclink_port", 8080)
	v.SetDefault("synclink_db_dsn", "data/synclink")
	v.SetDefault("synclink_db_timing", false)
	v.SetDefault("synclink_secure_cookie", false)
	v.SetDefault("synclink_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "synclink")
	v.SetDefault("synclink_version", "dev")
	v.SetDefault("otel_service_version", "")
	v.SetDefault("synclink_otel_sampling_ratio", 1.0)
	v.SetDefault("synclink_otel_metrics_console", false)
	v.SetDefault("synclink_public_url", "")
	v.SetDefault("synclink_settings_url", "/settings/integrations")
	v.SetDefault("synclink_oauth_state_max_age", "10m")
	v.SetDefault("synclink_refresh_skew", "2m")
	v.SetDefault("synclink_provider_timeout", "20s")
	v.SetDefault("synclink_sync_interval", "15m")
	v.SetDefault("synclink_sync_workers", 8)
	v.SetDefault("synclink_sync_failure_threshold", 3)
	v.SetDefault("synclink_sync_task_timeout", "20s")
	v.SetDefault("synclink_sync_autostart", true)
	v.SetDefault("synclink_sync_history", 200)
	v.SetDefault("synclink_redis_url", "")
	v.SetDefault("synclink_webhook_dedupe_ttl", "24h")
	v.SetDefault("webhook_verify_token", "")

	env := resolveEnvironment(v)
	port := v.GetInt("synclink_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid SYNCLINK_PORT: %d", port)
	}

	samplingRatio := v.GetFloat64("synclink_otel_sampling_ratio")
	if samplingRatio < 0 {
		samplingRatio = 0
	}
	if samplingRatio > 1 {
		samplingRatio = 1
	}

	workers := v.GetInt("synclink_sync_workers")
	if workers <= 0 {
		workers = 8
	}
	if workers > 64 {
		workers = 64
	}

	threshold := v.GetInt("synclink_sync_failure_threshold")
	if threshold <= 0 {
		threshold = 3
	}

	historySize := v.GetInt("synclink_sync_history")
	if historySize <= 0 {
		historySize = 200
	}
	if historySize > 5000 {
		historySize = 5000
	}

	syncInterval := durationOr(v, "synclink_sync_interval", 15*time.Minute)
	if syncInterval < time.Minute {
		syncInterval = time.Minute
	}

	callbackURL := strings.TrimSpace(v.GetString("github_callback_url"))
	if callbackURL == "" {
		callbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", port)
	}

	publicURL := strings.TrimRight(strings.TrimSpace(v.GetString("synclink_public_url")), "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d", port)
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = "synclink"
	}

	serviceVersion := strings.TrimSpace(v.GetString("synclink_version"))
	if serviceVersion == "" {
		serviceVersion = strings.TrimSpace(v.GetString("otel_service_version"))
	}
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers"))
	otlpTraceHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers"))
	otlpMetricHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_metrics_headers"))
	metricsConsole := v.GetBool("synclink_otel_metrics_console")
	otelEnabled := v.GetBool("synclink_otel_enabled") || otlpEndpoint != "" || metricsConsole

	cfg := Config{
		Environment: env,
		Server:      ServerConfig{Port: port},
		Database: DatabaseConfig{
			DSN:       strings.TrimSpace(v.GetString("synclink_db_dsn")),
			LogTiming: v.GetBool("synclink_db_timing"),
		},
		Auth: AuthConfig{
			SessionSecret:      strings.TrimSpace(v.GetString("synclink_session_secret")),
			GitHubClientID:     strings.TrimSpace(v.GetString("github_client_id")),
			GitHubClientSecret: strings.TrimSpace(v.GetString("github_client_secret")),
			GitHubCallbackURL:  callbackURL,
			SecureCookie:       v.GetBool("synclink_secure_cookie"),
		},
		Observability: ObservabilityConfig{
			Enabled:           otelEnabled,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  mergeHeaderMaps(otlpCommonHeaders, otlpTraceHeaders),
			OTLPMetricHeaders: mergeHeaderMaps(otlpCommonHeaders, otlpMetricHeaders),
			ServiceName:       serviceName,
			ServiceVer:        serviceVersion,
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
		},
		OAuth: OAuthConfig{
			PublicURL:       publicURL,
			SettingsURL:     strings.TrimSpace(v.GetString("synclink_settings_url")),
			StateSecret:     strings.TrimSpace(v.GetString("synclink_oauth_state_secret")),
			StateMaxAge:     durationOr(v, "synclink_oauth_state_max_age", 10*time.Minute),
			CredentialsKey:  strings.TrimSpace(v.GetString("synclink_credentials_key")),
			RefreshSkew:     durationOr(v, "synclink_refresh_skew", 2*time.Minute),
			ProviderTimeout: durationOr(v, "synclink_provider_timeout", 20*time.Second),
		},
		Sync: SyncConfig{
			Interval:         syncInterval,
			Workers:          workers,
			FailureThreshold: threshold,
			TaskTimeout:      durationOr(v, "synclink_sync_task_timeout", 20*time.Second),
			AutoStart:        v.GetBool("synclink_sync_autostart"),
			HistorySize:      historySize,
		},
		Webhooks: WebhooksConfig{
			RedisURL:    strings.TrimSpace(v.GetString("synclink_redis_url")),
			DedupeTTL:   durationOr(v, "synclink_webhook_dedupe_ttl", 24*time.Hour),
			VerifyToken: strings.TrimSpace(v.GetString("webhook_verify_token")),
		},
		Providers: loadProviders(v),
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "data/synclink"
	}
	if cfg.OAuth.SettingsURL == "" {
		cfg.OAuth.SettingsURL = "/settings/integrations"
	}
	if requireSecrets && !cfg.IsLocalDevelopment() {
		if cfg.Auth.SessionSecret == "" {
			return Config{}, fmt.Errorf("SYNCLINK_SESSION_SECRET is required outside local/dev environments")
		}
		if cfg.OAuth.StateSecret == "" {
			return Config{}, fmt.Errorf("SYNCLINK_OAUTH_STATE_SECRET is required outside local/dev environments")
		}
	}
	if cfg.IsLocalDevelopment() && cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = "synclink-local-dev"
	}
	if cfg.IsLocalDevelopment() && cfg.OAuth.StateSecret == "" {
		cfg.OAuth.StateSecret = "synclink-local-state"
	}

	return cfg, nil
}

func loadProviders(v *viper.Viper) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(ProviderKeys))
	for _, key := range ProviderKeys {
		out[key] = ProviderConfig{
			ClientID:      strings.TrimSpace(v.GetString(key + "_client_id")),
			ClientSecret:  strings.TrimSpace(v.GetString(key + "_client_secret")),
			WebhookSecret: strings.TrimSpace(v.GetString(key + "_webhook_secret")),
			AuthURL:       strings.TrimSpace(v.GetString(key + "_auth_url")),
			TokenURL:      strings.TrimSpace(v.GetString(key + "_token_url")),
			APIBaseURL:    strings.TrimSpace(v.GetString(key + "_api_base_url")),
		}
	}
	return out
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

// CallbackURL returns the OAuth redirect URI registered for a provider.
func (c Config) CallbackURL(provider string) string {
	return c.OAuth.PublicURL + "/integrations/" + provider + "/callback"
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"synclink_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
