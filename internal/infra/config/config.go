package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	Identity   IdentitySettings   `mapstructure:"identity"`
	Token      TokenSettings      `mapstructure:"token"`
	Activation ActivationSettings `mapstructure:"activation"`
	Gate       GateSettings       `mapstructure:"gate"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Session    SessionSettings    `mapstructure:"session"`
	RateLimit  RateLimitSettings  `mapstructure:"rate_limit"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and key namespaces.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	CachePrefix   string `mapstructure:"cache_prefix"`
	SessionPrefix string `mapstructure:"session_prefix"`
	TokenPrefix   string `mapstructure:"token_prefix"`
}

// KafkaSettings configures the event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// IdentitySettings configures anonymous identity issuance.
type IdentitySettings struct {
	Secret        string        `mapstructure:"secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// TokenSettings configures the capability token issuer.
type TokenSettings struct {
	Deriver        string        `mapstructure:"deriver"`
	Secret         string        `mapstructure:"secret"`
	ValidityWindow time.Duration `mapstructure:"validity_window"`
	Host           string        `mapstructure:"host"`
}

// ActivationSettings bounds the activation state machine's remote calls.
type ActivationSettings struct {
	ValidateTimeout time.Duration `mapstructure:"validate_timeout"`
	CommitTimeout   time.Duration `mapstructure:"commit_timeout"`
	MaxDevices      int           `mapstructure:"max_devices"`
}

// GateSettings configures the content gate.
type GateSettings struct {
	EntryPage          string        `mapstructure:"entry_page"`
	Freshness          time.Duration `mapstructure:"freshness"`
	RevalidateInterval time.Duration `mapstructure:"revalidate_interval"`
}

// CacheSettings configures the offline cache manager.
type CacheSettings struct {
	Version          int           `mapstructure:"version"`
	ManifestPath     string        `mapstructure:"manifest_path"`
	OriginBaseURL    string        `mapstructure:"origin_base_url"`
	OriginTimeout    time.Duration `mapstructure:"origin_timeout"`
	SecondaryDelay   time.Duration `mapstructure:"secondary_delay"`
	ShellURL         string        `mapstructure:"shell_url"`
	OfflineURL       string        `mapstructure:"offline_url"`
	PassthroughHosts []string      `mapstructure:"passthrough_hosts"`
	FontHosts        []string      `mapstructure:"font_hosts"`
}

// SessionSettings names the session storage key and cookie contract.
type SessionSettings struct {
	StorageKey string        `mapstructure:"storage_key"`
	CookieTTL  time.Duration `mapstructure:"cookie_ttl"`
}

// RateLimitSettings configures sliding-window limits per endpoint.
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	ValidateMaxAttempts int           `mapstructure:"validate_max_attempts"`
	ActivateMaxAttempts int           `mapstructure:"activate_max_attempts"`
	AdminMaxAttempts    int           `mapstructure:"admin_max_attempts"`
}

type TelemetrySettings struct {
	ServiceName string `mapstructure:"service_name"`
}

// UIDCookieName derives the mirrored cookie name from the session storage key.
func (s SessionSettings) UIDCookieName() string {
	key := s.StorageKey
	if key == "" {
		key = "flipbook_session"
	}
	return key + "_uid"
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("FLIPGATE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.cache_prefix",
		"redis.session_prefix",
		"redis.token_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"identity.secret",
		"identity.token_ttl",
		"identity.timeout",
		"identity.retry_attempts",
		"identity.retry_interval",
		"token.deriver",
		"token.secret",
		"token.validity_window",
		"token.host",
		"activation.validate_timeout",
		"activation.commit_timeout",
		"activation.max_devices",
		"gate.entry_page",
		"gate.freshness",
		"gate.revalidate_interval",
		"cache.version",
		"cache.manifest_path",
		"cache.origin_base_url",
		"cache.origin_timeout",
		"cache.secondary_delay",
		"cache.shell_url",
		"cache.offline_url",
		"cache.passthrough_hosts",
		"cache.font_hosts",
		"session.storage_key",
		"session.cookie_ttl",
		"rate_limit.window_duration",
		"rate_limit.validate_max_attempts",
		"rate_limit.activate_max_attempts",
		"rate_limit.admin_max_attempts",
		"telemetry.service_name",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flipgate")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "flipgate")
	v.SetDefault("postgres.password", "flipgate_password")
	v.SetDefault("postgres.database", "flipgate")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.cache_prefix", "flipgate:cache")
	v.SetDefault("redis.session_prefix", "flipgate:session")
	v.SetDefault("redis.token_prefix", "flipgate:token")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "flipgate")
	v.SetDefault("kafka.async", true)

	v.SetDefault("identity.secret", "dev-identity-secret")
	v.SetDefault("identity.token_ttl", "1h")
	v.SetDefault("identity.timeout", "15s")
	v.SetDefault("identity.retry_attempts", 3)
	v.SetDefault("identity.retry_interval", "2s")

	v.SetDefault("token.deriver", "mix")
	v.SetDefault("token.secret", "dev-token-secret")
	v.SetDefault("token.validity_window", "30m")
	v.SetDefault("token.host", "localhost")

	v.SetDefault("activation.validate_timeout", "10s")
	v.SetDefault("activation.commit_timeout", "15s")
	v.SetDefault("activation.max_devices", 3)

	v.SetDefault("gate.entry_page", "cover")
	v.SetDefault("gate.freshness", "30m")
	v.SetDefault("gate.revalidate_interval", "1m")

	v.SetDefault("cache.version", 1)
	v.SetDefault("cache.manifest_path", "")
	v.SetDefault("cache.origin_base_url", "http://localhost:9000")
	v.SetDefault("cache.origin_timeout", "10s")
	v.SetDefault("cache.secondary_delay", "3s")
	v.SetDefault("cache.shell_url", "/index.html")
	v.SetDefault("cache.offline_url", "/offline.html")
	v.SetDefault("cache.passthrough_hosts", []string{})
	v.SetDefault("cache.font_hosts", []string{"fonts.gstatic.com", "fonts.googleapis.com"})

	v.SetDefault("session.storage_key", "flipbook_session")
	v.SetDefault("session.cookie_ttl", "8760h")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.validate_max_attempts", 10)
	v.SetDefault("rate_limit.activate_max_attempts", 5)
	v.SetDefault("rate_limit.admin_max_attempts", 30)

	v.SetDefault("telemetry.service_name", "flipgate")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "FLIPGATE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
