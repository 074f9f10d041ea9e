// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "stocktrack-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "stocktrack-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTL is the absolute session lifetime (e.g. "12h"). Expiry is fixed at creation; no sliding renewal.
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// OTPTTL is the two-factor OTP lifetime (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OfflinePinTTL is the offline fallback PIN lifetime (e.g. "24h").
	OfflinePinTTL string `mapstructure:"OFFLINE_PIN_TTL"`
	// ResetTokenTTL is the password-reset token lifetime (e.g. "30m").
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// AllowedEmailDomain restricts registration emails to one domain (e.g. "stocktrack.io"). Empty allows any domain.
	AllowedEmailDomain string `mapstructure:"ALLOWED_EMAIL_DOMAIN"`
	// SMSLocalAPIKey is the API key for SMS Local (OTP delivery). Empty disables SMS dispatch.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// SweepInterval is how often the worker marks expired sessions and tokens inactive (e.g. "5m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, the server emits auth events to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for auth events (default stocktrack-auth-events).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the worker to push auth events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "stocktrack-auth")
	v.SetDefault("JWT_AUDIENCE", "stocktrack-api")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OFFLINE_PIN_TTL", "24h")
	v.SetDefault("RESET_TOKEN_TTL", "30m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ALLOWED_EMAIL_DOMAIN", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "stocktrack-auth-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "stocktrack-auth-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SessionDuration parses SessionTTL. Returns 12h if unset or invalid.
func (c *Config) SessionDuration() time.Duration { return durationOr(c.SessionTTL, 12*time.Hour) }

// OTPDuration parses OTPTTL. Returns 5m if unset or invalid.
func (c *Config) OTPDuration() time.Duration { return durationOr(c.OTPTTL, 5*time.Minute) }

// OfflinePinDuration parses OfflinePinTTL. Returns 24h if unset or invalid.
func (c *Config) OfflinePinDuration() time.Duration {
	return durationOr(c.OfflinePinTTL, 24*time.Hour)
}

// ResetTokenDuration parses ResetTokenTTL. Returns 30m if unset or invalid.
func (c *Config) ResetTokenDuration() time.Duration {
	return durationOr(c.ResetTokenTTL, 30*time.Minute)
}

// SweepIntervalDuration parses SweepInterval. Returns 5m if unset or invalid.
func (c *Config) SweepIntervalDuration() time.Duration {
	return durationOr(c.SweepInterval, 5*time.Minute)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
