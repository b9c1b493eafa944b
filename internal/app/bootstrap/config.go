package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	MaxDBConns   int32

	KafkaTopicEvents string
	KafkaTopicOps    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	IdempotencyTTL     time.Duration

	JWTSecret       string
	JWTPublicKeyPEM string
	JWTIssuer       string
	JWTAudience     string

	PaymentMode   string
	PaymentURL    string
	PaymentAPIKey string

	TransferMaxAttempts    int
	TransferInitialBackoff time.Duration
	TransferMaxBackoff     time.Duration
	TransferAttemptTimeout time.Duration

	// StaleSettlementAfter of zero lets the service derive it from the
	// transfer retry budget.
	StaleSettlementAfter    time.Duration
	SettlementSweepInterval time.Duration

	PlatformFeeBps   int64
	ProcessingFeeBps int64

	LockTTL     time.Duration
	LockMaxWait time.Duration

	LogLevel string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL      string   `yaml:"postgres_url"`
		RedisURL         string   `yaml:"redis_url"`
		KafkaBrokers     []string `yaml:"kafka_brokers"`
		KafkaTopicEvents string   `yaml:"kafka_topic_events"`
		KafkaTopicOps    string   `yaml:"kafka_topic_ops"`
		PaymentMode      string   `yaml:"payment_mode"`
		PaymentURL       string   `yaml:"payment_url"`
	} `yaml:"dependencies"`
	Auth struct {
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
	} `yaml:"auth"`
	Settlement struct {
		MaxAttempts      int    `yaml:"max_attempts"`
		InitialBackoff   string `yaml:"initial_backoff"`
		MaxBackoff       string `yaml:"max_backoff"`
		AttemptTimeout   string `yaml:"attempt_timeout"`
		PlatformFeeBps   int64  `yaml:"platform_fee_bps"`
		ProcessingFeeBps int64  `yaml:"processing_fee_bps"`
		LockTTL          string `yaml:"lock_ttl"`
		LockMaxWait      string `yaml:"lock_max_wait"`
		StaleAfter       string `yaml:"stale_after"`
		SweepInterval    string `yaml:"sweep_interval"`
	} `yaml:"settlement"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:               "escrow-milestone-ledger",
		HTTPPort:                8080,
		GRPCPort:                9090,
		MaxDBConns:              20,
		KafkaTopicEvents:        "escrow.events",
		KafkaTopicOps:           "escrow.ops",
		OutboxPollInterval:      2 * time.Second,
		OutboxBatchSize:         100,
		IdempotencyTTL:          7 * 24 * time.Hour,
		PaymentMode:             "sandbox",
		TransferMaxAttempts:     4,
		TransferInitialBackoff:  200 * time.Millisecond,
		TransferMaxBackoff:      5 * time.Second,
		TransferAttemptTimeout:  10 * time.Second,
		SettlementSweepInterval: time.Minute,
		PlatformFeeBps:          500,
		ProcessingFeeBps:        300,
		LockTTL:                 30 * time.Second,
		LockMaxWait:             10 * time.Second,
		LogLevel:                "info",
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Service.LogLevel != "" {
			cfg.LogLevel = f.Service.LogLevel
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.KafkaTopicEvents != "" {
			cfg.KafkaTopicEvents = f.Dependencies.KafkaTopicEvents
		}
		if f.Dependencies.KafkaTopicOps != "" {
			cfg.KafkaTopicOps = f.Dependencies.KafkaTopicOps
		}
		if f.Dependencies.PaymentMode != "" {
			cfg.PaymentMode = f.Dependencies.PaymentMode
		}
		cfg.PaymentURL = f.Dependencies.PaymentURL
		cfg.JWTIssuer = f.Auth.Issuer
		cfg.JWTAudience = f.Auth.Audience
		if f.Settlement.MaxAttempts > 0 {
			cfg.TransferMaxAttempts = f.Settlement.MaxAttempts
		}
		if f.Settlement.PlatformFeeBps > 0 {
			cfg.PlatformFeeBps = f.Settlement.PlatformFeeBps
		}
		if f.Settlement.ProcessingFeeBps > 0 {
			cfg.ProcessingFeeBps = f.Settlement.ProcessingFeeBps
		}
		for _, d := range []struct {
			raw string
			dst *time.Duration
		}{
			{f.Settlement.InitialBackoff, &cfg.TransferInitialBackoff},
			{f.Settlement.MaxBackoff, &cfg.TransferMaxBackoff},
			{f.Settlement.AttemptTimeout, &cfg.TransferAttemptTimeout},
			{f.Settlement.LockTTL, &cfg.LockTTL},
			{f.Settlement.LockMaxWait, &cfg.LockMaxWait},
			{f.Settlement.StaleAfter, &cfg.StaleSettlementAfter},
			{f.Settlement.SweepInterval, &cfg.SettlementSweepInterval},
		} {
			if d.raw == "" {
				continue
			}
			parsed, parseErr := time.ParseDuration(d.raw)
			if parseErr != nil {
				return Config{}, fmt.Errorf("parse settlement duration %q: %w", d.raw, parseErr)
			}
			*d.dst = parsed
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicEvents = envOrDefault("KAFKA_TOPIC_EVENTS", cfg.KafkaTopicEvents)
	cfg.KafkaTopicOps = envOrDefault("KAFKA_TOPIC_OPS", cfg.KafkaTopicOps)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = envOrDefault("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.PaymentMode = strings.ToLower(envOrDefault("PAYMENT_MODE", cfg.PaymentMode))
	cfg.PaymentURL = envOrDefault("PAYMENT_PROCESSOR_URL", cfg.PaymentURL)
	cfg.PaymentAPIKey = envOrDefault("PAYMENT_PROCESSOR_API_KEY", cfg.PaymentAPIKey)
	cfg.TransferMaxAttempts = envInt("TRANSFER_MAX_ATTEMPTS", cfg.TransferMaxAttempts)
	cfg.TransferAttemptTimeout = time.Duration(envInt("TRANSFER_ATTEMPT_TIMEOUT_MS", int(cfg.TransferAttemptTimeout.Milliseconds()))) * time.Millisecond
	cfg.PlatformFeeBps = int64(envInt("PLATFORM_FEE_BPS", int(cfg.PlatformFeeBps)))
	cfg.ProcessingFeeBps = int64(envInt("PROCESSING_FEE_BPS", int(cfg.ProcessingFeeBps)))
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.JWTSecret == "" && cfg.JWTPublicKeyPEM == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET/JWT_PUBLIC_KEY_PEM")
	}
	switch cfg.PaymentMode {
	case "sandbox":
	case "http":
		if cfg.PaymentURL == "" {
			return Config{}, fmt.Errorf("missing PAYMENT_PROCESSOR_URL for http payment mode")
		}
	default:
		return Config{}, fmt.Errorf("unknown payment mode %q", cfg.PaymentMode)
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
