package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay twelve-factor.
type Server struct {
	Addr string

	// AdminID is the single fixed administrator identity. It is set once at
	// startup and cannot change for the lifetime of the registry instance.
	AdminID string
	// AdminSecretHash is the bcrypt hash of the administrator's token secret.
	AdminSecretHash string

	JWTSigningKey string
	TokenTTL      time.Duration

	PostgresURL  string
	Redis        RedisConfig
	KafkaBrokers []string
	AuditTopic   string
}

// RedisConfig carries connection tuning for the revocation list client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("KYCNET_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminID := os.Getenv("KYCNET_ADMIN_ID")
	if adminID == "" {
		adminID = "admin"
	}

	jwtSigningKey := os.Getenv("KYCNET_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	tokenTTL := 15 * time.Minute
	if raw := os.Getenv("KYCNET_TOKEN_TTL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			tokenTTL = parsed
		}
	}

	auditTopic := os.Getenv("KYCNET_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "kycnet.audit"
	}

	var brokers []string
	if raw := os.Getenv("KYCNET_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:            addr,
		AdminID:         adminID,
		AdminSecretHash: os.Getenv("KYCNET_ADMIN_SECRET_HASH"),
		JWTSigningKey:   jwtSigningKey,
		TokenTTL:        tokenTTL,
		PostgresURL:     os.Getenv("KYCNET_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("KYCNET_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		AuditTopic:   auditTopic,
	}
}
