package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// OTP store backends.
const (
	OTPStoreMemory   = "memory"
	OTPStoreRedis    = "redis"
	OTPStoreDynamoDB = "dynamodb"
)

type Config struct {
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	Session  SessionConfig
	OTP      OTPConfig
	SMTP     SMTPConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowOrigin  string
	// TrustProxy lets the rate limiter read X-Forwarded-For. Only enable it
	// behind a proxy that appends the client address to that header.
	TrustProxy bool
}

type DynamoDBConfig struct {
	Endpoint   string
	Region     string
	TableName  string
	EmailIndex string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type SessionConfig struct {
	SecretKey  string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

type OTPConfig struct {
	Expiry            time.Duration
	StoreBackend      string
	RequestsPerMinute int
	RequestKeyPrefix  string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	SenderName  string
	DialTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			AllowOrigin:  getEnv("CORS_ALLOW_ORIGIN", "*"),
			TrustProxy:   getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		DynamoDB: LoadDynamoDB(),
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			SecretKey:  getEnv("SESSION_SECRET_KEY", ""),
			CookieName: getEnv("SESSION_COOKIE_NAME", "session_id"),
			MaxAge:     getEnvAsDuration("SESSION_MAX_AGE", 7*24*time.Hour),
			Secure:     getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		OTP: OTPConfig{
			Expiry:            getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			StoreBackend:      getEnv("OTP_STORE_BACKEND", OTPStoreMemory),
			RequestsPerMinute: getEnvAsInt("OTP_REQUESTS_PER_MINUTE", 5),
			RequestKeyPrefix:  getEnv("OTP_RATE_KEY_PREFIX", "rl:otp:"),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        getEnvAsInt("SMTP_PORT", 465),
			Username:    getEnv("JMI_EMAIL", ""),
			Password:    getEnv("JMI_EMAIL_PASSWORD", ""),
			SenderName:  getEnv("SMTP_SENDER_NAME", "JMIConnect"),
			DialTimeout: getEnvAsDuration("SMTP_DIAL_TIMEOUT", 15*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDynamoDB reads only the table settings. Tools that talk to the table
// without running the server use it instead of Load.
func LoadDynamoDB() DynamoDBConfig {
	return DynamoDBConfig{
		Endpoint:   getEnv("DYNAMODB_ENDPOINT", ""),
		Region:     getEnv("DYNAMODB_REGION", "ap-south-1"),
		TableName:  getEnv("DYNAMODB_TABLE_NAME", "JMIConnect"),
		EmailIndex: getEnv("DYNAMODB_EMAIL_INDEX", "EmailIndex"),
	}
}

func (c *Config) validate() error {
	if c.Session.SecretKey == "" {
		return fmt.Errorf("SESSION_SECRET_KEY environment variable is required")
	}

	if len(c.Session.SecretKey) < 32 {
		return fmt.Errorf("SESSION_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if c.OTP.Expiry <= 0 {
		return fmt.Errorf("OTP_EXPIRY must be positive")
	}

	switch c.OTP.StoreBackend {
	case OTPStoreMemory, OTPStoreDynamoDB:
	case OTPStoreRedis:
		if c.Redis.Endpoint == "" {
			return fmt.Errorf("REDIS_ENDPOINT is required when OTP_STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown OTP_STORE_BACKEND %q", c.OTP.StoreBackend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
