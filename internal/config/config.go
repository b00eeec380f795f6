package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreDriverMemory = "memory"
	StoreDriverScylla = "scylla"

	SMSDriverLog   = "log"
	SMSDriverHTTP  = "http"
	SMSDriverKafka = "kafka"
)

var (
	globalConfig *Config
	mu           sync.RWMutex
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Auth          AuthConfig
	SMS           SMSConfig
	JWT           JWTConfig
	Session       SessionConfig
	Audit         AuditConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RequireHTTPS bool
	AllowedCORS  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	EventTopic string
	SMSTopic   string
}

type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Username   string
	Password   string
	EventIndex string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

// KMSConfig controls how the resend-token data key is obtained. When enabled,
// WrappedDataKey is a base64 KMS ciphertext blob decrypted at startup.
type KMSConfig struct {
	Enabled        bool
	KeyID          string
	Region         string
	WrappedDataKey string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type AuthConfig struct {
	MasterSecret   string
	CodeDigits     int
	CodeWindow     time.Duration
	ResendTokenTTL time.Duration
	SingleUseCodes bool
	StoreDriver    string
}

type SMSConfig struct {
	Driver  string
	APIURL  string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

type JWTConfig struct {
	PrivateKeyPath string
	KeyID          string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

type AuditConfig struct {
	Sinks []string
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequireHTTPS: getEnvBool("SERVER_REQUIRE_HTTPS", false),
			AllowedCORS:  getEnvSlice("SERVER_CORS_ORIGINS", []string{"https://*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "phone_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", false),
			Brokers:    getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventTopic: getEnv("KAFKA_EVENT_TOPIC", "auth-events"),
			SMSTopic:   getEnv("KAFKA_SMS_TOPIC", "sms-outbox"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:    getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			EventIndex: getEnv("ELASTICSEARCH_EVENT_INDEX", "auth-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "phone_auth"),
		},
		KMS: KMSConfig{
			Enabled:        getEnvBool("KMS_ENABLED", false),
			KeyID:          getEnv("KMS_KEY_ID", ""),
			Region:         getEnv("KMS_REGION", ""),
			WrappedDataKey: getEnv("KMS_WRAPPED_DATA_KEY", ""),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("BUCKETING_USER_BUCKETS", 1024),
			EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 64),
		},
		Auth: AuthConfig{
			MasterSecret:   getEnv("AUTH_MASTER_SECRET", ""),
			CodeDigits:     getEnvInt("AUTH_CODE_DIGITS", 6),
			CodeWindow:     getEnvDuration("AUTH_CODE_WINDOW", 3*time.Minute),
			ResendTokenTTL: getEnvDuration("AUTH_RESEND_TOKEN_TTL", 20*time.Minute),
			SingleUseCodes: getEnvBool("AUTH_SINGLE_USE_CODES", true),
			StoreDriver:    getEnv("AUTH_STORE_DRIVER", StoreDriverMemory),
		},
		SMS: SMSConfig{
			Driver:  getEnv("SMS_DRIVER", SMSDriverLog),
			APIURL:  getEnv("SMS_API_URL", ""),
			APIKey:  getEnv("SMS_API_KEY", ""),
			Sender:  getEnv("SMS_SENDER", ""),
			Timeout: getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
			KeyID:          getEnv("JWT_KEY_ID", "phone-auth-1"),
			Issuer:         getEnv("JWT_ISSUER", "http://localhost:8080"),
			Audience:       getEnv("JWT_AUDIENCE", "api"),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", time.Hour),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "phone_auth_session"),
			TTL:        getEnvDuration("SESSION_TTL", 14*24*time.Hour),
			Secure:     getEnvBool("SESSION_COOKIE_SECURE", true),
		},
		Audit: AuditConfig{
			Sinks: getEnvSlice("AUDIT_SINKS", []string{"log"}),
		},
	}

	mu.Lock()
	globalConfig = cfg
	mu.Unlock()

	return cfg
}

// Get returns the most recently loaded configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := globalConfig
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

// Validate reports configuration that would make the service unsafe to run.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() && len(c.Auth.MasterSecret) < 32 {
		errs = append(errs, errors.New("AUTH_MASTER_SECRET must be at least 32 characters in production"))
	}
	if c.Auth.CodeDigits < 4 || c.Auth.CodeDigits > 9 {
		errs = append(errs, fmt.Errorf("AUTH_CODE_DIGITS must be between 4 and 9, got %d", c.Auth.CodeDigits))
	}
	if c.Auth.CodeWindow <= 0 {
		errs = append(errs, errors.New("AUTH_CODE_WINDOW must be positive"))
	}
	if c.Auth.ResendTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_RESEND_TOKEN_TTL must be positive"))
	}
	switch c.Auth.StoreDriver {
	case StoreDriverMemory, StoreDriverScylla:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_STORE_DRIVER %q", c.Auth.StoreDriver))
	}
	switch c.SMS.Driver {
	case SMSDriverLog:
		if c.IsProduction() {
			errs = append(errs, errors.New("SMS_DRIVER=log is not allowed in production"))
		}
	case SMSDriverHTTP:
		if c.SMS.APIURL == "" {
			errs = append(errs, errors.New("SMS_API_URL is required for the http SMS driver"))
		}
	case SMSDriverKafka:
		if !c.Kafka.Enabled {
			errs = append(errs, errors.New("SMS_DRIVER=kafka requires KAFKA_ENABLED"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_DRIVER %q", c.SMS.Driver))
	}
	if c.KMS.Enabled && (c.KMS.KeyID == "" || c.KMS.WrappedDataKey == "") {
		errs = append(errs, errors.New("KMS_KEY_ID and KMS_WRAPPED_DATA_KEY are required when KMS is enabled"))
	}
	if c.Bucketing.UserBuckets <= 0 || c.Bucketing.EventBuckets <= 0 {
		errs = append(errs, errors.New("bucket counts must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
