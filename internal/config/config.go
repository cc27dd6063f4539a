package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface for the service. It is loaded once
// at startup and passed into components at construction; nothing reads the
// environment after LoadConfig returns.
type Config struct {
	Environment string
	Enabled     bool

	Server         ServerConfig
	Logging        LoggingConfig
	Redis          RedisConfig
	Scylla         ScyllaConfig
	Kafka          KafkaConfig
	Geo            GeoConfig
	LogEvents      LogEventsConfig
	Notification   NotificationConfig
	SessionTrack   SessionTrackingConfig
	Suspicion      SuspicionRules
	Lockout        LockoutConfig
	PreAuth        PreAuthConfig
	Retention      RetentionConfig
	Hooks          HooksConfig
	Directory      DirectoryConfig
	WhitelistedIPs []string

	// ActivityStore selects the persistence backend: "scylla" or "memory".
	ActivityStore string
	// LockoutStore selects the rate-limit backend: "redis" or "memory".
	LockoutStore string
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes          []string
	Keyspace       string
	Username       string
	Password       string
	SubjectBuckets int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type GeoConfig struct {
	Enabled bool
	// Path to a MaxMind City database (.mmdb).
	CityDBPath string
	Timeout    time.Duration
}

// LogEventsConfig toggles recording per event type.
type LogEventsConfig struct {
	Login           bool
	Logout          bool
	FailedLogin     bool
	PasswordReset   bool
	ReAuthenticated bool
}

type NotificationConfig struct {
	OnlyOnSuspicious bool
	Subject          string
	Mail             MailChannelConfig
	Slack            SlackChannelConfig
	SMS              SMSChannelConfig
	// AdminEmails and AdminWebhooks receive session-hijack alerts.
	AdminEmails   []string
	AdminWebhooks []string
}

type MailChannelConfig struct {
	Enabled  bool
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type SlackChannelConfig struct {
	Enabled bool
	Webhook string
}

type SMSChannelConfig struct {
	Enabled bool
}

type SessionTrackingConfig struct {
	Enabled bool
	// PlatformMarker is the stable server-side component mixed into the
	// fingerprint hash. Defaults to the hostname.
	PlatformMarker string
	FingerprintTTL time.Duration

	Fingerprint FingerprintGuardConfig
}

type FingerprintGuardConfig struct {
	ValidateOnRequest bool
	AbortOnMismatch   bool
	RedirectTo        string
	NotifyUser        bool
	NotifyAdmins      bool
}

// SuspicionRules gates which anomalies count as suspicious.
type SuspicionRules struct {
	NewDevice    bool
	NewLocation  bool
	BlockEnabled bool
	// BlockHandler names the registered handler that produces the blocking
	// response. Resolution failure at startup is fatal when blocking is on.
	BlockHandler string
}

type LockoutConfig struct {
	Enabled         bool
	KeyPrefix       string
	MaxAttempts     int
	LockoutDuration time.Duration
	// TrackBy is "ip", "identifier", or "both".
	TrackBy         string
	GenericResponse bool
	RedirectTo      string
	ClearOnSuccess  bool
}

type PreAuthConfig struct {
	Enabled bool
	// SubjectType is the registry tag used to resolve the claimed principal.
	SubjectType string
	// RequestInputKey is the form/JSON field holding the login identifier.
	RequestInputKey string
}

type RetentionConfig struct {
	Enabled bool
	Days    int
	// DeleteMethod is "soft" or "hard".
	DeleteMethod string
	BatchSize    int
}

// HooksConfig binds event hooks to named handlers. Empty means no-op;
// callables are bound programmatically through the hook executor.
type HooksConfig struct {
	OnLogin           string
	OnLogout          string
	OnFailed          string
	OnPasswordReset   string
	OnReAuthenticated string
}

// DirectoryConfig points at the host application's subject directory, the
// HTTP API that resolves login identifiers to subjects and subjects to
// notification addresses. Without it, subject lookups and user-facing
// notifications must be wired programmatically.
type DirectoryConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LoadConfig reads configuration from the environment, with .env support for
// local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Enabled:     getEnvBool("AUTHLOG_ENABLED", true),

		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "/var/lib/authlog/certs"),
			Domain:       getEnv("SERVER_DOMAIN", ""),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},

		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},

		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},

		Scylla: ScyllaConfig{
			Nodes:          getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace:       getEnv("SCYLLA_KEYSPACE", "authlog"),
			Username:       getEnv("SCYLLA_USERNAME", ""),
			Password:       getEnv("SCYLLA_PASSWORD", ""),
			SubjectBuckets: getEnvInt("SCYLLA_SUBJECT_BUCKETS", 64),
		},

		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_ACTIVITY_TOPIC", "auth.activity"),
		},

		Geo: GeoConfig{
			Enabled:    getEnvBool("GEO_ENABLED", true),
			CityDBPath: getEnv("GEO_CITY_DB_PATH", "/var/lib/authlog/GeoLite2-City.mmdb"),
			Timeout:    getEnvDuration("GEO_TIMEOUT", 2*time.Second),
		},

		LogEvents: LogEventsConfig{
			Login:           getEnvBool("LOG_EVENT_LOGIN", true),
			Logout:          getEnvBool("LOG_EVENT_LOGOUT", true),
			FailedLogin:     getEnvBool("LOG_EVENT_FAILED_LOGIN", true),
			PasswordReset:   getEnvBool("LOG_EVENT_PASSWORD_RESET", false),
			ReAuthenticated: getEnvBool("LOG_EVENT_RE_AUTHENTICATED", false),
		},

		Notification: NotificationConfig{
			OnlyOnSuspicious: getEnvBool("NOTIFY_ONLY_ON_SUSPICIOUS", false),
			Subject:          getEnv("NOTIFY_SUBJECT", "New Login Detected"),
			Mail: MailChannelConfig{
				Enabled:  getEnvBool("NOTIFY_MAIL_ENABLED", true),
				Host:     getEnv("SMTP_HOST", "localhost"),
				Port:     getEnvInt("SMTP_PORT", 587),
				From:     getEnv("MAIL_FROM_ADDRESS", "no-reply@example.com"),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
			},
			Slack: SlackChannelConfig{
				Enabled: getEnvBool("NOTIFY_SLACK_ENABLED", false),
				Webhook: getEnv("SLACK_WEBHOOK_URL", ""),
			},
			SMS: SMSChannelConfig{
				Enabled: getEnvBool("NOTIFY_SMS_ENABLED", false),
			},
			AdminEmails:   getEnvList("NOTIFY_ADMIN_EMAILS", nil),
			AdminWebhooks: getEnvList("NOTIFY_ADMIN_WEBHOOKS", nil),
		},

		SessionTrack: SessionTrackingConfig{
			Enabled:        getEnvBool("SESSION_TRACKING_ENABLED", true),
			PlatformMarker: getEnv("FINGERPRINT_PLATFORM_MARKER", hostname),
			FingerprintTTL: getEnvDuration("FINGERPRINT_TTL", 24*time.Hour),
			Fingerprint: FingerprintGuardConfig{
				ValidateOnRequest: getEnvBool("FINGERPRINT_VALIDATE_ON_REQUEST", true),
				AbortOnMismatch:   getEnvBool("FINGERPRINT_ABORT_ON_MISMATCH", true),
				RedirectTo:        getEnv("FINGERPRINT_REDIRECT_TO", "/login"),
				NotifyUser:        getEnvBool("FINGERPRINT_NOTIFY_USER", true),
				NotifyAdmins:      getEnvBool("FINGERPRINT_NOTIFY_ADMINS", true),
			},
		},

		Suspicion: SuspicionRules{
			NewDevice:    getEnvBool("SUSPICION_NEW_DEVICE", true),
			NewLocation:  getEnvBool("SUSPICION_NEW_LOCATION", true),
			BlockEnabled: getEnvBool("SUSPICION_BLOCK_LOGINS", false),
			BlockHandler: getEnv("SUSPICION_BLOCK_HANDLER", "generic"),
		},

		Lockout: LockoutConfig{
			Enabled:         getEnvBool("LOCKOUT_ENABLED", true),
			KeyPrefix:       getEnv("LOCKOUT_KEY_PREFIX", "authlog:lockout:"),
			MaxAttempts:     getEnvInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration: getEnvDuration("LOCKOUT_DURATION", 10*time.Minute),
			TrackBy:         getEnv("LOCKOUT_TRACK_BY", "ip"),
			GenericResponse: getEnvBool("LOCKOUT_GENERIC_RESPONSE", true),
			RedirectTo:      getEnv("LOCKOUT_REDIRECT_TO", "/login"),
			ClearOnSuccess:  getEnvBool("LOCKOUT_CLEAR_ON_SUCCESS", false),
		},

		PreAuth: PreAuthConfig{
			Enabled:         getEnvBool("PREAUTH_BLOCKING_ENABLED", false),
			SubjectType:     getEnv("PREAUTH_SUBJECT_TYPE", "user"),
			RequestInputKey: getEnv("PREAUTH_REQUEST_INPUT_KEY", "email"),
		},

		Retention: RetentionConfig{
			Enabled:      getEnvBool("RETENTION_ENABLED", true),
			Days:         getEnvInt("RETENTION_DAYS", 90),
			DeleteMethod: getEnv("RETENTION_DELETE_METHOD", "soft"),
			BatchSize:    getEnvInt("RETENTION_BATCH_SIZE", 500),
		},

		Hooks: HooksConfig{
			OnLogin:           getEnv("HOOK_ON_LOGIN", ""),
			OnLogout:          getEnv("HOOK_ON_LOGOUT", ""),
			OnFailed:          getEnv("HOOK_ON_FAILED", ""),
			OnPasswordReset:   getEnv("HOOK_ON_PASSWORD_RESET", ""),
			OnReAuthenticated: getEnv("HOOK_ON_RE_AUTHENTICATED", ""),
		},

		Directory: DirectoryConfig{
			Enabled: getEnvBool("DIRECTORY_ENABLED", false),
			BaseURL: getEnv("DIRECTORY_BASE_URL", ""),
			APIKey:  getEnv("DIRECTORY_API_KEY", ""),
			Timeout: getEnvDuration("DIRECTORY_TIMEOUT", 3*time.Second),
		},

		WhitelistedIPs: getEnvList("WHITELISTED_IPS", []string{"127.0.0.1", "::1"}),

		ActivityStore: getEnv("ACTIVITY_STORE", "memory"),
		LockoutStore:  getEnv("LOCKOUT_STORE", "memory"),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// IsWhitelisted reports whether an IP is exempt from suspicion flagging and
// notification.
func (c *Config) IsWhitelisted(ip string) bool {
	for _, allowed := range c.WhitelistedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
