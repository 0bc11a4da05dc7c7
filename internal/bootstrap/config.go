package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/innerscope/authcore"
)

// Config is the resolved configuration of the authcore server.
// Secrets are only read from the environment.
type Config struct {
	ServiceID string
	HTTPPort  int
	LogLevel  string

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTimeout  time.Duration
	ResetURL     string
	VerifyURL    string

	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTIssuer        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	CookieSecret  string
	SecureCookies bool
	TrustProxy    bool
	AdminKey      string

	PasswordAlgorithm   string
	BcryptCost          int
	LockoutMaxAttempts  int
	RevokeFamilyOnReuse bool
	AuditEnabled        bool
	MetricsEnabled      bool
	LatencyHistograms   bool
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		MaxDBConns   int32    `yaml:"max_db_conns"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Mail struct {
		SMTPHost  string `yaml:"smtp_host"`
		SMTPPort  int    `yaml:"smtp_port"`
		From      string `yaml:"from"`
		ResetURL  string `yaml:"reset_url"`
		VerifyURL string `yaml:"verify_url"`
	} `yaml:"mail"`
	Auth struct {
		Issuer              string `yaml:"issuer"`
		AccessTTL           string `yaml:"access_ttl"`
		RefreshTTL          string `yaml:"refresh_ttl"`
		PasswordAlgorithm   string `yaml:"password_algorithm"`
		BcryptCost          int    `yaml:"bcrypt_cost"`
		LockoutMaxAttempts  int    `yaml:"lockout_max_attempts"`
		RevokeFamilyOnReuse *bool  `yaml:"revoke_family_on_reuse"`
	} `yaml:"auth"`
	HTTP struct {
		SecureCookies *bool `yaml:"secure_cookies"`
		TrustProxy    *bool `yaml:"trust_proxy"`
	} `yaml:"http"`
	Observability struct {
		Audit             *bool `yaml:"audit"`
		Metrics           *bool `yaml:"metrics"`
		LatencyHistograms *bool `yaml:"latency_histograms"`
	} `yaml:"observability"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path if it exists, then AUTHCORE_* environment variables.
func LoadConfig(path string) (Config, error) {
	engineDefaults := authcore.DefaultConfig()
	cfg := Config{
		ServiceID:          "authcore",
		HTTPPort:           8080,
		LogLevel:           "info",
		MaxDBConns:         20,
		KafkaTopic:         "authcore.audit",
		SMTPPort:           587,
		SMTPTimeout:        10 * time.Second,
		JWTIssuer:          engineDefaults.JWT.Issuer,
		AccessTTL:          engineDefaults.JWT.AccessTTL,
		RefreshTTL:         engineDefaults.JWT.RefreshTTL,
		SecureCookies:      true,
		PasswordAlgorithm:  string(engineDefaults.Password.Algorithm),
		BcryptCost:         engineDefaults.Password.BcryptCost,
		LockoutMaxAttempts: engineDefaults.Lockout.MaxAttempts,
		AuditEnabled:       true,
		MetricsEnabled:     engineDefaults.Metrics.Enabled,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyFile(raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.ServiceID = envOrDefault("AUTHCORE_SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("AUTHCORE_HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(envOrDefault("AUTHCORE_LOG_LEVEL", cfg.LogLevel)))
	cfg.DatabaseURL = envOrDefault("AUTHCORE_DB_URL", cfg.DatabaseURL)
	cfg.MaxDBConns = int32(envInt("AUTHCORE_DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("AUTHCORE_REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("AUTHCORE_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("AUTHCORE_KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.SMTPHost = envOrDefault("AUTHCORE_SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("AUTHCORE_SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("AUTHCORE_SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("AUTHCORE_SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("AUTHCORE_SMTP_FROM", cfg.SMTPFrom)
	cfg.SMTPTimeout = envDuration("AUTHCORE_SMTP_TIMEOUT", cfg.SMTPTimeout)
	cfg.ResetURL = envOrDefault("AUTHCORE_RESET_URL", cfg.ResetURL)
	cfg.VerifyURL = envOrDefault("AUTHCORE_VERIFY_URL", cfg.VerifyURL)

	cfg.JWTAccessSecret = envOrDefault("AUTHCORE_JWT_ACCESS_SECRET", cfg.JWTAccessSecret)
	cfg.JWTRefreshSecret = envOrDefault("AUTHCORE_JWT_REFRESH_SECRET", cfg.JWTRefreshSecret)
	cfg.JWTIssuer = envOrDefault("AUTHCORE_JWT_ISSUER", cfg.JWTIssuer)
	cfg.AccessTTL = envDuration("AUTHCORE_ACCESS_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = envDuration("AUTHCORE_REFRESH_TTL", cfg.RefreshTTL)

	cfg.CookieSecret = envOrDefault("AUTHCORE_COOKIE_SECRET", cfg.CookieSecret)
	cfg.SecureCookies = envBool("AUTHCORE_SECURE_COOKIES", cfg.SecureCookies)
	cfg.TrustProxy = envBool("AUTHCORE_TRUST_PROXY", cfg.TrustProxy)
	cfg.AdminKey = envOrDefault("AUTHCORE_ADMIN_KEY", cfg.AdminKey)

	cfg.PasswordAlgorithm = strings.ToLower(strings.TrimSpace(envOrDefault("AUTHCORE_PASSWORD_ALGORITHM", cfg.PasswordAlgorithm)))
	cfg.BcryptCost = envInt("AUTHCORE_BCRYPT_COST", cfg.BcryptCost)
	cfg.LockoutMaxAttempts = envInt("AUTHCORE_LOCKOUT_MAX_ATTEMPTS", cfg.LockoutMaxAttempts)
	cfg.RevokeFamilyOnReuse = envBool("AUTHCORE_REVOKE_FAMILY_ON_REUSE", cfg.RevokeFamilyOnReuse)
	cfg.AuditEnabled = envBool("AUTHCORE_AUDIT", cfg.AuditEnabled)
	cfg.MetricsEnabled = envBool("AUTHCORE_METRICS", cfg.MetricsEnabled)
	cfg.LatencyHistograms = envBool("AUTHCORE_LATENCY_HISTOGRAMS", cfg.LatencyHistograms)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing AUTHCORE_DB_URL")
	}
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("missing AUTHCORE_JWT_ACCESS_SECRET or AUTHCORE_JWT_REFRESH_SECRET")
	}
	if cfg.CookieSecret == "" {
		return Config{}, fmt.Errorf("missing AUTHCORE_COOKIE_SECRET")
	}

	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.Service.ID != "" {
		c.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		c.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.LogLevel != "" {
		c.LogLevel = f.Service.LogLevel
	}
	if f.Dependencies.PostgresURL != "" {
		c.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		c.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if f.Dependencies.RedisURL != "" {
		c.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		c.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopic != "" {
		c.KafkaTopic = f.Dependencies.KafkaTopic
	}
	if f.Mail.SMTPHost != "" {
		c.SMTPHost = f.Mail.SMTPHost
	}
	if f.Mail.SMTPPort > 0 {
		c.SMTPPort = f.Mail.SMTPPort
	}
	if f.Mail.From != "" {
		c.SMTPFrom = f.Mail.From
	}
	if f.Mail.ResetURL != "" {
		c.ResetURL = f.Mail.ResetURL
	}
	if f.Mail.VerifyURL != "" {
		c.VerifyURL = f.Mail.VerifyURL
	}
	if f.Auth.Issuer != "" {
		c.JWTIssuer = f.Auth.Issuer
	}
	if f.Auth.AccessTTL != "" {
		d, err := time.ParseDuration(f.Auth.AccessTTL)
		if err != nil {
			return fmt.Errorf("parse auth.access_ttl: %w", err)
		}
		c.AccessTTL = d
	}
	if f.Auth.RefreshTTL != "" {
		d, err := time.ParseDuration(f.Auth.RefreshTTL)
		if err != nil {
			return fmt.Errorf("parse auth.refresh_ttl: %w", err)
		}
		c.RefreshTTL = d
	}
	if f.Auth.PasswordAlgorithm != "" {
		c.PasswordAlgorithm = f.Auth.PasswordAlgorithm
	}
	if f.Auth.BcryptCost > 0 {
		c.BcryptCost = f.Auth.BcryptCost
	}
	if f.Auth.LockoutMaxAttempts > 0 {
		c.LockoutMaxAttempts = f.Auth.LockoutMaxAttempts
	}
	setBool(&c.RevokeFamilyOnReuse, f.Auth.RevokeFamilyOnReuse)
	setBool(&c.SecureCookies, f.HTTP.SecureCookies)
	setBool(&c.TrustProxy, f.HTTP.TrustProxy)
	setBool(&c.AuditEnabled, f.Observability.Audit)
	setBool(&c.MetricsEnabled, f.Observability.Metrics)
	setBool(&c.LatencyHistograms, f.Observability.LatencyHistograms)
	return nil
}

// EngineConfig maps c onto the engine defaults. The result still has to pass
// authcore.Config.Validate, which Build runs.
func (c Config) EngineConfig() authcore.Config {
	out := authcore.DefaultConfig()
	out.JWT.AccessSecret = []byte(c.JWTAccessSecret)
	out.JWT.RefreshSecret = []byte(c.JWTRefreshSecret)
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.AccessTTL = c.AccessTTL
	out.JWT.RefreshTTL = c.RefreshTTL
	out.Password.Algorithm = authcore.PasswordAlgorithm(c.PasswordAlgorithm)
	out.Password.BcryptCost = c.BcryptCost
	out.Lockout.MaxAttempts = c.LockoutMaxAttempts
	out.Security.RevokeFamilyOnReuse = c.RevokeFamilyOnReuse
	out.RateLimit.Enabled = c.RedisURL != ""
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled && c.LatencyHistograms
	return out
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or malformed values.
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

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// envCSV drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
