package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string        `env:"AUDIT_ADDR" envDefault:":8080"`
	JWTSigningKey string        `env:"AUDIT_JWT_SIGNING_KEY" validate:"required,min=16"`
	JWTIssuer     string        `env:"AUDIT_JWT_ISSUER" envDefault:"clinicaudit"`
	TokenTTL      time.Duration `env:"AUDIT_TOKEN_TTL" envDefault:"15m" validate:"gt=0"`
	UsersFile     string        `env:"AUDIT_USERS_FILE" envDefault:"users.json"`
	AdminToken    string        `env:"AUDIT_ADMIN_TOKEN"`

	// TrustedProxies are the load balancers allowed to set X-Forwarded-For
	// and X-Real-IP. Empty means client addresses come from the socket.
	TrustedProxies []string `env:"AUDIT_TRUSTED_PROXIES" envSeparator:"," validate:"dive,cidr|ip"`

	// LoginMaxAttempts failures within LoginWindow lock a username/IP pair
	// for LoginLockout. Zero disables lockout.
	LoginMaxAttempts int           `env:"AUDIT_LOGIN_MAX_ATTEMPTS" envDefault:"5" validate:"gte=0"`
	LoginWindow      time.Duration `env:"AUDIT_LOGIN_WINDOW" envDefault:"15m" validate:"gt=0"`
	LoginLockout     time.Duration `env:"AUDIT_LOGIN_LOCKOUT" envDefault:"15m" validate:"gt=0"`
}

// Store selects and tunes the audit event store.
type Store struct {
	Driver          string        `env:"AUDIT_STORE_DRIVER" envDefault:"sqlite3" validate:"oneof=sqlite3 postgres memory"`
	DBPath          string        `env:"AUDIT_DB_PATH" envDefault:"audit.db"`
	DatabaseURL     string        `env:"AUDIT_DATABASE_URL" validate:"required_if=Driver postgres"`
	MaxWriteRetries int           `env:"AUDIT_MAX_WRITE_RETRIES" envDefault:"3" validate:"gte=0,lte=20"`
	BusyTimeout     time.Duration `env:"AUDIT_BUSY_TIMEOUT" envDefault:"5s"`
	AsyncBuffer     int           `env:"AUDIT_ASYNC_BUFFER" envDefault:"1024" validate:"gt=0"`
}

// Logging configures the JSON stdout logger and the rotated operational log.
type Logging struct {
	Level         string `env:"AUDIT_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	OpsLogFile    string `env:"AUDIT_OPS_LOG_FILE"`
	OpsMaxSizeMB  int    `env:"AUDIT_OPS_LOG_MAX_SIZE_MB" envDefault:"100" validate:"gt=0"`
	OpsMaxAgeDays int    `env:"AUDIT_OPS_LOG_MAX_AGE_DAYS" envDefault:"30" validate:"gte=0"`
	OpsMaxBackups int    `env:"AUDIT_OPS_LOG_MAX_BACKUPS" envDefault:"10" validate:"gte=0"`
}

// Retention is opt-in: RetentionDays == 0 keeps every event forever.
type Retention struct {
	ExportDir  string        `env:"AUDIT_EXPORT_DIR" envDefault:"exports"`
	Days       int           `env:"AUDIT_RETENTION_DAYS" envDefault:"0" validate:"gte=0"`
	ArchiveDir string        `env:"AUDIT_ARCHIVE_DIR" envDefault:"archive"`
	Interval   time.Duration `env:"AUDIT_RETENTION_INTERVAL" envDefault:"24h" validate:"gt=0"`
}

type Config struct {
	Server    Server
	Store     Store
	Logging   Logging
	Retention Retention
}

// Load reads .env files if present, then the environment, then validates.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		// Missing .env files are normal outside development.
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RetentionEnabled reports whether the scheduled archive-and-purge runs.
func (c *Config) RetentionEnabled() bool {
	return c.Retention.Days > 0
}
