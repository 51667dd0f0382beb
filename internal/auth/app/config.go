package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/postgres"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/spf13/viper"
)

// ConfigFileEnv names an optional YAML file read before the environment.
// Environment variables win over the file.
const ConfigFileEnv = "ESLADMIN_CONFIG_FILE"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type AuthConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        []string      `mapstructure:"audience"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`

	// Pepper is mixed into every password hash. When empty it is read
	// from, or generated into, PepperFile.
	Pepper     string `mapstructure:"pepper"`
	PepperFile string `mapstructure:"pepper_file"`

	TOTPIssuer string `mapstructure:"totp_issuer"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // sqlite or postgres
	File         string        `mapstructure:"file"`
	URL          string        `mapstructure:"url"`
	MaxConns     int32         `mapstructure:"max_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

func (c DatabaseConfig) postgres() postgres.Config {
	return postgres.Config{
		URL:          c.URL,
		MaxConns:     c.MaxConns,
		QueryTimeout: c.QueryTimeout,
	}
}

type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

type RateLimitConfig struct {
	Login   httpx.RateLimitConfig `mapstructure:"login"`
	Refresh httpx.RateLimitConfig `mapstructure:"refresh"`
	User    httpx.RateLimitConfig `mapstructure:"user"`

	// TrustProxy keys limits on X-Forwarded-For. Enable only behind a
	// proxy that overwrites the header.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type Config struct {
	Auth      AuthConfig            `mapstructure:"auth"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Bootstrap BootstrapConfig       `mapstructure:"bootstrap"`
	Lockout   service.LockoutPolicy `mapstructure:"lockout"`
	RateLimit RateLimitConfig       `mapstructure:"ratelimit"`

	Env                  string        `mapstructure:"env"`
	LogLevel             string        `mapstructure:"log_level"`
	LogFormat            string        `mapstructure:"log_format"`
	Port                 int           `mapstructure:"port"`
	ShutdownGracePeriod  time.Duration `mapstructure:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `mapstructure:"housekeeping_interval"`
}

// requiredKeys must be set; the service refuses to start otherwise.
var requiredKeys = []string{
	"auth.signing_key",
	"auth.issuer",
	"auth.audience",
	"auth.access_token_ttl",
	"auth.refresh_token_ttl",
}

var optionalKeys = []string{
	"auth.pepper",
	"auth.pepper_file",
	"auth.totp_issuer",
	"database.driver",
	"database.file",
	"database.url",
	"database.max_conns",
	"database.query_timeout",
	"bootstrap.admin_email",
	"bootstrap.admin_password",
	"lockout.max_attempts",
	"lockout.duration",
	"ratelimit.login.requests",
	"ratelimit.login.window",
	"ratelimit.login.burst",
	"ratelimit.refresh.requests",
	"ratelimit.refresh.window",
	"ratelimit.refresh.burst",
	"ratelimit.user.requests",
	"ratelimit.user.window",
	"ratelimit.user.burst",
	"ratelimit.trust_proxy",
	"env",
	"log_level",
	"log_format",
	"port",
	"shutdown_grace_period",
	"housekeeping_interval",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.pepper_file", "pepper")
	v.SetDefault("auth.totp_issuer", "ESLAdmin")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.file", "esladmin.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("lockout.max_attempts", service.DefaultLockoutMaxAttempts)
	v.SetDefault("lockout.duration", service.DefaultLockoutDuration)

	for name, cfg := range map[string]httpx.RateLimitConfig{
		"login":   httpx.StrictLimit,
		"refresh": httpx.StrictLimit,
		"user":    httpx.ModerateLimit,
	} {
		v.SetDefault("ratelimit."+name+".requests", cfg.RequestsPerWindow)
		v.SetDefault("ratelimit."+name+".window", cfg.Window)
		v.SetDefault("ratelimit."+name+".burst", cfg.Burst)
	}
	v.SetDefault("ratelimit.trust_proxy", false)

	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("port", 8080)
	v.SetDefault("shutdown_grace_period", "10s")
	v.SetDefault("housekeeping_interval", service.DefaultHousekeepingInterval)
}

// LoadConfig reads the configuration from the file named by
// ESLADMIN_CONFIG_FILE, if any, and the environment. Keys map to variables
// by upper-casing and replacing dots with underscores, so auth.signing_key
// is AUTH_SIGNING_KEY. The result is validated.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Unmarshal only sees keys viper knows about, so every key is bound.
	for _, key := range append(append([]string{}, requiredKeys...), optionalKeys...) {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	if err := v.BindEnv("config_file", ConfigFileEnv); err != nil {
		return Config{}, fmt.Errorf("config: bind %s: %w", ConfigFileEnv, err)
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var missing []string
	for _, key := range requiredKeys {
		if isBlank(v.Get(key)) {
			missing = append(missing, envName(key))
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Auth.Audience = splitList(cfg.Auth.Audience)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that decode fine but cannot be served.
func (c Config) Validate() error {
	var errs []error

	if len(c.Auth.SigningKey) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes", jwtx.MinSecretLength))
	}
	if c.Auth.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}
	if len(c.Auth.Audience) == 0 {
		errs = append(errs, errors.New("AUTH_AUDIENCE is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TOKEN_TTL must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TOKEN_TTL must be positive"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver))
	}

	if c.Lockout.MaxAttempts <= 0 || c.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_MAX_ATTEMPTS and LOCKOUT_DURATION must be positive"))
	}
	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func isBlank(val any) bool {
	switch t := val.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitList flattens comma separated entries, which is how a list arrives
// from a single environment variable.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
