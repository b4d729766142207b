package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DEPOSIT_DATABASE_PASSWORD
const EnvPrefix = "DEPOSIT"

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Reconcile  ReconcileConfig
	StatusFeed StatusFeedConfig
	Callback   CallbackConfig
	Transfer   TransferConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Path            string // sqlite file path or ":memory:"
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string

	// Callback endpoint rate limiting, per client IP
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DriverConfig schedules one reconciliation driver
type DriverConfig struct {
	Enabled      bool
	Delay        time.Duration // pause between the end of one run and the start of the next
	InitialDelay time.Duration // stagger before the first run
	RunTimeout   time.Duration // zero means a run is bounded only by shutdown
	Concurrency  int           // entities handled in parallel within a run
	BatchSize    int           // candidate page size
}

// ReconcileConfig holds the three reconciliation drivers
type ReconcileConfig struct {
	SubmissionStatus DriverConfig
	DepositStatus    DriverConfig
	FailedRetry      DriverConfig
}

// StatusFeedConfig holds remote status resolution settings
type StatusFeedConfig struct {
	RepositoriesFile string // YAML file with per-repository mapping tables
	DefaultTimeout   time.Duration
	RetryMax         int
	RetryWaitMin     time.Duration
	RetryWaitMax     time.Duration
	UserAgent        string
}

// CallbackConfig holds push status callback settings
type CallbackConfig struct {
	IdempotencyBackend string // redis or memory
	IdempotencyTTL     time.Duration
}

// TransferConfig holds the S3 drop-box transport used by the retry driver
type TransferConfig struct {
	Enabled         bool
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	StatusBaseURL   string // status references are StatusBaseURL + object key
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DEPOSIT_ prefix (e.g., DEPOSIT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/deposit-services")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),

			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Reconcile: ReconcileConfig{
			SubmissionStatus: driverFromViper(v, "reconcile.submission_status"),
			DepositStatus:    driverFromViper(v, "reconcile.deposit_status"),
			FailedRetry:      driverFromViper(v, "reconcile.failed_retry"),
		},
		StatusFeed: StatusFeedConfig{
			RepositoriesFile: v.GetString("status_feed.repositories_file"),
			DefaultTimeout:   v.GetDuration("status_feed.default_timeout"),
			RetryMax:         v.GetInt("status_feed.retry_max"),
			RetryWaitMin:     v.GetDuration("status_feed.retry_wait_min"),
			RetryWaitMax:     v.GetDuration("status_feed.retry_wait_max"),
			UserAgent:        v.GetString("status_feed.user_agent"),
		},
		Callback: CallbackConfig{
			IdempotencyBackend: v.GetString("callback.idempotency_backend"),
			IdempotencyTTL:     v.GetDuration("callback.idempotency_ttl"),
		},
		Transfer: TransferConfig{
			Enabled:         v.GetBool("transfer.enabled"),
			Bucket:          v.GetString("transfer.bucket"),
			Prefix:          v.GetString("transfer.prefix"),
			Region:          v.GetString("transfer.region"),
			Endpoint:        v.GetString("transfer.endpoint"),
			AccessKeyID:     v.GetString("transfer.access_key_id"),
			SecretAccessKey: v.GetString("transfer.secret_access_key"),
			UsePathStyle:    v.GetBool("transfer.use_path_style"),
			StatusBaseURL:   v.GetString("transfer.status_base_url"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg, v)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func driverFromViper(v *viper.Viper, prefix string) DriverConfig {
	return DriverConfig{
		Enabled:      v.GetBool(prefix + ".enabled"),
		Delay:        v.GetDuration(prefix + ".delay"),
		InitialDelay: v.GetDuration(prefix + ".initial_delay"),
		RunTimeout:   v.GetDuration(prefix + ".run_timeout"),
		Concurrency:  v.GetInt(prefix + ".concurrency"),
		BatchSize:    v.GetInt(prefix + ".batch_size"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.App.Name == "" {
		cfg.App.Name = "deposit-services"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "deposit-services.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "deposits"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 64 << 10
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 120
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}

	// Minutes, not seconds; staggered so the three drivers do not fire together.
	driverDefaults(&cfg.Reconcile.SubmissionStatus, v, "reconcile.submission_status", 5*time.Minute, 30*time.Second)
	driverDefaults(&cfg.Reconcile.DepositStatus, v, "reconcile.deposit_status", 10*time.Minute, 90*time.Second)
	driverDefaults(&cfg.Reconcile.FailedRetry, v, "reconcile.failed_retry", 30*time.Minute, 3*time.Minute)

	if cfg.StatusFeed.RepositoriesFile == "" {
		cfg.StatusFeed.RepositoriesFile = "repositories.yaml"
	}
	if cfg.StatusFeed.DefaultTimeout == 0 {
		cfg.StatusFeed.DefaultTimeout = 30 * time.Second
	}
	if !v.IsSet("status_feed.retry_max") {
		cfg.StatusFeed.RetryMax = 3
	}
	if cfg.StatusFeed.RetryWaitMin == 0 {
		cfg.StatusFeed.RetryWaitMin = time.Second
	}
	if cfg.StatusFeed.RetryWaitMax == 0 {
		cfg.StatusFeed.RetryWaitMax = 10 * time.Second
	}
	if cfg.StatusFeed.UserAgent == "" {
		cfg.StatusFeed.UserAgent = cfg.App.Name
	}

	if cfg.Callback.IdempotencyBackend == "" {
		if cfg.Redis.Enabled {
			cfg.Callback.IdempotencyBackend = "redis"
		} else {
			cfg.Callback.IdempotencyBackend = "memory"
		}
	}
	if cfg.Callback.IdempotencyTTL == 0 {
		cfg.Callback.IdempotencyTTL = 24 * time.Hour
	}

	if cfg.Transfer.Prefix == "" {
		cfg.Transfer.Prefix = "deposits"
	}
	if cfg.Transfer.Region == "" {
		cfg.Transfer.Region = "us-east-1"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if !v.IsSet("telemetry.sampling_ratio") {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// driverDefaults enables a driver unless explicitly disabled and fills its cadence
func driverDefaults(d *DriverConfig, v *viper.Viper, prefix string, delay, initial time.Duration) {
	if !v.IsSet(prefix + ".enabled") {
		d.Enabled = true
	}
	if d.Delay == 0 {
		d.Delay = delay
	}
	if !v.IsSet(prefix + ".initial_delay") {
		d.InitialDelay = initial
	}
	if d.Concurrency == 0 {
		d.Concurrency = 1
	}
	if d.BatchSize == 0 {
		d.BatchSize = 500
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	drivers := map[string]DriverConfig{
		"submission_status": c.Reconcile.SubmissionStatus,
		"deposit_status":    c.Reconcile.DepositStatus,
		"failed_retry":      c.Reconcile.FailedRetry,
	}
	for name, d := range drivers {
		if d.Delay <= 0 {
			return fmt.Errorf("reconcile.%s.delay must be positive", name)
		}
		if d.InitialDelay < 0 {
			return fmt.Errorf("reconcile.%s.initial_delay cannot be negative", name)
		}
		if d.Concurrency < 1 {
			return fmt.Errorf("reconcile.%s.concurrency must be at least 1", name)
		}
	}

	if c.StatusFeed.RetryMax < 0 {
		return fmt.Errorf("status_feed.retry_max cannot be negative")
	}
	if c.StatusFeed.RetryWaitMin > c.StatusFeed.RetryWaitMax {
		return fmt.Errorf("status_feed.retry_wait_min cannot exceed status_feed.retry_wait_max")
	}

	switch c.Callback.IdempotencyBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("callback.idempotency_backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("callback.idempotency_backend must be redis or memory, got %q", c.Callback.IdempotencyBackend)
	}

	if c.Transfer.Enabled && c.Transfer.Bucket == "" {
		return fmt.Errorf("transfer.bucket is required when transfer is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
