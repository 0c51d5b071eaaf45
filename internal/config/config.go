package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type Config struct {
	LogLevel      string
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Kafka         KafkaConfig
	Storage       StorageConfig
	Telemetry     TelemetryConfig
	Drive         DriveConfig
	Replenishment ReplenishmentConfig
}

type ServerConfig struct {
	Port            string
	OpsPort         string
	Mode            string
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Driver           string
	DSN              string
	Host             string
	Port             string
	User             string
	Password         string
	DBName           string
	SSLMode          string
	MaxOpenConns     int
	MaxConcurrentOps int64
}

type CacheConfig struct {
	Enabled               bool
	RedisURL              string
	RedisHost             string
	RedisPort             string
	RedisPassword         string
	RedisDB               int
	PerformanceTTLSeconds int
	SuggestionTTLSeconds  int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

type TelemetryConfig struct {
	TracingEnabled bool
	JaegerEndpoint string
	ServiceName    string
}

type DriveConfig struct {
	CredentialsFile string
	FolderID        string
}

// ReplenishmentConfig tunes the decision engine.
type ReplenishmentConfig struct {
	ServiceLevel         float64
	OrderingCost         float64
	HoldingCostRate      float64
	DemandWindowDays     int
	EvaluationInterval   time.Duration
	AutoBuild            bool
	ExcludeOnOrder       bool
	ReadRetryAttempts    int
	ReadRetryBackoff     time.Duration
	ScorerMinOrders      int
	StockReadConcurrency int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_OPS_PORT", "9090")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "replenish")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_CONCURRENT_OPS", 10)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_PERFORMANCE_TTL_SECONDS", 300)
	v.SetDefault("CACHE_SUGGESTION_TTL_SECONDS", 60)

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA_TOPIC", "purchase-order-events")

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "purchase-orders")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_PREFIX", "exports")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("SERVICE_NAME", "replenish")

	v.SetDefault("DRIVE_CREDENTIALS_FILE", "")
	v.SetDefault("DRIVE_FOLDER_ID", "")

	v.SetDefault("REPLENISH_SERVICE_LEVEL", 0.95)
	v.SetDefault("REPLENISH_ORDERING_COST", 50.0)
	v.SetDefault("REPLENISH_HOLDING_COST_RATE", 0.25)
	v.SetDefault("REPLENISH_DEMAND_WINDOW_DAYS", 90)
	v.SetDefault("REPLENISH_EVALUATION_INTERVAL", "15m")
	v.SetDefault("REPLENISH_AUTO_BUILD", false)
	v.SetDefault("REPLENISH_EXCLUDE_ON_ORDER", true)
	v.SetDefault("REPLENISH_READ_RETRY_ATTEMPTS", 3)
	v.SetDefault("REPLENISH_READ_RETRY_BACKOFF", "100ms")
	v.SetDefault("REPLENISH_SCORER_MIN_ORDERS", 3)
	v.SetDefault("REPLENISH_STOCK_READ_CONCURRENCY", 8)
}

// Load reads the configuration from the environment (and a .env file when
// present) on top of the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			OpsPort:         v.GetString("SERVER_OPS_PORT"),
			Mode:            v.GetString("SERVER_MODE"),
			ReadTimeout:     v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetInt("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  stringSlice(v, "SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:           v.GetString("DB_DRIVER"),
			DSN:              v.GetString("DB_DSN"),
			Host:             v.GetString("DB_HOST"),
			Port:             v.GetString("DB_PORT"),
			User:             v.GetString("DB_USER"),
			Password:         v.GetString("DB_PASSWORD"),
			DBName:           v.GetString("DB_NAME"),
			SSLMode:          v.GetString("DB_SSLMODE"),
			MaxOpenConns:     v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxConcurrentOps: v.GetInt64("DB_MAX_CONCURRENT_OPS"),
		},
		Cache: CacheConfig{
			Enabled:               v.GetBool("CACHE_ENABLED"),
			RedisURL:              v.GetString("REDIS_URL"),
			RedisHost:             v.GetString("REDIS_HOST"),
			RedisPort:             v.GetString("REDIS_PORT"),
			RedisPassword:         v.GetString("REDIS_PASSWORD"),
			RedisDB:               v.GetInt("REDIS_DB"),
			PerformanceTTLSeconds: v.GetInt("CACHE_PERFORMANCE_TTL_SECONDS"),
			SuggestionTTLSeconds:  v.GetInt("CACHE_SUGGESTION_TTL_SECONDS"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: stringSlice(v, "KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Telemetry: TelemetryConfig{
			TracingEnabled: v.GetBool("TRACING_ENABLED"),
			JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
			ServiceName:    v.GetString("SERVICE_NAME"),
		},
		Drive: DriveConfig{
			CredentialsFile: v.GetString("DRIVE_CREDENTIALS_FILE"),
			FolderID:        v.GetString("DRIVE_FOLDER_ID"),
		},
		Replenishment: ReplenishmentConfig{
			ServiceLevel:         v.GetFloat64("REPLENISH_SERVICE_LEVEL"),
			OrderingCost:         v.GetFloat64("REPLENISH_ORDERING_COST"),
			HoldingCostRate:      v.GetFloat64("REPLENISH_HOLDING_COST_RATE"),
			DemandWindowDays:     v.GetInt("REPLENISH_DEMAND_WINDOW_DAYS"),
			EvaluationInterval:   v.GetDuration("REPLENISH_EVALUATION_INTERVAL"),
			AutoBuild:            v.GetBool("REPLENISH_AUTO_BUILD"),
			ExcludeOnOrder:       v.GetBool("REPLENISH_EXCLUDE_ON_ORDER"),
			ReadRetryAttempts:    v.GetInt("REPLENISH_READ_RETRY_ATTEMPTS"),
			ReadRetryBackoff:     v.GetDuration("REPLENISH_READ_RETRY_BACKOFF"),
			ScorerMinOrders:      v.GetInt("REPLENISH_SCORER_MIN_ORDERS"),
			StockReadConcurrency: v.GetInt("REPLENISH_STOCK_READ_CONCURRENCY"),
		},
	}
}

// Environment variables hold lists as comma separated strings.
func stringSlice(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects out of range settings.
func (c *Config) Validate() error {
	verr := &domain.ValidationError{}

	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		verr.Add("DB_DRIVER", "unsupported driver %q", c.Database.Driver)
	}
	if c.Database.MaxConcurrentOps < 1 {
		verr.Add("DB_MAX_CONCURRENT_OPS", "must be >= 1")
	}

	r := c.Replenishment
	if r.ServiceLevel <= 0 || r.ServiceLevel >= 1 {
		verr.Add("REPLENISH_SERVICE_LEVEL", "must be within (0, 1), got %v", r.ServiceLevel)
	}
	if r.OrderingCost < 0 {
		verr.Add("REPLENISH_ORDERING_COST", "must be >= 0")
	}
	if r.HoldingCostRate < 0 {
		verr.Add("REPLENISH_HOLDING_COST_RATE", "must be >= 0")
	}
	if r.DemandWindowDays < 1 {
		verr.Add("REPLENISH_DEMAND_WINDOW_DAYS", "must be >= 1")
	}
	if r.EvaluationInterval < time.Second {
		verr.Add("REPLENISH_EVALUATION_INTERVAL", "must be at least 1s, got %s", r.EvaluationInterval)
	}
	if r.ReadRetryAttempts < 1 {
		verr.Add("REPLENISH_READ_RETRY_ATTEMPTS", "must be >= 1")
	}
	if r.ScorerMinOrders < 1 {
		verr.Add("REPLENISH_SCORER_MIN_ORDERS", "must be >= 1")
	}
	if r.StockReadConcurrency < 1 {
		verr.Add("REPLENISH_STOCK_READ_CONCURRENCY", "must be >= 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		verr.Add("KAFKA_BROKERS", "required when KAFKA_ENABLED is true")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		verr.Add("STORAGE_BUCKET", "required when STORAGE_ENABLED is true")
	}

	if err := verr.OrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ConnString returns the driver specific data source name.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return "file:" + d.DBName + ".db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns host:port of the Redis server, defaulting to the local
// instance.
func (c CacheConfig) RedisAddr() string {
	host, port := c.RedisHost, c.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	return net.JoinHostPort(host, port)
}
