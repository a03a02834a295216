package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration. Load it once in main and pass the
// relevant sections down; nothing reads the environment after startup.
type Config struct {
	Server       Server
	Database     Database
	Redis        RedisConfig
	Kafka        Kafka
	Outbox       Outbox
	Distribution Distribution
	Nutrition    Nutrition
	Resolver     Resolver
	Log          Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// Database configures the process-wide PostgreSQL pool. An empty URL selects the
// in-memory stores (development only).
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig configures the resolver cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the outbox publisher. No brokers disables publishing; events
// still accumulate in the outbox table.
type Kafka struct {
	Brokers           []string
	Topic             string
	ClientID          string
	CreateTopic       bool
	Partitions        int32
	ReplicationFactor int16
}

type Outbox struct {
	PollInterval time.Duration
	BatchSize    int
}

// Distribution holds the transaction and validation limits of the registration flow.
type Distribution struct {
	TxTimeout           time.Duration
	Timezone            string
	MaxSignatureBytes   int
	MaxBeneficiaryCount int
}

// Location resolves Timezone; empty means the process's local zone.
func (d Distribution) Location() (*time.Location, error) {
	if d.Timezone == "" || strings.EqualFold(d.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

type Nutrition struct {
	CycleMonths int
	CardPrefix  string
}

// Resolver configures identifier resolution for QR scans and manual entry.
type Resolver struct {
	Prefixes      []string
	CacheTTL      time.Duration
	RetryAttempts int
	RetryInitial  time.Duration
	RetryMax      time.Duration
}

type Log struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("READ_HEADER_TIMEOUT", 5*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DB_MIGRATE_ON_START", true)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "aidtrack.events")
	v.SetDefault("KAFKA_CLIENT_ID", "aidtrack")
	v.SetDefault("KAFKA_CREATE_TOPIC", false)
	v.SetDefault("KAFKA_PARTITIONS", 3)
	v.SetDefault("KAFKA_REPLICATION_FACTOR", 1)

	v.SetDefault("OUTBOX_POLL_INTERVAL", 2*time.Second)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)

	v.SetDefault("DISTRIBUTION_TX_TIMEOUT", 5*time.Second)
	v.SetDefault("DISTRIBUTION_TIMEZONE", "Local")
	v.SetDefault("MAX_SIGNATURE_BYTES", 256*1024)
	v.SetDefault("MAX_BENEFICIARY_COUNT", 100)

	v.SetDefault("NUTRITION_CYCLE_MONTHS", 6)
	v.SetDefault("RATION_CARD_PREFIX", "R-")

	v.SetDefault("RESOLVER_PREFIXES", "R-")
	v.SetDefault("RESOLVER_CACHE_TTL", 5*time.Minute)
	v.SetDefault("RESOLVER_RETRY_ATTEMPTS", 3)
	v.SetDefault("RESOLVER_RETRY_INITIAL", 200*time.Millisecond)
	v.SetDefault("RESOLVER_RETRY_MAX", 2*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load reads configuration from the environment, optionally layered over the file
// named by CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:              v.GetString("ADDR"),
			ReadHeaderTimeout: v.GetDuration("READ_HEADER_TIMEOUT"),
			RequestTimeout:    v.GetDuration("REQUEST_TIMEOUT"),
			ShutdownTimeout:   v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Database: Database{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			MigrateOnStart:  v.GetBool("DB_MIGRATE_ON_START"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		},
		Kafka: Kafka{
			Brokers:           splitList(v.GetString("KAFKA_BROKERS")),
			Topic:             v.GetString("KAFKA_TOPIC"),
			ClientID:          v.GetString("KAFKA_CLIENT_ID"),
			CreateTopic:       v.GetBool("KAFKA_CREATE_TOPIC"),
			Partitions:        v.GetInt32("KAFKA_PARTITIONS"),
			ReplicationFactor: int16(v.GetInt("KAFKA_REPLICATION_FACTOR")),
		},
		Outbox: Outbox{
			PollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
			BatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
		},
		Distribution: Distribution{
			TxTimeout:           v.GetDuration("DISTRIBUTION_TX_TIMEOUT"),
			Timezone:            v.GetString("DISTRIBUTION_TIMEZONE"),
			MaxSignatureBytes:   v.GetInt("MAX_SIGNATURE_BYTES"),
			MaxBeneficiaryCount: v.GetInt("MAX_BENEFICIARY_COUNT"),
		},
		Nutrition: Nutrition{
			CycleMonths: v.GetInt("NUTRITION_CYCLE_MONTHS"),
			CardPrefix:  v.GetString("RATION_CARD_PREFIX"),
		},
		Resolver: Resolver{
			Prefixes:      splitList(v.GetString("RESOLVER_PREFIXES")),
			CacheTTL:      v.GetDuration("RESOLVER_CACHE_TTL"),
			RetryAttempts: v.GetInt("RESOLVER_RETRY_ATTEMPTS"),
			RetryInitial:  v.GetDuration("RESOLVER_RETRY_INITIAL"),
			RetryMax:      v.GetDuration("RESOLVER_RETRY_MAX"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break the registration invariants.
func (c Config) Validate() error {
	if c.Distribution.TxTimeout <= 0 {
		return fmt.Errorf("DISTRIBUTION_TX_TIMEOUT must be positive")
	}
	if c.Distribution.MaxSignatureBytes <= 0 {
		return fmt.Errorf("MAX_SIGNATURE_BYTES must be positive")
	}
	if c.Nutrition.CycleMonths <= 0 {
		return fmt.Errorf("NUTRITION_CYCLE_MONTHS must be positive")
	}
	if c.Nutrition.CardPrefix == "" {
		return fmt.Errorf("RATION_CARD_PREFIX is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if _, err := c.Distribution.Location(); err != nil {
		return err
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
