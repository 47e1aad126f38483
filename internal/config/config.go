// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/identity"
)

type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	HTTPPort        string        `yaml:"http_port"`
	GRPCPort        string        `yaml:"grpc_port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	ClientTTL     time.Duration `yaml:"client_ttl"`

	MongoURI                    string        `yaml:"mongo_uri"`
	MongoDBName                 string        `yaml:"mongo_db_name"`
	MongoConnectTimeout         time.Duration `yaml:"mongo_connect_timeout"`
	MongoServerSelectionTimeout time.Duration `yaml:"mongo_server_selection_timeout"`
	MongoMaxPoolSize            int           `yaml:"mongo_max_pool_size"`
	MongoMinPoolSize            int           `yaml:"mongo_min_pool_size"`

	CatalogDBPath  string `yaml:"catalog_db_path"`
	CatalogFeedURL string `yaml:"catalog_feed_url"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	IdentitySecrets     map[string]string `yaml:"identity_secrets"`
	LineRegistrationCap int               `yaml:"line_registration_cap"`

	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

func defaults() *Config {
	return &Config{
		AppEnv:              "development",
		LogLevel:            "info",
		HTTPPort:            "8080",
		GRPCPort:            "50051",
		RequestTimeout:      30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		RedisAddr:           "localhost:6379",
		MongoURI:            "mongodb://localhost:27017/?replicaSet=rs0",
		MongoDBName:         "storefront",
		MongoConnectTimeout: 10 * time.Second,
		MongoMaxPoolSize:    100,
		MongoMinPoolSize:    10,
		CatalogDBPath:       "catalog.db",
		CatalogFeedURL:      "https://fakestoreapi.com",
		KafkaTopic:          "order-events",
		IdentitySecrets:     map[string]string{},
		LineRegistrationCap: 100,
		RetryAttempts:       3,
		RetryDelay:          time.Second,
	}
}

// Load reads .env if present, then the YAML file named by STOREFRONT_CONFIG,
// then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.GRPCPort = getEnv("GRPC_PORT", c.GRPCPort)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDBName = getEnv("MONGO_DB_NAME", c.MongoDBName)
	c.CatalogDBPath = getEnv("CATALOG_DB_PATH", c.CatalogDBPath)
	c.CatalogFeedURL = getEnv("CATALOG_FEED_URL", c.CatalogFeedURL)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}

	if c.IdentitySecrets == nil {
		c.IdentitySecrets = map[string]string{}
	}
	for provider, key := range map[string]string{
		identity.ProviderGoogle:   "IDENTITY_SECRET_GOOGLE",
		identity.ProviderFacebook: "IDENTITY_SECRET_FACEBOOK",
		identity.ProviderLine:     "IDENTITY_SECRET_LINE",
	} {
		if v := os.Getenv(key); v != "" {
			c.IdentitySecrets[provider] = v
		}
	}

	var err error
	if c.LineRegistrationCap, err = getEnvInt("LINE_REGISTRATION_CAP", c.LineRegistrationCap); err != nil {
		return err
	}
	if c.RetryAttempts, err = getEnvInt("RETRY_ATTEMPTS", c.RetryAttempts); err != nil {
		return err
	}
	if c.RetryDelay, err = getEnvDuration("RETRY_DELAY", c.RetryDelay); err != nil {
		return err
	}
	if c.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if c.ClientTTL, err = getEnvDuration("CLIENT_TTL", c.ClientTTL); err != nil {
		return err
	}
	if c.MongoConnectTimeout, err = getEnvDuration("MONGO_CONNECT_TIMEOUT", c.MongoConnectTimeout); err != nil {
		return err
	}
	if c.MongoServerSelectionTimeout, err = getEnvDuration("MONGO_SERVER_SELECTION_TIMEOUT", c.MongoServerSelectionTimeout); err != nil {
		return err
	}
	if c.MongoMaxPoolSize, err = getEnvInt("MONGO_MAX_POOL_SIZE", c.MongoMaxPoolSize); err != nil {
		return err
	}
	if c.MongoMinPoolSize, err = getEnvInt("MONGO_MIN_POOL_SIZE", c.MongoMinPoolSize); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative, got %d", c.RetryAttempts)
	}
	if c.LineRegistrationCap < 0 {
		return fmt.Errorf("line_registration_cap must not be negative, got %d", c.LineRegistrationCap)
	}
	if c.MongoMaxPoolSize < 0 || c.MongoMinPoolSize < 0 {
		return errors.New("mongo pool sizes must not be negative")
	}
	if c.MongoMaxPoolSize > 0 && c.MongoMinPoolSize > c.MongoMaxPoolSize {
		return fmt.Errorf("mongo_min_pool_size %d exceeds mongo_max_pool_size %d", c.MongoMinPoolSize, c.MongoMaxPoolSize)
	}
	if c.HTTPPort == "" || c.GRPCPort == "" {
		return errors.New("http_port and grpc_port are required")
	}
	return nil
}

// Quotas is the registration cap per quota-guarded provider.
func (c *Config) Quotas() map[string]int {
	return map[string]int{identity.ProviderLine: c.LineRegistrationCap}
}

func (c *Config) MongoOptions() docstore.MongoOptions {
	return docstore.MongoOptions{
		URI:                    c.MongoURI,
		Database:               c.MongoDBName,
		ConnectTimeout:         c.MongoConnectTimeout,
		ServerSelectionTimeout: c.MongoServerSelectionTimeout,
		MaxPoolSize:            uint64(c.MongoMaxPoolSize),
		MinPoolSize:            uint64(c.MongoMinPoolSize),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
