// Package config loads process settings. Values come from built-in
// defaults, then an optional YAML file named by FOREMAN_CONFIG, then the
// environment. A .env file in the working directory is read first.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	EventsNone  = "none"
	EventsRedis = "redis"
	EventsSQS   = "sqs"
	EventsBoth  = "both"
)

type Config struct {
	Port             string        `yaml:"port"`
	LogLevel         string        `yaml:"log_level"`
	StorageBackend   string        `yaml:"storage_backend"`
	EventsBackend    string        `yaml:"events_backend"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`

	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	SQS      SQS      `yaml:"sqs"`
	Worker   Worker   `yaml:"worker"`
}

type Database struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
}

// ConnString returns URL when set, otherwise a URL assembled from the
// individual fields.
func (d Database) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type SQS struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

type Worker struct {
	APIURL            string        `yaml:"api_url"`
	ServiceIDs        []string      `yaml:"service_ids"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		LogLevel:         "info",
		StorageBackend:   StorageMemory,
		EventsBackend:    EventsNone,
		HeartbeatTimeout: 30 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		Database: Database{
			Host:     "localhost",
			Port:     "5432",
			User:     "foreman",
			Password: "foreman",
			Name:     "foreman",
		},
		Redis: Redis{Addr: "localhost:6379"},
		Worker: Worker{
			APIURL:            "http://localhost:8080",
			PollInterval:      time.Second,
			HeartbeatInterval: 10 * time.Second,
			JobTimeout:        2 * time.Minute,
		},
	}
}

// Load reads the configuration of the running process.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("FOREMAN_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", c.StorageBackend))
	c.EventsBackend = strings.ToLower(getEnv("EVENTS_BACKEND", c.EventsBackend))

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Prefix = getEnv("REDIS_EVENTS_PREFIX", c.Redis.Prefix)

	c.SQS.QueueURL = getEnv("SQS_QUEUE_URL", c.SQS.QueueURL)
	c.SQS.Region = getEnv("AWS_REGION", c.SQS.Region)

	c.Worker.APIURL = getEnv("FOREMAN_API_URL", c.Worker.APIURL)
	if ids := os.Getenv("WORKER_SERVICE_IDS"); ids != "" {
		c.Worker.ServiceIDs = splitList(ids)
	}

	var err error
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", int(c.Database.MaxConns))
	if err != nil {
		return err
	}
	c.Database.MaxConns = int32(maxConns)

	seconds, err := getEnvInt("HEARTBEAT_TIMEOUT_SECONDS", int(c.HeartbeatTimeout/time.Second))
	if err != nil {
		return err
	}
	c.HeartbeatTimeout = time.Duration(seconds) * time.Second

	if c.Worker.PollInterval, err = getEnvDuration("WORKER_POLL_INTERVAL", c.Worker.PollInterval); err != nil {
		return err
	}
	if c.Worker.HeartbeatInterval, err = getEnvDuration("WORKER_HEARTBEAT_INTERVAL", c.Worker.HeartbeatInterval); err != nil {
		return err
	}
	if c.Worker.JobTimeout, err = getEnvDuration("WORKER_JOB_TIMEOUT", c.Worker.JobTimeout); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	switch c.EventsBackend {
	case EventsNone, EventsRedis:
	case EventsSQS, EventsBoth:
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("config: events backend %q needs SQS_QUEUE_URL", c.EventsBackend)
		}
	default:
		return fmt.Errorf("config: unknown events backend %q", c.EventsBackend)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("config: heartbeat timeout must be positive")
	}
	if c.Worker.PollInterval <= 0 || c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: worker intervals must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
