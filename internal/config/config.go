package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	JoinPolicySwitch = "switch"
	JoinPolicyStrict = "strict"
)

type Config struct {
	AppName string `yaml:"app_name"`
	Env     string `yaml:"env"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`

	JWTSecret  string `yaml:"jwt_secret"`
	EncryptKey string `yaml:"encryption_key"`

	CORSOrigins      []string      `yaml:"cors_origins"`
	JoinPolicy       string        `yaml:"join_policy"`
	IdleTimeout      time.Duration `yaml:"ws_idle_timeout"`
	SendBuffer       int           `yaml:"ws_send_buffer"`
	PersistTimeout   time.Duration `yaml:"persist_timeout"`
	MaxMessageLength int           `yaml:"max_message_length"`

	PushBackend   string   `yaml:"push_backend"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	NATSURL       string   `yaml:"nats_url"`
	NATSSubject   string   `yaml:"nats_subject"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and the environment. Environment variables win; .env.local and
// .env are loaded first without overriding variables already set.
func Load() (*Config, error) {
	LoadDotEnv()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files with priority .env.local > .env and returns
// the files actually loaded.
func LoadDotEnv() []string {
	var loaded []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

func defaults() *Config {
	return &Config{
		AppName:          "matchchat",
		Env:              "development",
		Host:             "0.0.0.0",
		Port:             8000,
		StoreDriver:      "postgres",
		SQLitePath:       "matchchat.db",
		MongoDB:          "matchchat",
		CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
		JoinPolicy:       JoinPolicySwitch,
		IdleTimeout:      60 * time.Second,
		SendBuffer:       256,
		PersistTimeout:   5 * time.Second,
		MaxMessageLength: 5000,
		PushBackend:      "log",
		RedisAddr:        "localhost:6379",
		NATSURL:          "nats://127.0.0.1:4222",
		NATSSubject:      "matchchat.push.offline",
		KafkaBrokers:     []string{"localhost:9092"},
		KafkaTopic:       "matchchat-push",
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppName = getEnv("APP_NAME", c.AppName)
	c.Env = getEnv("APP_ENV", c.Env)
	c.Host = getEnv("HTTP_HOST", c.Host)
	c.Port = getEnvAsInt("HTTP_PORT", c.Port)

	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDB = getEnv("MONGO_DB", c.MongoDB)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	} else if c.DatabaseURL == "" || os.Getenv("POSTGRES_HOST") != "" {
		c.DatabaseURL = postgresURLFromEnv()
	}

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.EncryptKey = getEnv("ENCRYPTION_KEY", c.EncryptKey)

	c.CORSOrigins = getEnvAsList("CORS_ORIGINS", c.CORSOrigins)
	c.JoinPolicy = strings.ToLower(getEnv("JOIN_POLICY", c.JoinPolicy))
	c.IdleTimeout = getEnvAsDuration("WS_IDLE_TIMEOUT", c.IdleTimeout)
	c.SendBuffer = getEnvAsInt("WS_SEND_BUFFER", c.SendBuffer)
	c.PersistTimeout = getEnvAsDuration("PERSIST_TIMEOUT", c.PersistTimeout)
	c.MaxMessageLength = getEnvAsInt("MAX_MESSAGE_LENGTH", c.MaxMessageLength)

	c.PushBackend = strings.ToLower(getEnv("PUSH_BACKEND", c.PushBackend))
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubject = getEnv("NATS_SUBJECT", c.NATSSubject)
	c.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required for the mongo store")
	}
	switch c.JoinPolicy {
	case JoinPolicySwitch, JoinPolicyStrict:
	default:
		return fmt.Errorf("unsupported JOIN_POLICY %q", c.JoinPolicy)
	}
	switch c.PushBackend {
	case "log", "redis", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported PUSH_BACKEND %q", c.PushBackend)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.IdleTimeout <= 0 || c.PersistTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func postgresURLFromEnv() string {
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "matchchat")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
