package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinIOConfig describes the S3-compatible bucket used for uploaded files.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Config represents configuration loaded from defaults, YAML and the environment.
type Config struct {
	Addr           string        `yaml:"addr"`
	DatabaseDriver string        `yaml:"databaseDriver"`
	DatabaseURL    string        `yaml:"databaseURL"`
	SessionSecret  string        `yaml:"sessionSecret"`
	GeminiAPIKey   string        `yaml:"geminiAPIKey"`
	ChatModel      string        `yaml:"chatModel"`
	DocumentModel  string        `yaml:"documentModel"`
	GeminiBaseURL  string        `yaml:"geminiBaseURL"`
	AITimeout      time.Duration `yaml:"aiTimeout"`
	AIRateLimit    int           `yaml:"aiRateLimit"`
	RedisAddr      string        `yaml:"redisAddr"`
	RedisPassword  string        `yaml:"redisPassword"`
	StorageBackend string        `yaml:"storageBackend"`
	StorageDir     string        `yaml:"storageDir"`
	MinIO          MinIOConfig   `yaml:"minio"`
	LogLevel       string        `yaml:"logLevel"`
	LogFormat      string        `yaml:"logFormat"`
}

const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

// DevSessionSecret signs session cookies when SESSION_SECRET is unset. It is
// public, so cookies signed with it can be forged.
const DevSessionSecret = "supersecretkey"

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Addr:           ":8080",
		DatabaseDriver: "sqlite3",
		DatabaseURL:    "./smartaid.db",
		SessionSecret:  DevSessionSecret,
		ChatModel:      "gemini-2.5-flash",
		DocumentModel:  "gemini-2.5-pro",
		GeminiBaseURL:  "https://generativelanguage.googleapis.com/v1beta",
		AITimeout:      60 * time.Second,
		AIRateLimit:    30,
		StorageBackend: StorageLocal,
		StorageDir:     "./media",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load builds the configuration. path may be empty, in which case no YAML
// file is read. A .env file in the working directory is loaded if present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SMARTAID_ADDR":         &cfg.Addr,
		"DATABASE_DRIVER":       &cfg.DatabaseDriver,
		"DATABASE_URL":          &cfg.DatabaseURL,
		"SESSION_SECRET":        &cfg.SessionSecret,
		"GEMINI_API_KEY":        &cfg.GeminiAPIKey,
		"GEMINI_CHAT_MODEL":     &cfg.ChatModel,
		"GEMINI_DOCUMENT_MODEL": &cfg.DocumentModel,
		"GEMINI_BASE_URL":       &cfg.GeminiBaseURL,
		"REDIS_ADDR":            &cfg.RedisAddr,
		"REDIS_PASSWORD":        &cfg.RedisPassword,
		"STORAGE_BACKEND":       &cfg.StorageBackend,
		"STORAGE_DIR":           &cfg.StorageDir,
		"MINIO_ENDPOINT":        &cfg.MinIO.Endpoint,
		"MINIO_ACCESS_KEY":      &cfg.MinIO.AccessKey,
		"MINIO_SECRET_KEY":      &cfg.MinIO.SecretKey,
		"MINIO_BUCKET":          &cfg.MinIO.Bucket,
		"LOG_LEVEL":             &cfg.LogLevel,
		"LOG_FORMAT":            &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("AI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: AI_TIMEOUT: %w", err)
		}
		cfg.AITimeout = d
	}
	if v := os.Getenv("AI_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AI_RATE_LIMIT: %w", err)
		}
		cfg.AIRateLimit = n
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinIO.UseSSL = b
	}
	return nil
}

// InsecureSessionSecret reports whether cookies are signed with the public
// development key.
func (c Config) InsecureSessionSecret() bool {
	return c.SessionSecret == DevSessionSecret
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	switch c.DatabaseDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("config: databaseURL is required")
	}
	if c.SessionSecret == "" {
		return errors.New("config: sessionSecret is required")
	}
	if c.AITimeout <= 0 {
		return errors.New("config: aiTimeout must be positive")
	}
	if c.AIRateLimit <= 0 {
		return errors.New("config: aiRateLimit must be positive")
	}
	switch c.StorageBackend {
	case StorageLocal:
		if c.StorageDir == "" {
			return errors.New("config: storageDir is required for local storage")
		}
	case StorageMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return errors.New("config: minio endpoint and bucket are required (set MINIO_ENDPOINT and MINIO_BUCKET)")
		}
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.StorageBackend)
	}
	return nil
}
