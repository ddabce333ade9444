package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends accepted by STORAGE_BACKEND
const (
	StorageNone  = "none"
	StorageAzure = "azure"
	StorageS3    = "s3"
)

type Config struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
	CORSAllowOrigins   []string      `yaml:"cors_allow_origins"`
	AllowedImageHosts  []string      `yaml:"allowed_image_hosts"`
	LogLevel           string        `yaml:"log_level"`

	Processing ProcessingConfig `yaml:"processing"`
	Poll       PollConfig       `yaml:"poll"`
	Storage    StorageConfig    `yaml:"storage"`
	Sessions   SessionConfig    `yaml:"sessions"`
	Verify     VerifyConfig     `yaml:"verify"`
}

// ProcessingConfig points at the remote image-processing service
type ProcessingConfig struct {
	ServiceURL    string        `yaml:"service_url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	StatusTimeout time.Duration `yaml:"status_timeout"`
}

// PollConfig bounds every completion poll session
type PollConfig struct {
	Interval             time.Duration `yaml:"interval"`
	MaxAttempts          int           `yaml:"max_attempts"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	AzureAccount   string `yaml:"azure_account"`
	AzureKey       string `yaml:"-"`
	AzureContainer string `yaml:"azure_container"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKeyID  string `yaml:"-"`
	S3SecretKey    string `yaml:"-"`
	S3PublicURL    string `yaml:"s3_public_base_url"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	MaxActive     int           `yaml:"max_active"`
}

type VerifyConfig struct {
	Enabled bool `yaml:"enabled"`
	OCR     bool `yaml:"ocr"`
	Workers int  `yaml:"workers"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the configuration used when neither a file nor the environment override anything.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     30 * time.Second,
		MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
		CORSAllowOrigins:   []string{"*"},
		LogLevel:           "info",
		Processing: ProcessingConfig{
			ServiceURL:    "http://localhost:9090",
			SubmitTimeout: 60 * time.Second,
			StatusTimeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Interval:             10 * time.Second,
			MaxAttempts:          20,
			MaxConsecutiveErrors: 3,
		},
		Storage: StorageConfig{
			Backend:        StorageNone,
			AzureContainer: "edited-images",
			S3Region:       "us-east-1",
		},
		Sessions: SessionConfig{
			IdleTTL:       30 * time.Minute,
			SweepSchedule: "@every 1m",
			MaxActive:     1000,
		},
		Verify: VerifyConfig{
			Workers: 2,
		},
	}
}

// LoadFromEnv builds the configuration from defaults, an optional YAML file named by
// EDITOR_CONFIG_FILE, then environment variables. Environment always wins.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("EDITOR_CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		cfg.CORSAllowOrigins = splitList(origins)
	}
	if hosts := os.Getenv("ALLOWED_IMAGE_HOSTS"); hosts != "" {
		cfg.AllowedImageHosts = splitList(hosts)
	}

	cfg.Processing.ServiceURL = getEnvOrDefault("PROCESSING_SERVICE_URL", cfg.Processing.ServiceURL)
	cfg.Processing.SubmitTimeout = parseDurationOrDefault("SUBMIT_TIMEOUT", cfg.Processing.SubmitTimeout)
	cfg.Processing.StatusTimeout = parseDurationOrDefault("STATUS_TIMEOUT", cfg.Processing.StatusTimeout)

	cfg.Poll.Interval = parseDurationOrDefault("POLL_INTERVAL", cfg.Poll.Interval)
	cfg.Poll.MaxAttempts = int(parseIntOrDefault("POLL_MAX_ATTEMPTS", int64(cfg.Poll.MaxAttempts)))
	cfg.Poll.MaxConsecutiveErrors = int(parseIntOrDefault("POLL_MAX_CONSECUTIVE_ERRORS", int64(cfg.Poll.MaxConsecutiveErrors)))

	cfg.Storage.Backend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.AzureAccount = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.Storage.AzureAccount)
	cfg.Storage.AzureKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.Storage.AzureKey)
	cfg.Storage.AzureContainer = getEnvOrDefault("AZURE_CONTAINER", cfg.Storage.AzureContainer)
	cfg.Storage.S3Bucket = getEnvOrDefault("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = getEnvOrDefault("S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = getEnvOrDefault("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3AccessKeyID = getEnvOrDefault("S3_ACCESS_KEY_ID", cfg.Storage.S3AccessKeyID)
	cfg.Storage.S3SecretKey = getEnvOrDefault("S3_SECRET_ACCESS_KEY", cfg.Storage.S3SecretKey)
	cfg.Storage.S3PublicURL = getEnvOrDefault("S3_PUBLIC_BASE_URL", cfg.Storage.S3PublicURL)

	cfg.Sessions.IdleTTL = parseDurationOrDefault("SESSION_IDLE_TTL", cfg.Sessions.IdleTTL)
	cfg.Sessions.SweepSchedule = getEnvOrDefault("SESSION_SWEEP_SCHEDULE", cfg.Sessions.SweepSchedule)
	cfg.Sessions.MaxActive = int(parseIntOrDefault("MAX_ACTIVE_SESSIONS", int64(cfg.Sessions.MaxActive)))

	cfg.Verify.Enabled = parseBoolOrDefault("VERIFY_RESULTS", cfg.Verify.Enabled)
	cfg.Verify.OCR = parseBoolOrDefault("VERIFY_OCR", cfg.Verify.OCR)
	cfg.Verify.Workers = int(parseIntOrDefault("VERIFY_WORKERS", int64(cfg.Verify.Workers)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.Processing.SubmitTimeout <= 0 || c.Processing.StatusTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, submit=%s, status=%s)",
			c.RequestTimeout, c.Processing.SubmitTimeout, c.Processing.StatusTimeout)
	}
	if strings.TrimSpace(c.Processing.ServiceURL) == "" {
		return fmt.Errorf("PROCESSING_SERVICE_URL must be set")
	}
	if c.Poll.Interval <= 0 || c.Poll.MaxAttempts <= 0 || c.Poll.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("poll policy must be positive (got interval=%s, attempts=%d, errors=%d)",
			c.Poll.Interval, c.Poll.MaxAttempts, c.Poll.MaxConsecutiveErrors)
	}
	// A check may not outlive its tick, otherwise skipped ticks stretch a
	// poll session past MaxAttempts * Interval.
	if c.Processing.StatusTimeout > c.Poll.Interval {
		c.Processing.StatusTimeout = c.Poll.Interval
	}

	switch c.Storage.Backend {
	case StorageNone, "":
		c.Storage.Backend = StorageNone
	case StorageAzure:
		if c.Storage.AzureAccount == "" || c.Storage.AzureKey == "" {
			return fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.Storage.Backend)
	}

	if c.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0 (got %s)", c.Sessions.IdleTTL)
	}
	if c.Verify.Workers <= 0 {
		c.Verify.Workers = 1
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
