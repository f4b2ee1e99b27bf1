package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
}

type LoggingCfg struct {
	Dir          string `yaml:"dir" json:"dir"`                                            // Directory for the rotated log file, empty disables file logging
	Level        string `yaml:"level" json:"level" validate:"oneof=debug info warn error"` // Minimum log level
	RotationDays int    `yaml:"rotation_days" json:"rotation_days" validate:"gte=0"`       // Days to keep logs before rotation
}

// SafetyCfg controls root confinement of delete targets.
// Disabled by default: any path reachable by the process can be deleted.
type SafetyCfg struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedRoots   []string `yaml:"allowed_roots" json:"allowed_roots"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`
}

type WorkerPoolConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gte=1,lte=256"` // Concurrent deletions per batch request (default: 5)
}

type APICfg struct {
	JWTSecret    string        `yaml:"jwt_secret" json:"-"`                                    // Empty disables authentication
	JWTExpiry    time.Duration `yaml:"jwt_expiry" json:"jwt_expiry"`                           // Token lifetime (default: 24h)
	RateLimit    float64       `yaml:"rate_limit" json:"rate_limit" validate:"gt=0"`           // Requests per second per client
	RateBurst    int           `yaml:"rate_burst" json:"rate_burst" validate:"gte=1"`          // Burst size per client
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gte=1"` // Request body limit
	MaxBatchSize int           `yaml:"max_batch_size" json:"max_batch_size" validate:"gte=1"` // Requests accepted per batch call
}

type Config struct {
	ListenAddr            string           `yaml:"listen_addr" json:"listen_addr" validate:"hostname_port"`
	Prometheus            PrometheusCfg    `yaml:"prometheus" json:"prometheus"`
	Logging               LoggingCfg       `yaml:"logging" json:"logging"`
	Safety                SafetyCfg        `yaml:"safety" json:"safety"`
	WorkerPool            WorkerPoolConfig `yaml:"worker_pool" json:"worker_pool"`
	API                   APICfg           `yaml:"api" json:"api"`
	DatabasePath          string           `yaml:"database_path" json:"database_path"`                                      // Path to SQLite database for deletion history, "-" disables it
	DatabaseRetentionDays int              `yaml:"database_retention_days" json:"database_retention_days" validate:"gte=0"` // Days of history to keep, 0 keeps everything
}

const (
	EnvJWTSecret     = "SAFE_DELETE_JWT_SECRET"
	EnvJWTSecretFile = "SAFE_DELETE_JWT_SECRET_FILE"
)

var (
	errNoRoots     = errors.New("safety.enabled requires at least one allowed_roots entry")
	errInvalidPath = errors.New("path must be absolute")
)

var validate = validator.New()

// Load reads the YAML file at path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
// Used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	// defaults alone always validate
	_ = cfg.validateAndDefault()
	return cfg
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8710"
	}

	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9710
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	if c.WorkerPool.Concurrency <= 0 {
		c.WorkerPool.Concurrency = 5
	}

	if c.API.JWTExpiry <= 0 {
		c.API.JWTExpiry = 24 * time.Hour
	}
	if c.API.RateLimit <= 0 {
		c.API.RateLimit = 50
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = 100
	}
	if c.API.MaxBodyBytes <= 0 {
		c.API.MaxBodyBytes = 1 << 20 // 1MB
	}
	if c.API.MaxBatchSize <= 0 {
		c.API.MaxBatchSize = 500
	}

	if c.DatabasePath == "" {
		c.DatabasePath = "/var/lib/safe-delete/deletions.db"
	}

	if c.Safety.Enabled && len(c.Safety.AllowedRoots) == 0 {
		return errNoRoots
	}
	roots, err := cleanAll(c.Safety.AllowedRoots)
	if err != nil {
		return fmt.Errorf("safety.allowed_roots: %w", err)
	}
	c.Safety.AllowedRoots = roots

	protected, err := cleanAll(c.Safety.ProtectedPaths)
	if err != nil {
		return fmt.Errorf("safety.protected_paths: %w", err)
	}
	c.Safety.ProtectedPaths = protected

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// ResolveJWTSecret applies environment overrides for the API secret.
// The secret file takes precedence over the plain variable.
func (c *Config) ResolveJWTSecret() error {
	if file := os.Getenv(EnvJWTSecretFile); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read jwt secret file %s: %w", file, err)
		}
		c.API.JWTSecret = strings.TrimSpace(string(b))
		return nil
	}
	if s := os.Getenv(EnvJWTSecret); s != "" {
		c.API.JWTSecret = s
	}
	return nil
}

func cleanAll(paths []string) ([]string, error) {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cp)
	}
	return cleaned, nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}

// HistoryEnabled reports whether deletion history should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.DatabasePath != "-"
}
