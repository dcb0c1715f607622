package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/xorcare/pointer"

	"github.com/itstheanurag/runbox/internal/verdict"
)

type Config struct {
	Server   ServerConfig
	Executor ExecutorConfig
	Limiter  LimiterConfig
	LogLevel zerolog.Level

	// Db is nil when execution auditing is disabled.
	Db *DbConfig
	// Docker is nil unless SANDBOX_BACKEND=docker.
	Docker *DockerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int
	IdleTimeout  int
}

type DbConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ExecutorConfig struct {
	WorkspaceRoot    string
	DefaultTimeLimit time.Duration
	CompileTimeLimit time.Duration
	MaxTimeLimit     time.Duration
	MaxOutputBytes   int
	Policy           verdict.DiagnosticPolicy
	// LanguagesFile points at an optional YAML overlay for the language registry.
	LanguagesFile *string
	Workers       int
	QueueSize     int
}

type DockerConfig struct {
	Image         string
	MemoryLimitMb int
}

type LimiterConfig struct {
	GlobalRPS     float64
	IPRPS         float64
	IPBurst       int
	MaxConcurrent int
}

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  l.int("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: l.int("SERVER_WRITE_TIMEOUT", 90),
			IdleTimeout:  l.int("SERVER_IDLE_TIMEOUT", 60),
		},
		Executor: ExecutorConfig{
			WorkspaceRoot:    getEnv("WORKSPACE_ROOT", filepath.Join(os.TempDir(), "runbox")),
			DefaultTimeLimit: l.millis("DEFAULT_TIME_LIMIT_MS", 10000),
			CompileTimeLimit: l.millis("COMPILE_TIME_LIMIT_MS", 30000),
			MaxTimeLimit:     l.millis("MAX_TIME_LIMIT_MS", 60000),
			MaxOutputBytes:   l.int("MAX_OUTPUT_BYTES", 1<<20),
			Workers:          l.int("WORKERS", 5),
			QueueSize:        l.int("QUEUE_SIZE", 100),
		},
		Limiter: LimiterConfig{
			GlobalRPS:     l.float("RATE_GLOBAL_RPS", 100),
			IPRPS:         l.float("RATE_IP_RPS", 10),
			IPBurst:       l.int("RATE_IP_BURST", 20),
			MaxConcurrent: l.int("MAX_CONCURRENT", 50),
		},
	}

	if path, ok := os.LookupEnv("LANGUAGES_FILE"); ok && path != "" {
		cfg.Executor.LanguagesFile = pointer.String(path)
	}

	policy, err := verdict.ParsePolicy(getEnv("DIAGNOSTIC_POLICY", ""))
	if err != nil {
		l.fail("DIAGNOSTIC_POLICY", err)
	}
	cfg.Executor.Policy = policy

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		l.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	if l.bool("DB_ENABLED", false) {
		cfg.Db = &DbConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     l.int("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "runbox"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		}
	}

	switch backend := getEnv("SANDBOX_BACKEND", BackendLocal); backend {
	case BackendLocal:
	case BackendDocker:
		cfg.Docker = &DockerConfig{
			Image:         getEnv("DOCKER_IMAGE", "gcc:13"),
			MemoryLimitMb: l.int("DOCKER_MEMORY_MB", 256),
		}
	default:
		l.fail("SANDBOX_BACKEND", fmt.Errorf("unknown backend %q", backend))
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	e := c.Executor
	if e.DefaultTimeLimit <= 0 || e.CompileTimeLimit <= 0 || e.MaxTimeLimit <= 0 {
		return fmt.Errorf("time limits must be positive")
	}
	if e.DefaultTimeLimit > e.MaxTimeLimit {
		return fmt.Errorf("DEFAULT_TIME_LIMIT_MS exceeds MAX_TIME_LIMIT_MS")
	}
	if e.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}
	if e.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE must not be negative")
	}
	return nil
}

// Backend names the sandbox backend selected by the configuration.
func (c *Config) Backend() string {
	if c.Docker != nil {
		return BackendDocker
	}
	return BackendLocal
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// loader keeps the first parse error so LoadConfig can report it once.
type loader struct {
	err error
}

func (l *loader) fail(key string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("failed to read %s: %w", key, err)
	}
}

func (l *loader) int(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		l.fail(key, err)
		return fallback
	}
	return v
}

func (l *loader) float(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, strconv.FormatFloat(fallback, 'f', -1, 64)), 64)
	if err != nil {
		l.fail(key, err)
		return fallback
	}
	return v
}

func (l *loader) bool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		l.fail(key, err)
		return fallback
	}
	return v
}

func (l *loader) millis(key string, fallback int) time.Duration {
	return time.Duration(l.int(key, fallback)) * time.Millisecond
}
