package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或 .env 文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	KeyPrefix       string // Redis Key 前缀
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string // development/production
	CORSOrigin      string
	RateLimitMax    int
	RateLimitWindow time.Duration

	// 自动保存与编辑会话
	QuietPeriod       time.Duration
	FlushOnClose      bool
	LeaseTTL          time.Duration
	ContentCacheTTL   time.Duration
	WorkerConcurrency int
}

// LoadConfig 从环境变量加载配置并应用默认值，不做必填检查 (见 Validate)
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBHost:          os.Getenv("DB_HOST"),
		DBPort:          os.Getenv("DB_PORT"),
		DBName:          os.Getenv("DB_NAME"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:       envOr("REDIS_KEY_PREFIX", "dos:"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		ServerPort:      envOr("SERVER_PORT", "8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		AppEnv:          envOr("APP_ENV", "development"),
		CORSOrigin:      envOr("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RateLimitWindow: 1 * time.Second,
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiryHours, err = envInt("JWT_EXPIRY_HOURS", 24); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 10); err != nil {
		return nil, err
	}
	quietMS, err := envInt("AUTOSAVE_QUIET_MS", 2000)
	if err != nil {
		return nil, err
	}
	cfg.QuietPeriod = time.Duration(quietMS) * time.Millisecond
	leaseSeconds, err := envInt("EDIT_LEASE_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.LeaseTTL = time.Duration(leaseSeconds) * time.Second
	cacheSeconds, err := envInt("CONTENT_CACHE_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	cfg.ContentCacheTTL = time.Duration(cacheSeconds) * time.Second
	if v := os.Getenv("AUTOSAVE_FLUSH_ON_CLOSE"); v != "" {
		if cfg.FlushOnClose, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("environment variable AUTOSAVE_FLUSH_ON_CLOSE: %w", err)
		}
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// Validate 检查启动服务所需的配置
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("AUTOSAVE_QUIET_MS must be positive")
	}
	if c.LeaseTTL < 3*time.Second {
		return fmt.Errorf("EDIT_LEASE_SECONDS must be at least 3")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}
