package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Placeholder values shipped in the example env file. They count as "not configured".
const (
	placeholderSupabaseURL = "your-project-url"
	placeholderSupabaseKey = "your-anon-key"
)

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Port        string `envconfig:"PORT" default:"3000"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	// SiteURL is used as the origin of e-mail redirect links when the request carries no Origin header.
	SiteURL string `envconfig:"SITE_URL" default:"http://localhost:3000"`

	// Supabase
	SupabaseURL       string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey   string `envconfig:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `envconfig:"SUPABASE_JWT_SECRET"`
	StorageBucket     string `envconfig:"STORAGE_BUCKET" default:"story-photos"`

	// Optional direct connection to the same database; replaces the REST data plane.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// HTTP
	AllowedOrigins        []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	RequestTimeout        time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	PageCacheTTL          time.Duration `envconfig:"PAGE_CACHE_TTL" default:"60s"`
	AuthRateLimitRequests int           `envconfig:"AUTH_RATE_LIMIT_REQUESTS" default:"10"`
	AuthRateLimitWindow   time.Duration `envconfig:"AUTH_RATE_LIMIT_WINDOW" default:"1m"`

	Debug bool `envconfig:"DEBUG" default:"false"`
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() (*Config, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	switch env {
	case "production":
		loadEnvFile(".env.production")
	default:
		loadEnvFile(".env.local")
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	// Names used by the web frontend are accepted as fallbacks.
	if cfg.SupabaseURL == "" {
		cfg.SupabaseURL = os.Getenv("NEXT_PUBLIC_SUPABASE_URL")
	}
	if cfg.SupabaseAnonKey == "" {
		cfg.SupabaseAnonKey = os.Getenv("NEXT_PUBLIC_SUPABASE_ANON_KEY")
	}

	// Trim whitespace to avoid trailing spaces/newlines from env sources
	cfg.SupabaseURL = strings.TrimSpace(cfg.SupabaseURL)
	cfg.SupabaseAnonKey = strings.TrimSpace(cfg.SupabaseAnonKey)
	cfg.SupabaseJWTSecret = strings.TrimSpace(cfg.SupabaseJWTSecret)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")

	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.IsProduction() {
		cfg.Debug = false
	}

	return cfg, nil
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	cachedErr    error
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() (*Config, error) {
	configOnce.Do(func() {
		cachedConfig, cachedErr = LoadConfig()
	})
	return cachedConfig, cachedErr
}

// Validate 验证配置
//
// A missing Supabase configuration is not an error: the service starts and every
// action reports that the backend is not configured.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.AuthRateLimitRequests <= 0 || c.AuthRateLimitWindow <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_REQUESTS and AUTH_RATE_LIMIT_WINDOW must be positive")
	}
	if c.PostgresDSN != "" && !c.BackendConfigured() {
		return fmt.Errorf("POSTGRES_DSN requires SUPABASE_URL and SUPABASE_ANON_KEY for authentication")
	}
	return nil
}

// BackendConfigured reports whether the Supabase URL and key are present and not placeholders.
func (c *Config) BackendConfigured() bool {
	if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
		return false
	}
	if c.SupabaseURL == placeholderSupabaseURL || c.SupabaseAnonKey == placeholderSupabaseKey {
		return false
	}
	return true
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// loadEnvFile 加载 .env 文件到环境变量
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // 文件不存在或无法打开，静默返回
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
				(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
				value = value[1 : len(value)-1]
			}
		}

		// 只有当环境变量不存在时才设置
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
