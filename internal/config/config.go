package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Server    ServerConfig
	Quiz      QuizConfig
	Store     StoreConfig
	Log       LogConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 实际读取的配置文件路径，没有配置文件时为空
	ConfigFile string `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type QuizConfig struct {
	CountdownSeconds int           `mapstructure:"countdown_seconds"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	QuestionsFile    string        `mapstructure:"questions_file"`
	Shuffle          bool          `mapstructure:"shuffle"`
	PauseOnComplete  bool          `mapstructure:"pause_on_complete"`
}

type StoreConfig struct {
	Driver       string         `mapstructure:"driver"`
	SQLitePath   string         `mapstructure:"sqlite_path"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	MySQL        DatabaseConfig `mapstructure:"mysql"`
	Redis        RedisConfig    `mapstructure:"redis"`
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Stream   string
}

type LogConfig struct {
	File    string `mapstructure:"file"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("quiz.countdown_seconds", 30)
	v.SetDefault("quiz.tick_interval", time.Second)
	v.SetDefault("quiz.questions_file", "")
	v.SetDefault("quiz.shuffle", false)
	v.SetDefault("quiz.pause_on_complete", true)

	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.sqlite_path", "data/quizo.db")
	v.SetDefault("store.write_timeout", 5*time.Second)
	v.SetDefault("store.mysql.host", "127.0.0.1")
	v.SetDefault("store.mysql.port", 3306)
	v.SetDefault("store.mysql.user", "root")
	v.SetDefault("store.mysql.password", "")
	v.SetDefault("store.mysql.dbname", "quizo")
	v.SetDefault("store.mysql.charset", "utf8mb4")
	v.SetDefault("store.mysql.parsetime", true)
	v.SetDefault("store.redis.host", "127.0.0.1")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.stream", "attempts")

	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_endpoint", "")

	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// LoadConfig 读取 path 目录下的 config.yaml；文件不存在时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load(filepath.Join(path, "..", ".env"))

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "QUIZO_SERVER_PORT", "PORT")
	v.BindEnv("store.driver", "QUIZO_STORE_DRIVER", "STORE_DRIVER")
	v.BindEnv("store.mysql.host", "QUIZO_STORE_MYSQL_HOST", "DATABASE_HOST")
	v.BindEnv("store.mysql.password", "QUIZO_STORE_MYSQL_PASSWORD", "DATABASE_PASSWORD")
	v.BindEnv("store.redis.host", "QUIZO_STORE_REDIS_HOST", "REDIS_HOST")
	v.BindEnv("store.redis.password", "QUIZO_STORE_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("tracing.collector_endpoint", "QUIZO_TRACING_COLLECTOR_ENDPOINT", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == StoreSQLite {
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				os.MkdirAll(dir, 0755)
			}
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Quiz.CountdownSeconds <= 0 {
		return fmt.Errorf("quiz.countdown_seconds must be positive, got %d", c.Quiz.CountdownSeconds)
	}
	if c.Quiz.TickInterval <= 0 {
		return fmt.Errorf("quiz.tick_interval must be positive, got %s", c.Quiz.TickInterval)
	}
	if c.Store.WriteTimeout <= 0 {
		return fmt.Errorf("store.write_timeout must be positive, got %s", c.Store.WriteTimeout)
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case StoreMySQL, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}
