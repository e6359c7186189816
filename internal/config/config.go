package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	Archive  ArchiveConfig  `mapstructure:"Archive"`
	Lock     LockConfig     `mapstructure:"Lock"`
	Auth     AuthConfig     `mapstructure:"Auth"`

	DefaultTaskKey string `mapstructure:"DefaultTaskKey"`
	BehaviorBuffer int    `mapstructure:"BehaviorBuffer"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	GRPCPort        string        `mapstructure:"GRPCPort"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type StorageConfig struct {
	Bucket          string `mapstructure:"Bucket"`
	Endpoint        string `mapstructure:"Endpoint"`
	Domain          string `mapstructure:"Domain"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	KeyPrefix       string `mapstructure:"KeyPrefix"`
	UseKeyPrefix    bool   `mapstructure:"UseKeyPrefix"`
}

type ArchiveConfig struct {
	LinkTTL         time.Duration `mapstructure:"LinkTTL"`
	TempDir         string        `mapstructure:"TempDir"`
	Encoding        string        `mapstructure:"Encoding"`
	Workers         int           `mapstructure:"Workers"`
	QueueSize       int           `mapstructure:"QueueSize"`
	Retention       time.Duration `mapstructure:"Retention"`
	CleanupInterval time.Duration `mapstructure:"CleanupInterval"`
}

type LockConfig struct {
	RedisAddr     string        `mapstructure:"RedisAddr"`
	RedisPassword string        `mapstructure:"RedisPassword"`
	RedisDB       int           `mapstructure:"RedisDB"`
	TTL           time.Duration `mapstructure:"TTL"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
}

// ключ конфигурации -> переменная окружения и значение по умолчанию
var bindings = []struct {
	key string
	env string
	def interface{}
}{
	{"Server.Port", "HTTP_PORT", "2525"},
	{"Server.GRPCPort", "GRPC_PORT", "50051"},
	{"Server.ShutdownTimeout", "SHUTDOWN_TIMEOUT", 30 * time.Second},

	{"Database.Host", "DATABASE_HOST", "localhost"},
	{"Database.Port", "DATABASE_PORT", "5432"},
	{"Database.User", "DATABASE_USER", "postgres"},
	{"Database.Password", "DATABASE_PASSWORD", ""},
	{"Database.Name", "DATABASE_NAME", "filecollector"},
	{"Database.SSLMode", "DATABASE_SSLMODE", "disable"},

	{"Storage.Bucket", "S3_BUCKET", ""},
	{"Storage.Endpoint", "S3_ENDPOINT", "https://storage.yandexcloud.net"},
	{"Storage.Domain", "S3_DOMAIN", ""},
	{"Storage.Region", "S3_REGION", "ru-central1"},
	{"Storage.AccessKeyID", "S3_ACCESS_KEY_ID", ""},
	{"Storage.SecretAccessKey", "S3_SECRET_ACCESS_KEY", ""},
	{"Storage.KeyPrefix", "S3_KEY_PREFIX", "easypicker2"},
	{"Storage.UseKeyPrefix", "S3_USE_KEY_PREFIX", true},

	{"Archive.LinkTTL", "ARCHIVE_LINK_TTL", 12 * time.Hour},
	{"Archive.TempDir", "ARCHIVE_TEMP_DIR", "temp_package"},
	{"Archive.Encoding", "ARCHIVE_ENCODING", "gbk"},
	{"Archive.Workers", "ARCHIVE_WORKERS", 2},
	{"Archive.QueueSize", "ARCHIVE_QUEUE_SIZE", 64},
	{"Archive.Retention", "ARCHIVE_RETENTION", 24 * time.Hour},
	{"Archive.CleanupInterval", "ARCHIVE_CLEANUP_INTERVAL", time.Hour},

	{"Lock.RedisAddr", "REDIS_ADDR", ""},
	{"Lock.RedisPassword", "REDIS_PASSWORD", ""},
	{"Lock.RedisDB", "REDIS_DB", 0},
	{"Lock.TTL", "LOCK_TTL", 30 * time.Second},

	{"Auth.JWTSecret", "JWT_SECRET", ""},

	{"DefaultTaskKey", "DEFAULT_TASK_KEY", ""},
	{"BehaviorBuffer", "BEHAVIOR_BUFFER", 256},
}

// NewConfig читает файл конфигурации (если есть) и переменные окружения
func NewConfig(path string) (*Config, error) {
	v := viper.New()

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file not loaded, using environment only")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Archive.Workers <= 0 {
		cfg.Archive.Workers = 1
	}
	if cfg.Archive.QueueSize <= 0 {
		cfg.Archive.QueueSize = 1
	}
	cfg.Storage.KeyPrefix = strings.Trim(cfg.Storage.KeyPrefix, "/")
	cfg.Archive.TempDir = strings.Trim(cfg.Archive.TempDir, "/")

	return &cfg, nil
}

// Validate проверяет поля, без которых сервер не может стартовать
func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// ObjectPrefix возвращает префикс производных ключей ("" если отключен)
func (c *StorageConfig) ObjectPrefix() string {
	if !c.UseKeyPrefix {
		return ""
	}
	return c.KeyPrefix
}

// TempPrefix каталог временных архивов, всегда с завершающим "/"
func (c *Config) TempPrefix() string {
	if p := c.Storage.ObjectPrefix(); p != "" {
		return p + "/" + c.Archive.TempDir + "/"
	}
	return c.Archive.TempDir + "/"
}
