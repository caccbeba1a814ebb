package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Draft    DraftConfig    `mapstructure:"draft"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// DraftConfig 草稿保存与清理策略
type DraftConfig struct {
	AutoSaveInterval         time.Duration `mapstructure:"auto_save_interval"`
	RetryDelay               time.Duration `mapstructure:"retry_delay"`
	MaxDraftsPerUser         int           `mapstructure:"max_drafts_per_user"`
	KeepAutoSavedPerUser     int           `mapstructure:"keep_auto_saved_per_user"`
	AutoSaveRetentionDays    int           `mapstructure:"auto_save_retention_days"`
	ManualDraftRetentionDays int           `mapstructure:"manual_draft_retention_days"`
	MaxLocalDrafts           int           `mapstructure:"max_local_drafts"`
	EnableAutoCleanup        bool          `mapstructure:"enable_auto_cleanup"`
	CleanupSchedule          string        `mapstructure:"cleanup_schedule"`
	CleanupOnStartup         bool          `mapstructure:"cleanup_on_startup"`
}

// ClientConfig draftctl 访问后端使用的配置
type ClientConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BackupPath string        `mapstructure:"backup_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CleanupPeriod 根据清理计划返回间隔
func (c DraftConfig) CleanupPeriod() time.Duration {
	switch c.CleanupSchedule {
	case "weekly":
		return 7 * 24 * time.Hour
	case "monthly":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在，使用环境变量
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.issuer", "cci-litigation")

	v.SetDefault("draft.auto_save_interval", 30*time.Second)
	v.SetDefault("draft.retry_delay", 5*time.Second)
	v.SetDefault("draft.max_drafts_per_user", 50)
	v.SetDefault("draft.keep_auto_saved_per_user", 10)
	v.SetDefault("draft.auto_save_retention_days", 7)
	v.SetDefault("draft.manual_draft_retention_days", 30)
	v.SetDefault("draft.max_local_drafts", 5)
	v.SetDefault("draft.enable_auto_cleanup", true)
	v.SetDefault("draft.cleanup_schedule", "daily")

	v.SetDefault("client.base_url", "http://127.0.0.1:8000/api/v1")
	v.SetDefault("client.timeout", 15*time.Second)
	v.SetDefault("client.backup_path", "drafts_backup.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Client
	v.BindEnv("client.base_url", "API_BASE_URL")
	v.BindEnv("client.token", "API_TOKEN")
	v.BindEnv("client.backup_path", "DRAFT_BACKUP_PATH")
}

// GetEnvOrDefault 获取环境变量，如果不存在则返回默认值
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
