package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHATRELAY"

const (
	ListenAddrKey         = "listen_addr"
	AdminListenAddrKey    = "admin.listen_addr"
	BridgeListenAddrKey   = "bridge.listen_addr"
	VideoBridgeHostKey    = "video.bridge_host"
	StoreDriverKey        = "store.driver"
	StorePathKey          = "store.path"
	StoreSQLiteDSNKey     = "store.sqlite_dsn"
	StoreRedisAddrKey     = "store.redis_addr"
	StoreRedisPasswordKey = "store.redis_password"
	StoreRedisDBKey       = "store.redis_db"
	BcryptCostKey         = "auth.bcrypt_cost"
	QueueSizeKey          = "session.queue_size"
	MaxLineBytesKey       = "session.max_line_bytes"
	MaxConnectionsKey     = "session.max_connections"
	ShutdownTimeoutKey    = "shutdown_timeout"
	LogLevelKey           = "log.level"
	LogDevelopmentKey     = "log.development"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	Admin           AdminConfig   `mapstructure:"admin"`
	Bridge          BridgeConfig  `mapstructure:"bridge"`
	Video           VideoConfig   `mapstructure:"video"`
	Store           StoreConfig   `mapstructure:"store"`
	Auth            AuthConfig    `mapstructure:"auth"`
	Session         SessionConfig `mapstructure:"session"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Log             LogConfig     `mapstructure:"log"`
}

// AdminConfig: an empty address disables the admin service.
type AdminConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// BridgeConfig: an empty address disables the signaling bridge.
type BridgeConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type VideoConfig struct {
	BridgeHost string `mapstructure:"bridge_host" validate:"required"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=json sqlite redis"`
	Path          string `mapstructure:"path" validate:"required_if=Driver json"`
	SQLiteDSN     string `mapstructure:"sqlite_dsn" validate:"required_if=Driver sqlite"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
}

type AuthConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
}

type SessionConfig struct {
	QueueSize      int `mapstructure:"queue_size" validate:"min=1"`
	MaxLineBytes   int `mapstructure:"max_line_bytes" validate:"min=64"`
	MaxConnections int `mapstructure:"max_connections" validate:"min=1"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers every key so environment variables bind even without
// a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(ListenAddrKey, ":8080")
	v.SetDefault(AdminListenAddrKey, ":50051")
	v.SetDefault(BridgeListenAddrKey, ":8765")
	v.SetDefault(VideoBridgeHostKey, "127.0.0.1")
	v.SetDefault(StoreDriverKey, DriverJSON)
	v.SetDefault(StorePathKey, "chat_data.json")
	v.SetDefault(StoreSQLiteDSNKey, "./chatrelay.db")
	v.SetDefault(StoreRedisAddrKey, "localhost:6379")
	v.SetDefault(StoreRedisPasswordKey, "")
	v.SetDefault(StoreRedisDBKey, 0)
	v.SetDefault(BcryptCostKey, 10)
	v.SetDefault(QueueSizeKey, 64)
	v.SetDefault(MaxLineBytesKey, 1<<20)
	v.SetDefault(MaxConnectionsKey, 1024)
	v.SetDefault(ShutdownTimeoutKey, 10*time.Second)
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogDevelopmentKey, false)
}

// New returns a viper instance with defaults and CHATRELAY_ environment
// binding. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// an empty CHATRELAY_ADMIN_LISTEN_ADDR disables the admin service
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// Load reads dotenv, then the optional config file, and validates the result.
// envFile and cfgFile may be empty.
func Load(v *viper.Viper, envFile, cfgFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
