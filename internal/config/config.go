package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvJWTSecret      = "JWT_SECRET"
	EnvJWTExpiry      = "JWT_EXPIRY"
	EnvListenAddr     = "LISTEN_ADDR"
	EnvTickInterval   = "SCHEDULER_TICK_INTERVAL"
	EnvCacheTTL       = "CACHE_TTL"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvRedisPassword  = "REDIS_PASSWORD"
	EnvRedisDB        = "REDIS_DB"
	EnvAdminUsername  = "ADMIN_USERNAME"
	EnvAdminPassword  = "ADMIN_PASSWORD"
	EnvSeedSampleData = "SEED_SAMPLE_DATA"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig holds rollout scheduler settings.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick-interval"`
}

// RedisConfig holds Redis connection settings shared by the evaluation
// cache and the event publisher. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	Channel  string `yaml:"channel"`
}

// CacheConfig holds evaluation cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AdminBootstrap holds the initial admin credentials created on first
// start when the admins table is empty.
type AdminBootstrap struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

const defaultListenAddr = ":8080"

// LoadServerConfig loads HTTP listener settings from the YAML config file.
func LoadServerConfig(configPath string) ServerConfig {
	type fileConfig struct {
		Server ServerConfig `yaml:"server"`
	}

	result := ServerConfig{Addr: defaultListenAddr}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if addr := strings.TrimSpace(cfg.Server.Addr); addr != "" {
				result.Addr = addr
			}
		}
	}

	if addr := strings.TrimSpace(os.Getenv(EnvListenAddr)); addr != "" {
		result.Addr = addr
	}
	return result
}

// defaultTickInterval matches one scheduler pass per minute.
const defaultTickInterval = time.Minute

// LoadSchedulerConfig loads scheduler settings from the YAML config file.
func LoadSchedulerConfig(configPath string) SchedulerConfig {
	type fileConfig struct {
		Scheduler SchedulerConfig `yaml:"scheduler"`
	}

	result := SchedulerConfig{TickInterval: defaultTickInterval}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Scheduler.TickInterval > 0 {
			result.TickInterval = cfg.Scheduler.TickInterval
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvTickInterval)); raw != "" {
		if interval, errParse := time.ParseDuration(raw); errParse == nil && interval > 0 {
			result.TickInterval = interval
		}
	}
	return result
}

// LoadRedisConfig loads Redis settings from the YAML config file.
func LoadRedisConfig(configPath string) RedisConfig {
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	var result RedisConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Redis
		}
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Addr = addr
	}
	if password := strings.TrimSpace(os.Getenv(EnvRedisPassword)); password != "" {
		result.Password = password
	}
	if dbRaw := strings.TrimSpace(os.Getenv(EnvRedisDB)); dbRaw != "" {
		if db, errParse := strconv.Atoi(dbRaw); errParse == nil && db >= 0 {
			result.DB = db
		}
	}

	result.Addr = strings.TrimSpace(result.Addr)
	if result.Prefix == "" {
		result.Prefix = "flagservice:eval"
	}
	if result.Channel == "" {
		result.Channel = "flagservice:events"
	}
	return result
}

const defaultCacheTTL = 30 * time.Second

// LoadCacheConfig loads evaluation cache settings from the YAML config file.
func LoadCacheConfig(configPath string) CacheConfig {
	type fileConfig struct {
		Cache CacheConfig `yaml:"cache"`
	}

	result := CacheConfig{TTL: defaultCacheTTL}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Cache.TTL > 0 {
			result.TTL = cfg.Cache.TTL
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvCacheTTL)); raw != "" {
		if ttl, errParse := time.ParseDuration(raw); errParse == nil && ttl > 0 {
			result.TTL = ttl
		}
	}
	return result
}

// LoadSeedSampleData reports whether migrations should insert sample
// flags into an empty database. Defaults to true.
func LoadSeedSampleData(configPath string) bool {
	type fileConfig struct {
		Database struct {
			SeedSampleData *bool `yaml:"seed-sample-data"`
		} `yaml:"database"`
	}

	result := true

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Database.SeedSampleData != nil {
			result = *cfg.Database.SeedSampleData
		}
	}

	if raw := strings.TrimSpace(os.Getenv(EnvSeedSampleData)); raw != "" {
		if seed, errParse := strconv.ParseBool(raw); errParse == nil {
			result = seed
		}
	}
	return result
}

// LoadAdminBootstrap loads initial admin credentials from the YAML
// config file with environment overrides. Empty credentials disable
// bootstrap.
func LoadAdminBootstrap(configPath string) AdminBootstrap {
	type fileConfig struct {
		Admin AdminBootstrap `yaml:"admin"`
	}

	var result AdminBootstrap

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Admin
		}
	}

	if username := strings.TrimSpace(os.Getenv(EnvAdminUsername)); username != "" {
		result.Username = username
	}
	if password := os.Getenv(EnvAdminPassword); strings.TrimSpace(password) != "" {
		result.Password = password
	}
	result.Username = strings.TrimSpace(result.Username)
	return result
}
