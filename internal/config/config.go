// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Профили окружения.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Version         string `yaml:"version" env-default:"1.0.0"`
	MongoDB         `yaml:"mongodb"`
	HTTPServer      `yaml:"http_server"`
	CORS            `yaml:"cors"`
	RateLimit       `yaml:"rate_limit"`
	RedisConnection `yaml:"cache"`
	Log             `yaml:"log"`
}

// MongoDB структура для настройки подключения к хранилищу документов
type MongoDB struct {
	URL            string        `yaml:"url" env:"MONGODB_URL" env-default:"mongodb://localhost:27017"`
	DBName         string        `yaml:"dbname" env:"MONGODB_DBNAME" env-default:"endesa"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"10s"`
	QueryTimeout   time.Duration `yaml:"query_timeout" env-default:"30s"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":5000"`
	Timeout     time.Duration `yaml:"timeout" env-default:"30s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// CORS структура со списком разрешённых источников
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
}

// RateLimit структура для настройки ограничителя запросов
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"20"`
	Burst int     `yaml:"burst" env-default:"40"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	Enabled     bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	Address     string        `yaml:"address" env:"CACHE_ADDRESS" env-default:"localhost:6379"`
	Password    string        `yaml:"password" env:"CACHE_PASSWORD"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
	TTL         time.Duration `yaml:"ttl" env-default:"1h"`
}

// Log структура для настройки вывода логов в prod-профиле
type Log struct {
	File string `yaml:"file" env:"LOG_FILE" env-default:"webserver.log"`
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и проверяет его.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.MongoDB.URL == "" {
		return errors.New("mongodb url is empty")
	}
	if c.MongoDB.DBName == "" {
		return errors.New("mongodb dbname is empty")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit rps and burst must be positive")
	}
	return nil
}

// redactURL скрывает пароль в строке подключения. Неразбираемый URL не печатается.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// String печатает конфиг для отладочного лога. Пароли redis и MongoDB маскируются.
func (c *Config) String() string {
	password := ""
	if c.RedisConnection.Password != "" {
		password = "***"
	}
	return fmt.Sprintf(
		"Env: %s\n"+
			"Version: %s\n"+
			"MongoDB:\n"+
			"  URL: %s\n"+
			"  DBName: %s\n"+
			"  ConnectTimeout: %s\n"+
			"  QueryTimeout: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"CORS:\n"+
			"  AllowedOrigins: %s\n"+
			"RateLimit:\n"+
			"  RPS: %g\n"+
			"  Burst: %d\n"+
			"Cache:\n"+
			"  Enabled: %t\n"+
			"  Address: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"  TTL: %s\n"+
			"Log:\n"+
			"  File: %s\n",
		c.Env,
		c.Version,
		redactURL(c.MongoDB.URL),
		c.MongoDB.DBName,
		c.MongoDB.ConnectTimeout,
		c.MongoDB.QueryTimeout,
		c.HTTPServer.Address,
		c.HTTPServer.Timeout,
		c.HTTPServer.IdleTimeout,
		strings.Join(c.CORS.AllowedOrigins, ","),
		c.RateLimit.RPS,
		c.RateLimit.Burst,
		c.RedisConnection.Enabled,
		c.RedisConnection.Address,
		password,
		c.RedisConnection.DB,
		c.RedisConnection.TTL,
		c.Log.File,
	)
}
