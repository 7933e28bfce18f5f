package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации демона освещения.
type Config struct {
	Light     LightConfig     `yaml:"light"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Host      HostConfig      `yaml:"host"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LightConfig struct {
	ClosingGraceMs int  `yaml:"closing_grace_ms"`
	ClosingPollMs  int  `yaml:"closing_poll_ms"`
	ResendFlushMs  int  `yaml:"resend_flush_ms"`
	ResendCapacity int  `yaml:"resend_capacity"`
	ResendZstd     bool `yaml:"resend_zstd"`
	Journal        bool `yaml:"journal"`
}

// ClosingGrace время ожидания закрывающегося цикла
func (l LightConfig) ClosingGrace() time.Duration {
	return time.Duration(l.ClosingGraceMs) * time.Millisecond
}

// ClosingPoll интервал опроса закрывающегося цикла
func (l LightConfig) ClosingPoll() time.Duration {
	return time.Duration(l.ClosingPollMs) * time.Millisecond
}

// ResendFlush интервал отправки пакетов LightUpdate
func (l LightConfig) ResendFlush() time.Duration {
	return time.Duration(l.ResendFlushMs) * time.Millisecond
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто: шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// ServerConfig HTTP-сервер демона: /metrics, /health и административный API
type ServerConfig struct {
	MetricsPort int    `yaml:"metrics_port"`
	JWTSecret   string `yaml:"jwt_secret"` // пусто: запись без авторизации
}

// GetMetricsPort возвращает порт HTTP-сервера: config -> LIGHT_METRICS_PORT -> 2112
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "LIGHT_METRICS_PORT", 2112)
}

// GetJWTSecret секрет подписи токенов: config -> LIGHT_JWT_SECRET
func (s *ServerConfig) GetJWTSecret() []byte {
	if s.JWTSecret != "" {
		return []byte(s.JWTSecret)
	}
	return []byte(os.Getenv("LIGHT_JWT_SECRET"))
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// HostConfig параметры эталонного мира демона
type HostConfig struct {
	World         string `yaml:"world"`
	BottomSection int    `yaml:"bottom_section"`
	TopSection    int    `yaml:"top_section"`
	Variant       string `yaml:"variant"`
	PreloadRadius int    `yaml:"preload_radius"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default конфигурация без файла
func Default() *Config {
	return &Config{
		Light: LightConfig{
			ClosingGraceMs: 3000,
			ClosingPollMs:  50,
			ResendFlushMs:  50,
			ResendCapacity: 1024,
		},
		EventBus: EventBusConfig{
			Stream:    "LIGHT",
			Retention: 24,
			Buffer:    1024,
		},
		Storage: StorageConfig{
			Backend:   "memory",
			Path:      "data/journal",
			KeyPrefix: "lightsync:journal:",
		},
		Telemetry: TelemetryConfig{ServiceName: "lightsync"},
		Host: HostConfig{
			World:         "overworld",
			BottomSection: -4,
			TopSection:    19,
			Variant:       "direct",
			PreloadRadius: 2,
		},
		Logging: LoggingConfig{Level: "info", Dir: "logs"},
	}
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает YAML поверх Default.
// Если path == "", берётся LIGHT_CONFIG; без него возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LIGHT_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Host.BottomSection > c.Host.TopSection {
		return fmt.Errorf("host: bottom_section %d above top_section %d", c.Host.BottomSection, c.Host.TopSection)
	}
	switch c.Host.Variant {
	case "", "direct", "queued":
	default:
		return fmt.Errorf("host: unknown variant %q", c.Host.Variant)
	}
	if c.Light.ClosingPollMs < 0 || c.Light.ClosingGraceMs < 0 {
		return fmt.Errorf("light: negative closing timings")
	}
	return nil
}
