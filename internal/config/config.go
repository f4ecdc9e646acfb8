package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Storage      StorageConfig   `yaml:"storage"`
	Serial       SerialConfig    `yaml:"serial"`
	Display      DisplayConfig   `yaml:"display"`
	Auth         AuthConfig      `yaml:"auth"`
	Tailscale    TailscaleConfig `yaml:"tailscale"`
	SettingsPath string          `yaml:"settings_path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	Backend        string         `yaml:"backend"`
	CSVPath        string         `yaml:"csv_path"`
	SQLitePath     string         `yaml:"sqlite_path"`
	MigrationsPath string         `yaml:"migrations_path"`
	Database       DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// SerialConfig locates the speed sensor. An empty port means the first USB
// serial device found.
type SerialConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Port      string        `yaml:"port"`
	BaudRate  int           `yaml:"baud_rate"`
	Watchdog  time.Duration `yaml:"watchdog"`
	Reconnect time.Duration `yaml:"reconnect"`
}

// DisplayConfig enables the Redis relay when RedisAddr is set.
type DisplayConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Default returns the values used for keys missing from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080},
		Storage: StorageConfig{
			Backend:        "csv",
			CSVPath:        "data/RunningSessions.csv",
			SQLitePath:     "data/sessions.db",
			MigrationsPath: "migrations",
			Database:       DatabaseConfig{Port: 5432},
		},
		Serial: SerialConfig{
			BaudRate:  115200,
			Watchdog:  time.Second,
			Reconnect: time.Second,
		},
		Tailscale:    TailscaleConfig{Hostname: "treadmill", StateDir: "data/tsnet"},
		SettingsPath: "data/settings.yaml",
	}
}

// Load reads config from a YAML file over Default, then applies environment
// variable overrides. Env vars use the prefix TREADMILL_:
//
//	TREADMILL_SERVER_HOST, TREADMILL_SERVER_PORT,
//	TREADMILL_STORAGE_BACKEND, TREADMILL_CSV_PATH, TREADMILL_SQLITE_PATH,
//	TREADMILL_DB_HOST, TREADMILL_DB_PORT, TREADMILL_DB_NAME,
//	TREADMILL_DB_USER, TREADMILL_DB_PASSWORD, TREADMILL_DB_SSLMODE,
//	TREADMILL_SERIAL_PORT, TREADMILL_REDIS_ADDR, TREADMILL_REDIS_PASSWORD,
//	TREADMILL_AUTH_API_KEY, TREADMILL_SETTINGS_PATH
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("TREADMILL_SERVER_HOST", &cfg.Server.Host)
	num("TREADMILL_SERVER_PORT", &cfg.Server.Port)
	str("TREADMILL_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("TREADMILL_CSV_PATH", &cfg.Storage.CSVPath)
	str("TREADMILL_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("TREADMILL_DB_HOST", &cfg.Storage.Database.Host)
	num("TREADMILL_DB_PORT", &cfg.Storage.Database.Port)
	str("TREADMILL_DB_NAME", &cfg.Storage.Database.Name)
	str("TREADMILL_DB_USER", &cfg.Storage.Database.User)
	str("TREADMILL_DB_PASSWORD", &cfg.Storage.Database.Password)
	str("TREADMILL_DB_SSLMODE", &cfg.Storage.Database.SSLMode)
	str("TREADMILL_SERIAL_PORT", &cfg.Serial.Port)
	str("TREADMILL_REDIS_ADDR", &cfg.Display.RedisAddr)
	str("TREADMILL_REDIS_PASSWORD", &cfg.Display.RedisPassword)
	str("TREADMILL_AUTH_API_KEY", &cfg.Auth.APIKey)
	str("TREADMILL_SETTINGS_PATH", &cfg.SettingsPath)
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	switch c.Storage.Backend {
	case "csv":
		if c.Storage.CSVPath == "" {
			return fmt.Errorf("storage.csv_path is required")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required")
		}
	case "postgres":
		if c.Storage.Database.Host == "" {
			return fmt.Errorf("storage.database.host is required")
		}
		if c.Storage.Database.Name == "" {
			return fmt.Errorf("storage.database.name is required")
		}
		if c.Storage.Database.User == "" {
			return fmt.Errorf("storage.database.user is required")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of csv, sqlite, postgres", c.Storage.Backend)
	}
	if !c.Serial.Disabled && c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("settings_path is required")
	}
	return nil
}
