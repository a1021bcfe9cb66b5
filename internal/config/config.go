package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Poller  PollerConfig  `yaml:"poller"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type DeviceConfig struct {
	Name           string        `yaml:"name"`
	Transport      string        `yaml:"transport"`
	Port           string        `yaml:"port"`
	BaudRate       int           `yaml:"baud_rate"`
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	VerifyChecksum bool          `yaml:"verify_checksum"`
}

// PollerConfig lists full command strings ("GS", "EY2024"); empty lists
// fall back to the registry's status and settings commands.
type PollerConfig struct {
	StatusInterval     time.Duration `yaml:"status_interval"`
	StatusCommands     []string      `yaml:"status_commands"`
	SettingsCommands   []string      `yaml:"settings_commands"`
	RunSettingsOnStart bool          `yaml:"run_settings_on_start"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
	History  int    `yaml:"history"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
	Stream      bool `yaml:"stream"`
}

const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// LoadConfig reads path over the defaults, so a partial file is enough.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault loads path, falling back to the defaults only when
// the file does not exist. A file that exists but fails to parse or
// validate is an error. fallback reports whether the defaults were used.
func LoadConfigOrDefault(path string) (cfg *Config, fallback bool, err error) {
	cfg, err = LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return GetDefaultConfig(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:           "inverter",
			Transport:      TransportSerial,
			Port:           "/dev/ttyUSB0",
			BaudRate:       2400,
			ReadTimeout:    2 * time.Second,
			VerifyChecksum: true,
		},
		Poller: PollerConfig{
			StatusInterval:     10 * time.Second,
			RunSettingsOnStart: true,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			Channel:  "inverter_readings",
			History:  1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPort: 9090,
			Stream:      true,
		},
	}
}

// Validate rejects values the poller cannot run with.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("config: device.name is required")
	}
	switch c.Device.Transport {
	case TransportSerial:
		if c.Device.Port == "" {
			return fmt.Errorf("config: device.port is required for serial transport")
		}
		if c.Device.BaudRate <= 0 {
			return fmt.Errorf("config: device.baud_rate must be positive, got %d", c.Device.BaudRate)
		}
	case TransportTCP:
		if c.Device.Address == "" {
			return fmt.Errorf("config: device.address is required for tcp transport")
		}
	default:
		return fmt.Errorf("config: unknown device.transport %q", c.Device.Transport)
	}
	if c.Device.ReadTimeout <= 0 {
		return fmt.Errorf("config: device.read_timeout must be positive")
	}
	if c.Poller.StatusInterval < time.Second {
		return fmt.Errorf("config: poller.status_interval must be at least 1s, got %s", c.Poller.StatusInterval)
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("config: redis.channel is required when redis is enabled")
		}
		if c.Redis.History < 0 {
			return fmt.Errorf("config: redis.history must not be negative")
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Log.Output == "file" && c.Log.FilePath == "" {
		return fmt.Errorf("config: log.file_path is required for file output")
	}
	if c.Monitor.Enabled && (c.Monitor.MetricsPort <= 0 || c.Monitor.MetricsPort > 65535) {
		return fmt.Errorf("config: monitor.metrics_port %d out of range", c.Monitor.MetricsPort)
	}
	return nil
}
