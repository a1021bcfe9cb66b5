package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := GetDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := writeConfig(t, `
device:
  name: garage
  transport: tcp
  address: 192.168.1.50:8899
  read_timeout: 3s
poller:
  status_interval: 30s
  status_commands: [GS, MOD, EY2024]
redis:
  enabled: false
log:
  level: debug
  format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Device.Name != "garage" || cfg.Device.Transport != TransportTCP || cfg.Device.Address != "192.168.1.50:8899" {
		t.Fatalf("device = %+v", cfg.Device)
	}
	if cfg.Device.ReadTimeout != 3*time.Second {
		t.Fatalf("read_timeout = %s", cfg.Device.ReadTimeout)
	}
	if cfg.Poller.StatusInterval != 30*time.Second {
		t.Fatalf("status_interval = %s", cfg.Poller.StatusInterval)
	}
	if strings.Join(cfg.Poller.StatusCommands, ",") != "GS,MOD,EY2024" {
		t.Fatalf("status_commands = %v", cfg.Poller.StatusCommands)
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis should be disabled")
	}

	// untouched sections keep their defaults
	if !cfg.Device.VerifyChecksum || cfg.Device.BaudRate != 2400 {
		t.Fatalf("device defaults lost: %+v", cfg.Device)
	}
	if !cfg.Poller.RunSettingsOnStart {
		t.Fatal("run_settings_on_start default lost")
	}
	if cfg.Monitor.MetricsPort != 9090 || cfg.Redis.History != 1000 {
		t.Fatalf("defaults lost: monitor=%+v redis=%+v", cfg.Monitor, cfg.Redis)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "device: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := LoadConfig(writeConfig(t, "device:\n  transport: usb\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg, fallback, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || !fallback {
		t.Fatalf("missing file: fallback=%v err=%v", fallback, err)
	}
	if cfg.Device.Name != GetDefaultConfig().Device.Name {
		t.Fatalf("fallback config = %+v", cfg.Device)
	}

	cfg, fallback, err = LoadConfigOrDefault(writeConfig(t, "device:\n  name: shed\n"))
	if err != nil || fallback || cfg.Device.Name != "shed" {
		t.Fatalf("valid file: name=%v fallback=%v err=%v", cfg, fallback, err)
	}

	bad := map[string]string{
		"parse error":   "device: [unclosed",
		"bad transport": "device:\n  transport: usb\n",
		"bad log level": "log:\n  level: loud\n",
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			cfg, fallback, err := LoadConfigOrDefault(writeConfig(t, body))
			if err == nil || fallback || cfg != nil {
				t.Fatalf("cfg=%v fallback=%v err=%v, want error without defaults", cfg, fallback, err)
			}
		})
	}

	dir := t.TempDir()
	if _, _, err := LoadConfigOrDefault(dir); err == nil {
		t.Fatal("reading a directory should fail rather than fall back")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"empty name", func(c *Config) { c.Device.Name = "" }, "device.name"},
		{"unknown transport", func(c *Config) { c.Device.Transport = "usb" }, "device.transport"},
		{"serial without port", func(c *Config) { c.Device.Port = "" }, "device.port"},
		{"zero baud", func(c *Config) { c.Device.BaudRate = 0 }, "baud_rate"},
		{"tcp without address", func(c *Config) { c.Device.Transport = TransportTCP }, "device.address"},
		{"zero read timeout", func(c *Config) { c.Device.ReadTimeout = 0 }, "read_timeout"},
		{"fast interval", func(c *Config) { c.Poller.StatusInterval = 10 * time.Millisecond }, "status_interval"},
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"redis without channel", func(c *Config) { c.Redis.Channel = "" }, "redis.channel"},
		{"negative history", func(c *Config) { c.Redis.History = -1 }, "redis.history"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"file without path", func(c *Config) { c.Log.Output = "file" }, "log.file_path"},
		{"bad metrics port", func(c *Config) { c.Monitor.MetricsPort = 70000 }, "metrics_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	cfg := GetDefaultConfig()
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled redis should skip its checks: %v", err)
	}
}
