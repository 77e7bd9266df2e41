package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/recollsup/internal/logger"
	"github.com/spf13/viper"
)

// DefaultHostKey names the local settings table used when no entry matches
// the current machine.
const DefaultHostKey = "default"

// Config is the top-level TOML structure.
type Config struct {
	Debug          bool     `mapstructure:"debug"`
	CreatedLabel   string   `mapstructure:"created_label"`
	ModifiedLabel  string   `mapstructure:"modified_label"`
	DatetimeFormat string   `mapstructure:"datetime_format"`
	HostKey        string   `mapstructure:"host_key"`
	Env            []string `mapstructure:"env"`
	EnvFiles       []string `mapstructure:"env_files"`

	Supervisor SupervisorConfig       `mapstructure:"supervisor"`
	Local      map[string]LocalConfig `mapstructure:"local"`
	Log        logger.Config          `mapstructure:"log"`
	History    HistoryConfig          `mapstructure:"history"`
	Server     ServerConfig           `mapstructure:"server"`
	Metrics    MetricsConfig          `mapstructure:"metrics"`
	Notify     NotifyConfig           `mapstructure:"notify"`
}

// SupervisorConfig holds the termination and retry tunables.
type SupervisorConfig struct {
	GraceTimeout  time.Duration `mapstructure:"grace_timeout"`
	KillTimeout   time.Duration `mapstructure:"kill_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SuccessWindow time.Duration `mapstructure:"success_window"`
	// LockFile defaults to <conf_dir>/recollsup.lock; "-" disables locking.
	LockFile string `mapstructure:"lock_file"`
}

// LocalConfig is the machine-specific part of the settings, keyed by host key.
type LocalConfig struct {
	RecollIndex    string   `mapstructure:"recollindex"`
	RecollQ        string   `mapstructure:"recollq"`
	PythonPath     string   `mapstructure:"python_path"`
	VirtualEnv     string   `mapstructure:"virtual_env"`
	DataDir        string   `mapstructure:"data_dir"`
	ConfDir        string   `mapstructure:"conf_dir"`
	PathExtensions []string `mapstructure:"path_extensions"`
	LibraryPath    []string `mapstructure:"library_path"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Listen   string    `mapstructure:"listen"`
	BasePath string    `mapstructure:"base_path"`
	TLS      TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the API. CertFile/KeyFile take precedence over
// Dir; with AutoGenerate a self-signed pair is written to Dir when missing.
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	CertFile     string   `mapstructure:"cert_file"`
	KeyFile      string   `mapstructure:"key_file"`
	Dir          string   `mapstructure:"dir"`
	AutoGenerate bool     `mapstructure:"auto_generate"`
	MinVersion   string   `mapstructure:"min_version"`
	CommonName   string   `mapstructure:"common_name"`
	Hosts        []string `mapstructure:"hosts"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// Scheme returns the URL scheme clients should use for the API.
func (s ServerConfig) Scheme() string {
	if s.TLS.Enabled {
		return "https"
	}
	return "http"
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// NotifyConfig configures delivery of the "daemon gave up" notification.
// An empty NtfyURL keeps notifications in the log only.
type NotifyConfig struct {
	NtfyURL  string        `mapstructure:"ntfy_url"`
	Topic    string        `mapstructure:"topic"`
	Token    string        `mapstructure:"token"`
	Priority string        `mapstructure:"priority"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("created_label", "created")
	v.SetDefault("modified_label", "modified")
	v.SetDefault("datetime_format", "%Y_%m_%dT%H_%M_%S")
	v.SetDefault("supervisor.grace_timeout", "2100ms")
	v.SetDefault("supervisor.kill_timeout", "1s")
	v.SetDefault("supervisor.poll_interval", "100ms")
	v.SetDefault("supervisor.max_attempts", 3)
	v.SetDefault("supervisor.cooldown", "5s")
	v.SetDefault("supervisor.success_window", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.min_version", "1.3")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("notify.priority", "high")
	v.SetDefault("notify.timeout", "10s")
}

// Default returns a Config populated only with defaults.
func Default() *Config {
	c, _ := Load("")
	return c
}

// Load reads the TOML file at path on top of the defaults. An empty path
// yields the defaults. RECOLLSUP_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RECOLLSUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects tunables the supervisor cannot work with.
func (c *Config) Validate() error {
	s := c.Supervisor
	var errs []error
	if s.GraceTimeout <= 0 {
		errs = append(errs, errors.New("supervisor.grace_timeout must be positive"))
	}
	if s.KillTimeout <= 0 {
		errs = append(errs, errors.New("supervisor.kill_timeout must be positive"))
	}
	if s.MaxAttempts < 0 {
		errs = append(errs, errors.New("supervisor.max_attempts must not be negative"))
	}
	if s.Cooldown < 0 || s.SuccessWindow < 0 {
		errs = append(errs, errors.New("supervisor.cooldown and success_window must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries in file order.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
	}
	return out, nil
}
