// Package config loads bashgate settings from file and environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	configDirName  = "bashgate"
)

// duration wraps time.Duration for YAML unmarshaling.
type duration struct {
	d time.Duration
}

func (d *duration) unmarshalText(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.d = parsed
	return nil
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	return d.unmarshalText(value.Value)
}

func (d *duration) Duration() time.Duration {
	return d.d
}

// Config for bashgate. Pointer fields; nil = unset.
type Config struct {
	Timeout        *int            `yaml:"timeout"`
	MaxOutputBytes *int            `yaml:"max_output_bytes"`
	PolicyDir      *string         `yaml:"policy_dir"`
	Analyzer       *AnalyzerConfig `yaml:"analyzer"`
	SSH            *SSHConfig      `yaml:"ssh"`
}

// AnalyzerConfig holds the safety analyzer's policy toggles.
type AnalyzerConfig struct {
	Strict               *bool `yaml:"strict"`
	ParanoidRm           *bool `yaml:"paranoid_rm"`
	ParanoidInterpreters *bool `yaml:"paranoid_interpreters"`
	AllowTmpdirVar       *bool `yaml:"allow_tmpdir_var"`
}

// SSHConfig holds SSH-specific configuration.
type SSHConfig struct {
	ConnectTimeout  *duration `yaml:"connect_timeout"`
	Retries         *int      `yaml:"retries"`
	RetryBackoff    *duration `yaml:"retry_backoff"`
	HostKeyChecking *string   `yaml:"host_key_checking"`
	KnownHostsFile  *string   `yaml:"known_hosts_file"`
}

// LoadFrom loads config from path. Missing files return zero Config, nil.
func LoadFrom(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Load() (Config, error) {
	return LoadFrom(defaultConfigPath())
}

func (c *Config) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("BASHGATE_TIMEOUT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BASHGATE_TIMEOUT: %w", err)
		}
		c.Timeout = &n
	}
	if v, ok := os.LookupEnv("BASHGATE_MAX_OUTPUT_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BASHGATE_MAX_OUTPUT_BYTES: %w", err)
		}
		c.MaxOutputBytes = &n
	}
	if v, ok := os.LookupEnv("BASHGATE_POLICY_DIR"); ok {
		c.PolicyDir = &v
	}

	boolOverrides := []struct {
		env string
		set func(*bool)
	}{
		{"BASHGATE_STRICT", func(b *bool) { c.analyzer().Strict = b }},
		{"BASHGATE_PARANOID_RM", func(b *bool) { c.analyzer().ParanoidRm = b }},
		{"BASHGATE_PARANOID_INTERPRETERS", func(b *bool) { c.analyzer().ParanoidInterpreters = b }},
		{"BASHGATE_ALLOW_TMPDIR_VAR", func(b *bool) { c.analyzer().AllowTmpdirVar = b }},
	}
	for _, override := range boolOverrides {
		v, ok := os.LookupEnv(override.env)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", override.env, err)
		}
		override.set(&parsed)
	}

	if v, ok := os.LookupEnv("BASHGATE_SSH_CONNECT_TIMEOUT"); ok {
		d := &duration{}
		if err := d.unmarshalText(v); err != nil {
			return fmt.Errorf("parse BASHGATE_SSH_CONNECT_TIMEOUT: %w", err)
		}
		c.ssh().ConnectTimeout = d
	}
	if v, ok := os.LookupEnv("BASHGATE_SSH_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse BASHGATE_SSH_RETRIES: %w", err)
		}
		c.ssh().Retries = &n
	}
	if v, ok := os.LookupEnv("BASHGATE_SSH_RETRY_BACKOFF"); ok {
		d := &duration{}
		if err := d.unmarshalText(v); err != nil {
			return fmt.Errorf("parse BASHGATE_SSH_RETRY_BACKOFF: %w", err)
		}
		c.ssh().RetryBackoff = d
	}
	if v, ok := os.LookupEnv("BASHGATE_SSH_HOST_KEY_CHECKING"); ok {
		c.ssh().HostKeyChecking = &v
	}
	if v, ok := os.LookupEnv("BASHGATE_SSH_KNOWN_HOSTS_FILE"); ok {
		c.ssh().KnownHostsFile = &v
	}

	return nil
}

func (c *Config) analyzer() *AnalyzerConfig {
	if c.Analyzer == nil {
		c.Analyzer = &AnalyzerConfig{}
	}
	return c.Analyzer
}

func (c *Config) ssh() *SSHConfig {
	if c.SSH == nil {
		c.SSH = &SSHConfig{}
	}
	return c.SSH
}

func (c *Config) validate() error {
	if c.Timeout != nil && *c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", *c.Timeout)
	}
	if c.Timeout != nil && *c.Timeout > 3600 {
		return fmt.Errorf("timeout must not exceed 3600 seconds, got %d", *c.Timeout)
	}
	if c.MaxOutputBytes != nil && *c.MaxOutputBytes < 0 {
		return fmt.Errorf("max_output_bytes must be non-negative, got %d", *c.MaxOutputBytes)
	}
	if c.MaxOutputBytes != nil && *c.MaxOutputBytes > 1024*1024*1024 {
		return fmt.Errorf("max_output_bytes must not exceed 1 GB, got %d", *c.MaxOutputBytes)
	}
	if c.SSH != nil {
		if c.SSH.Retries != nil && *c.SSH.Retries < 0 {
			return fmt.Errorf("ssh.retries must be non-negative, got %d", *c.SSH.Retries)
		}
		if c.SSH.ConnectTimeout != nil && c.SSH.ConnectTimeout.Duration() <= 0 {
			return fmt.Errorf("ssh.connect_timeout must be positive, got %v", c.SSH.ConnectTimeout.Duration())
		}
		if c.SSH.RetryBackoff != nil && c.SSH.RetryBackoff.Duration() <= 0 {
			return fmt.Errorf("ssh.retry_backoff must be positive, got %v", c.SSH.RetryBackoff.Duration())
		}
		if c.SSH.HostKeyChecking != nil {
			switch *c.SSH.HostKeyChecking {
			case "accept-new", "strict", "off":
			default:
				return fmt.Errorf("ssh.host_key_checking must be accept-new, strict, or off, got %q", *c.SSH.HostKeyChecking)
			}
		}
	}
	return nil
}

func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName, configFileName)
}
