package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/openmined/photosync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".photosync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "photosync.log")
	DefaultServerURL   = "http://localhost:8080"
	DefaultSecret      = "development-secret-change-me"
	DefaultDownloadDir = "./downloads"
	DefaultStateFile   = "./.sync_state"
	DefaultHTTPAddr    = "localhost:8000"

	DefaultPollInterval = time.Hour
	DefaultTimeout      = 300 * time.Second
)

var (
	ErrInvalidServerURL = errors.New("config: invalid server url")
	ErrEmptySecret      = errors.New("config: secret is empty")
	ErrInvalidDuration  = errors.New("config: durations must be positive")
)

type HTTPConfig struct {
	Addr  string `json:"addr" mapstructure:"addr"`
	Token string `json:"token,omitempty" mapstructure:"token"`
}

// Config is an immutable snapshot once handed to a Holder. Use Clone to derive a new one.
type Config struct {
	ServerURL    string        `json:"server_url" mapstructure:"server_url"`
	Secret       string        `json:"secret" mapstructure:"secret"`
	DownloadDir  string        `json:"download_dir" mapstructure:"download_dir"`
	StateFile    string        `json:"state_file" mapstructure:"state_file"`
	JournalPath  string        `json:"journal_path,omitempty" mapstructure:"journal_path"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	LogFile      string        `json:"log_file,omitempty" mapstructure:"log_file"`
	HTTP         HTTPConfig    `json:"http" mapstructure:"http"`

	Path string `json:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ServerURL:    DefaultServerURL,
		Secret:       DefaultSecret,
		DownloadDir:  DefaultDownloadDir,
		StateFile:    DefaultStateFile,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		HTTP:         HTTPConfig{Addr: DefaultHTTPAddr},
	}
}

func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// UsesDefaultSecret is true when the development secret was never replaced.
func (c *Config) UsesDefaultSecret() bool {
	return c.Secret == DefaultSecret
}

// Validate normalizes paths to absolute form and checks the remaining fields.
func (c *Config) Validate() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if err := validateURL(c.ServerURL); err != nil {
		return err
	}

	if c.Secret == "" {
		return ErrEmptySecret
	}

	if c.PollInterval <= 0 || c.Timeout <= 0 {
		return ErrInvalidDuration
	}

	var err error
	if c.DownloadDir, err = utils.ResolvePath(c.DownloadDir); err != nil {
		return fmt.Errorf("config: download dir: %w", err)
	}
	if c.StateFile, err = utils.ResolvePath(c.StateFile); err != nil {
		return fmt.Errorf("config: state file: %w", err)
	}
	if c.JournalPath != "" {
		if c.JournalPath, err = utils.ResolvePath(c.JournalPath); err != nil {
			return fmt.Errorf("config: journal path: %w", err)
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("config: log file: %w", err)
		}
	}
	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config: path: %w", err)
		}
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, raw)
	}
	return nil
}

// Save writes the config as JSON to path, or to c.Path when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path
	}
	if path == "" {
		return errors.New("config: no path to save to")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads a config saved by Save. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}
