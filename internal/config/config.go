// Package config loads the bot configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultDataDir           = "data"
	DefaultGlobalLimit       = 10
	DefaultMaxArchiveSizeMiB = 10
	DefaultMaxArchiveEntries = 1220
	DefaultLogFile           = "logs/bot.log"
	DefaultLogMaxSizeMB      = 50
	DefaultLogMaxBackups     = 7
	DefaultLogMaxAgeDays     = 28
)

// Config is the full bot configuration.
type Config struct {
	// BotToken authenticates against the Telegram Bot API. Overridable
	// via the BOT_TOKEN environment variable.
	BotToken string `yaml:"bot_token"`
	// AdminID is the privileged administrator's Telegram user ID.
	AdminID int64 `yaml:"admin_id"`
	// AdminUsername is shown to users in support-related messages.
	AdminUsername string `yaml:"admin_username"`
	// DataDir roots the on-disk state (configs/, issued/, users/).
	DataDir string `yaml:"data_dir"`

	Ingest IngestConfig `yaml:"ingest"`
	Ops    OpsConfig    `yaml:"ops"`
	Log    LogConfig    `yaml:"log"`
}

// IngestConfig bounds credential archive uploads.
type IngestConfig struct {
	MaxArchiveSizeMiB int `yaml:"max_archive_size_mib"`
	MaxArchiveEntries int `yaml:"max_archive_entries"`
}

// OpsConfig configures the operator HTTP API. The API is disabled when
// Listen is empty.
type OpsConfig struct {
	Listen string `yaml:"listen"`
	// Token is the static bearer token guarding the API. Overridable via
	// the OPS_TOKEN environment variable.
	Token string `yaml:"token"`
}

// LogConfig configures file logging and rotation.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the YAML config at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error as
// long as the required values arrive via environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if errParse := yaml.Unmarshal(data, cfg); errParse != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
		}
	case os.IsNotExist(err):
		// Config can come entirely from the environment.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if token := strings.TrimSpace(os.Getenv("BOT_TOKEN")); token != "" {
		cfg.BotToken = token
	}
	if token := strings.TrimSpace(os.Getenv("OPS_TOKEN")); token != "" {
		cfg.Ops.Token = token
	}

	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Ingest.MaxArchiveSizeMiB <= 0 {
		c.Ingest.MaxArchiveSizeMiB = DefaultMaxArchiveSizeMiB
	}
	if c.Ingest.MaxArchiveEntries <= 0 {
		c.Ingest.MaxArchiveEntries = DefaultMaxArchiveEntries
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("config: bot_token is required (or set BOT_TOKEN)")
	}
	if c.AdminID == 0 {
		return errors.New("config: admin_id is required")
	}
	if c.Ops.Listen != "" && strings.TrimSpace(c.Ops.Token) == "" {
		return errors.New("config: ops.token is required when ops.listen is set (or set OPS_TOKEN)")
	}
	return nil
}

// MaxArchiveSize returns the archive size cap in bytes.
func (c *Config) MaxArchiveSize() int64 {
	return int64(c.Ingest.MaxArchiveSizeMiB) << 20
}

// ConfigsDir is the directory holding available credential files.
func (c *Config) ConfigsDir() string { return filepath.Join(c.DataDir, "configs") }

// IssuedDir is the staging directory for taken-but-unrecorded credentials.
func (c *Config) IssuedDir() string { return filepath.Join(c.DataDir, "issued") }

// UsersDir is the directory holding the line-oriented state files.
func (c *Config) UsersDir() string { return filepath.Join(c.DataDir, "users") }

// State file paths inside UsersDir.
func (c *Config) AuthorizedUsersFile() string {
	return filepath.Join(c.UsersDir(), "authorized_users.txt")
}
func (c *Config) BannedUsersFile() string { return filepath.Join(c.UsersDir(), "banned_users.txt") }
func (c *Config) KeysIssuedFile() string  { return filepath.Join(c.UsersDir(), "keys_issued.txt") }
func (c *Config) KeysLogFile() string     { return filepath.Join(c.UsersDir(), "keys_log.txt") }
func (c *Config) KeyLimitFile() string    { return filepath.Join(c.UsersDir(), "key_limit.txt") }
func (c *Config) UserLimitsFile() string  { return filepath.Join(c.UsersDir(), "user_limits.txt") }
func (c *Config) SupportRequestsFile() string {
	return filepath.Join(c.UsersDir(), "support_requests.txt")
}
func (c *Config) SiteExceptionsFile() string { return filepath.Join(c.UsersDir(), "exceptions.txt") }
