package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord" json:"discord"`
	Approval  ApprovalConfig  `mapstructure:"approval" json:"approval"`
	Guild     GuildConfig     `mapstructure:"guild" json:"guild"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Workspace WorkspaceConfig `mapstructure:"workspace" json:"workspace"`
}

// DiscordConfig Discord bot settings
type DiscordConfig struct {
	Token string `mapstructure:"token" json:"token"`
	// GuildID scopes slash-command registration; empty registers globally.
	GuildID      string `mapstructure:"guild_id" json:"guild_id"`
	SyncCommands bool   `mapstructure:"sync_commands" json:"sync_commands"`
}

// ApprovalConfig approval workflow settings
type ApprovalConfig struct {
	AuthorityName string `mapstructure:"authority_name" json:"authority_name"`
	// TimeoutHours is kept raw so invalid values can fall back with a warning.
	TimeoutHours             string `mapstructure:"timeout_hours" json:"timeout_hours"`
	NotifyRequesterOnFailure bool   `mapstructure:"notify_requester_on_failure" json:"notify_requester_on_failure"`
	OpenThreads              bool   `mapstructure:"open_threads" json:"open_threads"`
}

// GatewayConfig status API settings
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
	Token   string `mapstructure:"token" json:"token"`
}

// LogConfig application logging settings. A relative File is resolved
// against <workspace>/state.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"` // text or json
	File   string `mapstructure:"file" json:"file"`
}

// WorkspaceConfig controls where state files live.
type WorkspaceConfig struct {
	Mode string `mapstructure:"mode" json:"mode"` // default, cwd or path
	Path string `mapstructure:"path" json:"path"`
}

// envBindings maps config keys to extra environment variable names accepted
// besides GATEKEEPER_<KEY>.
var envBindings = map[string][]string{
	"discord.token":                        {"DISCORD_BOT_TOKEN"},
	"discord.guild_id":                     {"DISCORD_GUILD_ID"},
	"discord.sync_commands":                nil,
	"approval.authority_name":              {"APPROVER_ROLE_NAME"},
	"approval.timeout_hours":               {"APPROVAL_TIMEOUT_HOURS"},
	"approval.notify_requester_on_failure": nil,
	"approval.open_threads":                nil,
	"guild.event_category":                 {"EVENT_CATEGORY_NAME"},
	"guild.archive_event_category":         {"ARCHIVE_EVENT_CATEGORY_NAME"},
	"guild.event_request_channel":          {"EVENT_REQUEST_CHANNEL_NAME"},
	"guild.project_category":               {"PROJECT_CATEGORY_NAME"},
	"guild.archive_project_category":       {"ARCHIVE_PROJECT_CATEGORY_NAME"},
	"guild.project_request_channel":        {"PROJECT_REQUEST_CHANNEL_NAME"},
	"guild.club_category":                  {"CLUB_CATEGORY_NAME"},
	"guild.club_request_channel":           {"CLUBS_REQUEST_CHANNEL_NAME"},
	"gateway.enabled":                      nil,
	"gateway.host":                         nil,
	"gateway.port":                         nil,
	"gateway.token":                        nil,
	"log.level":                            nil,
	"log.format":                           nil,
	"log.file":                             nil,
	"workspace.mode":                       nil,
	"workspace.path":                       nil,
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			SyncCommands: true,
		},
		Approval: ApprovalConfig{
			AuthorityName: approval.DefaultAuthorityName,
			TimeoutHours:  strconv.Itoa(approval.DefaultTimeoutHours),
			OpenThreads:   true,
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    18790,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Workspace: WorkspaceConfig{
			Mode: "default",
		},
	}
}

// ConfigDir returns the gatekeeper config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".gatekeeper")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from the default path, environment and defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from path. A missing file is not an error: the bot
// can run from environment variables alone.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, aliases := range envBindings {
		names := append([]string{"GATEKEEPER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return cfg, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config %s: %w", configPath, err)
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to the default path
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo saves config to path
func SaveTo(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = "127.0.0.1"
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	switch format := strings.ToLower(strings.TrimSpace(c.Log.Format)); format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}

	c.Approval.AuthorityName = strings.TrimSpace(c.Approval.AuthorityName)
	if c.Approval.AuthorityName == "" {
		c.Approval.AuthorityName = approval.DefaultAuthorityName
	}

	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode != "" {
		validModes := map[string]bool{"default": true, "cwd": true, "path": true}
		if !validModes[strings.ToLower(mode)] {
			return fmt.Errorf("workspace.mode must be one of: default, cwd, path; got %q", mode)
		}
		if strings.EqualFold(mode, "path") && strings.TrimSpace(c.Workspace.Path) == "" {
			return fmt.Errorf("workspace.path must be non-empty when workspace.mode is \"path\"")
		}
	}

	return nil
}

// EffectiveTimeoutHours parses the configured timeout. Values that are not
// positive integers fall back to the default with a warning.
func (a ApprovalConfig) EffectiveTimeoutHours() int {
	raw := strings.TrimSpace(a.TimeoutHours)
	if raw == "" {
		return approval.DefaultTimeoutHours
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid approval.timeout_hours, using default",
			"value", a.TimeoutHours,
			"default", approval.DefaultTimeoutHours,
		)
		return approval.DefaultTimeoutHours
	}
	if hours <= 0 {
		slog.Warn("approval.timeout_hours must be positive, using default",
			"value", hours,
			"default", approval.DefaultTimeoutHours,
		)
		return approval.DefaultTimeoutHours
	}
	return hours
}

// ApprovalSettings builds the immutable workflow settings.
func (c *Config) ApprovalSettings() approval.Settings {
	return approval.Settings{
		AuthorityName:            c.Approval.AuthorityName,
		TimeoutHours:             c.Approval.EffectiveTimeoutHours(),
		NotifyRequesterOnFailure: c.Approval.NotifyRequesterOnFailure,
		OpenThreads:              c.Approval.OpenThreads,
	}
}

// WorkspacePath returns the expanded workspace path
func (c *Config) WorkspacePath() string {
	path, err := c.WorkspacePathChecked()
	if err != nil {
		return filepath.Join(ConfigDir(), "workspace")
	}
	return path
}

// WorkspacePathChecked returns the expanded workspace path or an error if invalid.
func (c *Config) WorkspacePathChecked() (string, error) {
	mode := strings.TrimSpace(c.Workspace.Mode)
	if mode == "" || strings.EqualFold(mode, "default") {
		return filepath.Join(ConfigDir(), "workspace"), nil
	}
	if strings.EqualFold(mode, "cwd") {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd: %w", err)
		}
		return wd, nil
	}
	if !strings.EqualFold(mode, "path") {
		return "", fmt.Errorf("unknown workspace.mode: %s", mode)
	}
	if c.Workspace.Path == "" {
		return "", fmt.Errorf("workspace.path is required when workspace.mode=path")
	}
	if c.Workspace.Path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for workspace path: %w", err)
		}
		rest := c.Workspace.Path[1:]
		rest = strings.TrimPrefix(rest, string(filepath.Separator))
		rest = strings.TrimPrefix(rest, "/")
		return filepath.Join(homeDir, rest), nil
	}
	return c.Workspace.Path, nil
}
