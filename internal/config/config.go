package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for PHIbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Bot      BotConfig      `json:"bot"`
	Alerts   AlertsConfig   `json:"alerts"`
	Channels ChannelsConfig `json:"channels"`
	Audit    AuditConfig    `json:"audit"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel       string `json:"logLevel"`
	LogFile        string `json:"logFile"`        // optional log file path
	PollIntervalMs int    `json:"pollIntervalMs"` // delay between poll ticks
	BatchSize      int    `json:"batchSize"`      // max events handled per tick
	BusSize        int    `json:"busSize"`        // inbound queue capacity
}

type BotConfig struct {
	ExampleCommand string `json:"exampleCommand"`
	ResponsesFile  string `json:"responsesFile"` // optional YAML overrides of canned replies
}

type AlertsConfig struct {
	Enabled    bool   `json:"enabled"`
	RedactMode string `json:"redactMode"` // "off" | "repost" | "update" | "delete"
}

type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Console  ConsoleConfig  `json:"console"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
	BotID    string `json:"botId"`    // defaults to the auth.test user id
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId"` // optional: restrict to specific guild
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

type ConsoleConfig struct {
	Enabled bool   `json:"enabled"`
	BotName string `json:"botName"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.phibot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phibot"
	}
	return filepath.Join(home, ".phibot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the file at path over Defaults. It does not validate: callers
// apply ApplyEnv first, since credentials may come from the environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Bot.ResponsesFile = ExpandPath(cfg.Bot.ResponsesFile)

	return cfg, nil
}

// ApplyEnv fills credentials that are still empty from the environment:
// SLACK_BOT_TOKEN, SLACK_APP_TOKEN, BOT_ID, DISCORD_BOT_TOKEN and TELEGRAM_BOT_TOKEN.
// A Slack bot token found this way also enables the Slack channel.
func ApplyEnv(cfg *Config) {
	fill := func(dst *string, key string) bool {
		if *dst != "" {
			return false
		}
		if v := os.Getenv(key); v != "" {
			*dst = v
			return true
		}
		return false
	}
	if fill(&cfg.Channels.Slack.BotToken, "SLACK_BOT_TOKEN") {
		cfg.Channels.Slack.Enabled = true
	}
	fill(&cfg.Channels.Slack.AppToken, "SLACK_APP_TOKEN")
	fill(&cfg.Channels.Slack.BotID, "BOT_ID")
	fill(&cfg.Channels.Discord.Token, "DISCORD_BOT_TOKEN")
	fill(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.PollIntervalMs < 10 || cfg.General.PollIntervalMs > 60000 {
		errs = append(errs, "general.pollIntervalMs must be between 10 and 60000")
	}
	if cfg.General.BatchSize < 1 || cfg.General.BatchSize > 10000 {
		errs = append(errs, "general.batchSize must be between 1 and 10000")
	}
	if cfg.General.BusSize < 1 {
		errs = append(errs, "general.busSize must be >= 1")
	}

	switch cfg.Alerts.RedactMode {
	case "", "off", "repost", "update", "delete":
	default:
		errs = append(errs, "alerts.redactMode must be one of: off, repost, update, delete")
	}

	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken == "" {
		errs = append(errs, "channels.slack.botToken is required when slack is enabled")
	}
	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.AppToken == "" {
		errs = append(errs, "channels.slack.appToken is required for Socket Mode")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// EnabledChannels lists the names of the enabled platform channels.
func (c *Config) EnabledChannels() []string {
	var names []string
	if c.Channels.Slack.Enabled {
		names = append(names, "slack")
	}
	if c.Channels.Discord.Enabled {
		names = append(names, "discord")
	}
	if c.Channels.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if c.Channels.Console.Enabled {
		names = append(names, "console")
	}
	return names
}
