package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"phibot/internal/config"

	"github.com/spf13/cobra"
)

var knownPlatforms = []struct {
	ID   string
	Desc string
}{
	{"slack", "Slack workspace (Socket Mode app)"},
	{"discord", "Discord bot"},
	{"telegram", "Telegram bot"},
	{"console", "Local console, no chat platform"},
}

var redactModes = []string{"off", "repost", "update", "delete"}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: platform → credentials → alerts → save config",
		Long:  "Guides you through choosing a chat platform, entering its credentials and picking how alerts are handled. Writes the config to the path used by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runSetup(cmd.InOrStdin(), cmd.OutOrStdout(), cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig saved to %s\n", cfgPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Next: run 'phibot doctor --connect', then 'phibot run'.")
			return nil
		},
	}
}

// runSetup asks the setup questions on in/out and applies the answers to cfg.
func runSetup(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}
	choose := func(n int, def string) (int, error) {
		choice, err := prompt(def)
		if err != nil {
			return 0, err
		}
		var idx int
		if c, _ := fmt.Sscanf(choice, "%d", &idx); c != 1 || idx < 1 || idx > n {
			fmt.Sscanf(def, "%d", &idx)
		}
		return idx, nil
	}

	// Step 1: Platform
	fmt.Fprintln(out, "\n--- Step 1: Platform ---")
	for i, p := range knownPlatforms {
		fmt.Fprintf(out, "  %d) %s — %s\n", i+1, p.ID, p.Desc)
	}
	fmt.Fprintf(out, "Choose platform (1–%d)", len(knownPlatforms))
	idx, err := choose(len(knownPlatforms), "1")
	if err != nil {
		return err
	}
	platform := knownPlatforms[idx-1].ID

	// Step 2: Credentials
	fmt.Fprintln(out, "\n--- Step 2: Credentials ---")
	cfg.Channels.Slack.Enabled = platform == "slack"
	cfg.Channels.Discord.Enabled = platform == "discord"
	cfg.Channels.Telegram.Enabled = platform == "telegram"
	cfg.Channels.Console.Enabled = platform == "console"

	switch platform {
	case "slack":
		fmt.Fprint(out, "Bot token (xoxb-…) or env var")
		if cfg.Channels.Slack.BotToken, err = prompt(orDefault(cfg.Channels.Slack.BotToken, "${SLACK_BOT_TOKEN}")); err != nil {
			return err
		}
		fmt.Fprint(out, "App-level token (xapp-…) or env var")
		if cfg.Channels.Slack.AppToken, err = prompt(orDefault(cfg.Channels.Slack.AppToken, "${SLACK_APP_TOKEN}")); err != nil {
			return err
		}
		fmt.Fprint(out, "Bot user id (blank to look it up at startup)")
		if cfg.Channels.Slack.BotID, err = prompt(cfg.Channels.Slack.BotID); err != nil {
			return err
		}
	case "discord":
		fmt.Fprint(out, "Bot token or env var")
		if cfg.Channels.Discord.Token, err = prompt(orDefault(cfg.Channels.Discord.Token, "${DISCORD_BOT_TOKEN}")); err != nil {
			return err
		}
	case "telegram":
		fmt.Fprint(out, "Bot token (from @BotFather) or env var")
		if cfg.Channels.Telegram.Token, err = prompt(orDefault(cfg.Channels.Telegram.Token, "${TELEGRAM_BOT_TOKEN}")); err != nil {
			return err
		}
	case "console":
		fmt.Fprint(out, "Bot name used for mentions")
		if cfg.Channels.Console.BotName, err = prompt(orDefault(cfg.Channels.Console.BotName, "phibot")); err != nil {
			return err
		}
	}

	// Step 3: Alerts
	fmt.Fprintln(out, "\n--- Step 3: Alerts ---")
	for i, m := range redactModes {
		fmt.Fprintf(out, "  %d) %s\n", i+1, m)
	}
	fmt.Fprint(out, "What to do with a message that contains an identifier, besides warning")
	def := "1"
	for i, m := range redactModes {
		if m == cfg.Alerts.RedactMode {
			def = fmt.Sprint(i + 1)
		}
	}
	idx, err = choose(len(redactModes), def)
	if err != nil {
		return err
	}
	cfg.Alerts.RedactMode = redactModes[idx-1]

	fmt.Fprint(out, "Keep an audit trail of alerts in SQLite? (y/n)")
	yn, err := prompt(boolDefault(cfg.Audit.Enabled))
	if err != nil {
		return err
	}
	cfg.Audit.Enabled = strings.HasPrefix(strings.ToLower(yn), "y")

	return config.Validate(cfg)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func boolDefault(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
