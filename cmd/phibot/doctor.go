package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"phibot/internal/dispatch"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your PHIbot installation",
		Long: `Verifies that PHIbot's configuration, credentials, response catalog and
audit database are correctly set up. Reports pass/fail for each check.
With --connect every enabled channel is also authenticated against its platform.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("PHIbot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (defaults + environment)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Channels
			enabled := cfg.EnabledChannels()
			if len(enabled) == 0 {
				printFail("Channels", "none enabled (set SLACK_BOT_TOKEN or enable one)")
				failed++
			} else {
				printPass("Channels", fmt.Sprint(enabled))
				passed++
			}
			if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotID == "" {
				printWarn("Slack bot id", "not set; the auth.test user id will be used")
				warned++
			}

			if connect {
				for _, ch := range buildChannels(cfg, logger) {
					ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
					id, err := ch.Connect(ctx)
					cancel()
					if err != nil {
						printFail("Connect: "+ch.Name(), err.Error())
						failed++
						continue
					}
					printPass("Connect: "+ch.Name(), "mention token "+id.MentionToken)
					passed++
					ch.Stop()
				}
			}

			// 4. Alerts
			if !cfg.Alerts.Enabled {
				printWarn("Alerts", "disabled; identifiers will not be flagged")
				warned++
			} else {
				printPass("Alerts", "redact mode "+cfg.Alerts.RedactMode)
				passed++
			}

			// 5. Response catalog
			if cfg.Bot.ResponsesFile != "" {
				if _, err := dispatch.LoadCatalog(cfg.Bot.ResponsesFile); err != nil {
					printFail("Responses file", err.Error())
					failed++
				} else {
					printPass("Responses file", cfg.Bot.ResponsesFile)
					passed++
				}
			}

			// 6. Audit database writable
			if cfg.Audit.Enabled {
				if n, err := auditPing(cfg.Audit.DBPath); err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					printPass("Audit database", fmt.Sprintf("%s (%d alerts)", cfg.Audit.DBPath, n))
					passed++
				}
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
				if err := checkPort(addr); err != nil {
					printWarn("Metrics port", fmt.Sprintf("%s may be in use: %v", addr, err))
					warned++
				} else {
					printPass("Metrics port", addr+" available")
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running PHIbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nPHIbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! PHIbot is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "authenticate each enabled channel")
	return cmd
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

