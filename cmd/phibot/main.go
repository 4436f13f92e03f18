package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"phibot/internal/config"
	"phibot/internal/scanner"

	"github.com/spf13/cobra"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "phibot",
		Short: "PHIbot: flags patient identifiers posted in chat",
		Long: "PHIbot watches chat channels for 8-digit patient identifiers (MRNs, accession numbers),\n" +
			"warns the author when one is posted, and answers a few commands when mentioned.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.phibot/config.json)")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(configCmd())
	root.AddCommand(alertsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the PHIbot background service",
	}
	daemon.AddCommand(installDaemonCmd())
	daemon.AddCommand(uninstallDaemonCmd())
	root.AddCommand(daemon)

	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file. When the file does not exist the
// defaults are used, so a bot driven only by SLACK_BOT_TOKEN and friends
// still starts. Environment credentials fill whatever the file left empty.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Debug("config file not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
	}
	config.ApplyEnv(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the general config section. The
// returned closer releases the log file, if any.
func newLogger(gc config.GeneralConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToLower(gc.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if gc.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(gc.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(gc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Next: run 'phibot setup' to add credentials, or set SLACK_BOT_TOKEN and SLACK_APP_TOKEN.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [text...]",
		Short: "Check text for patient identifiers (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				printScan(cmd.OutOrStdout(), strings.Join(args, " "))
				return nil
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				printScan(cmd.OutOrStdout(), sc.Text())
			}
			return sc.Err()
		},
	}
}

func printScan(w io.Writer, text string) {
	redacted, found := scanner.Scan(text)
	if !found {
		fmt.Fprintln(w, "clean")
		return
	}
	fmt.Fprintf(w, "%d identifier(s): %s\n", len(scanner.Tokens(text)), redacted)
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. alerts.redactMode)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. alerts.redactMode repost)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every config key and its value (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			printSettings(os.Stdout, config.Sanitize(cfg))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// printSettings writes one "path = value" line per config key.
func printSettings(w io.Writer, cfg *config.Config) {
	for _, st := range config.Settings(cfg) {
		val, _ := json.Marshal(st.Value)
		fmt.Fprintf(w, "%s = %s\n", st.Path, val)
	}
}
