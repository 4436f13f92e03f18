package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

// serviceUnit is a user-level service definition for one init system.
type serviceUnit struct {
	Path  string   // where the unit file goes
	Body  string   // rendered unit file
	Hints []string // commands to print after install
}

// serviceVars feed the unit templates.
type serviceVars struct {
	Exec    string
	Config  string
	Label   string
	LogDir  string
	EnvFile string // KEY=value credentials, read by systemd only
}

const launchdLabel = "com.phibot.run"

// unitFor builds the service unit for goos without touching the filesystem.
func unitFor(goos, home, execPath, cfgPath string) (serviceUnit, error) {
	vars := serviceVars{
		Exec:    execPath,
		Config:  cfgPath,
		Label:   launchdLabel,
		LogDir:  filepath.Join(home, ".phibot", "logs"),
		EnvFile: filepath.Join(home, ".phibot", "phibot.env"),
	}

	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		body, err := renderUnit(launchdTemplate, vars)
		return serviceUnit{
			Path: path,
			Body: body,
			Hints: []string{
				"launchctl load " + path,
				"launchctl unload " + path,
			},
		}, err
	case "linux":
		body, err := renderUnit(systemdTemplate, vars)
		return serviceUnit{
			Path: filepath.Join(home, ".config", "systemd", "user", "phibot.service"),
			Body: body,
			Hints: []string{
				"systemctl --user daemon-reload",
				"systemctl --user enable --now phibot",
				"journalctl --user -u phibot -f",
			},
		}, err
	default:
		return serviceUnit{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderUnit(tmpl string, vars serviceVars) (string, error) {
	t, err := template.New("unit").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func installDaemonCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install 'phibot run' as a user service (launchd/systemd)",
		Long: "Writes a service file that starts 'phibot run' on login and restarts it on failure.\n" +
			"On Linux, credentials such as SLACK_BOT_TOKEN can be kept in ~/.phibot/phibot.env.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := unitFor(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", unit.Path, unit.Body)
				return nil
			}

			if err := os.MkdirAll(filepath.Join(home, ".phibot", "logs"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(unit.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(unit.Path, []byte(unit.Body), 0o644); err != nil {
				return fmt.Errorf("write service file: %w", err)
			}
			logger.Info("service installed", "path", unit.Path)
			for _, h := range unit.Hints {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", h)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the service file instead of writing it")
	return cmd
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the PHIbot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := unitFor(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(unit.Path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			logger.Info("service removed", "path", unit.Path)
			return nil
		},
	}
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>run</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/phibot.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/phibot-error.log</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=PHIbot patient identifier watcher
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
EnvironmentFile=-{{.EnvFile}}
ExecStart={{.Exec}} run --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
