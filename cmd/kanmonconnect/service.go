package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"kanmonconnect/internal/config"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.kanmonconnect.serve"
	systemdUnit  = "kanmonconnect.service"
)

// serviceCmd installs "serve --headless" as a per-user background service.
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the headless control server as a user service (launchd/systemd)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			path, contents, err := serviceFile(runtime.GOOS, execPath, cfgPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				return err
			}
			fmt.Printf("Service installed: %s\n", path)
			if runtime.GOOS == "darwin" {
				fmt.Printf("To start: launchctl load %s\n", path)
			} else {
				fmt.Printf("To start: systemctl --user start %s\n", systemdUnit)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the service file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := serviceFile(runtime.GOOS, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", path)
			return nil
		},
	})

	return cmd
}

// serviceFile returns where the service definition lives on goos and its contents.
func serviceFile(goos, execPath, cfgPath string) (string, string, error) {
	home, _ := os.UserHomeDir()
	r := strings.NewReplacer("{{EXEC}}", execPath, "{{CONFIG}}", cfgPath, "{{LABEL}}", launchdLabel,
		"{{LOG}}", filepath.Join(config.DefaultConfigDir(), "logs", "serve.log"))

	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), r.Replace(launchdTemplate), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), r.Replace(systemdTemplate), nil
	}
	return "", "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--headless</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=Kanmon Connect host control server
After=network.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --headless --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
