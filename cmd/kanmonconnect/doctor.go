package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"kanmonconnect/internal/config"
	"kanmonconnect/internal/connect"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the host setup",
		Long: `Verifies the configuration, the Chrome install, the journal database and
the control server port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("kanmonconnect doctor v%s\n", version)
			fmt.Printf("----------------------------------------\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (defaults apply)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := loadConfig(cmd)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Connect token and endpoint
			base, _ := connect.BaseURL(connect.Environment(cfg.Connect.Environment))
			if cfg.Connect.ConnectToken == "" {
				printWarn("Connect token", "not set; pass --token or set KANMON_CONNECT_TOKEN")
				warned++
			} else {
				printPass("Connect token", "configured")
				passed++
			}
			printPass("Endpoint", base)
			passed++

			// 4. Chrome binary
			if path, ok := findChrome(); ok {
				printPass("Chrome", path)
				passed++
			} else {
				printFail("Chrome", "no Chrome or Chromium executable found")
				failed++
			}

			// 5. Downloads directory
			if err := os.MkdirAll(cfg.Browser.DownloadsDir, 0o755); err != nil {
				printWarn("Downloads dir", err.Error())
				warned++
			} else {
				printPass("Downloads dir", cfg.Browser.DownloadsDir)
				passed++
			}

			// 6. Journal database writable
			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", cfg.Journal.DBPath)
					passed++
				}
			}

			// 7. Control server port
			if cfg.Server.Enabled {
				if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
					printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
					warned++
				} else {
					printPass("Server port", fmt.Sprintf("%s:%d available", cfg.Server.Host, cfg.Server.Port))
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

			fmt.Printf("\n----------------------------------------\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// findChrome looks for the executables chromedp's allocator tries.
func findChrome() (string, bool) {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{"chrome", "chrome.exe"}
	default:
		candidates = []string{
			"headless_shell", "headless-shell", "chromium", "chromium-browser",
			"google-chrome", "google-chrome-stable", "google-chrome-beta",
		}
	}
	for _, c := range candidates {
		if filepath.IsAbs(c) {
			if _, err := os.Stat(c); err == nil {
				return c, true
			}
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, true
		}
	}
	return "", false
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
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
