package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"lurkbot/internal/ai"
	"lurkbot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your lurkbot installation",
		Long: `Verifies that lurkbot's configuration, credentials, database, and
persona are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("lurkbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'lurkbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Transport credentials resolved (unexpanded ${VAR} means the
			// env var is not set)
			switch cfg.General.Transport {
			case "discord":
				checkCredential("Discord token", cfg.Discord.Token, &passed, &failed)
				checkCredential("Discord channel", cfg.Discord.ChannelID, &passed, &failed)
				if cfg.Discord.UserID == "" {
					printWarn("Discord user id", "not set; self-authored messages will not be filtered")
					warned++
				} else {
					printPass("Discord user id", "configured")
					passed++
				}
			case "telegram":
				checkCredential("Telegram token", cfg.Telegram.Token, &passed, &failed)
				checkCredential("Telegram chat", cfg.Telegram.ChatID, &passed, &failed)
			}

			// 4. Gemini key
			checkCredential("Gemini API key", cfg.Gemini.APIKey, &passed, &failed)

			// 5. Database writable
			if err := checkDatabase(cfg.Archive.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Archive.DBPath)
				passed++
			}

			// 6. Persona file loads
			if cfg.General.PersonaPath != "" {
				if _, err := ai.LoadPersona(config.ExpandPath(cfg.General.PersonaPath)); err != nil {
					printFail("Persona", err.Error())
					failed++
				} else {
					printPass("Persona", cfg.General.PersonaPath)
					passed++
				}
			} else {
				printPass("Persona", "built-in default")
				passed++
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
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

			// 9. Knowledge sources configured
			if len(cfg.Knowledge.SourceURLs) == 0 {
				printWarn("Knowledge sources", "none configured; retrieval will be skipped")
				warned++
			} else {
				printPass("Knowledge sources", fmt.Sprintf("%d configured", len(cfg.Knowledge.SourceURLs)))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running lurkbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nlurkbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! lurkbot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkCredential fails when a value is empty or still holds an unexpanded
// ${VAR} placeholder.
func checkCredential(name, value string, passed, failed *int) {
	switch {
	case value == "":
		printFail(name, "not configured")
		*failed++
	case len(value) > 1 && value[0] == '$':
		printFail(name, fmt.Sprintf("unresolved placeholder %s (env var not set?)", value))
		*failed++
	default:
		printPass(name, "configured")
		*passed++
	}
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

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
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
