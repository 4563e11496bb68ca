package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lurkbot/internal/config"

	"github.com/spf13/cobra"
)

var knownTransports = []struct {
	ID   string
	Desc string
}{
	{"discord", "Poll a Discord channel over the REST API"},
	{"telegram", "Observe a Telegram group via a bot account"},
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: transport → credentials → model → save config",
		Long:  "Guides you through choosing a chat platform, entering credentials (or env var placeholders), and the Gemini model. Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Transport
	fmt.Println("\n--- Step 1: Chat platform ---")
	for i, t := range knownTransports {
		fmt.Fprintf(os.Stdout, "  %d) %s — %s\n", i+1, t.ID, t.Desc)
	}
	fmt.Fprint(os.Stdout, "Choose platform (1–2)")
	defNum := "1"
	for i, t := range knownTransports {
		if t.ID == cfg.General.Transport {
			defNum = fmt.Sprint(i + 1)
			break
		}
	}
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(knownTransports) {
		idx = 1
	}
	cfg.General.Transport = knownTransports[idx-1].ID
	fmt.Fprintf(os.Stdout, "  Using platform: %s\n", cfg.General.Transport)

	// Step 2: Credentials
	fmt.Println("\n--- Step 2: Credentials ---")
	fmt.Println("Paste values directly or keep env var placeholders like ${DISCORD_TOKEN}.")
	switch cfg.General.Transport {
	case "discord":
		fmt.Fprint(os.Stdout, "Discord token")
		if v, err := prompt(cfg.Discord.Token); err != nil {
			return err
		} else if v != "" {
			cfg.Discord.Token = v
		}
		fmt.Fprint(os.Stdout, "Channel id to watch")
		if v, err := prompt(cfg.Discord.ChannelID); err != nil {
			return err
		} else if v != "" {
			cfg.Discord.ChannelID = v
		}
		fmt.Fprint(os.Stdout, "Our own user id (to skip self-authored messages)")
		if v, err := prompt(cfg.Discord.UserID); err != nil {
			return err
		} else if v != "" {
			cfg.Discord.UserID = v
		}
	case "telegram":
		fmt.Fprint(os.Stdout, "Telegram bot token (from @BotFather)")
		if v, err := prompt(cfg.Telegram.Token); err != nil {
			return err
		} else if v != "" {
			cfg.Telegram.Token = v
		}
		fmt.Fprint(os.Stdout, "Chat id to watch")
		if v, err := prompt(cfg.Telegram.ChatID); err != nil {
			return err
		} else if v != "" {
			cfg.Telegram.ChatID = v
		}
	}

	// Step 3: Model
	fmt.Println("\n--- Step 3: Gemini ---")
	fmt.Fprint(os.Stdout, "API key")
	if v, err := prompt(cfg.Gemini.APIKey); err != nil {
		return err
	} else if v != "" {
		cfg.Gemini.APIKey = v
	}
	fmt.Fprint(os.Stdout, "Generation model")
	if v, err := prompt(cfg.Gemini.Model); err != nil {
		return err
	} else if v != "" {
		cfg.Gemini.Model = v
	}

	// Save
	cfgDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'lurkbot doctor' to verify, then 'lurkbot run'.")
	return nil
}
