package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lurkbot/internal/ai"
	"lurkbot/internal/config"
	"lurkbot/internal/domain"
	"lurkbot/internal/engine"
	"lurkbot/internal/knowledge"
	"lurkbot/internal/metrics"
	"lurkbot/internal/store"
	"lurkbot/internal/transport"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "lurkbot",
		Short: "Lurkbot: a channel participant that decides when to speak",
		Long:  "Lurkbot polls a chat channel, archives what it sees, and joins the conversation with human-like pacing, backed by a scraped knowledge base.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.lurkbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(sayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("next: set DISCORD_TOKEN / GEMINI_API_KEY (or edit the config) and run 'lurkbot run'")
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// setupLogger rebuilds the process logger per config: level from
// general.logLevel, optionally teeing to general.logFile.
func setupLogger(cfg *config.Config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.General.LogLevel, err)
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func loadPersona(cfg *config.Config) (*ai.Persona, error) {
	if cfg.General.PersonaPath == "" {
		return ai.DefaultPersona(), nil
	}
	return ai.LoadPersona(config.ExpandPath(cfg.General.PersonaPath))
}

// newTransport builds the configured platform adapter.
func newTransport(cfg *config.Config) (domain.Transport, error) {
	switch cfg.General.Transport {
	case "discord":
		return transport.NewDiscord(cfg.Discord, logger)
	case "telegram":
		return transport.NewTelegram(cfg.Telegram, logger)
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.General.Transport)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the channel engine (poll, archive, respond)",
		Long:  "Starts the main loop: ingest channel messages, watch for replies and mentions, occasionally chime in. Press Ctrl+C to stop.",
		RunE:  runEngine,
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persona, err := loadPersona(cfg)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}

	archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	gen, err := ai.NewGemini(ctx, cfg.Gemini, persona, logger)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	defer gen.Close()

	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	// Preflight: one fetch proves credentials and channel access before the
	// loop starts.
	if _, err := tr.FetchRecent(ctx, 1); err != nil {
		return fmt.Errorf("transport preflight: %w", err)
	}
	if stats, err := archive.Stats(ctx); err == nil {
		metrics.ArchivedMessages.Set(stats.TotalMessages)
		logger.Info("archive opened", "messages", stats.TotalMessages, "authors", stats.UniqueAuthors)
	}
	if kstats, err := archive.KnowledgeStats(ctx); err == nil {
		metrics.KnowledgeChunks.Set(kstats.ChunkCount)
		if kstats.ChunkCount == 0 {
			logger.Warn("knowledge store is empty; run 'lurkbot knowledge populate' to enable retrieval")
		}
	}

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics)
	}

	eng := engine.New(cfg, engine.Deps{
		Transport: tr,
		Generator: gen,
		Archive:   archive,
		Knowledge: archive,
		Logger:    logger,
	})

	logger.Info("lurkbot started", "version", version, "transport", cfg.General.Transport)
	return eng.Run(ctx)
}

// startMetricsServer exposes the Prometheus endpoint and shuts it down with ctx.
func startMetricsServer(ctx context.Context, cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Endpoint, metrics.Collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", srv.Addr, "path", cfg.Endpoint)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say",
		Short: "Compose and send one conversation opener, then exit",
		Long:  "One-shot mode: reads recent archived context, asks the model for an opener in persona, sends it, and exits. No pacing applies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogger(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			persona, err := loadPersona(cfg)
			if err != nil {
				return fmt.Errorf("load persona: %w", err)
			}

			archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			gen, err := ai.NewGemini(ctx, cfg.Gemini, persona, logger)
			if err != nil {
				return fmt.Errorf("gemini client: %w", err)
			}
			defer gen.Close()

			tr, err := newTransport(cfg)
			if err != nil {
				return err
			}
			defer tr.Close()

			convCtx, err := archive.RecentMessages(ctx, cfg.Chat.ContextWindow)
			if err != nil {
				logger.Warn("no archived context available", "error", err)
			}

			text, err := gen.ComposeOpener(ctx, convCtx)
			if err != nil {
				return fmt.Errorf("compose opener: %w", err)
			}
			if text == "" {
				return fmt.Errorf("model produced no opener")
			}

			id, err := tr.Send(ctx, text, "")
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Info("opener sent", "id", id, "text", text)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show archive and knowledge store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true, "transport", cfg.General.Transport)

			archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			ctx := context.Background()
			if stats, err := archive.Stats(ctx); err == nil {
				logger.Info("archive", "path", cfg.Archive.DBPath,
					"messages", stats.TotalMessages, "authors", stats.UniqueAuthors,
					"retention_days", cfg.Archive.RetentionDays)
			}
			if kstats, err := archive.KnowledgeStats(ctx); err == nil {
				logger.Info("knowledge", "chunks", kstats.ChunkCount, "sources", kstats.SourceCount)
			}
			return nil
		},
	}
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the scraped knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "populate",
		Short: "Fetch, chunk, and embed the configured source pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogger(cfg); err != nil {
				return err
			}
			if len(cfg.Knowledge.SourceURLs) == 0 {
				return fmt.Errorf("no source urls configured (knowledge.sourceUrls)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			persona, err := loadPersona(cfg)
			if err != nil {
				return fmt.Errorf("load persona: %w", err)
			}

			archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			gen, err := ai.NewGemini(ctx, cfg.Gemini, persona, logger)
			if err != nil {
				return fmt.Errorf("gemini client: %w", err)
			}
			defer gen.Close()

			var fetcher knowledge.Fetcher = knowledge.NewHTTPFetcher()
			if cfg.Knowledge.Render {
				fetcher = knowledge.NewRenderedFetcher(logger)
			}

			builder := knowledge.NewBuilder(knowledge.BuilderConfig{
				Generator: gen,
				Store:     archive,
				Fetcher:   fetcher,
				ChunkSize: cfg.Knowledge.ChunkSize,
				Logger:    logger,
			})

			stored, err := builder.Populate(ctx, cfg.Knowledge.SourceURLs)
			if err != nil {
				return err
			}
			logger.Info("knowledge base populated",
				"sources", len(cfg.Knowledge.SourceURLs), "new_chunks", stored)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show knowledge store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			kstats, err := archive.KnowledgeStats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("chunks:  %d\nsources: %d\n", kstats.ChunkCount, kstats.SourceCount)
			return nil
		},
	})

	return cmd
}

func pruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived messages older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Archive.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("retention disabled; pass --days to prune anyway")
			}

			archive, err := store.NewSQLiteStore(cfg.Archive.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			cutoff := time.Now().AddDate(0, 0, -days)
			deleted, err := archive.PruneOlderThan(context.Background(), cutoff)
			if err != nil {
				return err
			}
			logger.Info("prune complete", "deleted", deleted, "cutoff", cutoff.Format(time.DateOnly))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default: archive.retentionDays)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. scheduler.minTimeBetweenMessagesSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
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
		Short: "Set a config value (e.g. rag.confidenceThreshold 0.8)",
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
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
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
