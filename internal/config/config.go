package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for lurkbot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Discord   DiscordConfig   `json:"discord"`
	Telegram  TelegramConfig  `json:"telegram"`
	Gemini    GeminiConfig    `json:"gemini"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Chat      ChatConfig      `json:"chat"`
	RAG       RAGConfig       `json:"rag"`
	Archive   ArchiveConfig   `json:"archive"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel    string `json:"logLevel"`
	LogFile     string `json:"logFile,omitempty"`
	Transport   string `json:"transport"` // "discord" | "telegram"
	PersonaPath string `json:"personaPath,omitempty"`
}

type DiscordConfig struct {
	Token     string `json:"token"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"` // our own account id, to skip self-authored messages
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

type GeminiConfig struct {
	APIKey         string `json:"apiKey"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embeddingModel"`
}

// SchedulerConfig holds the polling intervals and the shared send floor.
// All values are seconds.
type SchedulerConfig struct {
	DataRetrievalInterval  int `json:"dataRetrievalIntervalSeconds"`
	ChatCheckInterval      int `json:"chatCheckIntervalSeconds"`
	ProactiveInterval      int `json:"proactiveIntervalSeconds"`
	MinTimeBetweenMessages int `json:"minTimeBetweenMessagesSeconds"`
	MinDelay               int `json:"minDelaySeconds"`
	MaxDelay               int `json:"maxDelaySeconds"`
}

type ChatConfig struct {
	ContextWindow      int `json:"contextWindowMessages"`
	FetchLimit         int `json:"fetchLimit"` // page size, platform max 100
	MinContextMessages int `json:"minContextMessages"`
}

type RAGConfig struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MaxResults          int     `json:"maxResults"`
}

type ArchiveConfig struct {
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

// KnowledgeConfig configures the corpus builder (lurkbot knowledge populate).
type KnowledgeConfig struct {
	SourceURLs []string `json:"sourceUrls"`
	ChunkSize  int      `json:"chunkSize"` // characters per chunk
	Render     bool     `json:"render"`    // fetch through headless Chrome for JS-heavy sources
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.lurkbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lurkbot"
	}
	return filepath.Join(home, ".lurkbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

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

	cfg.Archive.DBPath = ExpandPath(cfg.Archive.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.PersonaPath = ExpandPath(cfg.General.PersonaPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
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
			return match // keep original if no env var and no default
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

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.Transport {
	case "discord", "telegram":
		// valid
	default:
		errs = append(errs, "general.transport must be one of: discord, telegram")
	}

	if cfg.Scheduler.DataRetrievalInterval < 1 {
		errs = append(errs, "scheduler.dataRetrievalIntervalSeconds must be >= 1")
	}
	if cfg.Scheduler.ChatCheckInterval < 1 {
		errs = append(errs, "scheduler.chatCheckIntervalSeconds must be >= 1")
	}
	if cfg.Scheduler.ProactiveInterval < 1 {
		errs = append(errs, "scheduler.proactiveIntervalSeconds must be >= 1")
	}
	if cfg.Scheduler.MinTimeBetweenMessages < 1 {
		errs = append(errs, "scheduler.minTimeBetweenMessagesSeconds must be >= 1")
	}
	if cfg.Scheduler.MinDelay < 0 || cfg.Scheduler.MaxDelay < cfg.Scheduler.MinDelay {
		errs = append(errs, "scheduler.minDelaySeconds/maxDelaySeconds must satisfy 0 <= min <= max")
	}

	if cfg.Chat.ContextWindow < 1 {
		errs = append(errs, "chat.contextWindowMessages must be >= 1")
	}
	if cfg.Chat.FetchLimit < 1 || cfg.Chat.FetchLimit > 100 {
		errs = append(errs, "chat.fetchLimit must be between 1 and 100")
	}
	if cfg.Chat.MinContextMessages < 1 {
		errs = append(errs, "chat.minContextMessages must be >= 1")
	}

	if cfg.RAG.ConfidenceThreshold < 0 || cfg.RAG.ConfidenceThreshold > 1 {
		errs = append(errs, "rag.confidenceThreshold must be between 0 and 1")
	}
	if cfg.RAG.MaxResults < 1 || cfg.RAG.MaxResults > 50 {
		errs = append(errs, "rag.maxResults must be between 1 and 50")
	}

	if cfg.Archive.RetentionDays < 1 {
		errs = append(errs, "archive.retentionDays must be >= 1")
	}

	if cfg.Knowledge.ChunkSize < 100 {
		errs = append(errs, "knowledge.chunkSize must be >= 100")
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
