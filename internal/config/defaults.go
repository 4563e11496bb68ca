package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			Transport: "discord",
		},
		Discord: DiscordConfig{
			Token:     "${DISCORD_TOKEN}",
			ChannelID: "${DISCORD_CHANNEL_ID}",
			UserID:    "${DISCORD_USER_ID}",
		},
		Telegram: TelegramConfig{
			Token:  "${TELEGRAM_TOKEN}",
			ChatID: "${TELEGRAM_CHAT_ID}",
		},
		Gemini: GeminiConfig{
			APIKey:         "${GEMINI_API_KEY}",
			Model:          "gemini-2.0-flash",
			EmbeddingModel: "text-embedding-004",
		},
		Scheduler: SchedulerConfig{
			DataRetrievalInterval:  60,
			ChatCheckInterval:      30,
			ProactiveInterval:      1800,
			MinTimeBetweenMessages: 600,
			MinDelay:               120,
			MaxDelay:               420,
		},
		Chat: ChatConfig{
			ContextWindow:      20,
			FetchLimit:         100,
			MinContextMessages: 3,
		},
		RAG: RAGConfig{
			ConfidenceThreshold: 0.78,
			MaxResults:          8,
		},
		Archive: ArchiveConfig{
			DBPath:        "~/.lurkbot/archive.db",
			RetentionDays: 30,
		},
		Knowledge: KnowledgeConfig{
			ChunkSize: 1000,
			Render:    false,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     9120,
			Endpoint: "/metrics",
		},
	}
}
