package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Slack: SlackConfig{
			BotToken:              "${SLACK_BOT_TOKEN}",
			AppToken:              "${SLACK_APP_TOKEN}",
			ConnectTimeoutSeconds: 30,
		},
		Bridge: BridgeConfig{
			BotDisplayName:      "chatbot",
			AddressingMode:      "im",
			DebugReplyOnFailure: false,
			StartupGraceSeconds: 0.5,
			PollIntervalSeconds: 1,
			QueueSize:           256,
		},
		Audit: AuditConfig{
			Enabled:       false,
			DBPath:        "~/.chatbridge/audit.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}
