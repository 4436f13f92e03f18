package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:       "info",
			PollIntervalMs: 1000,
			BatchSize:      100,
			BusSize:        256,
		},
		Bot: BotConfig{
			ExampleCommand: "do",
		},
		Alerts: AlertsConfig{
			Enabled:    true,
			RedactMode: "off",
		},
		Channels: ChannelsConfig{
			Slack: SlackConfig{
				Enabled: false,
			},
			Console: ConsoleConfig{
				BotName: "phibot",
			},
		},
		Audit: AuditConfig{
			Enabled: false,
			DBPath:  "~/.phibot/alerts.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     9464,
			Endpoint: "/metrics",
		},
	}
}
