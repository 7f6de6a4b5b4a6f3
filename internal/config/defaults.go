package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Connect: ConnectConfig{
			Environment: "sandbox",
		},
		Browser: BrowserConfig{
			Headless:        false,
			ProfileDir:      "~/.kanmonconnect/chrome-profile",
			UserAgentPrefix: "KanmonWebView",
			DownloadsDir:    "~/Downloads",
			CameraPolicy:    "deny",
		},
		Journal: JournalConfig{
			Enabled:       true,
			DBPath:        "~/.kanmonconnect/journal.db",
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8787,
		},
	}
}
