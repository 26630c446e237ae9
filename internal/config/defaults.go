package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Miner: MinerConfig{
			Host:           "192.168.0.200",
			Port:           4028,
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ShutdownTimeout: 5 * time.Second,
		},
		Health: HealthConfig{
			ProbeInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "cgproxy",
		},
	}
}
