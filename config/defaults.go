package config

import "time"

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			HTTPPort:        8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
			EnableMetrics:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Batch: BatchConfig{
			Concurrency: 3,
		},
	}
}
