package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	NATSURL           string        `mapstructure:"nats_url" yaml:"nats_url"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	BackfillLimit     int           `mapstructure:"backfill_limit" yaml:"backfill_limit"`
	SessionBuffer     int           `mapstructure:"session_buffer" yaml:"session_buffer"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
// An empty NATSURL selects the in-process group registry.
func Default() Config {
	return Config{
		Addr:              ":8080",
		DatabasePath:      "dialogd.db",
		NATSURL:           "",
		JWTSecret:         "change-me",
		JWTIssuer:         "dialogd",
		JWTAudience:       "dialogd",
		LogLevel:          "info",
		BackfillLimit:     50,
		SessionBuffer:     32,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}
