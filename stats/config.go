package stats

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// process level configuration, read from the environment
// command line flags of `statsctl` take precedence
type Config struct {
	Url              string        `env:"STATS_URL" envDefault:"ws://localhost:8080/sock/stats"`
	PingInterval     time.Duration `env:"STATS_PING_INTERVAL" envDefault:"30s"`
	ReconnectTimeout time.Duration `env:"STATS_RECONNECT_TIMEOUT" envDefault:"0s"`
	HandshakeTimeout time.Duration `env:"STATS_HANDSHAKE_TIMEOUT" envDefault:"0s"`
	WriteTimeout     time.Duration `env:"STATS_WRITE_TIMEOUT" envDefault:"5s"`
	ReadTimeout      time.Duration `env:"STATS_READ_TIMEOUT" envDefault:"0s"`
	FreshnessWindow  time.Duration `env:"STATS_FRESHNESS_WINDOW" envDefault:"3s"`
	Top              int           `env:"STATS_TOP" envDefault:"10"`
	MetricsAddr      string        `env:"STATS_METRICS_ADDR"`
}

func ParseConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if config.PingInterval <= 0 {
		return nil, fmt.Errorf("STATS_PING_INTERVAL must be positive (%s)", config.PingInterval)
	}
	return config, nil
}

func (self *Config) TransportSettings() *StatsTransportSettings {
	settings := DefaultStatsTransportSettings()
	settings.PingInterval = self.PingInterval
	settings.ReconnectTimeout = self.ReconnectTimeout
	settings.HandshakeTimeout = self.HandshakeTimeout
	settings.WriteTimeout = self.WriteTimeout
	settings.ReadTimeout = self.ReadTimeout
	return settings
}
