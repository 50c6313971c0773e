// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ctlproxy holds the process configuration of the control frontend.
package ctlproxy

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every configuration variable.
const EnvPrefix = "FRONTEND_"

// Config holds the frontend configuration.
type Config struct {
	// Sockets
	UpstreamAddress string `env:"UPSTREAM_ADDRESS" envDefault:"tcp://127.0.0.1:9000"`
	BindAddress     string `env:"BIND_ADDRESS"     envDefault:"tcp://*:9001"`
	Identity        string `env:"IDENTITY"         envDefault:"frontend"`
	WSAddress       string `env:"WS_ADDRESS"`
	WSPath          string `env:"WS_PATH"          envDefault:"/ctl"`

	// SchemaFile is an optional YAML file overlaying the built-in schemas
	SchemaFile string `env:"SCHEMA_FILE"`

	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	// Limits
	ReplyTimeout    time.Duration `env:"REPLY_TIMEOUT"    envDefault:"0s"`
	MaxInflight     int           `env:"MAX_INFLIGHT"     envDefault:"10000"`
	MaxGoroutines   int           `env:"MAX_GOROUTINES"   envDefault:"50000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
}

// NewConfig parses the environment into a Config.
func NewConfig(opts env.Options) (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.UpstreamAddress == "":
		return fmt.Errorf("upstream address is empty")
	case c.BindAddress == "":
		return fmt.Errorf("bind address is empty")
	case c.Identity == "":
		return fmt.Errorf("identity is empty")
	case c.WSAddress != "" && !strings.HasPrefix(c.WSPath, "/"):
		return fmt.Errorf("websocket path %q must start with /", c.WSPath)
	case c.MetricsPort < 0 || c.HealthPort < 0:
		return fmt.Errorf("ports must not be negative")
	case c.ReplyTimeout < 0:
		return fmt.Errorf("reply timeout must not be negative")
	case c.MaxInflight < 0:
		return fmt.Errorf("max inflight must not be negative")
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown timeout must be positive")
	case c.BreakerMaxFailures < 0:
		return fmt.Errorf("breaker max failures must not be negative")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
