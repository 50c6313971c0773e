// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ctlproxy

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.UpstreamAddress != "tcp://127.0.0.1:9000" {
		t.Errorf("UpstreamAddress = %q", cfg.UpstreamAddress)
	}
	if cfg.BindAddress != "tcp://*:9001" {
		t.Errorf("BindAddress = %q", cfg.BindAddress)
	}
	if cfg.Identity != "frontend" {
		t.Errorf("Identity = %q", cfg.Identity)
	}
	if cfg.ReplyTimeout != 0 {
		t.Errorf("ReplyTimeout = %v, want 0", cfg.ReplyTimeout)
	}
	if cfg.MaxInflight != 10000 {
		t.Errorf("MaxInflight = %d", cfg.MaxInflight)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() defaults = %v", err)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	cfg, err := NewConfig(env.Options{
		Prefix: EnvPrefix,
		Environment: map[string]string{
			"FRONTEND_UPSTREAM_ADDRESS": "tcp://backend:7000",
			"FRONTEND_REPLY_TIMEOUT":    "5s",
			"FRONTEND_WS_ADDRESS":       ":8081",
			"FRONTEND_LOG_LEVEL":        "debug",
		},
	})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.UpstreamAddress != "tcp://backend:7000" {
		t.Errorf("UpstreamAddress = %q", cfg.UpstreamAddress)
	}
	if cfg.ReplyTimeout != 5*time.Second {
		t.Errorf("ReplyTimeout = %v", cfg.ReplyTimeout)
	}
	if cfg.WSAddress != ":8081" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestNewConfigInvalid(t *testing.T) {
	_, err := NewConfig(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"FRONTEND_MAX_INFLIGHT": "many"},
	})
	if err == nil {
		t.Error("NewConfig() with bad integer = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, _ := NewConfig(env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty upstream", func(c *Config) { c.UpstreamAddress = "" }},
		{"empty bind", func(c *Config) { c.BindAddress = "" }},
		{"empty identity", func(c *Config) { c.Identity = "" }},
		{"relative ws path", func(c *Config) { c.WSAddress = ":8081"; c.WSPath = "ctl" }},
		{"negative port", func(c *Config) { c.HealthPort = -1 }},
		{"negative reply timeout", func(c *Config) { c.ReplyTimeout = -time.Second }},
		{"negative inflight", func(c *Config) { c.MaxInflight = -1 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"negative breaker failures", func(c *Config) { c.BreakerMaxFailures = -1 }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
