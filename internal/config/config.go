/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EventBusBackend selects how events are fanned out beyond this process.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	InstanceID  string

	// Playback behaviour
	FadeDuration        time.Duration // full ramp, one direction
	FadeSteps           int           // discrete level steps per ramp
	FadeTargetLevel     int           // 0..100, steady-state output level
	PageLoadGrace       time.Duration // readiness stand-in for the page backend
	DefaultDuration     time.Duration // display duration when content carries none
	EmptyCatalogBackoff time.Duration // retry delay when nothing is playable
	ShutdownTimeout     time.Duration // bound on waiting for the session to reach idle

	// Event distribution
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("VIDAR_ENV", "development"),
		HTTPBind:    getEnv("VIDAR_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("VIDAR_HTTP_PORT", 8000),
		MetricsBind: getEnv("VIDAR_METRICS_BIND", "127.0.0.1:9000"),
		InstanceID:  getEnv("VIDAR_INSTANCE_ID", ""),

		FadeDuration:        time.Duration(getEnvInt("VIDAR_FADE_MS", 500)) * time.Millisecond,
		FadeSteps:           getEnvInt("VIDAR_FADE_STEPS", 20),
		FadeTargetLevel:     getEnvInt("VIDAR_FADE_TARGET_LEVEL", 100),
		PageLoadGrace:       time.Duration(getEnvInt("VIDAR_PAGE_LOAD_GRACE_MS", 1500)) * time.Millisecond,
		DefaultDuration:     time.Duration(getEnvInt("VIDAR_DEFAULT_DURATION_SECONDS", 10)) * time.Second,
		EmptyCatalogBackoff: time.Duration(getEnvInt("VIDAR_EMPTY_BACKOFF_SECONDS", 5)) * time.Second,
		ShutdownTimeout:     time.Duration(getEnvInt("VIDAR_SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,

		EventBus:      EventBusBackend(strings.ToLower(getEnv("VIDAR_EVENTBUS", string(EventBusMemory)))),
		RedisAddr:     getEnv("VIDAR_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("VIDAR_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("VIDAR_REDIS_DB", 0),
		NATSURL:       getEnv("VIDAR_NATS_URL", "nats://localhost:4222"),

		TracingEnabled:    getEnvBool("VIDAR_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("VIDAR_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("VIDAR_TRACING_SAMPLE_RATE", 1.0),
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus backend %q", cfg.EventBus)
	}

	if cfg.FadeSteps <= 0 {
		return nil, fmt.Errorf("VIDAR_FADE_STEPS must be positive, got %d", cfg.FadeSteps)
	}
	if cfg.FadeTargetLevel < 0 || cfg.FadeTargetLevel > 100 {
		return nil, fmt.Errorf("VIDAR_FADE_TARGET_LEVEL must be within 0..100, got %d", cfg.FadeTargetLevel)
	}
	if cfg.EmptyCatalogBackoff <= 0 {
		return nil, fmt.Errorf("VIDAR_EMPTY_BACKOFF_SECONDS must be positive")
	}

	if cfg.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "vidar"
		}
		cfg.InstanceID = host
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
