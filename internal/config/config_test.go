package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 8000 {
		t.Fatalf("default http port = %d, want 8000", cfg.HTTPPort)
	}
	if cfg.EventBus != EventBusMemory {
		t.Fatalf("default event bus = %q, want memory", cfg.EventBus)
	}
	if cfg.FadeDuration != 500*time.Millisecond {
		t.Fatalf("default fade duration = %v", cfg.FadeDuration)
	}
	if cfg.InstanceID == "" {
		t.Fatal("expected instance id fallback to hostname")
	}
}

func TestLoadReadsPlaybackEnvKeys(t *testing.T) {
	t.Setenv("VIDAR_FADE_MS", "250")
	t.Setenv("VIDAR_FADE_STEPS", "10")
	t.Setenv("VIDAR_DEFAULT_DURATION_SECONDS", "15")
	t.Setenv("VIDAR_EVENTBUS", "redis")
	t.Setenv("VIDAR_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FadeDuration != 250*time.Millisecond {
		t.Fatalf("fade duration = %v", cfg.FadeDuration)
	}
	if cfg.FadeSteps != 10 {
		t.Fatalf("fade steps = %d", cfg.FadeSteps)
	}
	if cfg.DefaultDuration != 15*time.Second {
		t.Fatalf("default duration = %v", cfg.DefaultDuration)
	}
	if cfg.EventBus != EventBusRedis {
		t.Fatalf("event bus = %q", cfg.EventBus)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("VIDAR_EVENTBUS", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown event bus backend to fail")
	}
	t.Setenv("VIDAR_EVENTBUS", "memory")

	t.Setenv("VIDAR_FADE_STEPS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected zero fade steps to fail")
	}
	t.Setenv("VIDAR_FADE_STEPS", "20")

	t.Setenv("VIDAR_FADE_TARGET_LEVEL", "150")
	if _, err := Load(); err == nil {
		t.Fatal("expected out of range target level to fail")
	}
}
