package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("TYPING_TTL_SECONDS", "3")
	t.Setenv("MESSAGE_RATE_WINDOW", "30s")
	t.Setenv("DISPATCH_WORKERS", "not-a-number")

	cfg := LoadConfig()

	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.TypingTTL != 3*time.Second {
		t.Errorf("TypingTTL = %s, want 3s", cfg.TypingTTL)
	}
	if cfg.MessageRateWindow != 30*time.Second {
		t.Errorf("MessageRateWindow = %s, want 30s", cfg.MessageRateWindow)
	}
	if cfg.DispatchWorkers != 8 {
		t.Errorf("DispatchWorkers = %d, want fallback 8", cfg.DispatchWorkers)
	}
}

func TestFeatureToggles(t *testing.T) {
	cfg := &Config{}
	if cfg.RedisEnabled() || cfg.SMTPEnabled() || cfg.TwilioEnabled() || cfg.S3Enabled() {
		t.Fatal("empty config should disable optional integrations")
	}

	cfg.RedisHost = "localhost"
	cfg.TwilioAccountSID = "AC123"
	cfg.TwilioAuthToken = "secret"
	if !cfg.RedisEnabled() {
		t.Error("RedisEnabled() = false with host set")
	}
	if cfg.TwilioEnabled() {
		t.Error("TwilioEnabled() = true without a from number")
	}
}
