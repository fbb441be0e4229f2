package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DailyLimit != 80 {
		t.Errorf("expected default daily limit 80, got %d", cfg.DailyLimit)
	}
	if cfg.MinMessageDelay != 8*time.Second || cfg.MaxMessageDelay != 25*time.Second {
		t.Errorf("unexpected default delays: %v..%v", cfg.MinMessageDelay, cfg.MaxMessageDelay)
	}
	if cfg.MinBatchSize != 5 || cfg.MaxBatchSize != 7 {
		t.Errorf("unexpected default batch sizes: %d..%d", cfg.MinBatchSize, cfg.MaxBatchSize)
	}
	if cfg.GatewayMode != "log" {
		t.Errorf("expected default gateway mode log, got %q", cfg.GatewayMode)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DAILY_LIMIT", "40")
	t.Setenv("MIN_MESSAGE_DELAY_SECONDS", "2")
	t.Setenv("MAX_MESSAGE_DELAY_SECONDS", "4")
	t.Setenv("GATEWAY_MODE", "webhook")
	t.Setenv("GATEWAY_SEND_URL", "http://localhost:3000/send")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DailyLimit != 40 {
		t.Errorf("expected daily limit 40, got %d", cfg.DailyLimit)
	}
	if cfg.MinMessageDelay != 2*time.Second || cfg.MaxMessageDelay != 4*time.Second {
		t.Errorf("unexpected delays: %v..%v", cfg.MinMessageDelay, cfg.MaxMessageDelay)
	}
	if cfg.GatewayMode != "webhook" || cfg.GatewaySendURL != "http://localhost:3000/send" {
		t.Errorf("unexpected gateway config: %q %q", cfg.GatewayMode, cfg.GatewaySendURL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "not-a-number"},
		{"zero limit", "DAILY_LIMIT", "0"},
		{"bad gateway mode", "GATEWAY_MODE", "carrier-pigeon"},
		{"negative delay", "MIN_MESSAGE_DELAY_SECONDS", "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_WebhookRequiresSendURL(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "webhook")

	if _, err := Load(); err == nil {
		t.Error("expected error when webhook mode has no send URL")
	}
}

func TestLoad_InvertedRanges(t *testing.T) {
	t.Setenv("MIN_MESSAGE_DELAY_SECONDS", "10")
	t.Setenv("MAX_MESSAGE_DELAY_SECONDS", "5")

	if _, err := Load(); err == nil {
		t.Error("expected error when max delay is below min delay")
	}
}
