package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNormalizeRecipient(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain digits", "9613123456", "9613123456"},
		{"international prefix", "+961 3 123456", "9613123456"},
		{"double-zero prefix", "00961-3-123456", "9613123456"},
		{"leading zero local", "03123456", "3123456"},
		{"punctuation", "(961) 3.123.456", "9613123456"},
		{"letters stripped", "961abc3123456", "9613123456"},
		{"all zeros", "0000", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRecipient(tt.raw); got != tt.want {
				t.Errorf("NormalizeRecipient(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLogGateway_AlwaysReadyAndSends(t *testing.T) {
	g := NewLogGateway(zap.NewNop())
	if !g.Ready() {
		t.Fatal("log gateway should always be ready")
	}
	if err := g.Send(context.Background(), "9613123456", "hello", ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWebhookGateway_Send(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewWebhookGateway(WebhookConfig{
		SendURL:   srv.URL + "/send",
		HealthURL: srv.URL + "/health",
	}, zap.NewNop())

	if !g.Ready() {
		t.Fatal("gateway should be ready while bridge is up")
	}
	if err := g.Send(context.Background(), "9613123456", "hello {name}", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/send" {
		t.Errorf("send hit %q, want /send", gotPath)
	}
}

func TestWebhookGateway_SendFailsOnBridgeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "session lost", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewWebhookGateway(WebhookConfig{
		SendURL:   srv.URL + "/send",
		HealthURL: srv.URL + "/health",
	}, zap.NewNop())

	if err := g.Send(context.Background(), "961", "hi", ""); err == nil {
		t.Error("expected error on non-2xx bridge response")
	}
}

func TestWebhookGateway_NotReadyFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewWebhookGateway(WebhookConfig{
		SendURL:   srv.URL + "/send",
		HealthURL: srv.URL + "/health",
	}, zap.NewNop())

	if g.Ready() {
		t.Fatal("gateway should not be ready")
	}
	err := g.Send(context.Background(), "961", "hi", "")
	if err != ErrNotReady {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}
