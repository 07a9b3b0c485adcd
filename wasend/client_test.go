package wasend

import (
	"context"
	"errors"
	"testing"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Setenv("WHATSAPP_API_BASE_URL", "")

	if _, err := NewClient("secret"); err == nil {
		t.Fatal("expected error without base URL")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("WHATSAPP_API_BASE_URL", "https://wasend.example.com")

	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error with blank api key")
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	t.Setenv("WHATSAPP_API_BASE_URL", "https://wasend.example.com")
	t.Setenv("WHATSAPP_RATE_LIMIT_PER_MIN", "60")

	c, err := NewClient("secret")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Send(ctx, "+5511999990000", "oi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
}
