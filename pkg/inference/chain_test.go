package inference

import (
	"context"
	"errors"
	"testing"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := WithError(errors.New("provider 1 failed"))
	working := WithResponse("From working provider")

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	resp, err := chain.Chat(ctx, &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})
	if err != nil {
		t.Fatalf("Chain chat failed: %v", err)
	}
	if resp.Message.Content != "From working provider" {
		t.Errorf("Unexpected response: %s", resp.Message.Content)
	}
}

func TestChainAllFail(t *testing.T) {
	p1 := WithError(errors.New("provider 1 failed"))
	p2 := WithError(&APIError{StatusCode: 429, Message: "quota", Provider: "p2"})

	chain, _ := NewChain(p1, p2)
	defer chain.Close()

	_, err := chain.Chat(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})
	if err == nil {
		t.Fatal("Expected error when all providers fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !IsQuotaExceeded(err) {
		t.Error("quota error should be visible through the chain")
	}
}

func TestChainQuotaBehindServerError(t *testing.T) {
	p1 := WithError(&APIError{StatusCode: 503, Message: "unavailable", Provider: "p1"})
	p2 := WithError(&APIError{StatusCode: 429, Code: "RESOURCE_EXHAUSTED", Message: "Quota exceeded", Provider: "p2"})

	chain, _ := NewChain(p1, p2)
	defer chain.Close()

	_, err := chain.Chat(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})
	if !IsQuotaExceeded(err) {
		t.Errorf("IsQuotaExceeded(%v) = false, want true", err)
	}
}

func TestChainSkipsProvidersWithoutStructuredOutput(t *testing.T) {
	plain := WithResponse("plain")
	plain.CapabilitiesOverride = &Capabilities{Chat: true}
	structured := WithResponse(`{"entities":[]}`)

	chain, _ := NewChain(plain, structured)
	defer chain.Close()

	resp, err := chain.Chat(context.Background(), &ChatRequest{
		Messages:         []Message{NewUserMessage("test")},
		ResponseMIMEType: "application/json",
		ResponseSchema:   Schema{"type": "OBJECT"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != `{"entities":[]}` {
		t.Errorf("Unexpected response: %s", resp.Message.Content)
	}
	if plain.CallCount("Chat") != 0 {
		t.Error("provider without structured output should be skipped")
	}
}

func TestChainCapabilities(t *testing.T) {
	chatOnly := NewMock()
	chatOnly.CapabilitiesOverride = &Capabilities{Chat: true}

	structured := NewMock()
	structured.CapabilitiesOverride = &Capabilities{StructuredOutput: true}

	chain, _ := NewChain(chatOnly, structured)
	defer chain.Close()

	caps := chain.Capabilities()
	if !caps.Chat || !caps.StructuredOutput {
		t.Errorf("combined capabilities = %+v", caps)
	}
}

func TestChainHealth(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		providers []Provider
		wantErr   bool
	}{
		{"one healthy", []Provider{NewMock(), WithError(errors.New("unhealthy"))}, false},
		{"all unhealthy", []Provider{WithError(errors.New("u1")), WithError(errors.New("u2"))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, _ := NewChain(tt.providers...)
			defer chain.Close()
			if err := chain.Health(ctx); (err != nil) != tt.wantErr {
				t.Errorf("Health() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain()
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestChainProviders(t *testing.T) {
	chain, _ := NewChain(NewMock(), NewMock())
	defer chain.Close()

	if got := len(chain.Providers()); got != 2 {
		t.Errorf("Expected 2 providers, got %d", got)
	}
}
