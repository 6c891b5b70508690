package inference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

const (
	providerVertex = "vertex"

	vertexScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Vertex implements the Provider interface for Gemini models served by Vertex AI.
// Requests are authorized with service-account credentials, an explicit token
// source, or Application Default Credentials, in that order of precedence.
type Vertex struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewVertex creates a Vertex AI provider.
func NewVertex(ctx context.Context, opts ...Option) (*Vertex, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.ProjectID == "" {
		return nil, WrapError(providerVertex, ErrNoProject)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", cfg.Location)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		var err error
		hc, err = vertexHTTPClient(ctx, cfg)
		if err != nil {
			return nil, WrapError(providerVertex, err)
		}
		hc.Timeout = cfg.Timeout
	}

	return &Vertex{
		config: cfg,
		http:   hc,
		logger: cfg.Logger.With("component", "inference.vertex", "project", cfg.ProjectID, "location", cfg.Location),
	}, nil
}

// vertexHTTPClient builds an authorized client from the configured credentials.
func vertexHTTPClient(ctx context.Context, cfg *Config) (*http.Client, error) {
	opts := []option.ClientOption{option.WithScopes(vertexScope)}

	switch {
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, vertexScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		if cfg.ProjectID == "" {
			cfg.ProjectID = creds.ProjectID
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	hc, _, err := htransport.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return hc, nil
}

// Chat generates a completion using a Vertex-hosted Gemini model.
func (v *Vertex) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = v.config.Model
	}
	endpoint := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		v.config.BaseURL, v.config.ProjectID, v.config.Location, model)

	resp, err := generateContent(ctx, v.http, endpoint, providerVertex, model, v.config, req)
	if err != nil {
		v.logger.Debug("generate failed", "model", model, "error", err)
		return nil, err
	}
	return resp, nil
}

// Capabilities returns Vertex's capabilities.
func (v *Vertex) Capabilities() Capabilities {
	return Capabilities{Chat: true, StructuredOutput: true}
}

// Health checks API connectivity and credentials.
func (v *Vertex) Health(ctx context.Context) error {
	_, err := v.Chat(ctx, &ChatRequest{
		Messages:  []Message{NewUserMessage("ping")},
		MaxTokens: 1,
	})
	return err
}

// Close releases resources.
func (v *Vertex) Close() error {
	v.http.CloseIdleConnections()
	return nil
}

// Verify Vertex implements Provider at compile time.
var _ Provider = (*Vertex)(nil)
