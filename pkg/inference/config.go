package inference

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (Gemini)

	// Vertex AI
	ProjectID       string             // Google Cloud project
	Location        string             // Vertex region, e.g. "us-central1"
	CredentialsFile string             // Service account JSON
	TokenSource     oauth2.TokenSource // Overrides CredentialsFile

	// HTTPClient replaces the client built from the settings above.
	HTTPClient *http.Client

	// Models
	Model string

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeouts
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithProject sets the Google Cloud project and Vertex location.
func WithProject(projectID, location string) Option {
	return func(c *Config) {
		c.ProjectID = projectID
		if location != "" {
			c.Location = location
		}
	}
}

// WithCredentialsFile sets the service account JSON used by Vertex.
func WithCredentialsFile(path string) Option {
	return func(c *Config) { c.CredentialsFile = path }
}

// WithTokenSource sets the OAuth2 token source used by Vertex.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithHTTPClient sets the HTTP client, bypassing credential setup.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults shared by the Google providers.
func DefaultConfig() *Config {
	return &Config{
		Model:       "gemini-1.5-flash",
		Location:    "us-central1",
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
