package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/teslashibe/go-mantra/pkg/inference"
	"github.com/teslashibe/go-mantra/pkg/ratelimit"
)

// ErrMalformedReply is returned when the service reply cannot be parsed into entities.
var ErrMalformedReply = errors.New("entity: malformed reply")

const promptTemplate = `Extract entities from the following Jakarta public transportation query:

"%s"

Identify entities including:
- stations (MRT/KRL)
- POIs (landmarks, malls)
- terminals
- routes
- transport types
- obstacles
- facilities

Return structured JSON with entity mentions and their positions in the text.`

// responseSchema constrains the service reply to {entities: [...]}.
var responseSchema = inference.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"type":  map[string]any{"type": "STRING", "enum": typeNames()},
					"value": map[string]any{"type": "STRING"},
					"start": map[string]any{"type": "INTEGER"},
					"end":   map[string]any{"type": "INTEGER"},
				},
				"required": []string{"type", "value", "start", "end"},
			},
		},
	},
	"required": []string{"entities"},
}

func typeNames() []string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return names
}

// Config holds extractor configuration.
type Config struct {
	Provider    inference.Provider // nil disables the generative path
	Limiter     *ratelimit.Limiter // nil calls the provider directly
	Cache       Cache
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Option is a functional option for configuring the extractor.
type Option func(*Config)

// WithProvider sets the generative text service.
func WithProvider(p inference.Provider) Option {
	return func(c *Config) { c.Provider = p }
}

// WithLimiter routes every service call through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Config) { c.Limiter = l }
}

// WithCache sets the result cache.
func WithCache(cache Cache) Option {
	return func(c *Config) { c.Cache = cache }
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() *Config {
	return &Config{
		Temperature: 0.1,
		MaxTokens:   1024,
		Logger:      slog.Default(),
	}
}

// Extractor turns utterances into entities.
type Extractor struct {
	cfg    *Config
	cache  Cache
	logger *slog.Logger

	upstream  atomic.Int64
	fallbacks atomic.Int64
	hits      atomic.Int64
}

// NewExtractor creates an extractor. Without a cache option an in-memory
// cache with DefaultTTL is used.
func NewExtractor(opts ...Option) *Extractor {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultTTL, nil)
	}
	return &Extractor{
		cfg:    cfg,
		cache:  cache,
		logger: cfg.Logger.With("component", "entity.extractor"),
	}
}

// Extract returns the entities in text. It never fails; when the service is
// unavailable the fallback patterns are used.
func (x *Extractor) Extract(ctx context.Context, text string) []Entity {
	if strings.TrimSpace(text) == "" {
		return []Entity{}
	}

	key := Key(text)
	if cached, ok, err := x.cache.Get(ctx, key); err != nil {
		x.logger.Warn("cache get failed", "error", err)
	} else if ok {
		x.hits.Add(1)
		return reanchor(text, cached)
	}

	entities, err := x.remote(ctx, text)
	if err != nil {
		if x.cfg.Provider != nil {
			x.logger.Warn("generative extraction failed, using patterns", "error", err)
		}
		x.fallbacks.Add(1)
		entities = MatchPatterns(text)
	}

	if err := x.cache.Set(ctx, key, entities); err != nil {
		x.logger.Warn("cache set failed", "error", err)
	}
	x.logger.Debug("entities extracted", "count", len(entities), "generative", err == nil)
	return entities
}

// reanchor maps cached entities onto text, which may differ from the text
// that filled the entry in case or whitespace. Entities not found are dropped.
func reanchor(text string, cached []Entity) []Entity {
	out := make([]Entity, 0, len(cached))
	for _, e := range cached {
		span, ok := anchor(text, e.Value)
		if !ok {
			continue
		}
		span.Type = e.Type
		out = append(out, span)
	}
	return out
}

// Stats reports service calls, fallbacks and cache hits so far.
func (x *Extractor) Stats() (upstream, fallbacks, hits int64) {
	return x.upstream.Load(), x.fallbacks.Load(), x.hits.Load()
}

var errNoProvider = errors.New("entity: no provider configured")

func (x *Extractor) remote(ctx context.Context, text string) ([]Entity, error) {
	if x.cfg.Provider == nil {
		return nil, errNoProvider
	}

	req := &inference.ChatRequest{
		Messages:         []inference.Message{inference.NewUserMessage(fmt.Sprintf(promptTemplate, text))},
		Model:            x.cfg.Model,
		Temperature:      inference.Ptr(x.cfg.Temperature),
		MaxTokens:        x.cfg.MaxTokens,
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	}

	chat := func(ctx context.Context) (*inference.ChatResponse, error) {
		x.upstream.Add(1)
		return x.cfg.Provider.Chat(ctx, req)
	}

	var resp *inference.ChatResponse
	var err error
	if x.cfg.Limiter != nil {
		resp, err = ratelimit.Execute(ctx, x.cfg.Limiter, chat)
	} else {
		resp, err = chat(ctx)
	}
	if err != nil {
		return nil, err
	}
	return parseReply(text, resp.Message.Content)
}

// parseReply decodes the service JSON and re-anchors spans to text.
// Mentions that do not occur in text are dropped.
func parseReply(text, reply string) ([]Entity, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var payload struct {
		Entities *[]Entity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(reply), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if payload.Entities == nil {
		return nil, fmt.Errorf("%w: missing entities", ErrMalformedReply)
	}

	entities := make([]Entity, 0, len(*payload.Entities))
	for _, e := range *payload.Entities {
		span, ok := anchor(text, e.Value)
		if !ok {
			continue
		}
		span.Type = e.Type
		entities = append(entities, span)
	}
	return entities, nil
}
