package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-mantra/internal/httpc"
)

const (
	providerGemini = "gemini"

	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini implements the Provider interface for Google's Generative Language API.
type Gemini struct {
	apiKey string
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = geminiBaseURL
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &Gemini{
		apiKey: cfg.APIKey,
		config: cfg,
		http:   hc,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Chat generates a completion using Gemini.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.config.Model
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.config.BaseURL, "/"), model, url.QueryEscape(g.apiKey))

	resp, err := generateContent(ctx, g.http, endpoint, providerGemini, model, g.config, req)
	if err != nil {
		g.logger.Debug("generate failed", "model", model, "error", err)
		return nil, err
	}
	return resp, nil
}

// Capabilities returns Gemini's capabilities.
func (g *Gemini) Capabilities() Capabilities {
	return Capabilities{Chat: true, StructuredOutput: true}
}

// Health checks API connectivity.
func (g *Gemini) Health(ctx context.Context) error {
	_, err := g.Chat(ctx, &ChatRequest{
		Messages:  []Message{NewUserMessage("ping")},
		MaxTokens: 1,
	})
	return err
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

// generateRequest is the generateContent request body shared by Gemini and Vertex.
type generateRequest struct {
	Contents          []generateContentPart `json:"contents"`
	SystemInstruction *generateContentPart  `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig      `json:"generationConfig"`
}

type generateContentPart struct {
	Role  string         `json:"role,omitempty"`
	Parts []generateText `json:"parts"`
}

type generateText struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   Schema  `json:"responseSchema,omitempty"`
}

// generateResponse is the generateContent response format.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generateText `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// buildGenerateRequest converts a ChatRequest into the wire format.
func buildGenerateRequest(cfg *Config, req *ChatRequest) generateRequest {
	var body generateRequest
	for _, msg := range req.Messages {
		part := generateContentPart{Parts: []generateText{{Text: msg.Content}}}
		switch msg.Role {
		case RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &generateContentPart{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, part.Parts...)
			continue
		case RoleAssistant:
			part.Role = "model"
		default:
			part.Role = "user"
		}
		body.Contents = append(body.Contents, part)
	}

	gc := generationConfig{
		Temperature:      cfg.Temperature,
		MaxOutputTokens:  cfg.MaxTokens,
		CandidateCount:   req.CandidateCount,
		ResponseMIMEType: req.ResponseMIMEType,
		ResponseSchema:   req.ResponseSchema,
	}
	if req.Temperature != nil {
		gc.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = req.MaxTokens
	}
	body.GenerationConfig = gc
	return body
}

// generateContent posts a generateContent call and decodes the first candidate.
func generateContent(ctx context.Context, hc *http.Client, endpoint, provider, model string, cfg *Config, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	payload, err := json.Marshal(buildGenerateRequest(cfg, req))
	if err != nil {
		return nil, WrapError(provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, WrapError(provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, WrapError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(provider, resp)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(provider, fmt.Errorf("decode response: %w", err))
	}

	if result.Error != nil && result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    result.Error.Message,
			Code:       result.Error.Status,
			Provider:   provider,
		}
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(provider, ErrEmptyResponse)
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &ChatResponse{
		Message:      NewAssistantMessage(text.String()),
		FinishReason: result.Candidates[0].FinishReason,
		Usage: Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		},
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// parseError reads and parses an error response.
func parseError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error apiErrorBody `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	var code string
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
