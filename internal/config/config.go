// Package config loads go-mantra application configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lpernett/godotenv"
)

// Config is the application configuration shared by the binaries.
type Config struct {
	Port     string
	LogLevel string

	// Generative service
	GeminiAPIKey      string
	GeminiModel       string
	CredentialsFile   string
	VertexProject     string
	VertexLocation    string
	GenerationTimeout time.Duration

	// Rate limiting of the generative service
	RequestsPerMinute int
	QuotaRetryDelay   time.Duration
	QuotaMaxRetries   int
	QuotaDeadline     time.Duration

	// Entity cache
	EntityCacheTTL time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Speech
	DeepgramAPIKey string
	Language       string

	// Models
	IntentModelPrefix string
	StandardModel     string
	CustomModel       string
	CustomClasses     []string

	// Camera
	CameraSignallingURL string
	CameraProducer      string
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Port:                "8000",
		LogLevel:            "info",
		GeminiModel:         "gemini-1.5-flash",
		VertexLocation:      "us-central1",
		GenerationTimeout:   30 * time.Second,
		RequestsPerMinute:   60,
		QuotaRetryDelay:     60 * time.Second,
		QuotaMaxRetries:     5,
		QuotaDeadline:       5 * time.Minute,
		EntityCacheTTL:      time.Hour,
		Language:            "en-US",
		IntentModelPrefix:   "./models/intent_classifier",
		StandardModel:       "./models/yolov8n.onnx",
		CustomModel:         "./models/yolov8-finetuned-bmth.onnx",
		CustomClasses:       []string{"pothole", "transjakarta_bus", "halte"},
		CameraProducer:      "mantra-camera",
	}
}

// Load reads an optional .env file (missing files are ignored) and then
// the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: could not load .env file", "error", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, typically os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	d := Default()

	cfg := Config{
		Port:                e.str("MANTRA_PORT", d.Port),
		LogLevel:            e.str("MANTRA_LOG_LEVEL", d.LogLevel),
		GeminiAPIKey:        e.str("GEMINI_API_KEY", ""),
		GeminiModel:         e.str("GEMINI_MODEL", d.GeminiModel),
		CredentialsFile:     e.str("GOOGLE_APPLICATION_CREDENTIALS", ""),
		VertexProject:       e.str("VERTEX_PROJECT", ""),
		VertexLocation:      e.str("VERTEX_LOCATION", d.VertexLocation),
		GenerationTimeout:   e.duration("MANTRA_GENERATION_TIMEOUT", d.GenerationTimeout),
		RequestsPerMinute:   e.int("MANTRA_REQUESTS_PER_MINUTE", d.RequestsPerMinute),
		QuotaRetryDelay:     e.duration("MANTRA_QUOTA_RETRY_DELAY", d.QuotaRetryDelay),
		QuotaMaxRetries:     e.int("MANTRA_QUOTA_MAX_RETRIES", d.QuotaMaxRetries),
		QuotaDeadline:       e.duration("MANTRA_QUOTA_DEADLINE", d.QuotaDeadline),
		EntityCacheTTL:      e.duration("MANTRA_ENTITY_CACHE_TTL", d.EntityCacheTTL),
		RedisAddr:           e.str("REDIS_ADDR", ""),
		RedisPassword:       e.str("REDIS_PASSWORD", ""),
		RedisDB:             e.int("REDIS_DB", 0),
		DeepgramAPIKey:      e.str("DEEPGRAM_API_KEY", ""),
		Language:            e.str("MANTRA_LANGUAGE", d.Language),
		IntentModelPrefix:   e.str("MANTRA_INTENT_MODEL", d.IntentModelPrefix),
		StandardModel:       e.str("MANTRA_STANDARD_MODEL", d.StandardModel),
		CustomModel:         e.str("MANTRA_CUSTOM_MODEL", d.CustomModel),
		CustomClasses:       e.list("MANTRA_CUSTOM_CLASSES", d.CustomClasses),
		CameraSignallingURL: e.str("MANTRA_CAMERA_SIGNALLING", ""),
		CameraProducer:      e.str("MANTRA_CAMERA_PRODUCER", d.CameraProducer),
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that have no sensible fallback.
func (c Config) Validate() error {
	var errs []error
	if c.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("config: MANTRA_REQUESTS_PER_MINUTE must be positive, got %d", c.RequestsPerMinute))
	}
	if c.QuotaMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("config: MANTRA_QUOTA_MAX_RETRIES must not be negative, got %d", c.QuotaMaxRetries))
	}
	if c.QuotaDeadline <= 0 {
		errs = append(errs, fmt.Errorf("config: MANTRA_QUOTA_DEADLINE must be positive, got %v", c.QuotaDeadline))
	}
	if c.EntityCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("config: MANTRA_ENTITY_CACHE_TTL must be positive, got %v", c.EntityCacheTTL))
	}
	return errors.Join(errs...)
}

// HasGenerativeService reports whether any generative backend is configured.
func (c Config) HasGenerativeService() bool {
	return c.GeminiAPIKey != "" || (c.CredentialsFile != "" && c.VertexProject != "")
}

type env struct {
	get func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// duration accepts Go durations ("90s") or bare seconds ("90").
func (e env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", def)
	return def
}

func (e env) list(key string, def []string) []string {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
