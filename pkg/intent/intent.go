// Package intent classifies utterances into the assistant's intents with a
// pretrained TF-IDF vectorizer and an opaque scoring model.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Type is an intent label.
type Type string

const (
	AskingForDirection    Type = "asking_for_direction"
	AnalyzingSurroundings Type = "analyzing_surroundings"
	ServiceRecommendation Type = "service_recommendation"
	Unknown               Type = "unknown"
)

// ParseType maps a classifier label to a Type. Labels outside the known set
// are Unknown.
func ParseType(label string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(label))); t {
	case AskingForDirection, AnalyzingSurroundings, ServiceRecommendation:
		return t
	default:
		return Unknown
	}
}

// Intent is a classification result.
type Intent struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Sentinel errors.
var (
	ErrArtifact  = errors.New("intent: load artifact")
	ErrDimension = errors.New("intent: dimension mismatch")
)

// Scorer maps a feature vector to one probability per class.
type Scorer interface {
	Score(features []float32) ([]float32, error)
	Close() error
}

// Classifier predicts intents. It is safe for concurrent use.
type Classifier struct {
	vectorizer *Vectorizer
	labels     []string
	scorer     Scorer
	logger     *slog.Logger

	mu sync.Mutex
}

// New assembles a classifier from loaded parts.
func New(v *Vectorizer, labels []string, scorer Scorer, logger *slog.Logger) (*Classifier, error) {
	if v == nil || scorer == nil {
		return nil, fmt.Errorf("%w: vectorizer and scorer are required", ErrArtifact)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: no class labels", ErrArtifact)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		vectorizer: v,
		labels:     labels,
		scorer:     scorer,
		logger:     logger.With("component", "intent.classifier"),
	}, nil
}

// Load reads <prefix>_vectorizer.json, <prefix>_label_encoder.json and either
// <prefix>_model.onnx or <prefix>_model.json. Any missing or unreadable
// artifact is an error; callers treat it as fatal.
func Load(prefix string, logger *slog.Logger) (*Classifier, error) {
	v, err := LoadVectorizer(prefix + "_vectorizer.json")
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(prefix + "_label_encoder.json")
	if err != nil {
		return nil, err
	}

	var scorer Scorer
	if onnx := prefix + "_model.onnx"; fileExists(onnx) {
		scorer, err = NewDNNScorer(onnx, v.Dim(), len(labels))
	} else {
		scorer, err = LoadLinearScorer(prefix+"_model.json", v.Dim(), len(labels))
	}
	if err != nil {
		return nil, err
	}
	return New(v, labels, scorer, logger)
}

// Predict returns the most probable intent for text. Empty text is Unknown
// with zero confidence.
func (c *Classifier) Predict(ctx context.Context, text string) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Intent{Type: Unknown}, nil
	}
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	features := c.vectorizer.Transform(text)

	c.mu.Lock()
	probs, err := c.scorer.Score(features)
	c.mu.Unlock()
	if err != nil {
		return Intent{}, fmt.Errorf("intent: score: %w", err)
	}
	if len(probs) != len(c.labels) {
		return Intent{}, fmt.Errorf("%w: %d scores for %d labels", ErrDimension, len(probs), len(c.labels))
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	result := Intent{Type: ParseType(c.labels[best]), Confidence: float64(probs[best])}
	c.logger.Debug("intent predicted", "intent", result.Type, "confidence", result.Confidence)
	return result, nil
}

// Labels returns the class labels in score order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Close releases the scorer.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scorer.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
