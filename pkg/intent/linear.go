package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearScorer is a logistic regression exported as dense weights.
// One coefficient row per class gives a softmax; a single row with two
// classes is the binary sigmoid case.
type LinearScorer struct {
	Coef      [][]float32 `json:"coef"`
	Intercept []float32   `json:"intercept"`
}

// LoadLinearScorer reads a linear model artifact and checks it against the
// feature and class counts.
func LoadLinearScorer(path string, dim, classes int) (*LinearScorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	var s LinearScorer
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	}
	if err := s.check(dim, classes); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	}
	return &s, nil
}

func (s *LinearScorer) check(dim, classes int) error {
	rows := len(s.Coef)
	if rows != classes && !(rows == 1 && classes == 2) {
		return fmt.Errorf("%w: %d coefficient rows for %d classes", ErrDimension, rows, classes)
	}
	if len(s.Intercept) != rows {
		return fmt.Errorf("%w: %d intercepts for %d rows", ErrDimension, len(s.Intercept), rows)
	}
	for i, row := range s.Coef {
		if len(row) != dim {
			return fmt.Errorf("%w: row %d has %d weights, want %d", ErrDimension, i, len(row), dim)
		}
	}
	return nil
}

// Score returns class probabilities.
func (s *LinearScorer) Score(features []float32) ([]float32, error) {
	z := make([]float64, len(s.Coef))
	for i, row := range s.Coef {
		if len(row) != len(features) {
			return nil, fmt.Errorf("%w: %d features, want %d", ErrDimension, len(features), len(row))
		}
		acc := float64(s.Intercept[i])
		for j, w := range row {
			acc += float64(w) * float64(features[j])
		}
		z[i] = acc
	}

	if len(z) == 1 {
		p := float32(1 / (1 + math.Exp(-z[0])))
		return []float32{1 - p, p}, nil
	}
	return softmax(z), nil
}

// Close is a no-op.
func (s *LinearScorer) Close() error { return nil }

func softmax(z []float64) []float32 {
	maxZ := math.Inf(-1)
	for _, v := range z {
		maxZ = math.Max(maxZ, v)
	}
	var sum float64
	exp := make([]float64, len(z))
	for i, v := range z {
		exp[i] = math.Exp(v - maxZ)
		sum += exp[i]
	}
	out := make([]float32, len(z))
	for i := range exp {
		out[i] = float32(exp[i] / sum)
	}
	return out
}

var _ Scorer = (*LinearScorer)(nil)
