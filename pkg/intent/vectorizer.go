package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer is a TF-IDF transform exported from training.
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float32      `json:"idf"`
	Lowercase   bool           `json:"lowercase"`
	NgramRange  [2]int         `json:"ngram_range"`
	SublinearTF bool           `json:"sublinear_tf"`
	Norm        string         `json:"norm"`
}

// LoadVectorizer reads a vectorizer artifact.
func LoadVectorizer(path string) (*Vectorizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	v := &Vectorizer{Lowercase: true, NgramRange: [2]int{1, 1}, Norm: "l2"}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	}
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	}
	return v, nil
}

func (v *Vectorizer) validate() error {
	if len(v.Vocabulary) == 0 {
		return fmt.Errorf("empty vocabulary")
	}
	if len(v.IDF) != len(v.Vocabulary) {
		return fmt.Errorf("%d idf weights for %d terms", len(v.IDF), len(v.Vocabulary))
	}
	for term, idx := range v.Vocabulary {
		if idx < 0 || idx >= len(v.IDF) {
			return fmt.Errorf("term %q has index %d out of range", term, idx)
		}
	}
	if v.NgramRange[0] < 1 || v.NgramRange[1] < v.NgramRange[0] {
		return fmt.Errorf("invalid ngram range %v", v.NgramRange)
	}
	return nil
}

// Dim is the length of the feature vector.
func (v *Vectorizer) Dim() int {
	return len(v.IDF)
}

// Transform converts text into a TF-IDF feature vector.
func (v *Vectorizer) Transform(text string) []float32 {
	if v.Lowercase {
		text = strings.ToLower(text)
	}
	tokens := tokenPattern.FindAllString(text, -1)

	counts := make(map[int]float64)
	for n := v.NgramRange[0]; n <= v.NgramRange[1]; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			if idx, ok := v.Vocabulary[strings.Join(tokens[i:i+n], " ")]; ok {
				counts[idx]++
			}
		}
	}

	features := make([]float32, v.Dim())
	var norm float64
	for idx, tf := range counts {
		if v.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		w := tf * float64(v.IDF[idx])
		features[idx] = float32(w)
		switch v.Norm {
		case "l1":
			norm += math.Abs(w)
		case "l2":
			norm += w * w
		}
	}

	if v.Norm == "l2" {
		norm = math.Sqrt(norm)
	}
	if norm > 0 {
		for idx := range counts {
			features[idx] = float32(float64(features[idx]) / norm)
		}
	}
	return features
}

// LoadLabels reads a label encoder artifact ({"classes": [...]}).
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	var enc struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	}
	if len(enc.Classes) == 0 {
		return nil, fmt.Errorf("%w: %s: no classes", ErrArtifact, path)
	}
	return enc.Classes, nil
}
