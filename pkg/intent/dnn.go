package intent

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// DNNScorer runs an ONNX classifier through OpenCV's DNN module.
// The network takes a [1, dim] float input and yields one score per class;
// scores that are not already a distribution are passed through softmax.
type DNNScorer struct {
	net     gocv.Net
	dim     int
	classes int
}

// NewDNNScorer loads an ONNX model.
func NewDNNScorer(path string, dim, classes int) (*DNNScorer, error) {
	if !fileExists(path) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrArtifact, path)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to load model from %s", ErrArtifact, path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNScorer{net: net, dim: dim, classes: classes}, nil
}

// Score runs one forward pass. Callers serialize access.
func (s *DNNScorer) Score(features []float32) ([]float32, error) {
	if len(features) != s.dim {
		return nil, fmt.Errorf("%w: %d features, want %d", ErrDimension, len(features), s.dim)
	}

	input := gocv.NewMatWithSize(1, s.dim, gocv.MatTypeCV32F)
	defer input.Close()
	for i, v := range features {
		input.SetFloatAt(0, i, v)
	}

	s.net.SetInput(input, "")
	output := s.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(data) < s.classes {
		return nil, fmt.Errorf("%w: %d outputs for %d classes", ErrDimension, len(data), s.classes)
	}

	scores := make([]float32, s.classes)
	copy(scores, data[:s.classes])
	if isDistribution(scores) {
		return scores, nil
	}
	z := make([]float64, len(scores))
	for i, v := range scores {
		z[i] = float64(v)
	}
	return softmax(z), nil
}

// Close releases the network.
func (s *DNNScorer) Close() error {
	return s.net.Close()
}

func isDistribution(p []float32) bool {
	var sum float64
	for _, v := range p {
		if v < 0 {
			return false
		}
		sum += float64(v)
	}
	return math.Abs(sum-1) < 1e-3
}

var _ Scorer = (*DNNScorer)(nil)
