// Package detection fuses the output of a general-purpose and a
// transit-specific object detector into one deduplicated list, with a
// monocular distance estimate per object.
package detection

import (
	"context"
	"strings"
)

// Source identifies which detector produced a detection.
type Source string

const (
	SourceStandard Source = "standard"
	SourceCustom   Source = "custom"
)

// Raw is one detector output before filtering.
type Raw struct {
	Box        Box
	ClassID    int
	Label      string
	Confidence float64
}

// Detector runs an object detection model over an encoded image.
type Detector interface {
	// Infer returns raw detections for frame. Undecodable frames are errors.
	Infer(ctx context.Context, frame []byte) ([]Raw, error)

	// Source reports which variant this detector is.
	Source() Source

	// Close releases model resources.
	Close() error
}

// Detection is a filtered, distance-annotated result.
type Detection struct {
	Box        Box      `json:"box"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Distance   *float64 `json:"distance"`
	Proximity  string   `json:"proximity"`
	Source     Source   `json:"source"`
}

// Reference physical sizes in millimetres, keyed by lower-case label.
var ReferenceSizes = map[string]float64{
	"person":           1700,
	"car":              4500,
	"bottle":           230,
	"laptop":           350,
	"cell phone":       150,
	"chair":            800,
	"book":             240,
	"cup":              95,
	"pothole":          1000,
	"transjakarta_bus": 12000,
	"halte":            15000,
}

// verticalLabels are measured by box height; everything else by width.
var verticalLabels = map[string]bool{
	"person": true,
	"bottle": true,
	"cup":    true,
}

// DefaultFocalLength is the assumed camera focal length in pixels.
const DefaultFocalLength = 600.0

// EstimateDistance returns the distance in centimetres for a box of the given
// label, or nil when the label has no reference size or the measured side is
// not positive.
func EstimateDistance(label string, box Box, focal float64, sizes map[string]float64) *float64 {
	key := strings.ToLower(label)
	ref, ok := sizes[key]
	if !ok {
		return nil
	}
	dim := box.Width()
	if verticalLabels[key] {
		dim = box.Height()
	}
	if dim <= 0 {
		return nil
	}
	d := (ref * focal / float64(dim)) / 10
	return &d
}

// Proximity buckets a distance in centimetres into a spoken category.
func Proximity(distance *float64) string {
	if distance == nil {
		return "unknown"
	}
	switch d := *distance; {
	case d < 50:
		return "very close"
	case d < 100:
		return "close"
	case d < 200:
		return "nearby"
	case d < 400:
		return "moderate"
	default:
		return "far"
	}
}
