package detection

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, 0},
		{"touching edge", Box{0, 0, 10, 10}, Box{10, 0, 20, 10}, 0},
		{"half overlap", Box{0, 0, 10, 10}, Box{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", Box{0, 0, 10, 10}, Box{0, 0, 5, 10}, 0.5},
		{"degenerate", Box{5, 5, 5, 5}, Box{5, 5, 5, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU = %v, want %v", got, tt.want)
			}
			if rev := IoU(tt.b, tt.a); rev != got {
				t.Errorf("IoU not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestBoxJSON(t *testing.T) {
	data, err := json.Marshal(Box{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[1,2,3,4]" {
		t.Errorf("Marshal = %s", data)
	}

	var b Box
	if err := json.Unmarshal([]byte("[5,6,7,8]"), &b); err != nil || b != (Box{5, 6, 7, 8}) {
		t.Errorf("Unmarshal = %v, %v", b, err)
	}
	if err := json.Unmarshal([]byte("[1,2,3]"), &b); err == nil {
		t.Error("expected error for short box")
	}
}
