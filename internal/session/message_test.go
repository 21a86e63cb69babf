package session

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/detector"
	"github.com/ayusman/handstream/internal/gesture"
)

func TestEncodeResult(t *testing.T) {
	t.Run("empty result has empty hands array", func(t *testing.T) {
		data, err := EncodeResult(app.FrameResult{})
		if err != nil {
			t.Fatalf("EncodeResult() error = %v", err)
		}
		if got, want := string(data), `{"hand_detected":false,"hands":[]}`; got != want {
			t.Errorf("EncodeResult() = %s, want %s", got, want)
		}
	})

	t.Run("hand fields", func(t *testing.T) {
		summary := gesture.Analyze(detector.FistLandmarks())
		summary.Handedness = "Right"

		data, err := EncodeResult(app.FrameResult{
			HandDetected: true,
			Hands:        []gesture.Summary{summary},
		})
		if err != nil {
			t.Fatalf("EncodeResult() error = %v", err)
		}

		var decoded struct {
			Hands []map[string]json.RawMessage `json:"hands"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(decoded.Hands) != 1 {
			t.Fatalf("len(hands) = %d, want 1", len(decoded.Hands))
		}

		for _, key := range []string{"x", "y", "z", "scale", "landmarks", "gesture", "rotation_z", "label"} {
			if _, ok := decoded.Hands[0][key]; !ok {
				t.Errorf("missing key %q in %s", key, data)
			}
		}
		if got := string(decoded.Hands[0]["gesture"]); got != `"fist"` {
			t.Errorf("gesture = %s, want \"fist\"", got)
		}
	})

	t.Run("label omitted when unknown", func(t *testing.T) {
		summary := gesture.Analyze(detector.OpenPalmLandmarks())
		summary.Handedness = ""

		data, err := EncodeResult(app.FrameResult{
			HandDetected: true,
			Hands:        []gesture.Summary{summary},
		})
		if err != nil {
			t.Fatalf("EncodeResult() error = %v", err)
		}
		if strings.Contains(string(data), `"label"`) {
			t.Errorf("label present in %s", data)
		}
	})

	t.Run("non-finite landmark fails", func(t *testing.T) {
		summary := gesture.Analyze(detector.OpenPalmLandmarks())
		summary.Landmarks[3].Z = math.Inf(1)

		if _, err := EncodeResult(app.FrameResult{HandDetected: true, Hands: []gesture.Summary{summary}}); err == nil {
			t.Error("EncodeResult() error = nil, want error")
		}
	})
}
