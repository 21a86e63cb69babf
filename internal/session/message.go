package session

import (
	"encoding/json"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/detector"
)

// frameMessage is the outbound JSON form of app.FrameResult.
type frameMessage struct {
	HandDetected bool          `json:"hand_detected"`
	Hands        []handMessage `json:"hands"`
}

type handMessage struct {
	X         float64                                 `json:"x"`
	Y         float64                                 `json:"y"`
	Z         float64                                 `json:"z"`
	Scale     float64                                 `json:"scale"`
	Landmarks [detector.NumLandmarks]detector.Point3D `json:"landmarks"`
	Gesture   string                                  `json:"gesture"`
	RotationZ float64                                 `json:"rotation_z"`
	Label     string                                  `json:"label,omitempty"`
}

// errorMessage is sent for skipped frames when error reporting is enabled.
type errorMessage struct {
	Error string `json:"error"`
}

// EncodeResult serializes a frame result to its wire form. Hands is always an array,
// never null.
func EncodeResult(result app.FrameResult) ([]byte, error) {
	msg := frameMessage{
		HandDetected: result.HandDetected,
		Hands:        make([]handMessage, 0, len(result.Hands)),
	}

	for _, h := range result.Hands {
		msg.Hands = append(msg.Hands, handMessage{
			X:         h.Anchor.X,
			Y:         h.Anchor.Y,
			Z:         h.Anchor.Z,
			Scale:     h.Scale,
			Landmarks: h.Landmarks,
			Gesture:   string(h.Gesture),
			RotationZ: h.RotationZ,
			Label:     h.Handedness,
		})
	}

	return json.Marshal(msg)
}

func encodeError(reason string) ([]byte, error) {
	return json.Marshal(errorMessage{Error: reason})
}
