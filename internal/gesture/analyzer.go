// Package gesture derives a compact pose summary from one hand's landmarks.
package gesture

import (
	"math"

	"github.com/ayusman/handstream/internal/detector"
)

// Kind is the coarse hand pose classification.
type Kind string

const (
	// KindFist means every fingertip is curled in near the palm center.
	KindFist Kind = "fist"
	// KindOpen means at least one fingertip is extended away from the palm.
	KindOpen Kind = "open"
)

// DefaultFistThreshold is the maximum planar fingertip-to-anchor distance, in normalized
// image units, for a hand to be classified as a fist. It is not scaled by hand size, so a
// small open hand far from the camera can read as a fist.
const DefaultFistThreshold = 0.15

// Summary is the per-hand, per-frame derived pose.
type Summary struct {
	Anchor     detector.Point3D                        // palm center estimate
	Scale      float64                                 // planar wrist to middle MCP distance
	Gesture    Kind                                    // fist or open
	RotationZ  float64                                 // radians in (-pi, pi]
	Landmarks  [detector.NumLandmarks]detector.Point3D // passed through unchanged
	Handedness string                                  // "Left", "Right" or empty
}

// Analyzer classifies hands using a fixed fist threshold.
// The zero value is not useful; use NewAnalyzer or the package-level Analyze.
type Analyzer struct {
	threshold float64
}

// NewAnalyzer returns an Analyzer with the given fist threshold.
// Non-positive or NaN thresholds fall back to DefaultFistThreshold.
func NewAnalyzer(threshold float64) *Analyzer {
	if !(threshold > 0) {
		threshold = DefaultFistThreshold
	}
	return &Analyzer{threshold: threshold}
}

// Threshold returns the fist threshold in use.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze derives a Summary using DefaultFistThreshold.
func Analyze(hand detector.HandLandmarks) Summary {
	return analyze(hand, DefaultFistThreshold)
}

// Analyze derives a Summary for one hand. It is pure and safe for concurrent use.
func (a *Analyzer) Analyze(hand detector.HandLandmarks) Summary {
	return analyze(hand, a.threshold)
}

func analyze(hand detector.HandLandmarks, threshold float64) Summary {
	wrist := hand.Points[detector.Wrist]
	mcp := hand.Points[detector.MiddleMCP]

	anchor := midpoint(wrist, mcp)

	return Summary{
		Anchor:     anchor,
		Scale:      finiteOrZero(planarDistance(wrist, mcp)),
		Gesture:    classify(&hand, anchor, threshold),
		RotationZ:  rotation(wrist, mcp),
		Landmarks:  hand.Points,
		Handedness: hand.Handedness,
	}
}

// classify reports KindFist only if every fingertip lies within threshold of the anchor.
func classify(hand *detector.HandLandmarks, anchor detector.Point3D, threshold float64) Kind {
	for _, idx := range detector.FingerTips {
		// Negated comparison so a NaN distance counts as extended.
		if !(planarDistance(hand.Points[idx], anchor) <= threshold) {
			return KindOpen
		}
	}
	return KindFist
}

// rotation returns the in-plane angle of the wrist to middle MCP vector.
func rotation(wrist, mcp detector.Point3D) float64 {
	dx := mcp.X - wrist.X
	dy := mcp.Y - wrist.Y

	if dx == 0 && dy == 0 {
		return 0
	}

	angle := math.Atan2(dy, dx)
	if angle == -math.Pi {
		// atan2(-0, x<0) yields -pi; fold onto the half-open range.
		angle = math.Pi
	}
	return finiteOrZero(angle)
}

func midpoint(a, b detector.Point3D) detector.Point3D {
	return detector.Point3D{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}

// planarDistance is the Euclidean distance between a and b ignoring Z.
func planarDistance(a, b detector.Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
