// Package app wires frame decoding, hand detection and gesture analysis into
// per-session processing pipelines.
package app

import (
	"log/slog"
	"time"

	"github.com/ayusman/handstream/internal/capture"
	"github.com/ayusman/handstream/internal/detector"
	"github.com/ayusman/handstream/internal/gesture"
)

// Config holds configuration options for frame processing.
type Config struct {
	// Detector is passed to every detector the factory builds.
	Detector detector.Config

	// FistThreshold is the fingertip distance used for fist classification.
	// Zero selects gesture.DefaultFistThreshold.
	FistThreshold float64

	// FrameTimeout bounds decode-to-result time for one frame. Zero disables it.
	// On expiry a detector implementing detector.Interrupter is interrupted; any other
	// detector keeps running the abandoned frame, and frames arriving before it finishes
	// are skipped with ErrDetectorBusy.
	FrameTimeout time.Duration
}

// DefaultConfig returns the configuration used by the service.
func DefaultConfig() Config {
	return Config{
		Detector:      detector.DefaultConfig(),
		FistThreshold: gesture.DefaultFistThreshold,
	}
}

// App builds one Pipeline per streaming session. It holds no per-session state.
type App struct {
	config    Config
	decoder   capture.Decoder
	detectors detector.Factory
	analyzer  *gesture.Analyzer
}

// New creates an App that acquires detectors from the given factory.
func New(config Config, detectors detector.Factory) *App {
	return &App{
		config:    config,
		decoder:   capture.NewDecoder(),
		detectors: detectors,
		analyzer:  gesture.NewAnalyzer(config.FistThreshold),
	}
}

// SetDecoder replaces the frame decoder used by pipelines created afterwards.
func (a *App) SetDecoder(d capture.Decoder) {
	a.decoder = d
}

// NewPipeline acquires a fresh detector and returns a Pipeline that owns it.
// The caller must Close the pipeline when the session ends.
func (a *App) NewPipeline() (*Pipeline, error) {
	d, err := a.detectors()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:   a.config,
		decoder:  a.decoder,
		detector: d,
		analyzer: a.analyzer,
	}, nil
}

// DetectorFactory returns a factory for MediaPipe detectors. If the MediaPipe service
// script cannot be found it logs a warning and falls back to mock detectors, which never
// report a hand.
func DetectorFactory(config detector.Config, log *slog.Logger) detector.Factory {
	if _, err := detector.NewMediaPipeDetector(config); err != nil {
		log.Warn("MediaPipe not available, using mock detector", slog.Any("error", err))
		return func() (detector.Detector, error) {
			return detector.NewMockDetector(), nil
		}
	}

	log.Info("using MediaPipe hand detection",
		slog.Int("max_hands", config.MaxHands),
		slog.Float64("min_confidence", config.MinConfidence),
	)
	return detector.MediaPipeFactory(config)
}
