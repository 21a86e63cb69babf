package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ayusman/handstream/internal/capture"
	"github.com/ayusman/handstream/internal/detector"
	"github.com/ayusman/handstream/internal/gesture"
	"gocv.io/x/gocv"
)

var (
	// ErrDecode marks frames whose payload could not be turned into an image.
	ErrDecode = errors.New("frame decode failed")
	// ErrProcessing marks frames that decoded but failed in detection or analysis.
	ErrProcessing = errors.New("frame processing failed")
	// ErrDetectorBusy is wrapped with ErrProcessing when an abandoned frame still occupies
	// the detector.
	ErrDetectorBusy = errors.New("detector busy with an abandoned frame")
)

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	HandDetected bool
	Hands        []gesture.Summary
}

// Pipeline processes frames for a single session. It is not safe for concurrent use;
// a session processes one frame at a time.
type Pipeline struct {
	config   Config
	decoder  capture.Decoder
	detector detector.Detector
	analyzer *gesture.Analyzer

	// inflight is closed when the most recent detection goroutine returns.
	inflight chan struct{}
}

type outcome struct {
	result FrameResult
	err    error
}

// Process runs decode -> detect -> analyze for one inbound message.
//
// Errors wrap ErrDecode or ErrProcessing, except when ctx is cancelled, in which case
// ctx.Err() is returned. The decoded frame is always released, even when the frame is
// abandoned.
func (p *Pipeline) Process(ctx context.Context, payload string) (FrameResult, error) {
	data, err := DecodePayload(payload)
	if err != nil {
		return FrameResult{}, err
	}

	if p.busy() {
		return FrameResult{}, fmt.Errorf("%w: %w", ErrProcessing, ErrDetectorBusy)
	}

	frame, err := p.decoder.Decode(data)
	if err != nil {
		return FrameResult{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := ctx.Err(); err != nil {
		frame.Close()
		return FrameResult{}, err
	}

	frameCtx := ctx
	if p.config.FrameTimeout > 0 {
		var cancel context.CancelFunc
		frameCtx, cancel = context.WithTimeout(ctx, p.config.FrameTimeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	inflight := make(chan struct{})
	p.inflight = inflight
	go func() {
		defer close(inflight)
		defer frame.Close()
		done <- p.run(frame)
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-frameCtx.Done():
		if err := ctx.Err(); err != nil {
			return FrameResult{}, err
		}
		if in, ok := p.detector.(detector.Interrupter); ok {
			in.Interrupt()
		}
		return FrameResult{}, fmt.Errorf("%w: %w", ErrProcessing, frameCtx.Err())
	}
}

// busy reports whether an abandoned detection is still running.
func (p *Pipeline) busy() bool {
	if p.inflight == nil {
		return false
	}
	select {
	case <-p.inflight:
		p.inflight = nil
		return false
	default:
		return true
	}
}

// run detects and analyzes hands on a decoded frame.
func (p *Pipeline) run(frame *gocv.Mat) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: fmt.Errorf("%w: panic: %v", ErrProcessing, r)}
		}
	}()

	hands, err := p.detector.Detect(frame)
	if err != nil {
		return outcome{err: fmt.Errorf("%w: detect: %w", ErrProcessing, err)}
	}

	if limit := p.config.Detector.MaxHands; limit > 0 && len(hands) > limit {
		hands = hands[:limit]
	}

	result := FrameResult{
		HandDetected: len(hands) > 0,
		Hands:        make([]gesture.Summary, 0, len(hands)),
	}
	for _, hand := range hands {
		result.Hands = append(result.Hands, p.analyzer.Analyze(hand))
	}

	return outcome{result: result}
}

// Close releases the pipeline's detector.
func (p *Pipeline) Close() error {
	return p.detector.Close()
}

// SplitPayload strips an optional "<scheme>," header such as "data:image/jpeg;base64,".
// Messages without a separator are returned unchanged.
func SplitPayload(msg string) string {
	if _, payload, ok := strings.Cut(msg, ","); ok {
		return payload
	}
	return msg
}

// DecodePayload extracts and base64-decodes the image bytes carried by msg.
// Padded and unpadded standard base64 are accepted.
func DecodePayload(msg string) ([]byte, error) {
	encoded := strings.TrimSpace(SplitPayload(msg))
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(encoded); rawErr != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image buffer", ErrDecode)
	}

	return data, nil
}
