// Package capture turns encoded image payloads received from clients into OpenCV frames.
package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrEmptyBuffer is returned when there are no bytes to decode.
	ErrEmptyBuffer = errors.New("empty image buffer")
	// ErrEmptyImage is returned when the buffer decodes to an image without pixels.
	ErrEmptyImage = errors.New("decoded image is empty")
)

// Decoder decodes an encoded image (JPEG, PNG, ...) into a pixel grid.
type Decoder interface {
	// Decode returns a new Mat. The caller is responsible for closing it.
	Decode(data []byte) (*gocv.Mat, error)
}

// GoCVDecoder decodes images with OpenCV's imdecode.
type GoCVDecoder struct {
	flags gocv.IMReadFlag
}

// NewDecoder creates a decoder producing 3-channel BGR frames.
func NewDecoder() *GoCVDecoder {
	return &GoCVDecoder{flags: gocv.IMReadColor}
}

// Decode decodes data into a Mat.
func (d *GoCVDecoder) Decode(data []byte) (*gocv.Mat, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBuffer
	}

	mat, err := gocv.IMDecode(data, d.flags)
	if err != nil {
		return nil, fmt.Errorf("imdecode: %w", err)
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyImage
	}

	return &mat, nil
}
