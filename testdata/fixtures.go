// Package testdata builds synthetic frames for tests.
package testdata

import (
	"encoding/base64"
	"fmt"

	"gocv.io/x/gocv"
)

// JPEGFrame encodes a solid-color BGR frame of the given size as JPEG.
func JPEGFrame(width, height int) ([]byte, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 120, 200, 0), height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame %dx%d: %w", width, height, err)
	}
	defer buf.Close()

	// Copy out of native memory before the buffer is released.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// DataURL wraps an encoded JPEG the way a browser canvas toDataURL call does.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

// MustDataURLFrame returns a data URL for a small synthetic frame, panicking on failure.
func MustDataURLFrame() string {
	jpeg, err := JPEGFrame(32, 24)
	if err != nil {
		panic(err)
	}
	return DataURL(jpeg)
}
