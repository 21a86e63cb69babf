package capture

import (
	"errors"
	"testing"

	"github.com/ayusman/handstream/testdata"
)

func TestDecoder_Decode(t *testing.T) {
	d := NewDecoder()

	t.Run("decodes a JPEG frame", func(t *testing.T) {
		jpeg, err := testdata.JPEGFrame(64, 48)
		if err != nil {
			t.Fatalf("JPEGFrame() error = %v", err)
		}

		mat, err := d.Decode(jpeg)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		defer mat.Close()

		if mat.Cols() != 64 || mat.Rows() != 48 {
			t.Errorf("size = %dx%d, want 64x48", mat.Cols(), mat.Rows())
		}
		if mat.Channels() != 3 {
			t.Errorf("channels = %d, want 3", mat.Channels())
		}
	})

	t.Run("rejects empty buffer", func(t *testing.T) {
		mat, err := d.Decode(nil)
		if !errors.Is(err, ErrEmptyBuffer) {
			t.Errorf("Decode(nil) error = %v, want ErrEmptyBuffer", err)
		}
		if mat != nil {
			t.Error("expected nil Mat")
		}
	})

	t.Run("rejects corrupted payload", func(t *testing.T) {
		mat, err := d.Decode([]byte("definitely not an image"))
		if err == nil {
			mat.Close()
			t.Fatal("expected error for corrupted payload")
		}
	})

	t.Run("implements Decoder", func(t *testing.T) {
		var _ Decoder = (*GoCVDecoder)(nil)
	})
}
