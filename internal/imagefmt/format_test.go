package imagefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt/imagetest"
)

func TestDimensions(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		w, h   int
		ok     bool
		format Format
	}{
		{"jpeg", imagetest.JPEG(imagetest.JPEGOptions{Width: 4032, Height: 3024}), 4032, 3024, true, FormatJPEG},
		{"png", imagetest.PNG(800, 600), 800, 600, true, FormatPNG},
		{"gif", imagetest.GIF(320, 240), 320, 240, true, FormatGIF},
		{"truncated png", imagetest.PNG(800, 600)[:20], 0, 0, false, FormatPNG},
		{"unknown", []byte("not an image at all"), 0, 0, false, FormatUnknown},
		{"jpeg without frame", []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0, 0, false, FormatJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := Dimensions(tt.data)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, tt.format, Detect(tt.data))
		})
	}
}

func TestDimensions_WebPVP8X(t *testing.T) {
	data := make([]byte, 30)
	copy(data, "RIFF")
	copy(data[8:], "WEBPVP8X")
	// canvas 1920x1080 stored minus one, 24-bit little endian
	data[24], data[25], data[26] = 0x7F, 0x07, 0x00
	data[27], data[28], data[29] = 0x37, 0x04, 0x00

	w, h, ok := Dimensions(data)
	assert.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}
