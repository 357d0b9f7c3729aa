package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Resampler produces thumbnail bytes for a target geometry.
type Resampler interface {
	Resample(data []byte, width, height int) ([]byte, error)
}

// PassthroughResampler stores the original bytes at every thumbnail path.
// Geometry is still computed and recorded; only the pixels are not reduced.
type PassthroughResampler struct{}

func (PassthroughResampler) Resample(data []byte, _, _ int) ([]byte, error) {
	return data, nil
}

// ImagingResampler decodes the image and resizes it with a Lanczos filter.
// The result is JPEG encoded; the standard library has no WebP encoder.
type ImagingResampler struct {
	Quality int
}

func (r ImagingResampler) Resample(data []byte, width, height int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if width >= b.Dx() {
		width, height = b.Dx(), b.Dy()
	}
	// a zero height keeps the aspect ratio
	thumb := imaging.Resize(img, width, height, imaging.Lanczos)

	q := r.Quality
	if q <= 0 {
		q = 82
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
