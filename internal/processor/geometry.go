package processor

import "math"

// ThumbnailGeometry returns the size of a thumbnail target pixels wide.
// Images already at or below the target keep their size; nothing is
// upscaled. Unknown source dimensions (zero) yield the target width and an
// unknown height.
func ThumbnailGeometry(width, height, target int) (int, int) {
	if width <= 0 || height <= 0 {
		return target, 0
	}
	if width <= target {
		return width, height
	}
	h := int(math.Round(float64(height) * float64(target) / float64(width)))
	if h < 1 {
		h = 1
	}
	return target, h
}
