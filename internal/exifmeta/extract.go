// Package exifmeta pulls capture metadata (location, camera, exposure) out of
// embedded Exif blocks on a best-effort basis.
package exifmeta

import (
	"bytes"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// GPSPosition is a decimal-degree location. South and west are negative.
type GPSPosition struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Metadata is the subset of Exif the pipeline keeps. Absent fields stay empty.
type Metadata struct {
	GPS          *GPSPosition `json:"gps,omitempty"`
	TakenAt      *time.Time   `json:"takenAt,omitempty"`
	CameraMake   string       `json:"cameraMake,omitempty"`
	CameraModel  string       `json:"cameraModel,omitempty"`
	ISO          int          `json:"iso,omitempty"`
	Aperture     string       `json:"aperture,omitempty"`
	ShutterSpeed string       `json:"shutterSpeed,omitempty"`
	FocalLength  string       `json:"focalLength,omitempty"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
	Orientation  int          `json:"orientation,omitempty"`
}

// Empty reports whether no field was recovered.
func (m *Metadata) Empty() bool {
	return m == nil || *m == Metadata{}
}

// Extract parses the Exif block in data. It returns nil when there is no
// block, when the block cannot be parsed, or when it carries none of the
// fields above. It never panics.
func Extract(data []byte) *Metadata {
	return ExtractWithLogger(data, nil)
}

// ExtractWithLogger is Extract with parse failures logged at debug level.
func ExtractWithLogger(data []byte, logger *slog.Logger) (md *Metadata) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("exif parse panicked", "panic", r)
			md = nil
		}
	}()
	if len(data) == 0 {
		return nil
	}

	// Decode returns the tags it managed to read alongside a sub-directory
	// error, so a damaged GPS or Exif directory still yields the rest.
	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil {
		logger.Debug("no exif metadata", "error", err)
		return nil
	}
	if err != nil {
		logger.Debug("partial exif metadata", "error", err)
	}

	m := &Metadata{
		CameraMake:  stringField(x, exif.Make),
		CameraModel: stringField(x, exif.Model),
		ISO:         intField(x, exif.ISOSpeedRatings),
		Width:       intField(x, exif.PixelXDimension),
		Height:      intField(x, exif.PixelYDimension),
		Orientation: intField(x, exif.Orientation),
	}
	if v, ok := ratField(x, exif.FNumber); ok && v > 0 {
		m.Aperture = FormatAperture(v)
	}
	if v, ok := ratField(x, exif.ExposureTime); ok && v > 0 {
		m.ShutterSpeed = FormatShutter(v)
	}
	if v, ok := ratField(x, exif.FocalLength); ok && v > 0 {
		m.FocalLength = FormatFocalLength(v)
	}
	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		m.TakenAt = &t
	}
	if lat, lng, err := x.LatLong(); err == nil && validCoordinate(lat, lng) {
		gps := &GPSPosition{Latitude: lat, Longitude: lng}
		if alt, ok := ratField(x, exif.GPSAltitude); ok {
			if intField(x, exif.GPSAltitudeRef) == 1 {
				alt = -alt
			}
			gps.Altitude = &alt
		}
		m.GPS = gps
	}

	if m.Empty() {
		return nil
	}
	return m
}

// FormatAperture renders an f-number as "f/2.8".
func FormatAperture(fnumber float64) string {
	return "f/" + strconv.FormatFloat(math.Round(fnumber*10)/10, 'f', -1, 64)
}

// FormatShutter renders an exposure time: "2s", "1.5s" or "1/250s".
func FormatShutter(seconds float64) string {
	if seconds >= 1 {
		return strconv.FormatFloat(seconds, 'f', -1, 64) + "s"
	}
	return "1/" + strconv.FormatFloat(math.Round(1/seconds), 'f', 0, 64) + "s"
}

// FormatFocalLength renders a focal length in whole millimetres.
func FormatFocalLength(mm float64) string {
	return strconv.FormatFloat(math.Round(mm), 'f', 0, 64) + "mm"
}

func validCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func stringField(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.StringVal {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func intField(x *exif.Exif, name exif.FieldName) int {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.IntVal {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

func ratField(x *exif.Exif, name exif.FieldName) (float64, bool) {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.RatVal {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}
