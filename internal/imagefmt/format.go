package imagefmt

import (
	"bytes"
	"encoding/binary"
)

// Format names a container recognised by its magic bytes.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// IsJPEG reports whether data starts with a start-of-image marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == MarkerSOI
}

// Detect identifies the container from its leading bytes.
func Detect(data []byte) Format {
	switch {
	case IsJPEG(data):
		return FormatJPEG
	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	}
	return FormatUnknown
}

// MIMEType returns the MIME type for a detected format, or "".
func (f Format) MIMEType() string {
	if f == FormatUnknown {
		return ""
	}
	return "image/" + string(f)
}

// Dimensions recovers pixel width and height from a container header.
// ok is false when the format is unknown or the header is damaged.
func Dimensions(data []byte) (width, height int, ok bool) {
	switch Detect(data) {
	case FormatJPEG:
		return jpegDimensions(data)
	case FormatPNG:
		// IHDR must be the first chunk: length(4) type(4) width(4) height(4).
		if len(data) < 24 || string(data[12:16]) != "IHDR" {
			return 0, 0, false
		}
		return positive(int(binary.BigEndian.Uint32(data[16:20])), int(binary.BigEndian.Uint32(data[20:24])))
	case FormatGIF:
		if len(data) < 10 {
			return 0, 0, false
		}
		return positive(int(binary.LittleEndian.Uint16(data[6:8])), int(binary.LittleEndian.Uint16(data[8:10])))
	case FormatWebP:
		return webpDimensions(data)
	}
	return 0, 0, false
}

func jpegDimensions(data []byte) (int, int, bool) {
	c, err := NewCursor(data)
	if err != nil {
		return 0, 0, false
	}
	for c.State() == StateBeforeScan {
		seg, err := c.ReadSegment()
		if err != nil {
			return 0, 0, false
		}
		if IsFrameHeader(seg.Marker) {
			// precision(1) height(2) width(2)
			if len(seg.Payload) < 5 {
				return 0, 0, false
			}
			h := int(binary.BigEndian.Uint16(seg.Payload[1:3]))
			w := int(binary.BigEndian.Uint16(seg.Payload[3:5]))
			return positive(w, h)
		}
	}
	return 0, 0, false
}

func webpDimensions(data []byte) (int, int, bool) {
	if len(data) < 30 {
		return 0, 0, false
	}
	switch string(data[12:16]) {
	case "VP8X":
		w := 1 + int(uint32(data[24])|uint32(data[25])<<8|uint32(data[26])<<16)
		h := 1 + int(uint32(data[27])|uint32(data[28])<<8|uint32(data[29])<<16)
		return positive(w, h)
	case "VP8 ":
		// keyframe start code 9d 01 2a precedes 14-bit dimensions
		if data[23] != 0x9d || data[24] != 0x01 || data[25] != 0x2a {
			return 0, 0, false
		}
		w := int(binary.LittleEndian.Uint16(data[26:28]) & 0x3fff)
		h := int(binary.LittleEndian.Uint16(data[28:30]) & 0x3fff)
		return positive(w, h)
	case "VP8L":
		if data[20] != 0x2f {
			return 0, 0, false
		}
		b := data[21:25]
		w := 1 + int(uint32(b[0])|uint32(b[1]&0x3f)<<8)
		h := 1 + int(uint32(b[1]>>6)|uint32(b[2])<<2|uint32(b[3]&0x0f)<<10)
		return positive(w, h)
	}
	return 0, 0, false
}

func positive(w, h int) (int, int, bool) {
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
