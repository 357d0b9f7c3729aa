// Package imagefmt walks image container structures without decoding pixels.
package imagefmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// JPEG marker bytes (the byte following 0xFF).
const (
	MarkerTEM   byte = 0x01
	MarkerSOF0  byte = 0xC0
	MarkerDHT   byte = 0xC4
	MarkerJPG   byte = 0xC8
	MarkerDAC   byte = 0xCC
	MarkerRST0  byte = 0xD0
	MarkerRST7  byte = 0xD7
	MarkerSOI   byte = 0xD8
	MarkerEOI   byte = 0xD9
	MarkerSOS   byte = 0xDA
	MarkerDQT   byte = 0xDB
	MarkerAPP0  byte = 0xE0
	MarkerAPP1  byte = 0xE1
	MarkerAPP13 byte = 0xED
	MarkerCOM   byte = 0xFE
)

var (
	// ErrNotJPEG means the buffer does not start with a start-of-image marker.
	ErrNotJPEG = errors.New("imagefmt: missing start-of-image marker")
	// ErrTruncated means a segment runs past the end of the buffer.
	ErrTruncated = errors.New("imagefmt: truncated segment stream")
	// ErrMalformed means an expected marker byte is missing.
	ErrMalformed = errors.New("imagefmt: malformed segment stream")
)

// State is the position of a Cursor relative to the entropy-coded scan.
type State int

const (
	StateBeforeScan State = iota
	StateInScan
	StateDone
)

func (s State) String() string {
	switch s {
	case StateBeforeScan:
		return "before-scan"
	case StateInScan:
		return "in-scan"
	}
	return "done"
}

// Segment is one marker segment located in the cursor's buffer.
// Raw includes any fill bytes, the marker and (when present) the length field.
type Segment struct {
	Marker  byte
	Offset  int
	Raw     []byte
	Payload []byte
}

// PayloadOffset is the absolute buffer offset of the first payload byte.
func (s Segment) PayloadOffset() int {
	return s.Offset + len(s.Raw) - len(s.Payload)
}

// Cursor reads JPEG marker segments from a byte buffer.
// Segments are read until the start-of-scan marker; the entropy-coded data
// that follows is only available as a whole through CopyRemaining.
type Cursor struct {
	buf   []byte
	pos   int
	state State
}

// NewCursor positions a cursor after the start-of-image marker.
func NewCursor(buf []byte) (*Cursor, error) {
	if !IsJPEG(buf) {
		return nil, ErrNotJPEG
	}
	return &Cursor{buf: buf, pos: 2, state: StateBeforeScan}, nil
}

// State reports where the cursor is.
func (c *Cursor) State() State { return c.state }

// Pos is the offset of the next unread byte.
func (c *Cursor) Pos() int { return c.pos }

// PeekMarker returns the next marker without consuming it.
func (c *Cursor) PeekMarker() (byte, error) {
	marker, _, err := c.peek()
	return marker, err
}

func (c *Cursor) peek() (byte, int, error) {
	if c.state != StateBeforeScan {
		return 0, 0, fmt.Errorf("%w: cursor is %s", ErrMalformed, c.state)
	}
	p := c.pos
	if p >= len(c.buf) {
		return 0, 0, ErrTruncated
	}
	if c.buf[p] != 0xFF {
		return 0, 0, fmt.Errorf("%w: expected 0xFF at offset %d, got 0x%02X", ErrMalformed, p, c.buf[p])
	}
	// 0xFF fill bytes may precede a marker.
	for p < len(c.buf) && c.buf[p] == 0xFF {
		p++
	}
	if p >= len(c.buf) {
		return 0, 0, ErrTruncated
	}
	if c.buf[p] == 0x00 {
		return 0, 0, fmt.Errorf("%w: stuffed byte outside scan at offset %d", ErrMalformed, p)
	}
	return c.buf[p], p, nil
}

// ReadSegment consumes the next segment. Reading the start-of-scan header
// moves the cursor into the scan; reading end-of-image finishes it.
func (c *Cursor) ReadSegment() (Segment, error) {
	marker, mpos, err := c.peek()
	if err != nil {
		return Segment{}, err
	}
	start := c.pos
	after := mpos + 1

	if standalone(marker) {
		seg := Segment{Marker: marker, Offset: start, Raw: c.buf[start:after], Payload: c.buf[after:after]}
		c.pos = after
		if marker == MarkerEOI {
			c.state = StateDone
		}
		return seg, nil
	}

	if after+2 > len(c.buf) {
		return Segment{}, ErrTruncated
	}
	length := int(binary.BigEndian.Uint16(c.buf[after:]))
	if length < 2 {
		return Segment{}, fmt.Errorf("%w: segment 0x%02X length %d", ErrMalformed, marker, length)
	}
	end := after + length
	if end > len(c.buf) {
		return Segment{}, ErrTruncated
	}
	seg := Segment{Marker: marker, Offset: start, Raw: c.buf[start:end], Payload: c.buf[after+2 : end]}
	c.pos = end
	if marker == MarkerSOS {
		c.state = StateInScan
	}
	return seg, nil
}

// CopyRemaining returns every byte after the current position verbatim and
// finishes the cursor.
func (c *Cursor) CopyRemaining() []byte {
	rest := c.buf[c.pos:]
	c.pos = len(c.buf)
	c.state = StateDone
	return rest
}

func standalone(marker byte) bool {
	return marker == MarkerSOI || marker == MarkerEOI || marker == MarkerTEM ||
		(marker >= MarkerRST0 && marker <= MarkerRST7)
}

// IsFrameHeader reports whether marker is a start-of-frame (SOFn) marker.
func IsFrameHeader(marker byte) bool {
	return marker >= MarkerSOF0 && marker <= 0xCF &&
		marker != MarkerDHT && marker != MarkerJPG && marker != MarkerDAC
}
