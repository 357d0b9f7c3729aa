package imagefmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Tag numbers used when neutralising location data.
const (
	TagExifIFD uint16 = 0x8769
	TagGPSIFD  uint16 = 0x8825
)

const (
	tiffTypeLong uint16 = 4
	tiffTypeIFD  uint16 = 13
	ifdEntrySize        = 12
)

var (
	// ExifSignature prefixes the payload of an APP1 segment holding Exif data.
	ExifSignature = []byte("Exif\x00\x00")
	xmpSignature  = []byte("http://ns.adobe.com/xap/1.0/\x00")
)

// IsExifSegment reports whether seg is an APP1 segment carrying Exif data.
func IsExifSegment(seg Segment) bool {
	return seg.Marker == MarkerAPP1 && bytes.HasPrefix(seg.Payload, ExifSignature)
}

// IsXMPSegment reports whether seg is an APP1 segment carrying an XMP packet.
func IsXMPSegment(seg Segment) bool {
	return seg.Marker == MarkerAPP1 && bytes.HasPrefix(seg.Payload, xmpSignature)
}

// TIFFByteOrder reads the byte-order mark and magic number of a TIFF header.
func TIFFByteOrder(tiff []byte) (binary.ByteOrder, error) {
	if len(tiff) < 8 {
		return nil, fmt.Errorf("%w: tiff header is %d bytes", ErrTruncated, len(tiff))
	}
	var order binary.ByteOrder
	switch string(tiff[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: unknown tiff byte order %q", ErrMalformed, tiff[0:2])
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return nil, fmt.Errorf("%w: bad tiff magic", ErrMalformed)
	}
	return order, nil
}

// FindIFD0Entry walks the first image directory of a TIFF structure and
// returns the offset (relative to tiff) of the entry carrying tag.
// found is false when the directory is well formed but lacks the tag.
func FindIFD0Entry(tiff []byte, tag uint16) (entryOffset int, found bool, err error) {
	order, err := TIFFByteOrder(tiff)
	if err != nil {
		return 0, false, err
	}
	ifd := int(order.Uint32(tiff[4:8]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return 0, false, fmt.Errorf("%w: ifd0 offset %d out of range", ErrTruncated, ifd)
	}
	count := int(order.Uint16(tiff[ifd:]))
	for i := 0; i < count; i++ {
		p := ifd + 2 + i*ifdEntrySize
		if p+ifdEntrySize > len(tiff) {
			return 0, false, fmt.Errorf("%w: ifd0 entry %d", ErrTruncated, i)
		}
		if order.Uint16(tiff[p:]) == tag {
			return p, true, nil
		}
	}
	return 0, false, nil
}

// ScanPointerEntry looks for an IFD entry for tag anywhere in tiff, trying
// both byte orders. Only entries shaped like a single LONG/IFD pointer match.
func ScanPointerEntry(tiff []byte, tag uint16) (entryOffset int, found bool) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		var pattern [2]byte
		order.PutUint16(pattern[:], tag)
		from := 0
		for {
			i := bytes.Index(tiff[from:], pattern[:])
			if i < 0 {
				break
			}
			p := from + i
			if p+ifdEntrySize <= len(tiff) {
				typ := order.Uint16(tiff[p+2:])
				n := order.Uint32(tiff[p+4:])
				if (typ == tiffTypeLong || typ == tiffTypeIFD) && n == 1 {
					return p, true
				}
			}
			from = p + 1
		}
	}
	return 0, false
}

// EntryValueOffset is the offset of the 4-byte value/offset field of an IFD
// entry that starts at entryOffset.
func EntryValueOffset(entryOffset int) int {
	return entryOffset + 8
}
