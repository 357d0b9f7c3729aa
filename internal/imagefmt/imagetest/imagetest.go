// Package imagetest builds small, structurally valid image containers for
// tests. The pixel data is not decodable; only the container is.
package imagetest

import (
	"bytes"
	"encoding/binary"
)

// ExifOptions selects what goes into the Exif block of a generated JPEG.
type ExifOptions struct {
	LittleEndian bool
	Make         string
	Model        string
	Orientation  uint16
	DateTime     string // "2006:01:02 15:04:05"

	// ExposureTime, FNumber and FocalLength are numerator/denominator pairs.
	ExposureTime [2]uint32
	FNumber      [2]uint32
	FocalLength  [2]uint32
	ISO          uint16
	PixelX       uint32
	PixelY       uint32

	GPS bool
	// Degrees, minutes, seconds*100.
	Lat, Lng [3]uint32
	LatRef   string
	LngRef   string
	Altitude [2]uint32
}

// DefaultExif returns options with camera and GPS data populated.
func DefaultExif() ExifOptions {
	return ExifOptions{
		Make:         "Canon",
		Model:        "EOS R6",
		Orientation:  1,
		DateTime:     "2024:03:15 10:30:00",
		ExposureTime: [2]uint32{1, 250},
		FNumber:      [2]uint32{28, 10},
		FocalLength:  [2]uint32{35, 1},
		ISO:          400,
		PixelX:       4000,
		PixelY:       3000,
		GPS:          true,
		Lat:          [3]uint32{37, 46, 3000},
		LatRef:       "N",
		Lng:          [3]uint32{122, 25, 1200},
		LngRef:       "W",
		Altitude:     [2]uint32{155, 10},
	}
}

// JPEGOptions describes a generated JPEG.
type JPEGOptions struct {
	Width, Height uint16
	Exif          *ExifOptions
	XMP           bool
	Comment       string
}

// JPEG builds SOI, optional APP1 (Exif/XMP), DQT, SOF0, DHT, SOS, a short
// entropy-coded body and EOI.
func JPEG(opts JPEGOptions) []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8})
	writeSegment(&b, 0xE0, append([]byte("JFIF\x00"), 1, 1, 0, 0, 1, 0, 1, 0, 0))
	if opts.Exif != nil {
		writeSegment(&b, 0xE1, append([]byte("Exif\x00\x00"), TIFF(*opts.Exif)...))
	}
	if opts.XMP {
		writeSegment(&b, 0xE1, append([]byte("http://ns.adobe.com/xap/1.0/\x00"), []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"/>`)...))
	}
	if opts.Comment != "" {
		writeSegment(&b, 0xFE, []byte(opts.Comment))
	}
	dqt := make([]byte, 65)
	for i := 1; i < len(dqt); i++ {
		dqt[i] = byte(i)
	}
	writeSegment(&b, 0xDB, dqt)

	sof := []byte{8, 0, 0, 0, 0, 1, 1, 0x11, 0}
	binary.BigEndian.PutUint16(sof[1:], opts.Height)
	binary.BigEndian.PutUint16(sof[3:], opts.Width)
	writeSegment(&b, 0xC0, sof)
	writeSegment(&b, 0xC4, []byte{0x00, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x00})
	writeSegment(&b, 0xDA, []byte{1, 1, 0x00, 0, 63, 0})
	// entropy-coded data, including a stuffed 0xFF00 and a restart marker
	b.Write([]byte{0x12, 0x34, 0xFF, 0x00, 0x56, 0xFF, 0xD0, 0x78, 0x9A})
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

func writeSegment(b *bytes.Buffer, marker byte, payload []byte) {
	b.Write([]byte{0xFF, marker})
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(payload)+2))
	b.Write(l[:])
	b.Write(payload)
}

// PNG returns a PNG signature followed by an IHDR chunk.
func PNG(width, height uint32) []byte {
	var b bytes.Buffer
	b.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'})
	b.Write([]byte{0, 0, 0, 13})
	b.WriteString("IHDR")
	var d [8]byte
	binary.BigEndian.PutUint32(d[0:], width)
	binary.BigEndian.PutUint32(d[4:], height)
	b.Write(d[:])
	b.Write([]byte{8, 6, 0, 0, 0})
	b.Write([]byte{0, 0, 0, 0}) // crc is not checked by header readers
	return b.Bytes()
}

// GIF returns a GIF89a header with the given logical screen size.
func GIF(width, height uint16) []byte {
	out := []byte("GIF89a")
	var d [4]byte
	binary.LittleEndian.PutUint16(d[0:], width)
	binary.LittleEndian.PutUint16(d[2:], height)
	out = append(out, d[:]...)
	return append(out, 0, 0, 0, 0x3B)
}

// HEIC returns the leading ftyp box of a HEIF file with the given brand.
func HEIC(brand string) []byte {
	box := []byte{0, 0, 0, 24}
	box = append(box, "ftyp"...)
	box = append(box, brand...)
	box = append(box, 0, 0, 0, 0)
	box = append(box, "mif1"...)
	box = append(box, brand...)
	return append(box, make([]byte, 32)...)
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

// TIFF builds the TIFF structure that follows the Exif signature.
func TIFF(o ExifOptions) []byte {
	var order binary.ByteOrder = binary.BigEndian
	header := []byte{'M', 'M', 0, 42, 0, 0, 0, 8}
	if o.LittleEndian {
		order = binary.LittleEndian
		header = []byte{'I', 'I', 42, 0, 8, 0, 0, 0}
	}

	short := func(v uint16) []byte { b := make([]byte, 2); order.PutUint16(b, v); return b }
	long := func(v uint32) []byte { b := make([]byte, 4); order.PutUint32(b, v); return b }
	rats := func(vs ...uint32) []byte {
		var b []byte
		for _, v := range vs {
			b = append(b, long(v)...)
		}
		return b
	}
	ascii := func(s string) entry {
		d := append([]byte(s), 0)
		return entry{typ: typeASCII, count: uint32(len(d)), data: d}
	}
	with := func(tag uint16, e entry) entry { e.tag = tag; return e }

	var ifd0 []entry
	if o.Make != "" {
		ifd0 = append(ifd0, with(0x010F, ascii(o.Make)))
	}
	if o.Model != "" {
		ifd0 = append(ifd0, with(0x0110, ascii(o.Model)))
	}
	if o.Orientation != 0 {
		ifd0 = append(ifd0, entry{0x0112, typeShort, 1, short(o.Orientation)})
	}

	var exif []entry
	if o.ExposureTime[1] != 0 {
		exif = append(exif, entry{0x829A, typeRational, 1, rats(o.ExposureTime[0], o.ExposureTime[1])})
	}
	if o.FNumber[1] != 0 {
		exif = append(exif, entry{0x829D, typeRational, 1, rats(o.FNumber[0], o.FNumber[1])})
	}
	if o.ISO != 0 {
		exif = append(exif, entry{0x8827, typeShort, 1, short(o.ISO)})
	}
	if o.DateTime != "" {
		exif = append(exif, with(0x9003, ascii(o.DateTime)))
	}
	if o.FocalLength[1] != 0 {
		exif = append(exif, entry{0x920A, typeRational, 1, rats(o.FocalLength[0], o.FocalLength[1])})
	}
	if o.PixelX != 0 {
		exif = append(exif, entry{0xA002, typeLong, 1, long(o.PixelX)})
	}
	if o.PixelY != 0 {
		exif = append(exif, entry{0xA003, typeLong, 1, long(o.PixelY)})
	}

	var gps []entry
	if o.GPS {
		gps = []entry{
			with(0x0001, ascii(o.LatRef)),
			{0x0002, typeRational, 3, rats(o.Lat[0], 1, o.Lat[1], 1, o.Lat[2], 100)},
			with(0x0003, ascii(o.LngRef)),
			{0x0004, typeRational, 3, rats(o.Lng[0], 1, o.Lng[1], 1, o.Lng[2], 100)},
			{0x0005, typeByte, 1, []byte{0, 0, 0, 0}},
			{0x0006, typeRational, 1, rats(o.Altitude[0], o.Altitude[1])},
		}
	}

	// pointer entries are patched once every directory size is known
	exifPtr, gpsPtr := -1, -1
	if len(exif) > 0 {
		exifPtr = len(ifd0)
		ifd0 = append(ifd0, entry{0x8769, typeLong, 1, long(0)})
	}
	if len(gps) > 0 {
		gpsPtr = len(ifd0)
		ifd0 = append(ifd0, entry{0x8825, typeLong, 1, long(0)})
	}

	off0 := uint32(8)
	offExif := off0 + uint32(ifdSize(ifd0))
	offGPS := offExif + uint32(ifdSize(exif))
	if exifPtr >= 0 {
		ifd0[exifPtr].data = long(offExif)
	}
	if gpsPtr >= 0 {
		ifd0[gpsPtr].data = long(offGPS)
	}

	out := append([]byte{}, header...)
	out = append(out, encodeIFD(order, ifd0, off0)...)
	if len(exif) > 0 {
		out = append(out, encodeIFD(order, exif, offExif)...)
	}
	if len(gps) > 0 {
		out = append(out, encodeIFD(order, gps, offGPS)...)
	}
	return out
}

func ifdSize(entries []entry) int {
	if len(entries) == 0 {
		return 0
	}
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

func encodeIFD(order binary.ByteOrder, entries []entry, offset uint32) []byte {
	buf := make([]byte, 2+12*len(entries)+4)
	order.PutUint16(buf, uint16(len(entries)))
	dataOff := offset + uint32(len(buf))
	var data []byte
	for i, e := range entries {
		p := 2 + 12*i
		order.PutUint16(buf[p:], e.tag)
		order.PutUint16(buf[p+2:], e.typ)
		order.PutUint32(buf[p+4:], e.count)
		if len(e.data) <= 4 {
			copy(buf[p+8:p+12], e.data)
			continue
		}
		order.PutUint32(buf[p+8:], dataOff+uint32(len(data)))
		data = append(data, e.data...)
		if len(e.data)%2 == 1 {
			data = append(data, 0)
		}
	}
	return append(buf, data...)
}
