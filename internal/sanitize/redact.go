package sanitize

import (
	"fmt"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt"
)

// Redact applies the audience's policy to a JPEG. On any parse failure it
// returns data itself together with the error, never a partial file.
// AudienceDownload is not a redaction policy and returns data unchanged.
func Redact(data []byte, audience constants.Audience) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch audience {
	case constants.AudiencePublic:
		out, err = stripMetadata(data)
	case constants.AudiencePortal:
		out, err = neutralizeGPS(data)
	case constants.AudienceDownload:
		return data, nil
	default:
		return data, fmt.Errorf("unknown audience %q", audience)
	}
	if err != nil {
		return data, err
	}
	return out, nil
}

// isMetadataSegment reports whether seg carries embedded capture metadata:
// Exif or XMP in APP1, or a Photoshop/IPTC block in APP13.
func isMetadataSegment(seg imagefmt.Segment) bool {
	return imagefmt.IsExifSegment(seg) || imagefmt.IsXMPSegment(seg) || seg.Marker == imagefmt.MarkerAPP13
}

// stripMetadata copies every segment except metadata segments. Everything
// from the start-of-scan header onwards is copied verbatim. XMP and IPTC are
// dropped along with Exif since both can carry location and author fields.
func stripMetadata(data []byte) ([]byte, error) {
	c, err := imagefmt.NewCursor(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)
	for c.State() == imagefmt.StateBeforeScan {
		seg, err := c.ReadSegment()
		if err != nil {
			return nil, fmt.Errorf("at offset %d: %w", c.Pos(), err)
		}
		if isMetadataSegment(seg) {
			continue
		}
		out = append(out, seg.Raw...)
	}
	return append(out, c.CopyRemaining()...), nil
}

// neutralizeGPS zeroes the value of the GPS IFD pointer in every Exif
// segment. Lengths are untouched; the GPS directory bytes themselves stay in
// the file, unreachable through the pointer.
func neutralizeGPS(data []byte) ([]byte, error) {
	c, err := imagefmt.NewCursor(data)
	if err != nil {
		return nil, err
	}
	var zero []int
	for c.State() == imagefmt.StateBeforeScan {
		seg, err := c.ReadSegment()
		if err != nil {
			return nil, fmt.Errorf("at offset %d: %w", c.Pos(), err)
		}
		if !imagefmt.IsExifSegment(seg) {
			continue
		}
		tiff := seg.Payload[len(imagefmt.ExifSignature):]
		entry, found, err := imagefmt.FindIFD0Entry(tiff, imagefmt.TagGPSIFD)
		if err != nil {
			entry, found = imagefmt.ScanPointerEntry(tiff, imagefmt.TagGPSIFD)
		}
		if found {
			zero = append(zero, seg.PayloadOffset()+len(imagefmt.ExifSignature)+imagefmt.EntryValueOffset(entry))
		}
	}

	out := make([]byte, len(data))
	copy(out, data)
	for _, off := range zero {
		copy(out[off:off+4], []byte{0, 0, 0, 0})
	}
	return out, nil
}
