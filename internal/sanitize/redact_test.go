package sanitize

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt/imagetest"
)

func photoWithExif(littleEndian bool) []byte {
	exif := imagetest.DefaultExif()
	exif.LittleEndian = littleEndian
	return imagetest.JPEG(imagetest.JPEGOptions{Width: 640, Height: 480, Exif: &exif, XMP: true, Comment: "site 4"})
}

// gpsPointer reads the GPS IFD pointer value from the first Exif segment.
func gpsPointer(t *testing.T, data []byte) uint32 {
	t.Helper()
	start := bytes.Index(data, imagefmt.ExifSignature)
	require.GreaterOrEqual(t, start, 0)
	tiff := data[start+len(imagefmt.ExifSignature):]
	order, err := imagefmt.TIFFByteOrder(tiff)
	require.NoError(t, err)
	entry, found := imagefmt.ScanPointerEntry(tiff, imagefmt.TagGPSIFD)
	require.True(t, found)
	return order.Uint32(tiff[imagefmt.EntryValueOffset(entry):])
}

func TestRedact_PublicStripsAllMetadata(t *testing.T) {
	in := photoWithExif(false)

	out, err := Redact(in, constants.AudiencePublic)
	require.NoError(t, err)

	assert.False(t, bytes.Contains(out, imagefmt.ExifSignature))
	assert.False(t, bytes.Contains(out, []byte("http://ns.adobe.com/xap/1.0/")))
	assert.False(t, bytes.Contains(out, []byte("Canon")))
	assert.Less(t, len(out), len(in))

	// structural segments and scan data survive byte for byte
	assert.True(t, bytes.Contains(out, []byte("site 4")))
	assert.Equal(t, in[len(in)-11:], out[len(out)-11:])
	w, h, ok := imagefmt.Dimensions(out)
	require.True(t, ok)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestRedact_PublicStripsIPTC(t *testing.T) {
	in := imagetest.JPEG(imagetest.JPEGOptions{Width: 8, Height: 8})
	iptc := []byte{0xFF, imagefmt.MarkerAPP13, 0, 18}
	iptc = append(iptc, []byte("Photoshop 3.0\x00AB")...)
	in = append(append(append([]byte{}, in[:2]...), iptc...), in[2:]...)

	out, err := Redact(in, constants.AudiencePublic)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out, []byte("Photoshop 3.0")))
	assert.Len(t, out, len(in)-len(iptc))
}

func TestRedact_PortalZeroesGPSPointer(t *testing.T) {
	for _, le := range []bool{false, true} {
		in := photoWithExif(le)
		require.NotZero(t, gpsPointer(t, in))

		out, err := Redact(in, constants.AudiencePortal)
		require.NoError(t, err)

		assert.Len(t, out, len(in), "segment lengths never change")
		assert.True(t, bytes.Contains(out, imagefmt.ExifSignature))
		assert.True(t, bytes.Contains(out, []byte("EOS R6")))
		assert.Zero(t, gpsPointer(t, out))

		diff := 0
		for i := range in {
			if in[i] != out[i] {
				diff++
			}
		}
		assert.LessOrEqual(t, diff, 4, "only the pointer value changes")
		assert.NotEqual(t, in, out)
	}
}

func TestRedact_PortalFallsBackToScan(t *testing.T) {
	in := photoWithExif(false)
	start := bytes.Index(in, imagefmt.ExifSignature) + len(imagefmt.ExifSignature)
	// point IFD0 outside the segment so the directory walk fails
	binary.BigEndian.PutUint32(in[start+4:], 0xFFFF)

	out, err := Redact(in, constants.AudiencePortal)
	require.NoError(t, err)
	assert.Len(t, out, len(in))
	assert.Zero(t, gpsPointer(t, out))
}

func TestRedact_PortalWithoutGPS(t *testing.T) {
	exif := imagetest.DefaultExif()
	exif.GPS = false
	in := imagetest.JPEG(imagetest.JPEGOptions{Width: 8, Height: 8, Exif: &exif})

	out, err := Redact(in, constants.AudiencePortal)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRedact_MalformedReturnsInput(t *testing.T) {
	full := photoWithExif(false)
	exifAt := bytes.Index(full, imagefmt.ExifSignature)

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated inside exif segment", full[:exifAt+20]},
		{"truncated before scan", full[:len(full)/2]},
		{"garbage after header", append([]byte{0xFF, 0xD8, 0x12, 0x34}, make([]byte, 16)...)},
		{"bad segment length", []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x01, 0xFF, 0xD9}},
	}
	for _, tt := range tests {
		for _, audience := range []constants.Audience{constants.AudiencePublic, constants.AudiencePortal} {
			t.Run(tt.name+"/"+string(audience), func(t *testing.T) {
				in := append([]byte{}, tt.data...)
				out, err := Redact(in, audience)
				assert.Error(t, err)
				assert.Equal(t, tt.data, out)
			})
		}
	}
}

func TestRedact_NotJPEG(t *testing.T) {
	in := imagetest.PNG(10, 10)
	out, err := Redact(in, constants.AudiencePublic)
	assert.ErrorIs(t, err, imagefmt.ErrNotJPEG)
	assert.Equal(t, in, out)
}

func TestRedact_Download(t *testing.T) {
	in := photoWithExif(false)
	out, err := Redact(in, constants.AudienceDownload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
