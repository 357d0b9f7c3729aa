package imagefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt/imagetest"
)

func TestCursor_WalksSegmentsToScan(t *testing.T) {
	exif := imagetest.DefaultExif()
	data := imagetest.JPEG(imagetest.JPEGOptions{Width: 640, Height: 480, Exif: &exif})

	c, err := NewCursor(data)
	require.NoError(t, err)
	assert.Equal(t, StateBeforeScan, c.State())

	var markers []byte
	for c.State() == StateBeforeScan {
		m, err := c.PeekMarker()
		require.NoError(t, err)
		seg, err := c.ReadSegment()
		require.NoError(t, err)
		assert.Equal(t, m, seg.Marker)
		markers = append(markers, seg.Marker)
	}
	assert.Equal(t, []byte{MarkerAPP0, MarkerAPP1, MarkerDQT, MarkerSOF0, MarkerDHT, MarkerSOS}, markers)
	assert.Equal(t, StateInScan, c.State())

	rest := c.CopyRemaining()
	assert.Equal(t, []byte{0xFF, 0xD9}, rest[len(rest)-2:])
	assert.Equal(t, StateDone, c.State())
}

func TestCursor_RejectsNonJPEG(t *testing.T) {
	_, err := NewCursor(imagetest.PNG(10, 10))
	assert.ErrorIs(t, err, ErrNotJPEG)
}

func TestCursor_TruncatedSegment(t *testing.T) {
	data := imagetest.JPEG(imagetest.JPEGOptions{Width: 10, Height: 10})
	c, err := NewCursor(data[:30])
	require.NoError(t, err)

	var lastErr error
	for c.State() == StateBeforeScan {
		if _, lastErr = c.ReadSegment(); lastErr != nil {
			break
		}
	}
	assert.ErrorIs(t, lastErr, ErrTruncated)
}

func TestCursor_MissingMarkerByte(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0x00, 0x01}
	c, err := NewCursor(data)
	require.NoError(t, err)
	_, err = c.ReadSegment()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCursor_FillBytesBeforeMarker(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xFF, 0xFE, 0x00, 0x03, 'x', 0xFF, 0xD9}
	c, err := NewCursor(data)
	require.NoError(t, err)

	seg, err := c.ReadSegment()
	require.NoError(t, err)
	assert.Equal(t, MarkerCOM, seg.Marker)
	assert.Equal(t, []byte("x"), seg.Payload)
	assert.Equal(t, 2, seg.Offset)
	assert.Equal(t, 7, seg.PayloadOffset())

	seg, err = c.ReadSegment()
	require.NoError(t, err)
	assert.Equal(t, MarkerEOI, seg.Marker)
	assert.Equal(t, StateDone, c.State())
}
