package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
	"github.com/joseph-ayodele/fieldmedia/internal/mocks"
)

func ptr[T any](v T) *T { return &v }

func TestJobMediaXLSX(t *testing.T) {
	taken := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	items := []*entity.Media{
		{
			Filename: "roof.jpg", Category: "before", Description: "north slope",
			Kind: constants.KindPhoto, TakenAt: &taken,
			Width: ptr(4000), Height: ptr(3000),
			CameraMake: ptr("Canon"), CameraModel: ptr("EOS R6"),
			Latitude: ptr(37.775), Longitude: ptr(-122.42),
			ContentHash:      ptr("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			ProcessingStatus: constants.ProcessingReady,
		},
		{
			Filename: "roof-copy.jpg", Category: "before",
			Kind: constants.KindPhoto, CreatedAt: taken.Add(time.Hour),
			ContentHash:      ptr("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			ProcessingStatus: constants.ProcessingReady,
		},
		{
			Filename: "walkthrough.mp4", Kind: constants.KindVideo,
			CreatedAt: taken, ProcessingStatus: constants.ProcessingPending,
		},
	}
	repo := new(mocks.MediaRepository)
	repo.On("ListByJob", mock.Anything, "biz", "job").Return(items, nil)

	out, err := NewService(repo, nil).JobMediaXLSX(context.Background(), "biz", "job")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[0])

	assert.Equal(t, "2024-03-15 10:30", rows[1][0])
	assert.Equal(t, "4000x3000", rows[1][5])
	assert.Equal(t, "Canon EOS R6", rows[1][6])
	assert.Equal(t, "37.775", rows[1][7])
	assert.Equal(t, "ready", rows[1][9])
	assert.Equal(t, strings.Repeat("a", 64), rows[1][10], "full hash so the sheet can be deduplicated")

	require.Len(t, rows[2], 12)
	assert.Equal(t, "roof.jpg", rows[2][11])

	assert.Equal(t, "video", rows[3][4])
	assert.Equal(t, "pending", rows[3][9])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 140))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a", truncate("abc", 1))
}

func TestJobMediaXLSX_RepositoryError(t *testing.T) {
	repo := new(mocks.MediaRepository)
	repo.On("ListByJob", mock.Anything, "biz", "job").Return([]*entity.Media(nil), errors.New("boom"))

	_, err := NewService(repo, nil).JobMediaXLSX(context.Background(), "biz", "job")
	assert.Error(t, err)
}

func TestTruncate_ShortLimits(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
