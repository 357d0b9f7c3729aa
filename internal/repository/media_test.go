package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
)

func ptr[T any](v T) *T { return &v }

func TestApplyProcessingQuery_SingleStatement(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	query, args := applyProcessingQuery("m-1", entity.Processing{
		Width:              ptr(4000),
		Height:             ptr(3000),
		ThumbSm:            ptr("https://x/sm"),
		ThumbMd:            ptr("https://x/md"),
		ThumbLg:            ptr("https://x/lg"),
		ContentHash:        "abc",
		PerceptualHash:     "0123456789abcdef",
		PerceptualHashAlgo: "stride-v1",
		ProcessedAt:        now,
	}, now)

	assert.True(t, strings.HasPrefix(query, `UPDATE "media" SET`), query)
	assert.Equal(t, 1, strings.Count(query, "UPDATE"))
	for _, col := range []string{"width", "height", "thumb_sm", "thumb_md", "thumb_lg", "content_hash",
		"perceptual_hash", "perceptual_hash_algo", "processing_status", "processing_error", "processed_at"} {
		assert.Contains(t, query, `"`+col+`"`)
	}
	assert.Contains(t, query, `"processing_error" = NULL`)
	assert.Contains(t, query, `"deleted_at" IS NULL`)
	assert.Contains(t, args, string(constants.ProcessingReady))
	assert.Contains(t, args, "stride-v1")
	assert.Equal(t, "m-1", args[len(args)-1])
}

func TestApplyProcessingQuery_NilFieldsBecomeNull(t *testing.T) {
	query, _ := applyProcessingQuery("m-2", entity.Processing{ContentHash: "h", PerceptualHash: "p", PerceptualHashAlgo: "stride-v1"}, time.Now())
	for _, col := range []string{"width", "height", "thumb_sm", "thumb_md", "thumb_lg"} {
		assert.Contains(t, query, `"`+col+`" = NULL`)
	}
}

func TestCreateQuery_IdempotentInsert(t *testing.T) {
	query, args := createQuery(&entity.Media{
		ID: "m-1", BusinessID: "b", JobID: "j", Bucket: "job-media", StoragePath: "b/j/a.jpg",
		Filename: "a.jpg", MimeType: "image/jpeg", Kind: constants.KindPhoto,
	}, time.Now())
	assert.True(t, strings.HasPrefix(query, `INSERT INTO "media"`), query)
	assert.Contains(t, query, "ON CONFLICT")
	assert.Contains(t, query, "DO NOTHING")
	assert.Contains(t, args, string(constants.ProcessingPending))
}

func TestMarkFailedQuery(t *testing.T) {
	query, args := markFailedQuery("m-1", "source_missing", time.Now())
	assert.Contains(t, query, `"processing_status" = $1`)
	assert.Equal(t, string(constants.ProcessingFailed), args[0])
	assert.Equal(t, "source_missing", args[1])
}

func TestFindByHashQuery(t *testing.T) {
	query, args := findByHashQuery("b", "hash", "m-1")
	assert.Contains(t, query, `"content_hash" = $2`)
	assert.Contains(t, query, `"id" <> $3`)
	assert.Contains(t, query, "LIMIT 1")
	assert.Equal(t, []any{"b", "hash", "m-1"}, args)
}

func TestCountByStatusQuery(t *testing.T) {
	query, args := countByStatusQuery()
	assert.Contains(t, query, "COUNT(*)")
	assert.Contains(t, query, `GROUP BY "processing_status"`)
	assert.Contains(t, query, `"deleted_at" IS NULL`)
	assert.Empty(t, args)
}
