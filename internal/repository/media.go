package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
)

const mediaTable = "media"

var mediaColumns = []string{
	"id", "business_id", "job_id", "bucket", "storage_path", "filename", "mime_type", "kind",
	"size_bytes", "category", "description", "latitude", "longitude", "altitude", "taken_at",
	"camera_make", "camera_model", "width", "height", "thumb_sm", "thumb_md", "thumb_lg",
	"content_hash", "perceptual_hash", "perceptual_hash_algo", "processing_status",
	"processing_error", "processed_at", "created_at", "updated_at", "deleted_at",
}

// MediaRepository stores media records. Soft-deleted rows are invisible.
type MediaRepository interface {
	// Create inserts m unless a record with the same id exists; created
	// reports which happened.
	Create(ctx context.Context, m *entity.Media) (created bool, err error)
	GetByID(ctx context.Context, id string) (*entity.Media, error)
	// ApplyProcessing writes every derived field and marks the record ready
	// in one statement.
	ApplyProcessing(ctx context.Context, id string, p entity.Processing) error
	MarkFailed(ctx context.Context, id, msg string) error
	ListByJob(ctx context.Context, businessID, jobID string) ([]*entity.Media, error)
	// FindByContentHash returns the oldest other record in the business with
	// the same content hash, or common.ErrNotFound.
	FindByContentHash(ctx context.Context, businessID, hash, excludeID string) (*entity.Media, error)
}

type mediaRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewMediaRepository(db *sqlx.DB, logger *slog.Logger) MediaRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &mediaRepository{db: db, logger: logger, now: time.Now}
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.Postgres)
}

func (r *mediaRepository) Create(ctx context.Context, m *entity.Media) (bool, error) {
	query, args := createQuery(m, r.now().UTC())
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to create media", "media_id", m.ID, "error", err)
		return false, fmt.Errorf("%w: create media: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return n == 1, nil
}

func createQuery(m *entity.Media, now time.Time) (string, []any) {
	status := m.ProcessingStatus
	if status == "" {
		status = constants.ProcessingPending
	}
	return builder().Insert(mediaTable).
		Columns("id", "business_id", "job_id", "bucket", "storage_path", "filename", "mime_type",
			"kind", "size_bytes", "category", "description", "latitude", "longitude", "altitude",
			"taken_at", "camera_make", "camera_model", "content_hash", "processing_status", "created_at", "updated_at").
		Values(m.ID, m.BusinessID, m.JobID, m.Bucket, m.StoragePath, m.Filename, m.MimeType,
			string(m.Kind), m.SizeBytes, m.Category, m.Description, m.Latitude, m.Longitude, m.Altitude,
			m.TakenAt, m.CameraMake, m.CameraModel, m.ContentHash, string(status), now, now).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()
}

func (r *mediaRepository) GetByID(ctx context.Context, id string) (*entity.Media, error) {
	query, args := selectMedia().
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("deleted_at"))).
		Query()
	var m entity.Media
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if isNoRows(err) {
			return nil, common.NewAppError(common.CodeNotFound, "media "+id+" not found", common.ErrNotFound)
		}
		r.logger.Error("failed to get media", "media_id", id, "error", err)
		return nil, fmt.Errorf("%w: get media: %v", common.ErrDatabase, err)
	}
	return &m, nil
}

func selectMedia() *entsql.Selector {
	return builder().Select(mediaColumns...).From(builder().Table(mediaTable))
}

func (r *mediaRepository) ApplyProcessing(ctx context.Context, id string, p entity.Processing) error {
	query, args := applyProcessingQuery(id, p, r.now().UTC())
	return r.execOne(ctx, id, "apply processing", query, args)
}

func applyProcessingQuery(id string, p entity.Processing, now time.Time) (string, []any) {
	u := builder().Update(mediaTable)
	setNullable(u, "width", p.Width)
	setNullable(u, "height", p.Height)
	setNullable(u, "thumb_sm", p.ThumbSm)
	setNullable(u, "thumb_md", p.ThumbMd)
	setNullable(u, "thumb_lg", p.ThumbLg)
	return u.
		Set("content_hash", p.ContentHash).
		Set("perceptual_hash", p.PerceptualHash).
		Set("perceptual_hash_algo", p.PerceptualHashAlgo).
		Set("processing_status", string(constants.ProcessingReady)).
		SetNull("processing_error").
		Set("processed_at", p.ProcessedAt).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("deleted_at"))).
		Query()
}

func setNullable[T any](u *entsql.UpdateBuilder, column string, v *T) {
	if v == nil {
		u.SetNull(column)
		return
	}
	u.Set(column, *v)
}

func (r *mediaRepository) MarkFailed(ctx context.Context, id, msg string) error {
	query, args := markFailedQuery(id, msg, r.now().UTC())
	return r.execOne(ctx, id, "mark failed", query, args)
}

func markFailedQuery(id, msg string, now time.Time) (string, []any) {
	return builder().Update(mediaTable).
		Set("processing_status", string(constants.ProcessingFailed)).
		Set("processing_error", msg).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("deleted_at"))).
		Query()
}

func (r *mediaRepository) execOne(ctx context.Context, id, op, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("media update failed", "op", op, "media_id", id, "error", err)
		return fmt.Errorf("%w: %s: %v", common.ErrDatabase, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrDatabase, op, err)
	}
	if n == 0 {
		return common.NewAppError(common.CodeNotFound, "media "+id+" not found", common.ErrNotFound)
	}
	return nil
}

func (r *mediaRepository) ListByJob(ctx context.Context, businessID, jobID string) ([]*entity.Media, error) {
	query, args := selectMedia().
		Where(entsql.And(
			entsql.EQ("business_id", businessID),
			entsql.EQ("job_id", jobID),
			entsql.IsNull("deleted_at"),
		)).
		OrderBy("created_at", "id").
		Query()
	var rows []*entity.Media
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.Error("failed to list media", "business_id", businessID, "job_id", jobID, "error", err)
		return nil, fmt.Errorf("%w: list media: %v", common.ErrDatabase, err)
	}
	return rows, nil
}

func (r *mediaRepository) FindByContentHash(ctx context.Context, businessID, hash, excludeID string) (*entity.Media, error) {
	query, args := findByHashQuery(businessID, hash, excludeID)
	var m entity.Media
	if err := r.db.GetContext(ctx, &m, query, args...); err != nil {
		if isNoRows(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find by hash: %v", common.ErrDatabase, err)
	}
	return &m, nil
}

func findByHashQuery(businessID, hash, excludeID string) (string, []any) {
	return selectMedia().
		Where(entsql.And(
			entsql.EQ("business_id", businessID),
			entsql.EQ("content_hash", hash),
			entsql.NEQ("id", excludeID),
			entsql.IsNull("deleted_at"),
		)).
		OrderBy("created_at", "id").
		Limit(1).
		Query()
}

// StatusCount is one row of CountByStatus.
type StatusCount struct {
	Status constants.ProcessingStatus `db:"processing_status"`
	Count  int                        `db:"n"`
}

// CountByStatus tallies live media records per processing status.
func CountByStatus(ctx context.Context, db *sqlx.DB) ([]StatusCount, error) {
	query, args := countByStatusQuery()
	var rows []StatusCount
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: count media: %v", common.ErrDatabase, err)
	}
	return rows, nil
}

func countByStatusQuery() (string, []any) {
	return builder().
		Select("processing_status", entsql.As(entsql.Count("*"), "n")).
		From(builder().Table(mediaTable)).
		Where(entsql.IsNull("deleted_at")).
		GroupBy("processing_status").
		OrderBy("processing_status").
		Query()
}
