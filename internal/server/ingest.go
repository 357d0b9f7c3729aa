package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
	"github.com/joseph-ayodele/fieldmedia/internal/exifmeta"
	"github.com/joseph-ayodele/fieldmedia/internal/objstore"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

// UploadResponse is returned by POST /v1/uploads.
type UploadResponse struct {
	Success     bool   `json:"success"`
	MediaID     string `json:"mediaId"`
	Created     bool   `json:"created"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// upload stores an original, creates its record and asks for processing.
// Repeating an upload with the same media_id changes nothing and returns
// the same answer, so client retries are safe.
func (s *Server) upload(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id := strings.TrimSpace(c.FormValue("media_id"))
	businessID := strings.TrimSpace(c.FormValue("business_id"))
	jobID := strings.TrimSpace(c.FormValue("job_id"))
	category := strings.TrimSpace(c.FormValue("category"))
	description := c.FormValue("description")

	v := common.NewValidator().
		Field("media_id", id, common.Required, common.UUID).
		Field("business_id", businessID, common.Required, common.PathSegment).
		Field("job_id", jobID, common.Required, common.PathSegment).
		Field("category", category, common.MaxLength(64)).
		Field("description", description, common.MaxLength(2000))
	if err := v.Err(); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("file is required")
	}
	if fh.Size > s.maxUpload {
		return badRequest(fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
	}
	data, err := readFormFile(fh)
	if err != nil {
		return badRequest("failed to read file")
	}

	var meta *exifmeta.Metadata
	if raw := c.FormValue("metadata"); raw != "" {
		meta = &exifmeta.Metadata{}
		if err := json.Unmarshal([]byte(raw), meta); err != nil {
			return badRequest("metadata must be a JSON object")
		}
	}

	if existing, err := s.deps.Media.GetByID(ctx, id); err == nil {
		return s.respondIngested(c, existing, false)
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	filename := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if filename == "." || filename == "/" {
		filename = id
	}
	if objstore.IsDerivedName(filename) {
		// keep originals out of the thumbnail and variant names
		filename = id[:8] + "_" + filename
	}
	ext := path.Ext(filename)
	mimeType := c.FormValue("mime_type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = fh.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = constants.MIMEForExt(ext)
	}

	if cat, ok := constants.Canonicalize(category); ok {
		category = string(cat)
	}

	hash := processor.ContentHash(data)
	storagePath, err := s.claimPath(ctx, businessID, jobID, filename, id, hash)
	if err != nil {
		return err
	}

	m := &entity.Media{
		ID:               id,
		BusinessID:       businessID,
		JobID:            jobID,
		Bucket:           s.deps.Bucket,
		StoragePath:      storagePath,
		Filename:         filename,
		MimeType:         mimeType,
		Kind:             constants.KindForMIME(mimeType, ext),
		SizeBytes:        int64(len(data)),
		Category:         category,
		Description:      description,
		ContentHash:      &hash,
		ProcessingStatus: constants.ProcessingPending,
	}
	applyMetadata(m, meta)

	if err := s.deps.Store.Put(ctx, s.deps.Bucket, storagePath, data, mimeType); err != nil {
		return fmt.Errorf("store original: %w", err)
	}
	created, err := s.deps.Media.Create(ctx, m)
	if err != nil {
		return err
	}
	if !created {
		// lost a race with a concurrent retry of the same upload
		existing, err := s.deps.Media.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.respondIngested(c, existing, false)
	}

	common.LoggerFromContext(ctx, s.logger).Info("media ingested",
		"media_id", id, "path", storagePath, "bytes", len(data), "kind", m.Kind)
	return s.respondIngested(c, m, true)
}

// respondIngested answers from the stored record. A record still pending
// gets its process request published, again if this is a repeat.
func (s *Server) respondIngested(c *fiber.Ctx, m *entity.Media, created bool) error {
	ctx := c.UserContext()
	logger := common.LoggerFromContext(ctx, s.logger).With("media_id", m.ID)

	if m.ProcessingStatus == constants.ProcessingPending {
		req := processor.Request{MediaID: m.ID, StoragePath: m.StoragePath, Bucket: m.Bucket}
		if err := s.deps.Publisher.PublishProcess(ctx, req); err != nil {
			// the record stays pending; a retried upload publishes again
			logger.Error("failed to publish process request", "error", err)
			return err
		}
	}

	resp := UploadResponse{Success: true, MediaID: m.ID, Created: created}
	if m.ContentHash != nil {
		dup, err := s.deps.Media.FindByContentHash(ctx, m.BusinessID, *m.ContentHash, m.ID)
		switch {
		case err == nil:
			resp.DuplicateOf = dup.ID
		case !errors.Is(err, common.ErrNotFound):
			logger.Warn("duplicate lookup failed", "error", err)
		}
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resp)
}

// claimPath returns the original path for filename, unless another media
// item already stored different bytes there; then the media id is worked
// into the name so neither original is overwritten.
func (s *Server) claimPath(ctx context.Context, businessID, jobID, filename, id, hash string) (string, error) {
	p := objstore.OriginalPath(businessID, jobID, filename)
	exists, err := s.deps.Store.Exists(ctx, s.deps.Bucket, p)
	if err != nil {
		return "", fmt.Errorf("check original: %w", err)
	}
	if !exists {
		return p, nil
	}
	current, err := s.deps.Store.Get(ctx, s.deps.Bucket, p)
	if err != nil {
		return "", fmt.Errorf("read original: %w", err)
	}
	if processor.ContentHash(current) == hash {
		return p, nil
	}
	ext := path.Ext(filename)
	return objstore.OriginalPath(businessID, jobID, strings.TrimSuffix(filename, ext)+"-"+id[:8]+ext), nil
}

func applyMetadata(m *entity.Media, meta *exifmeta.Metadata) {
	if meta == nil {
		return
	}
	if meta.GPS != nil {
		lat, lng := meta.GPS.Latitude, meta.GPS.Longitude
		m.Latitude, m.Longitude = &lat, &lng
		m.Altitude = meta.GPS.Altitude
	}
	m.TakenAt = meta.TakenAt
	if meta.CameraMake != "" {
		m.CameraMake = &meta.CameraMake
	}
	if meta.CameraModel != "" {
		m.CameraModel = &meta.CameraModel
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
