// Package sanitize serves audience-specific copies of stored photos with
// embedded metadata redacted, caching each variant next to its original.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt"
	"github.com/joseph-ayodele/fieldmedia/internal/objstore"
)

// MediaReader resolves a media id to its stored original.
type MediaReader interface {
	GetByID(ctx context.Context, id string) (*entity.Media, error)
}

// Result is the sanitizer's response shape.
type Result struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Cached  bool   `json:"cached"`
	Error   string `json:"error,omitempty"`
}

type Sanitizer struct {
	store       objstore.Store
	media       MediaReader
	index       VariantIndex
	logger      *slog.Logger
	variantTTL  time.Duration
	downloadTTL time.Duration
}

type Option func(*Sanitizer)

// WithIndex adds a variant index in front of the object store.
func WithIndex(idx VariantIndex) Option {
	return func(s *Sanitizer) {
		if idx != nil {
			s.index = idx
		}
	}
}

// WithURLTTLs sets signed URL lifetimes for variants and for downloads.
func WithURLTTLs(variant, download time.Duration) Option {
	return func(s *Sanitizer) {
		if variant > 0 {
			s.variantTTL = variant
		}
		if download > 0 {
			s.downloadTTL = download
		}
	}
}

func New(store objstore.Store, media MediaReader, logger *slog.Logger, opts ...Option) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sanitizer{
		store:       store,
		media:       media,
		index:       noIndex{},
		logger:      logger,
		variantTTL:  24 * time.Hour,
		downloadTTL: time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sanitize returns a signed URL for the media as the given audience may see
// it. Concurrent first requests for the same variant may both derive and
// write it; the output is deterministic so the last write wins harmlessly.
func (s *Sanitizer) Sanitize(ctx context.Context, mediaID, audienceName string) (Result, error) {
	logger := common.LoggerFromContext(ctx, s.logger).With("media_id", mediaID, "context", audienceName)

	v := common.NewValidator().
		Field("mediaId", mediaID, common.Required).
		Field("context", audienceName, common.OneOf(
			string(constants.AudiencePortal), string(constants.AudiencePublic), string(constants.AudienceDownload)))
	if err := v.Err(); err != nil {
		return Result{Error: err.Error()}, err
	}
	audience, _ := constants.ParseAudience(audienceName)

	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return Result{Error: err.Error()}, err
	}

	if audience == constants.AudienceDownload {
		url, err := s.store.SignedURL(ctx, m.Bucket, m.StoragePath, s.downloadTTL)
		if err != nil {
			return Result{Error: err.Error()}, fmt.Errorf("sign original: %w", err)
		}
		return Result{Success: true, URL: url}, nil
	}

	variant := objstore.VariantPath(m.StoragePath, audience, m.ID)
	cached, err := s.cached(ctx, logger, m, audience, variant)
	if err != nil {
		return Result{Error: err.Error()}, err
	}
	if cached {
		url, err := s.store.SignedURL(ctx, m.Bucket, variant, s.variantTTL)
		if err != nil {
			return Result{Error: err.Error()}, fmt.Errorf("sign variant: %w", err)
		}
		return Result{Success: true, URL: url, Cached: true}, nil
	}

	res, err := s.derive(ctx, logger, m, audience, variant)
	if err != nil {
		return Result{Error: err.Error()}, err
	}
	return res, nil
}

// cached reports whether the variant object exists. The object store
// decides; an index entry whose object is gone is dropped.
func (s *Sanitizer) cached(ctx context.Context, logger *slog.Logger, m *entity.Media, audience constants.Audience, variant string) (bool, error) {
	hit, err := s.index.Lookup(ctx, m.ID, audience)
	if err != nil {
		logger.Warn("variant index lookup failed", "error", err)
	}
	exists, err := s.store.Exists(ctx, m.Bucket, variant)
	if err != nil {
		return false, fmt.Errorf("check variant: %w", err)
	}
	switch {
	case exists && !hit:
		s.remember(ctx, logger, m.ID, audience, variant)
	case !exists && hit:
		logger.Warn("variant index entry has no object, dropping it", "path", variant)
		if err := s.index.Forget(ctx, m.ID); err != nil {
			logger.Warn("variant index cleanup failed", "error", err)
		}
	}
	return exists, nil
}

func (s *Sanitizer) derive(ctx context.Context, logger *slog.Logger, m *entity.Media, audience constants.Audience, variant string) (Result, error) {
	data, err := s.store.Get(ctx, m.Bucket, m.StoragePath)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return Result{}, common.NewAppError(common.CodeSourceMissing,
				"original "+m.StoragePath+" not found", fmt.Errorf("%w: %v", common.ErrSourceMissing, err))
		}
		return Result{}, fmt.Errorf("download original: %w", err)
	}

	if !imagefmt.IsJPEG(data) {
		// nothing is redacted for formats without a segment walker
		logger.Warn("sanitization is a no-op for this format; serving original",
			"format", imagefmt.Detect(data), "mime_type", m.MimeType)
		url, err := s.store.SignedURL(ctx, m.Bucket, m.StoragePath, s.variantTTL)
		if err != nil {
			return Result{}, fmt.Errorf("sign original: %w", err)
		}
		return Result{Success: true, URL: url}, nil
	}

	out, err := Redact(data, audience)
	if err != nil {
		logger.Warn("malformed image, variant keeps original bytes", "error", err)
	}
	if err := s.store.Put(ctx, m.Bucket, variant, out, "image/jpeg"); err != nil {
		return Result{}, fmt.Errorf("write variant: %w", err)
	}
	s.remember(ctx, logger, m.ID, audience, variant)

	url, err := s.store.SignedURL(ctx, m.Bucket, variant, s.variantTTL)
	if err != nil {
		return Result{}, fmt.Errorf("sign variant: %w", err)
	}
	logger.Info("sanitized variant written", "path", variant, "bytes", len(out))
	return Result{Success: true, URL: url}, nil
}

func (s *Sanitizer) remember(ctx context.Context, logger *slog.Logger, mediaID string, audience constants.Audience, variant string) {
	if err := s.index.Remember(ctx, mediaID, audience, variant); err != nil {
		logger.Warn("variant index update failed", "error", err)
	}
}

// Invalidate deletes every cached variant of a media item so the next
// request derives it again.
func (s *Sanitizer) Invalidate(ctx context.Context, mediaID string) error {
	m, err := s.media.GetByID(ctx, mediaID)
	if err != nil {
		return err
	}
	for _, a := range cachedAudiences {
		if err := s.store.Delete(ctx, m.Bucket, objstore.VariantPath(m.StoragePath, a, m.ID)); err != nil {
			return fmt.Errorf("delete %s variant: %w", a, err)
		}
	}
	if err := s.index.Forget(ctx, m.ID); err != nil {
		return fmt.Errorf("forget variant index: %w", err)
	}
	s.logger.Info("sanitized variants invalidated", "media_id", m.ID)
	return nil
}
