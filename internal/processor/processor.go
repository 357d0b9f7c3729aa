// Package processor derives thumbnails, hashes and dimensions for stored
// originals and records them on the media record in one write.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/entity"
	"github.com/joseph-ayodele/fieldmedia/internal/imagefmt"
	"github.com/joseph-ayodele/fieldmedia/internal/objstore"
)

// MediaWriter records processing outcomes.
type MediaWriter interface {
	ApplyProcessing(ctx context.Context, id string, p entity.Processing) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// Request identifies one original to process.
type Request struct {
	MediaID     string `json:"mediaId"`
	StoragePath string `json:"storagePath"`
	Bucket      string `json:"bucket"`
}

// Thumbnails holds a signed URL per size.
type Thumbnails struct {
	Sm string `json:"sm"`
	Md string `json:"md"`
	Lg string `json:"lg"`
}

// Dimensions are pixel sizes recovered from the container header.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result is the processor's response shape.
type Result struct {
	Success        bool        `json:"success"`
	MediaID        string      `json:"mediaId,omitempty"`
	Thumbnails     *Thumbnails `json:"thumbnails,omitempty"`
	PerceptualHash string      `json:"perceptualHash,omitempty"`
	ContentHash    string      `json:"contentHash,omitempty"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
	Error          string      `json:"error,omitempty"`
}

type Processor struct {
	store     objstore.Store
	media     MediaWriter
	resampler Resampler
	logger    *slog.Logger
	thumbTTL  time.Duration
	now       func() time.Time
}

type Option func(*Processor)

func WithResampler(r Resampler) Option {
	return func(p *Processor) {
		if r != nil {
			p.resampler = r
		}
	}
}

func WithThumbnailURLTTL(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.thumbTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(store objstore.Store, media MediaWriter, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:     store,
		media:     media,
		resampler: PassthroughResampler{},
		logger:    logger,
		thumbTTL:  365 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Process derives everything for req and writes it to the record. Running
// it again for the same original rewrites the same paths with the same
// values.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	logger := common.LoggerFromContext(ctx, p.logger).With("media_id", req.MediaID, "path", req.StoragePath)

	v := common.NewValidator().
		Field("mediaId", req.MediaID, common.Required).
		Field("storagePath", req.StoragePath, common.Required).
		Field("bucket", req.Bucket, common.Required)
	if err := v.Err(); err != nil {
		return failed(err), err
	}

	data, err := p.store.Get(ctx, req.Bucket, req.StoragePath)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			err = common.NewAppError(common.CodeSourceMissing,
				"original "+req.StoragePath+" not found", fmt.Errorf("%w: %v", common.ErrSourceMissing, err))
		}
		return p.fail(ctx, logger, req, err)
	}

	kind := kindOf(req.StoragePath, data)
	res := Result{
		Success:        true,
		MediaID:        req.MediaID,
		ContentHash:    ContentHash(data),
		PerceptualHash: PerceptualHash(data),
	}
	rec := entity.Processing{
		ContentHash:        res.ContentHash,
		PerceptualHash:     res.PerceptualHash,
		PerceptualHashAlgo: PerceptualHashAlgo,
	}

	if kind == constants.KindPhoto {
		w, h, ok := imagefmt.Dimensions(data)
		if ok {
			res.Dimensions = &Dimensions{Width: w, Height: h}
			rec.Width, rec.Height = &w, &h
		} else {
			logger.Debug("dimensions not recoverable from header")
		}

		thumbs, err := p.writeThumbnails(ctx, req, data, w, h)
		if err != nil {
			return p.fail(ctx, logger, req, err)
		}
		res.Thumbnails = thumbs
		rec.ThumbSm, rec.ThumbMd, rec.ThumbLg = &thumbs.Sm, &thumbs.Md, &thumbs.Lg
	}

	rec.ProcessedAt = p.now().UTC()
	if err := p.media.ApplyProcessing(ctx, req.MediaID, rec); err != nil {
		return p.fail(ctx, logger, req, err)
	}

	logger.Info("media processed", "kind", kind, "content_hash", res.ContentHash[:16])
	res.ContentHash = res.ContentHash[:16]
	return res, nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, req Request, cause error) (Result, error) {
	logger.Warn("media processing failed", "error", cause, "retryable", common.IsRetryable(cause))
	if err := p.media.MarkFailed(ctx, req.MediaID, cause.Error()); err != nil {
		logger.Error("could not record processing failure", "error", err)
	}
	return failed(cause), cause
}

func kindOf(storagePath string, data []byte) constants.MediaKind {
	if imagefmt.Detect(data) != imagefmt.FormatUnknown {
		return constants.KindPhoto
	}
	return constants.KindForExt(path.Ext(storagePath))
}

// writeThumbnails writes all sizes concurrently. Sizes written before a
// failure stay in place; the next run overwrites them.
func (p *Processor) writeThumbnails(ctx context.Context, req Request, data []byte, w, h int) (*Thumbnails, error) {
	var (
		mu   sync.Mutex
		urls = make(map[constants.ThumbnailSize]string, len(constants.ThumbnailSizes))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, size := range constants.ThumbnailSizes {
		size := size
		g.Go(func() error {
			tw, th := ThumbnailGeometry(w, h, constants.ThumbnailWidths[size])
			out, err := p.resampler.Resample(data, tw, th)
			if err != nil {
				return fmt.Errorf("resample %s: %w", size, err)
			}
			dst := objstore.ThumbnailPath(req.StoragePath, size)
			contentType := imagefmt.Detect(out).MIMEType()
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if err := p.store.Put(gctx, req.Bucket, dst, out, contentType); err != nil {
				return fmt.Errorf("write %s thumbnail: %w", size, err)
			}
			url, err := p.store.SignedURL(gctx, req.Bucket, dst, p.thumbTTL)
			if err != nil {
				return fmt.Errorf("sign %s thumbnail: %w", size, err)
			}
			mu.Lock()
			urls[size] = url
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Thumbnails{
		Sm: urls[constants.ThumbSmall],
		Md: urls[constants.ThumbMedium],
		Lg: urls[constants.ThumbLarge],
	}, nil
}
