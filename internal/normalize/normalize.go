// Package normalize converts vendor image containers (HEIC/HEIF) into JPEG
// before they are queued, so every later stage sees a decodable format.
package normalize

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// Normalizer rewrites proprietary containers through a Converter.
type Normalizer struct {
	converter Converter
	logger    *slog.Logger
}

// New creates a Normalizer. A nil converter disables conversion.
func New(converter Converter, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{converter: converter, logger: logger}
}

// Normalize returns a JPEG rendition of f when f is a HEIF-family image.
// The bool reports whether a conversion happened. On any failure the
// original file is returned unchanged with false.
func (n *Normalizer) Normalize(ctx context.Context, f File) (File, bool) {
	if !IsProprietaryContainer(f) {
		if declaredHEIF(f) {
			n.logger.Debug("declared heic but container signature differs; leaving as is", "file", f.Name)
		}
		return f, false
	}
	if n.converter == nil {
		n.logger.Warn("heic file left unconverted: no converter configured", "file", f.Name)
		return f, false
	}

	out, err := n.converter.Convert(ctx, f.Data)
	if err != nil {
		n.logger.Warn("heic conversion failed; keeping original", "file", f.Name, "error", err)
		return f, false
	}
	n.logger.Debug("converted heic to jpeg", "file", f.Name, "in_bytes", len(f.Data), "out_bytes", len(out))
	return File{
		Name:     jpegName(f.Name),
		MimeType: "image/jpeg",
		Data:     out,
	}, true
}

func jpegName(name string) string {
	if name == "" {
		return "image.jpg"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
