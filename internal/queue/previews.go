package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Previews creates and releases local preview resources for queued items.
type Previews interface {
	Create(id string, data []byte) (ref string, err error)
	Release(ref string) error
}

// FilePreviews keeps previews as files under Dir.
type FilePreviews struct {
	Dir string
}

// NewFilePreviews ensures dir exists.
func NewFilePreviews(dir string) (*FilePreviews, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &FilePreviews{Dir: dir}, nil
}

func (p *FilePreviews) Create(id string, data []byte) (string, error) {
	ref := filepath.Join(p.Dir, "preview_"+sanitizeName(id))
	if err := os.WriteFile(ref, data, 0o600); err != nil {
		return "", fmt.Errorf("write preview: %w", err)
	}
	return ref, nil
}

// Release deletes the preview file. A missing file is not an error.
func (p *FilePreviews) Release(ref string) error {
	if ref == "" {
		return nil
	}
	if !strings.HasPrefix(filepath.Clean(ref), filepath.Clean(p.Dir)+string(filepath.Separator)) {
		return fmt.Errorf("preview %q is outside %q", ref, p.Dir)
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release preview: %w", err)
	}
	return nil
}

func sanitizeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
