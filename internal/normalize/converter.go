package normalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Converter turns HEIF-family bytes into JPEG bytes.
type Converter interface {
	Convert(ctx context.Context, data []byte) ([]byte, error)
}

// ErrUnsupportedConverter is returned for an unknown converter name.
var ErrUnsupportedConverter = errors.New("heic conversion not supported: converter must be one of heif-convert | magick | sips")

// CommandConverter shells out to heif-convert, ImageMagick or sips.
// When CacheDir is set, results are kept at {CacheDir}/{sha256}.jpg and reused.
type CommandConverter struct {
	Tool     string
	CacheDir string
	Runner   Runner
	Logger   *slog.Logger
}

// NewCommandConverter creates a converter using the host's tool.
func NewCommandConverter(tool, cacheDir string, logger *slog.Logger) *CommandConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandConverter{Tool: tool, CacheDir: cacheDir, Runner: ExecRunner{}, Logger: logger}
}

func (c *CommandConverter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	var cached string
	if c.CacheDir != "" {
		cached = filepath.Join(c.CacheDir, hashHex+".jpg")
		if out, err := os.ReadFile(cached); err == nil && len(out) > 0 {
			logger.Debug("using cached heic->jpeg", "cache", cached)
			return out, nil
		}
		if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	tmpDir, err := os.MkdirTemp("", "fm-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.heic")
	out := filepath.Join(tmpDir, "out.jpg")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch c.Tool {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "jpeg", in, "--out", out}
	default:
		return nil, ErrUnsupportedConverter
	}
	if _, errb, err := c.Runner.Run(ctx, c.Tool, logger, args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w (%s)", c.Tool, err, truncate(string(errb), 512))
	}

	converted, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("heic conversion produced no output: %w", err)
	}
	if len(converted) == 0 {
		return nil, errors.New("heic conversion produced an empty file")
	}

	if cached != "" {
		// write-then-rename so concurrent converters never observe a partial file
		tmp := cached + ".tmp-" + filepath.Base(tmpDir)
		if err := os.WriteFile(tmp, converted, 0o644); err == nil {
			if err := os.Rename(tmp, cached); err != nil {
				_ = os.Remove(tmp)
				logger.Warn("failed to persist heic->jpeg cache", "cache", cached, "error", err)
			}
		} else {
			logger.Warn("failed to write heic->jpeg cache", "cache", cached, "error", err)
		}
	}
	return converted, nil
}
