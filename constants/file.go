package constants

import "strings"

// ThumbnailSize names one derived resolution.
type ThumbnailSize string

const (
	ThumbSmall  ThumbnailSize = "sm"
	ThumbMedium ThumbnailSize = "md"
	ThumbLarge  ThumbnailSize = "lg"
)

// ThumbnailSizes lists every derived resolution in ascending order.
var ThumbnailSizes = []ThumbnailSize{ThumbSmall, ThumbMedium, ThumbLarge}

// ThumbnailWidths holds the target width in pixels for each size.
var ThumbnailWidths = map[ThumbnailSize]int{
	ThumbSmall:  200,
	ThumbMedium: 600,
	ThumbLarge:  1200,
}

// photoExtensions holds the lowercased extensions treated as photos.
var photoExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

var videoExtensions = map[string]string{
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"m4v":  "video/x-m4v",
	"webm": "video/webm",
	"3gp":  "video/3gpp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForExt returns the media kind for an extension, defaulting to photo.
func KindForExt(ext string) MediaKind {
	if _, ok := videoExtensions[NormalizeExt(ext)]; ok {
		return KindVideo
	}
	return KindPhoto
}

// KindForMIME returns the media kind for a MIME type, falling back to ext.
func KindForMIME(mimeType, ext string) MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "image/"):
		return KindPhoto
	}
	return KindForExt(ext)
}

// MIMEForExt returns the conventional MIME type for an extension or "".
func MIMEForExt(ext string) string {
	ext = NormalizeExt(ext)
	if m, ok := photoExtensions[ext]; ok {
		return m
	}
	return videoExtensions[ext]
}

// IsMediaExt reports whether ext is a known photo or video extension.
func IsMediaExt(ext string) bool {
	return MIMEForExt(ext) != ""
}
