package objstore

import (
	"path"
	"strings"

	"github.com/joseph-ayodele/fieldmedia/constants"
)

// OriginalPath is <businessId>/<jobId>/<filename>.
func OriginalPath(businessID, jobID, filename string) string {
	return businessID + "/" + jobID + "/" + path.Base(strings.ReplaceAll(filename, "\\", "/"))
}

// Namespace is the directory part of an object path.
func Namespace(storagePath string) string {
	return path.Dir(storagePath)
}

const (
	thumbnailPrefix = "thumb_"
	variantPrefix   = "stripped_"
)

// IsDerivedName reports whether filename would sit in the namespace reserved
// for thumbnails and sanitized variants.
func IsDerivedName(filename string) bool {
	return strings.HasPrefix(filename, thumbnailPrefix) || strings.HasPrefix(filename, variantPrefix)
}

// ThumbnailPath is <ns>/thumb_<size>_<basename without ext>.webp, next to
// the original at storagePath.
func ThumbnailPath(storagePath string, size constants.ThumbnailSize) string {
	base := path.Base(storagePath)
	base = strings.TrimSuffix(base, path.Ext(base))
	return path.Join(Namespace(storagePath), thumbnailPrefix+string(size)+"_"+base+".webp")
}

// VariantPath is <ns>/stripped_<audience>_<mediaId>.jpg.
func VariantPath(storagePath string, audience constants.Audience, mediaID string) string {
	return path.Join(Namespace(storagePath), variantPrefix+string(audience)+"_"+mediaID+".jpg")
}
