package constants

// UploadStatus is the lifecycle state of a client-side queued upload.
type UploadStatus string

// Stable values (stored verbatim in the queue database).
const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadFailed    UploadStatus = "failed" // terminal until retried by the user
)

// ProcessingStatus is the server-side state of a media record.
type ProcessingStatus string

const (
	ProcessingPending ProcessingStatus = "pending"
	ProcessingReady   ProcessingStatus = "ready"
	ProcessingFailed  ProcessingStatus = "failed"
)

// MediaKind distinguishes photos from videos.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// Audience is the sanitization context a media variant is produced for.
type Audience string

const (
	AudiencePortal   Audience = "portal"   // customer portal: GPS removed, camera data kept
	AudiencePublic   Audience = "public"   // public gallery: all metadata removed
	AudienceDownload Audience = "download" // owner download: original bytes
)

// ParseAudience maps a raw context string onto a known Audience.
func ParseAudience(s string) (Audience, bool) {
	switch Audience(s) {
	case AudiencePortal, AudiencePublic, AudienceDownload:
		return Audience(s), true
	}
	return "", false
}
