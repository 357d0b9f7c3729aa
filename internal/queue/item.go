package queue

import (
	"time"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/exifmeta"
)

// Item is one file waiting to be uploaded.
type Item struct {
	ID          string
	Content     []byte
	MimeType    string
	Size        int64
	Filename    string
	JobID       string
	BusinessID  string
	Category    string
	Description string

	// Best effort, derived at enqueue.
	GPS      *exifmeta.GPSPosition
	Metadata *exifmeta.Metadata

	EnqueuedAt    time.Time
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
	Status        constants.UploadStatus
	PreviewRef    string

	// Seq is the insertion order assigned by the store; it breaks ties
	// between items enqueued within the same clock tick.
	Seq int64
}

func (it *Item) clone() *Item {
	c := *it
	if it.LastAttemptAt != nil {
		t := *it.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}

// EnqueueResult is the structured outcome of Enqueue. Err carries the typed
// cause of a rejection for callers that want errors.Is.
type EnqueueResult struct {
	Success bool   `json:"success"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// Summary aggregates the queue for status displays.
type Summary struct {
	Pending     int     `json:"pending"`
	Uploading   int     `json:"uploading"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
	TotalBytes  int64   `json:"totalBytes"`
	MaxItems    int     `json:"maxItems"`
	MaxBytes    int64   `json:"maxBytes"`
	Utilization float64 `json:"utilization"`
}

// Limits are the admission ceilings and retry policy.
type Limits struct {
	MaxItems    int
	MaxBytes    int64
	MaxAttempts int
	WarnRatio   float64
}

// DefaultLimits returns 100 items, 500 MiB, 10 attempts, warning at 80%.
func DefaultLimits() Limits {
	return Limits{
		MaxItems:    100,
		MaxBytes:    500 << 20,
		MaxAttempts: 10,
		WarnRatio:   0.8,
	}
}
