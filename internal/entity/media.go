package entity

import (
	"time"

	"github.com/joseph-ayodele/fieldmedia/constants"
)

// Media is one stored original plus the fields derived by processing.
type Media struct {
	ID          string              `db:"id" json:"id"`
	BusinessID  string              `db:"business_id" json:"business_id"`
	JobID       string              `db:"job_id" json:"job_id"`
	Bucket      string              `db:"bucket" json:"bucket"`
	StoragePath string              `db:"storage_path" json:"storage_path"`
	Filename    string              `db:"filename" json:"filename"`
	MimeType    string              `db:"mime_type" json:"mime_type"`
	Kind        constants.MediaKind `db:"kind" json:"kind"`
	SizeBytes   int64               `db:"size_bytes" json:"size_bytes"`
	Category    string              `db:"category" json:"category"`
	Description string              `db:"description" json:"description"`

	Latitude    *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64   `db:"longitude" json:"longitude,omitempty"`
	Altitude    *float64   `db:"altitude" json:"altitude,omitempty"`
	TakenAt     *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	CameraMake  *string    `db:"camera_make" json:"camera_make,omitempty"`
	CameraModel *string    `db:"camera_model" json:"camera_model,omitempty"`

	Width              *int                       `db:"width" json:"width,omitempty"`
	Height             *int                       `db:"height" json:"height,omitempty"`
	ThumbSm            *string                    `db:"thumb_sm" json:"thumb_sm,omitempty"`
	ThumbMd            *string                    `db:"thumb_md" json:"thumb_md,omitempty"`
	ThumbLg            *string                    `db:"thumb_lg" json:"thumb_lg,omitempty"`
	ContentHash        *string                    `db:"content_hash" json:"content_hash,omitempty"`
	PerceptualHash     *string                    `db:"perceptual_hash" json:"perceptual_hash,omitempty"`
	PerceptualHashAlgo *string                    `db:"perceptual_hash_algo" json:"perceptual_hash_algo,omitempty"`
	ProcessingStatus   constants.ProcessingStatus `db:"processing_status" json:"processing_status"`
	ProcessingError    *string                    `db:"processing_error" json:"processing_error,omitempty"`
	ProcessedAt        *time.Time                 `db:"processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// Processing carries every derived field of one processing pass. It is
// written as a whole; nil fields overwrite earlier values with NULL.
type Processing struct {
	Width              *int
	Height             *int
	ThumbSm            *string
	ThumbMd            *string
	ThumbLg            *string
	ContentHash        string
	PerceptualHash     string
	PerceptualHashAlgo string
	ProcessedAt        time.Time
}
