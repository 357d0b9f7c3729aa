// Package events carries process requests from the ingest endpoint to the
// media processor, over Kafka or an in-process worker pool.
package events

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

var ErrPublisherClosed = errors.New("publisher closed")

// Publisher announces that an original is stored and ready to process.
type Publisher interface {
	PublishProcess(ctx context.Context, req processor.Request) error
	Close() error
}

// Handler processes one request; *processor.Processor satisfies it.
type Handler interface {
	Process(ctx context.Context, req processor.Request) (processor.Result, error)
}

var processRequestSchema = common.NewJSONSchema("process-request.json", map[string]any{
	"type":     "object",
	"required": []any{"mediaId", "storagePath", "bucket"},
	"properties": map[string]any{
		"mediaId":     map[string]any{"type": "string", "minLength": 1},
		"storagePath": map[string]any{"type": "string", "minLength": 1},
		"bucket":      map[string]any{"type": "string", "minLength": 1},
	},
})

// ValidateProcessRequest checks a raw process request document.
func ValidateProcessRequest(data []byte) error {
	return processRequestSchema.Validate(data)
}
