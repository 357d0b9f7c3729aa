package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/fieldmedia/internal/queue"
)

// Receipt is the server's answer to an accepted upload.
type Receipt struct {
	MediaID     string `json:"mediaId"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// Transport delivers one queued item to the server.
type Transport interface {
	Upload(ctx context.Context, item *queue.Item) (Receipt, error)
}

// HTTPTransport posts items as multipart forms to the ingest endpoint.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPTransport creates a transport for the server at baseURL.
func NewHTTPTransport(baseURL string, client *http.Client, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

type uploadResponse struct {
	Success     bool   `json:"success"`
	MediaID     string `json:"mediaId"`
	DuplicateOf string `json:"duplicateOf"`
	Error       string `json:"error"`
	Code        string `json:"code"`
}

func (t *HTTPTransport) Upload(ctx context.Context, item *queue.Item) (Receipt, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body, contentType, err := encodeForm(item)
	if err != nil {
		return Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/uploads", body)
	if err != nil {
		return Receipt{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", reqID)

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("upload request failed", "req_id", reqID, "id", item.ID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Receipt{}, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.logger.Warn("upload response close failed", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	t.logger.Debug("upload response",
		"req_id", reqID,
		"id", item.ID,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var out uploadResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if out.Code != "" {
			msg = out.Code + ": " + msg
		}
		return Receipt{}, fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, msg)
	}
	return Receipt{MediaID: out.MediaID, DuplicateOf: out.DuplicateOf}, nil
}

func encodeForm(item *queue.Item) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"media_id":    item.ID,
		"business_id": item.BusinessID,
		"job_id":      item.JobID,
		"category":    item.Category,
		"description": item.Description,
		"mime_type":   item.MimeType,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if item.Metadata != nil {
		md, err := json.Marshal(item.Metadata)
		if err != nil {
			return nil, "", fmt.Errorf("encode metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(md)); err != nil {
			return nil, "", fmt.Errorf("write metadata: %w", err)
		}
	}

	name := item.Filename
	if name == "" {
		name = item.ID
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(item.Content); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
